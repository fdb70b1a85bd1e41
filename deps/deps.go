// Package deps tracks the external tools and model files the pipeline needs:
// where they are installed, whether they are present, and how to fetch the
// ones that can be downloaded.
package deps

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/stevecastle/stereo180/downloads"
)

// Dependency is an external tool or file set that can be checked and,
// unless ManualOnly, downloaded.
type Dependency struct {
	ID          string
	Name        string
	Description string
	TargetDir   string // Base directory for installation

	// ManualOnly dependencies are never downloaded; InstallURL says where to get them.
	ManualOnly bool
	InstallURL string

	// Check reports whether the dependency is usable and its version.
	Check func(ctx context.Context) (exists bool, version string, err error)

	// Fetch downloads and installs the dependency. Nil for ManualOnly.
	Fetch func(ctx context.Context, progress downloads.ProgressCallback) error
}

// Status is the outcome of checking one dependency.
type Status struct {
	ID        string
	Name      string
	Installed bool
	Version   string
	Err       error
}

var (
	registry = make(map[string]*Dependency)
	mu       sync.RWMutex
)

// Register adds a dependency to the global registry.
func Register(dep *Dependency) {
	mu.Lock()
	defer mu.Unlock()
	registry[dep.ID] = dep
}

// Get retrieves a dependency by its ID.
func Get(id string) (*Dependency, bool) {
	mu.RLock()
	defer mu.RUnlock()
	dep, ok := registry[id]
	return dep, ok
}

// GetAll returns all registered dependencies ordered by ID.
func GetAll() []*Dependency {
	mu.RLock()
	defer mu.RUnlock()

	all := make([]*Dependency, 0, len(registry))
	for _, d := range registry {
		all = append(all, d)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].ID < all[j].ID })
	return all
}

// CheckAll runs every dependency's Check.
func CheckAll(ctx context.Context) []Status {
	var out []Status
	for _, d := range GetAll() {
		exists, version, err := d.Check(ctx)
		out = append(out, Status{ID: d.ID, Name: d.Name, Installed: exists, Version: version, Err: err})
	}
	return out
}

// EnsureAvailable returns an error when depID is unknown or not installed.
func EnsureAvailable(ctx context.Context, depID string) error {
	dep, ok := Get(depID)
	if !ok {
		return fmt.Errorf("unknown dependency: %s", depID)
	}
	exists, _, err := dep.Check(ctx)
	if err != nil {
		return fmt.Errorf("failed to check dependency %s: %w", depID, err)
	}
	if !exists {
		if dep.ManualOnly {
			return fmt.Errorf("dependency %s is not installed, see %s", dep.Name, dep.InstallURL)
		}
		return fmt.Errorf("dependency %s is not installed, run `stereo180 deps fetch`", dep.Name)
	}
	return nil
}

// FetchMissing downloads every fetchable dependency whose Check fails.
func FetchMissing(ctx context.Context, progress downloads.ProgressCallback) error {
	for _, d := range GetAll() {
		if d.ManualOnly || d.Fetch == nil {
			continue
		}
		exists, _, err := d.Check(ctx)
		if err == nil && exists {
			continue
		}
		if err := d.Fetch(ctx, progress); err != nil {
			return fmt.Errorf("failed to fetch %s: %w", d.Name, err)
		}
	}
	return nil
}
