package pipeline

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/stevecastle/stereo180/platform"
)

const lockOwnerFile = "owner.json"

// ErrLocked is returned when another run holds the working directory.
var ErrLocked = errors.New("working directory is locked")

// Lock marks a working directory as in use. It is a sibling directory
// (workDir + ".lock") so purging the working tree cannot remove it.
type Lock struct {
	dir string
}

type lockOwner struct {
	PID       int    `json:"pid"`
	RunID     string `json:"run_id"`
	CreatedAt string `json:"created_at"`
	Hostname  string `json:"hostname,omitempty"`
}

// AcquireLock takes the lock for workDir or fails with ErrLocked.
func AcquireLock(workDir, runID string) (*Lock, error) {
	target := strings.TrimSpace(workDir)
	if target == "" {
		return nil, fmt.Errorf("working directory is required")
	}
	target = filepath.Clean(target)
	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return nil, err
	}

	dir := target + ".lock"
	for attempt := 0; ; attempt++ {
		err := os.Mkdir(dir, 0o755)
		if err == nil {
			break
		}
		if !os.IsExist(err) {
			return nil, fmt.Errorf("acquire lock for %s: %w", target, err)
		}
		owner, ok := readLockOwner(dir)
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrLocked, target)
		}
		if attempt == 0 && owner.stale() {
			log.Warn().
				Str("work_dir", target).
				Str("run", owner.RunID).
				Int("pid", owner.PID).
				Msg("Reclaiming lock from exited run")
			_ = os.Remove(filepath.Join(dir, lockOwnerFile))
			_ = os.Remove(dir)
			continue
		}
		return nil, fmt.Errorf("%w: %s (run=%s pid=%d created_at=%s host=%s)",
			ErrLocked, target, owner.RunID, owner.PID, owner.CreatedAt, owner.Hostname)
	}

	owner := lockOwner{
		PID:       os.Getpid(),
		RunID:     runID,
		CreatedAt: time.Now().UTC().Format(time.RFC3339),
		Hostname:  hostnameOrUnknown(),
	}
	data, _ := json.MarshalIndent(owner, "", "  ")
	if err := os.WriteFile(filepath.Join(dir, lockOwnerFile), data, 0644); err != nil {
		_ = os.Remove(dir)
		return nil, fmt.Errorf("write lock owner for %s: %w", target, err)
	}
	return &Lock{dir: dir}, nil
}

// Release removes the lock. Safe on a nil lock.
func (l *Lock) Release() error {
	if l == nil || l.dir == "" {
		return nil
	}
	_ = os.Remove(filepath.Join(l.dir, lockOwnerFile))
	if err := os.Remove(l.dir); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("release lock %s: %w", l.dir, err)
	}
	return nil
}

func readLockOwner(dir string) (lockOwner, bool) {
	var owner lockOwner
	data, err := os.ReadFile(filepath.Join(dir, lockOwnerFile))
	if err != nil || json.Unmarshal(data, &owner) != nil || owner.PID <= 0 {
		return owner, false
	}
	return owner, true
}

// stale reports whether the owning process is gone. Locks from other hosts
// are never stale since their PIDs cannot be checked here.
func (o lockOwner) stale() bool {
	return o.Hostname == hostnameOrUnknown() && !platform.ProcessAlive(o.PID)
}

func hostnameOrUnknown() string {
	host, err := os.Hostname()
	if err != nil {
		return "unknown"
	}
	host = strings.TrimSpace(host)
	if host == "" {
		return "unknown"
	}
	return host
}
