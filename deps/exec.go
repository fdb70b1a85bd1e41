package deps

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/stevecastle/stereo180/platform"
)

// GetExec builds an exec.Cmd for an executable belonging to a dependency.
// The dependency's install directory is tried first, then the system PATH.
func GetExec(ctx context.Context, depID string, exeName string, args ...string) (*exec.Cmd, error) {
	path, err := ResolveExecutable(depID, exeName)
	if err != nil {
		return nil, err
	}
	cmd := exec.CommandContext(ctx, path, args...)
	configureSysProcAttr(cmd)
	return cmd, nil
}

// ResolveExecutable returns the path GetExec would run.
func ResolveExecutable(depID string, exeName string) (string, error) {
	if dep, ok := Get(depID); ok {
		exePath := filepath.Join(dep.TargetDir, exeName+platform.BinaryExtension())
		if _, err := os.Stat(exePath); err == nil {
			return exePath, nil
		}
	}
	systemPath, err := exec.LookPath(exeName)
	if err != nil {
		return "", fmt.Errorf("executable %q not found in dependency %q or system PATH: %w", exeName, depID, err)
	}
	return systemPath, nil
}
