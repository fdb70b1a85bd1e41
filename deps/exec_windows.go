//go:build windows

package deps

import (
	"os/exec"
	"syscall"
)

// configureSysProcAttr hides the console window ffmpeg would otherwise open.
func configureSysProcAttr(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{HideWindow: true}
}
