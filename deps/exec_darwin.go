//go:build darwin

package deps

import "os/exec"

func configureSysProcAttr(cmd *exec.Cmd) {}
