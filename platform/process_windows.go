//go:build windows

package platform

import "os"

func processAlive(pid int) bool {
	// OpenProcess fails once the process is gone.
	p, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	_ = p.Release()
	return true
}
