//go:build !windows

package scatter

import "syscall"

// detached puts the child in its own process group so a ^C on the parent's
// terminal does not reach it
func detached() *syscall.SysProcAttr {
	return &syscall.SysProcAttr{Setpgid: true}
}
