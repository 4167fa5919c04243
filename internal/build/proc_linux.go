//go:build linux

package build

import "syscall"

// setDeathSignal kills the compiler if sphinxserve dies without cleaning up.
func setDeathSignal(attr *syscall.SysProcAttr) {
	attr.Pdeathsig = syscall.SIGKILL
}
