//go:build !linux && !windows

package build

import "syscall"

func setDeathSignal(*syscall.SysProcAttr) {}
