//go:build windows

package build

import "os/exec"

// configureProcess keeps the default cancellation, which kills the process.
func configureProcess(*exec.Cmd) {}

func isTransient(error) bool { return false }
