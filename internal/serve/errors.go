package serve

import (
	"errors"
	"fmt"

	"github.com/hupe1980/sphinxserve/internal/build"
)

// ErrWatchStreamEnded is returned when the file event stream closes while
// the coordinator is still running.
var ErrWatchStreamEnded = errors.New("file watch stream ended unexpectedly")

// BuildFailedError reports a compiler run that did not succeed. Result is
// nil when the compiler could not be launched at all.
type BuildFailedError struct {
	Result *build.Result
	Err    error
}

func (e *BuildFailedError) Error() string {
	switch {
	case e.Err != nil:
		return fmt.Sprintf("build failed: %v", e.Err)
	case e.Result != nil:
		return fmt.Sprintf("build failed with exit code %d", e.Result.ExitCode)
	default:
		return "build failed"
	}
}

func (e *BuildFailedError) Unwrap() error { return e.Err }

// Stderr returns the compiler's error output, if any was captured.
func (e *BuildFailedError) Stderr() string {
	if e.Result == nil {
		return ""
	}

	return e.Result.Stderr
}
