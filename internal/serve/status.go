package serve

import (
	"fmt"
	"io"
	"time"

	"github.com/fatih/color"
)

// statusWriter prints the user-facing one-line status messages.
type statusWriter struct {
	out  io.Writer
	good *color.Color
	bad  *color.Color
	info *color.Color
}

func newStatusWriter(out io.Writer) *statusWriter {
	if out == nil {
		out = io.Discard
	}

	return &statusWriter{
		out:  out,
		good: color.New(color.FgGreen),
		bad:  color.New(color.FgRed, color.Bold),
		info: color.New(color.FgCyan),
	}
}

func (s *statusWriter) serving(url, source string) {
	_, _ = s.info.Fprintf(s.out, "serving %s at %s\n", source, url)
}

func (s *statusWriter) ok(trigger string, took time.Duration) {
	_, _ = fmt.Fprintf(s.out, "[%s] %s → ", stamp(), trigger)
	_, _ = s.good.Fprintf(s.out, "build OK (%s)\n", took.Round(time.Millisecond))
}

func (s *statusWriter) failed(trigger string, err error) {
	_, _ = fmt.Fprintf(s.out, "[%s] %s → ", stamp(), trigger)
	_, _ = s.bad.Fprintf(s.out, "build FAILED: %v\n", err)
}

func (s *statusWriter) stopping() {
	_, _ = fmt.Fprintln(s.out, "\nshutting down")
}

func stamp() string { return time.Now().Format("15:04:05") }
