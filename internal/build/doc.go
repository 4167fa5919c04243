// Package build runs the external document compiler that renders a source
// tree into an output directory.
//
// The compiler is treated as an opaque command invoked as
// `<command> [args...] <source> <output>`. Standard output and standard
// error are captured separately and returned with the exit code and the
// wall-clock duration. A non-zero exit code is reported through the
// [Result], not as an error; errors are reserved for failures to launch
// the process and for cancellation.
package build
