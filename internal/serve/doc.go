// Package serve coordinates the watch, render, and serve tasks.
//
// Run performs the startup sequence (source tree preflight, compiler
// preflight, watch registration, initial build, listener bind) and then
// supervises three long-lived goroutines:
//
//   - the watch loop, which raises the rebuild signal for every accepted
//     file event;
//   - the render loop, which consumes the rebuild signal, runs the
//     compiler, and fires the reload signal after each successful build;
//   - the web server, which serves the output and releases waiting
//     browsers when the reload signal fires.
//
// Any task failure cancels the others. SIGINT and SIGTERM stop all three
// and Run returns nil.
package serve
