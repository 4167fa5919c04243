// Package notify provides the two auto-resetting signals that connect the
// watcher, the renderer, and the web server.
//
// [Pending] is a single-consumer flag: any number of Set calls made before
// the consumer observes it collapse into one wake-up. [Broadcast] releases
// every goroutine waiting at the moment it fires; a waiter that arrives
// after a firing blocks until the next one.
package notify
