// Package watch turns filesystem notifications under a documentation source
// tree into a stream of relevant change events.
//
// Only file events whose name ends in one of the watched extensions are
// emitted; directory events are consumed internally (new directories are
// registered for watching) and never reach the caller. Hidden directories
// and explicitly excluded directories, such as the build output, are not
// watched. The native source uses fsnotify; a polling source based on
// radovskyb/watcher serves platforms or filesystems without event support.
package watch
