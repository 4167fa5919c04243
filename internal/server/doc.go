// Package server serves rendered documentation over HTTP with live reload.
//
// Every HTML page gets a small script injected before its closing head tag.
// The script long-polls [WaitPath], which blocks until the reload signal
// fires after a successful rebuild and then answers 200, prompting the
// browser to refresh. [SocketPath] offers the same notification over a
// WebSocket for clients that prefer a persistent connection.
package server
