// Package logs provides the file tailing helpers behind `loom logs`.
//
// Tail reads the last N lines of the active log file with bounded memory.
// Follow polls for appended lines until the context is canceled and restarts
// from the top of the file when rotation or truncation moves it backwards.
// Callers supply the context so Ctrl-C shuts the follower down cleanly.
package logs
