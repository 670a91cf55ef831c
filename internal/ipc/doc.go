// Package ipc exposes a running pipeline over JSON-RPC Unix sockets and
// ships the matching client used by the CLI.
//
// The server runs on a goroutine inside `loom run` and delegates Pause,
// Resume, Cancel, and Status to the pipeline orchestrator. Control commands
// dial the socket from a second terminal; a missing socket means no run is
// in progress. The package also owns the flock-based run lock that keeps a
// workspace to a single active run.
//
// Reuse these types when adding new RPC endpoints to keep the protocol
// stable and compatible with existing command implementations.
package ipc
