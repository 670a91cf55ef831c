// Package main hosts the Loom CLI entrypoint and command graph.
//
// The Cobra-based command tree drives the translation pipeline in the
// foreground, sends pause/resume/cancel calls to a running pipeline over the
// control socket, inspects the chapter journal, performs glossary
// maintenance, and scaffolds configuration. It centralizes configuration
// resolution and socket discovery so subcommands can focus on user
// experience instead of wiring.
//
// Keep this package lean: add new functionality by extending the internal
// packages first, then surface it through dedicated commands or flags here.
package main
