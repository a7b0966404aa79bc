// Package cli wires together the Cobra command tree for the tandem binary.
//
// It defines the root command and its subcommands (analyze, serve, config,
// cache, hook, version), binds flags, loads configuration, assembles the
// analysis pipeline, and returns deterministic exit codes for CI gating.
package cli
