// Package logging builds the zap loggers shared by the CLI and server.
//
// New reads the level and format from configuration and writes to stderr:
// "json" selects zap's production encoder for machine ingestion and "console"
// the development encoder for terminals. NewWriter returns a JSON logger bound
// to an arbitrary writer so tests and subcommands can capture output.
package logging
