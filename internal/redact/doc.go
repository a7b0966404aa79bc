// Package redact scrubs secrets from diffs, prompts, and file content before
// anything is sent to a model provider.
//
// Detection uses regex heuristics for common secret shapes. Files whose paths
// match the configured globs are hidden entirely.
package redact
