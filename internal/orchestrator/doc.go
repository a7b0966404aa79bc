// Package orchestrator runs one analysis end to end.
//
// A run validates its workspace, gathers per-file context, fans out the
// semantic and static analyzers in parallel under separate deadlines,
// normalizes and deduplicates their output, backfills fixes, and records the
// result on the job. The job is checked for cancellation between stages; a
// cancelled job is never written to again.
package orchestrator
