// Tandem reviews code changes with an LLM reviewer and a static analyzer in
// parallel and reconciles both into one deduplicated report.
//
// Findings reported by both analyzers for the same place are merged, fixes are
// generated for findings that lack one, and a quality gate (passed, warning,
// failed) drives the exit code for CI gating and git hooks.
//
// Usage:
//
//	tandem analyze                     # analyze working tree changes
//	tandem analyze --staged            # analyze staged changes
//	tandem analyze --base origin/main  # analyze a branch against its merge base
//	tandem serve --addr :8080          # run the HTTP job server
//	tandem hook install                # gate commits on the quality gate
package main
