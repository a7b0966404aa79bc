// Package fixes backfills machine-generated fixes onto findings that were
// reported without one.
//
// A [Backfiller] walks the deduplicated findings file by file and asks a
// [Generator] for each missing fix, within a per-run budget and rate limit.
// [LLMGenerator] is the model-backed generator; its replies are cached on disk.
package fixes
