// Package jobs tracks analysis runs as pollable, cancellable jobs.
//
// A job starts pending, moves to processing when its run begins, and ends in
// exactly one of completed, failed, or cancelled. Terminal jobs are frozen
// until Cleanup removes them after the retention window. Cancellation is
// cooperative: the run polls IsCancelled at its checkpoints, and any run
// context attached with Attach is cancelled as well.
package jobs
