// Package gitctx reads diffs and repository metadata from a local git
// checkout for the analyze command.
//
// It shells out to git for unstaged, staged, and base-range diffs, drops
// excluded sections, and truncates to a byte budget. [ChangedFiles] lists the
// files a unified diff touches.
package gitctx
