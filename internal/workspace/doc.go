// Package workspace manages the directory tree a run analyzes.
//
// Uploaded trees arrive as zip archives and are extracted into owned temp
// directories; local runs borrow the caller's checkout. Archive produces the
// zip sent to the static scanner. SignatureProvider supplies per-file
// signature context to the semantic reviewer.
package workspace
