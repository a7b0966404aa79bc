// Package reconcile merges findings from every analyzer into one deduplicated,
// confidence-ranked list and derives the run summary and quality gate.
package reconcile
