// Package semantic adapts an LLM provider into the semantic analyzer branch
// of a run. It builds the review prompt from the diff and signature context,
// scrubs it, and decodes the reply into raw issues for normalization.
package semantic
