// Package output formats analysis results for display or machine consumption.
//
// Three formats are supported:
//   - text: human-readable terminal output (default)
//   - json: the full structured report
//   - sarif: SARIF v2.1.0 for CI upload, with generated fixes as replacements
//
// Use [GetWriter] to obtain a [Writer] for a format, or [WriteReport] to
// write straight to a file or stdout.
package output
