// Package finding defines the canonical Finding record shared by every analyzer
// and the normalizers that build it.
//
// Static-analysis records map their type and severity vocabularies through fixed
// lookup tables and receive deterministic ids derived from rule, file, and line,
// so reruns on unchanged code produce the same id. Semantic-review records map
// free-text issue types by keyword and derive their ids from file, start line,
// and title.
//
// Each analyzer's raw response is decoded by DecodeStatic or DecodeSemantic,
// which recognize a closed set of wire shapes and reject anything else. Records
// are decoded one at a time: a record with bad field types is kept with its
// DecodeErr set, and normalization skips and counts it. No raw analyzer output
// leaves this package unvalidated.
package finding
