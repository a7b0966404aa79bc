// Package cache stores model responses on disk so repeated fix requests for
// the same finding do not hit the provider again.
//
// Entries are keyed by a SHA-256 of the provider, model, and the already
// redacted prompt. Each entry records its creation time; entries older than
// the configured TTL miss on read and are removed by Prune.
//
// The default directory is $XDG_CACHE_HOME/tandem or the platform equivalent.
package cache
