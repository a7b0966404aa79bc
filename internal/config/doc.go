// Package config loads and merges tandem configuration from multiple sources.
//
// Precedence (highest to lowest):
//  1. CLI flags
//  2. Environment variables (TANDEM_PROVIDER, TANDEM_STATIC_URL, TANDEM_LOG_LEVEL, etc.)
//  3. Config file ($XDG_CONFIG_HOME/tandem/config.yaml)
//  4. Built-in defaults
//
// The file is YAML and is decoded over the defaults, so it only needs the
// keys it changes. Use [Load] for the merged [Config] and [SetField] to
// update one key for tandem config set.
package config
