// Package metrics exposes Prometheus instruments for analysis runs.
package metrics
