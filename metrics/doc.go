// Package metrics exposes Prometheus counters and histograms for dispatched
// requests and store commits, served on a dedicated listener.
package metrics
