// Package metrics maintains in-process counters and histograms for HTTP
// requests, conversation turns, and capability invocations, rendered in
// Prometheus text exposition format.
package metrics
