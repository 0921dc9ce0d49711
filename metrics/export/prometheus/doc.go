// Package prometheus renders authcore engine metrics in Prometheus text
// exposition format. Counters are named authcore_*_total and latency
// histograms authcore_*_seconds.
//
// The exporter does not register with a global registry; callers mount
// Handler where they want it.
package prometheus
