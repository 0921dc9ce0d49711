// Package internaldefs holds the metric names, help text and bucket labels
// shared by the Prometheus and OTel exporters, so both publish identical
// series. Definitions are derived from authcore.MetricIDs.
package internaldefs
