// Package metrics records pipeline stage and item outcomes as Prometheus
// collectors. dvrflow runs as a batch tool, so the registry is exported
// through a node-exporter textfile instead of an HTTP endpoint.
package metrics
