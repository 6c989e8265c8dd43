// Package chainmetrics records step and chain outcomes as Prometheus metrics.
//
// A Recorder registers its collectors on a caller-supplied registry so tests
// and short-lived CLI runs do not touch the global default registry. Batch
// runs export a node-exporter textfile snapshot with WriteTextfile.
package chainmetrics
