// Package metrics provides build metrics for the clean/build pipeline.
//
// Components receive a Recorder through dependency injection. By default the
// pipeline uses NoopRecorder; the CLI swaps in a PrometheusRecorder when a
// metrics textfile or listen address is configured:
//
//	reg := prometheus.NewRegistry()
//	rec := metrics.NewPrometheusRecorder(reg)
//	p := pipeline.New(cfg, pipeline.WithRecorder(rec))
//	...
//	_ = metrics.WriteTextfile(path, reg)
//
// WriteTextfile emits the node-exporter textfile format, which suits one-shot
// CLI runs; HTTPHandler serves the same registry for the long-running watch
// command.
package metrics
