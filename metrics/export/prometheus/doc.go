// Package prometheus renders goVerify counters and the verification latency
// histogram in the Prometheus text exposition format.
//
// Counter names are prefixed goverify_ and end in _total; the histogram is
// goverify_verify_latency_seconds. Callers mount [PrometheusExporter.Handler]
// themselves; nothing is registered globally.
package prometheus
