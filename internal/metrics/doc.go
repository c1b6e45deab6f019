// Package metrics keeps process counters and gauges and renders them in
// the Prometheus text exposition format.
package metrics
