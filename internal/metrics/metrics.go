// Package metrics registers the queue-depth and cursor gauges the
// controller and coordinator update each cycle, in the same
// updateGauge/getRetryGauge style a chain data fetcher would use,
// built on github.com/rcrowley/go-metrics with a Prometheus exposition
// surface layered on top.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	rmetrics "github.com/rcrowley/go-metrics"
)

// Registry is the process-wide go-metrics registry every gauge below
// is registered against, rather than the package-level DefaultRegistry.
var Registry = rmetrics.NewRegistry()

var (
	IndexJobsDepth   = rmetrics.GetOrRegisterGauge("xquery/queue/index_jobs", Registry)
	ProcessJobsDepth = rmetrics.GetOrRegisterGauge("xquery/queue/process_jobs", Registry)
	ResultsDepth     = rmetrics.GetOrRegisterGauge("xquery/queue/results", Registry)

	IndexerCursor  = rmetrics.GetOrRegisterGauge("xquery/cursor/indexer", Registry)
	ScanChunkSize  = rmetrics.GetOrRegisterGauge("xquery/scan/chunk_size", Registry)
	ReorderBuffer  = rmetrics.GetOrRegisterGauge("xquery/coordinator/reorder_buffer", Registry)
	RetryCount     = rmetrics.GetOrRegisterGauge("xquery/rpc/retry_count", Registry)
	ThrottleCount  = rmetrics.GetOrRegisterGauge("xquery/rpc/throttle_count", Registry)
)

// collector adapts the go-metrics Registry to a prometheus.Collector so
// every gauge registered above is reachable from one /metrics handler,
// bridging rcrowley/go-metrics and prometheus/client_golang.
type collector struct{}

func (collector) Describe(ch chan<- *prometheus.Desc) {}

func (collector) Collect(ch chan<- prometheus.Metric) {
	Registry.Each(func(name string, i interface{}) {
		g, ok := i.(rmetrics.Gauge)
		if !ok {
			return
		}
		desc := prometheus.NewDesc(sanitize(name), name, nil, nil)
		ch <- prometheus.MustNewConstMetric(desc, prometheus.GaugeValue, float64(g.Value()))
	})
}

func sanitize(name string) string {
	out := make([]byte, len(name))
	for i := 0; i < len(name); i++ {
		c := name[i]
		if c == '/' || c == '-' || c == '.' {
			out[i] = '_'
		} else {
			out[i] = c
		}
	}
	return string(out)
}

// Handler returns an http.Handler exposing every registered gauge in
// Prometheus text format, wired to the binary's /metrics endpoint.
func Handler() http.Handler {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collector{})
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}
