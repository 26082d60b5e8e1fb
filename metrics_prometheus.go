package ferret

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// ═══════════════════════════════════════════════════════════════════════════════
// OPTIONAL PROMETHEUS EXPORTER
// ═══════════════════════════════════════════════════════════════════════════════
// MetricsRecorder's in-process ring buffers are the source of truth;
// PrometheusCollector just republishes its Snapshot() through the standard
// prometheus.Collector interface for services that already scrape
// client_golang metrics elsewhere, rather than bolting Prometheus types
// directly onto MetricsRecorder itself.
// ═══════════════════════════════════════════════════════════════════════════════

// PrometheusCollector adapts an Index's metrics to prometheus.Collector.
// It is opt-in: nothing in Index registers it automatically, since most
// callers outside a full Prometheus-scraped service have no use for it.
type PrometheusCollector struct {
	index *Index

	ingestCount      *prometheus.Desc
	ingestMeanMillis *prometheus.Desc
	queryCount       *prometheus.Desc
	queryMeanMillis  *prometheus.Desc
	queryP50Millis   *prometheus.Desc
	queryP95Millis   *prometheus.Desc
	queryP99Millis   *prometheus.Desc
	queryThroughput  *prometheus.Desc
}

// WithPrometheus registers the index's metrics collector on reg at Open
// time. Registration failure (a duplicate collector, typically) surfaces as
// a ConfigError.
func WithPrometheus(reg prometheus.Registerer) Option {
	return func(ix *Index) error {
		if err := reg.Register(NewPrometheusCollector(ix)); err != nil {
			return &ConfigError{Msg: "registering prometheus collector: " + err.Error()}
		}
		return nil
	}
}

// NewPrometheusCollector returns a collector exporting ix's metrics under
// the "ferret" namespace.
func NewPrometheusCollector(ix *Index) *PrometheusCollector {
	labels := []string{"index"}
	return &PrometheusCollector{
		index: ix,
		ingestCount: prometheus.NewDesc(
			"ferret_ingest_total", "Documents ingested, counted over the retained sample window (capped at the recorder's capacity).", labels, nil),
		ingestMeanMillis: prometheus.NewDesc(
			"ferret_ingest_mean_milliseconds", "Mean AddDocument latency.", labels, nil),
		queryCount: prometheus.NewDesc(
			"ferret_query_total", "Queries executed, counted over the retained sample window (capped at the recorder's capacity).", labels, nil),
		queryMeanMillis: prometheus.NewDesc(
			"ferret_query_mean_milliseconds", "Mean query latency.", labels, nil),
		queryP50Millis: prometheus.NewDesc(
			"ferret_query_p50_milliseconds", "50th percentile query latency.", labels, nil),
		queryP95Millis: prometheus.NewDesc(
			"ferret_query_p95_milliseconds", "95th percentile query latency.", labels, nil),
		queryP99Millis: prometheus.NewDesc(
			"ferret_query_p99_milliseconds", "99th percentile query latency.", labels, nil),
		queryThroughput: prometheus.NewDesc(
			"ferret_query_throughput_per_second", "Queries per second over the retained window.", labels, nil),
	}
}

// Describe implements prometheus.Collector.
func (c *PrometheusCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.ingestCount
	ch <- c.ingestMeanMillis
	ch <- c.queryCount
	ch <- c.queryMeanMillis
	ch <- c.queryP50Millis
	ch <- c.queryP95Millis
	ch <- c.queryP99Millis
	ch <- c.queryThroughput
}

// Collect implements prometheus.Collector.
func (c *PrometheusCollector) Collect(ch chan<- prometheus.Metric) {
	snap := c.index.Metrics()
	name := c.index.name

	ch <- prometheus.MustNewConstMetric(c.ingestCount, prometheus.CounterValue, float64(snap.IngestCount), name)
	ch <- prometheus.MustNewConstMetric(c.ingestMeanMillis, prometheus.GaugeValue, millis(snap.IngestMean), name)
	ch <- prometheus.MustNewConstMetric(c.queryCount, prometheus.CounterValue, float64(snap.QueryCount), name)
	ch <- prometheus.MustNewConstMetric(c.queryMeanMillis, prometheus.GaugeValue, millis(snap.QueryMean), name)
	ch <- prometheus.MustNewConstMetric(c.queryP50Millis, prometheus.GaugeValue, millis(snap.QueryP50), name)
	ch <- prometheus.MustNewConstMetric(c.queryP95Millis, prometheus.GaugeValue, millis(snap.QueryP95), name)
	ch <- prometheus.MustNewConstMetric(c.queryP99Millis, prometheus.GaugeValue, millis(snap.QueryP99), name)
	ch <- prometheus.MustNewConstMetric(c.queryThroughput, prometheus.GaugeValue, snap.QueryThroughput, name)
}

func millis(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}
