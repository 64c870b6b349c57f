package progress

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/arkdb/objcopy/pkg/tid"
)

// ProgressCollector is the optional Prometheus listener started when the
// CLI is given --metrics-addr. It implements Reporter so it can sit
// alongside the LogReporter in a Multi, fed from the same on_transaction
// call — it is never a replacement for the logging reporter.
type ProgressCollector struct {
	registry *prometheus.Registry

	transactionsTotal prometheus.Counter
	objectsTotal      prometheus.Counter
	blobsTotal        prometheus.Counter
	bytesTotal        prometheus.Counter
}

// NewProgressCollector builds a collector on its own registry, so enabling
// metrics never interferes with any metrics another embedder of this
// module has already registered globally.
func NewProgressCollector() *ProgressCollector {
	c := &ProgressCollector{
		registry: prometheus.NewRegistry(),
		transactionsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "objcopy_transactions_copied_total",
			Help: "Total number of transactions copied to the destination.",
		}),
		objectsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "objcopy_objects_copied_total",
			Help: "Total number of object records copied to the destination.",
		}),
		blobsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "objcopy_blobs_copied_total",
			Help: "Total number of blobs copied to the destination.",
		}),
		bytesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "objcopy_bytes_copied_total",
			Help: "Total number of payload bytes copied to the destination.",
		}),
	}

	c.registry.MustRegister(c.transactionsTotal, c.objectsTotal, c.blobsTotal, c.bytesTotal)
	return c
}

// OnTransaction implements Reporter.
func (c *ProgressCollector) OnTransaction(_ tid.TID, recordCount int, byteSize int64, blobCount int) {
	c.transactionsTotal.Inc()
	c.objectsTotal.Add(float64(recordCount))
	c.blobsTotal.Add(float64(blobCount))
	c.bytesTotal.Add(float64(byteSize))
}

// LogSummary implements Reporter. The collector has nothing further to do
// at copy end — its counters already reflect the full run.
func (c *ProgressCollector) LogSummary(int, int, int) {}

// Handler returns the HTTP handler the CLI mounts at --metrics-addr.
func (c *ProgressCollector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}
