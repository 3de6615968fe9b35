package domain

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds every Prometheus collector the domain exposes, grouped by
// the subsystem that records into it. Grounded on internal/escrow's
// Metrics struct/NewMetrics shape (promauto-registered Vecs with a plain
// constructor, no manual registry plumbing).
type Metrics struct {
	WhcSamplesRetained *prometheus.GaugeVec
	WhcRexmitTotal     *prometheus.CounterVec
	WhcRexmitLostTotal *prometheus.CounterVec
	WhcThrottleTotal   *prometheus.CounterVec

	RhcReadTotal   *prometheus.CounterVec
	RhcTakeTotal   *prometheus.CounterVec
	RhcSamplesHeld *prometheus.GaugeVec

	LeaseExpiredTotal *prometheus.CounterVec
	LeaseRescuedTotal *prometheus.CounterVec

	DiscoveryMatchCount *prometheus.GaugeVec
}

var (
	metricsOnce     sync.Once
	processMetrics  *Metrics
)

// NewMetrics returns the process-wide Metrics instance, constructing and
// registering its collectors against the default registry on first call.
// A single domain process only ever wants one registration per collector
// name; every *Domain in the process shares this instance, the way a
// single Metrics value is constructed once at startup and threaded
// through the teacher's escrow package rather than re-created per request.
func NewMetrics() *Metrics {
	metricsOnce.Do(func() {
		processMetrics = newMetrics()
	})
	return processMetrics
}

func newMetrics() *Metrics {
	return &Metrics{
		WhcSamplesRetained: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "ddscore_whc_samples_retained",
				Help: "Samples currently retained in a writer's history cache",
			},
			[]string{"writer_guid"},
		),
		WhcRexmitTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ddscore_whc_rexmit_total",
				Help: "Total number of samples retransmitted in response to a NACK",
			},
			[]string{"writer_guid"},
		),
		WhcRexmitLostTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ddscore_whc_rexmit_lost_total",
				Help: "Total NACK requests for samples already reclaimed by gc",
			},
			[]string{"writer_guid"},
		),
		WhcThrottleTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ddscore_whc_throttle_total",
				Help: "Total number of writes rejected at the resource limit",
			},
			[]string{"writer_guid"},
		),
		RhcReadTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ddscore_rhc_read_total",
				Help: "Total number of non-destructive read calls",
			},
			[]string{"reader_guid"},
		),
		RhcTakeTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ddscore_rhc_take_total",
				Help: "Total number of destructive take calls",
			},
			[]string{"reader_guid"},
		),
		RhcSamplesHeld: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "ddscore_rhc_samples_held",
				Help: "Samples currently stored in a reader's history cache",
			},
			[]string{"reader_guid"},
		),
		LeaseExpiredTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ddscore_lease_expired_total",
				Help: "Total number of leases that expired and triggered deletion",
			},
			[]string{"kind"},
		),
		LeaseRescuedTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ddscore_lease_rescued_total",
				Help: "Total number of proxy participant leases rescued via privileged-pp dependency",
			},
			[]string{},
		),
		DiscoveryMatchCount: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "ddscore_discovery_match_count",
				Help: "Current number of matched remote endpoints for a local endpoint",
			},
			[]string{"endpoint_guid", "endpoint_kind"},
		),
	}
}

// RecordWrite updates the WHC gauges for one writer after a write or gc pass.
func (m *Metrics) RecordWrite(writerGUID string, retained int) {
	m.WhcSamplesRetained.WithLabelValues(writerGUID).Set(float64(retained))
}

// RecordRexmit records a retransmit decision for writerGUID.
func (m *Metrics) RecordRexmit(writerGUID string, lost bool) {
	if lost {
		m.WhcRexmitLostTotal.WithLabelValues(writerGUID).Inc()
		return
	}
	m.WhcRexmitTotal.WithLabelValues(writerGUID).Inc()
}

// RecordThrottle records that a write was rejected at the resource limit.
func (m *Metrics) RecordThrottle(writerGUID string) {
	m.WhcThrottleTotal.WithLabelValues(writerGUID).Inc()
}

// RecordRead records a read or take call and the reader's resulting held count.
func (m *Metrics) RecordRead(readerGUID string, take bool, held int) {
	if take {
		m.RhcTakeTotal.WithLabelValues(readerGUID).Inc()
	} else {
		m.RhcReadTotal.WithLabelValues(readerGUID).Inc()
	}
	m.RhcSamplesHeld.WithLabelValues(readerGUID).Set(float64(held))
}

// RecordLeaseExpired records a lease expiry that resulted in deletion.
func (m *Metrics) RecordLeaseExpired(kind string) {
	m.LeaseExpiredTotal.WithLabelValues(kind).Inc()
}

// RecordLeaseRescued records a privileged-pp rescue.
func (m *Metrics) RecordLeaseRescued() {
	m.LeaseRescuedTotal.WithLabelValues().Inc()
}

// RecordMatchCount updates the match-count gauge for a local endpoint.
func (m *Metrics) RecordMatchCount(guid, kind string, count int) {
	m.DiscoveryMatchCount.WithLabelValues(guid, kind).Set(float64(count))
}
