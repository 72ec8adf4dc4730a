package configstore

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics counts service operations. A nil *Metrics records nothing.
type Metrics struct {
	Operations *prometheus.CounterVec
	Duration   *prometheus.HistogramVec
	Stores     *prometheus.CounterVec
	Purged     prometheus.Counter
}

// NewMetrics registers the store metrics with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Operations: f.NewCounterVec(prometheus.CounterOpts{
			Name: "element_config_operations_total",
			Help: "Total number of configuration store operations by outcome",
		}, []string{"operation", "outcome"}),
		Duration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "element_config_operation_duration_seconds",
			Help:    "Duration of configuration store operations",
			Buckets: prometheus.DefBuckets,
		}, []string{"operation"}),
		Stores: f.NewCounterVec(prometheus.CounterOpts{
			Name: "element_config_stores_total",
			Help: "Total number of stored configurations by target state and result",
		}, []string{"state", "result"}),
		Purged: f.NewCounter(prometheus.CounterOpts{
			Name: "element_config_purged_revisions_total",
			Help: "Total number of revisions removed by retention purges",
		}),
	}
}

func (m *Metrics) observe(op string, start time.Time, err error) {
	if m == nil {
		return
	}
	m.Operations.WithLabelValues(op, outcome(err)).Inc()
	m.Duration.WithLabelValues(op).Observe(time.Since(start).Seconds())
}

func (m *Metrics) recordStore(st State, created bool) {
	if m == nil {
		return
	}
	result := "updated"
	if created {
		result = "created"
	}
	m.Stores.WithLabelValues(string(st), result).Inc()
}

func (m *Metrics) recordPurged(n int) {
	if m == nil || n == 0 {
		return
	}
	m.Purged.Add(float64(n))
}

// outcome classifies err into a low-cardinality label value.
func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrElementNotFound), errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrInvalidArgument):
		return "invalid_argument"
	case errors.Is(err, ErrInvalidState):
		return "invalid_state"
	case errors.Is(err, ErrConflict):
		return "conflict"
	case errors.Is(err, ErrConcurrentModification):
		return "concurrent_modification"
	default:
		return "error"
	}
}
