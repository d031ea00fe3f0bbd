package fetch

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics counts acquisition traffic. A nil *Metrics records nothing.
type Metrics struct {
	Bytes   prometheus.Counter
	Fetches *prometheus.CounterVec
}

// NewMetrics creates the fetch counters and registers them on reg when it
// is not nil.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Bytes: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "crackmnist_fetch_bytes_total",
			Help: "Bytes downloaded by dataset fetchers",
		}),
		Fetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "crackmnist_fetches_total",
			Help: "Dataset file fetches by result",
		}, []string{"result"}),
	}
	if reg != nil {
		reg.MustRegister(m.Bytes, m.Fetches)
	}
	return m
}

func (m *Metrics) observe(n int64, err error) {
	if m == nil {
		return
	}
	if n > 0 {
		m.Bytes.Add(float64(n))
	}
	m.Fetches.WithLabelValues(result(err)).Inc()
}

func result(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrChecksum):
		return "checksum"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	default:
		return "error"
	}
}
