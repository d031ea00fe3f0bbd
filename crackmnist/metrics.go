package crackmnist

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics counts dataset reads. A nil *Metrics records nothing.
type Metrics struct {
	Samples prometheus.Counter
	Errors  *prometheus.CounterVec
}

// NewMetrics creates the dataset counters and registers them on reg when it
// is not nil.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Samples: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "crackmnist_samples_read_total",
			Help: "Samples returned by Get and GetBatch",
		}),
		Errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "crackmnist_lookup_errors_total",
			Help: "Failed dataset queries by kind",
		}, []string{"kind"}),
	}
	if reg != nil {
		reg.MustRegister(m.Samples, m.Errors)
	}
	return m
}

func (m *Metrics) samples(n int) {
	if m != nil && n > 0 {
		m.Samples.Add(float64(n))
	}
}

// observe counts err by kind and returns it unchanged.
func (m *Metrics) observe(err error) error {
	if m == nil || err == nil {
		return err
	}
	kind := "read"
	switch {
	case errors.Is(err, ErrIndexOutOfRange):
		kind = "index"
	case errors.Is(err, ErrMetadataKey):
		kind = "metadata"
	case errors.Is(err, ErrClosed):
		kind = "closed"
	}
	m.Errors.WithLabelValues(kind).Inc()
	return err
}
