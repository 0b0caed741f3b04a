package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics tracks the tally engine: how many tokens move through each
// transition and how long identity resolution lags arrival.
type Metrics struct {
	Generated    prometheus.Counter
	Issued       *prometheus.CounterVec
	Mapped       prometheus.Counter
	Voided       prometheus.Counter
	MappingDelay prometheus.Histogram
}

func New() *Metrics {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

func NewWithRegistry(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Generated: f.NewCounter(prometheus.CounterOpts{
			Name: "flock_tallies_generated_total",
			Help: "Tallies created by generate top-ups",
		}),
		Issued: f.NewCounterVec(prometheus.CounterOpts{
			Name: "flock_tallies_issued_total",
			Help: "Tallies issued, by whether the person was known at issue",
		}, []string{"identity"}),
		Mapped: f.NewCounter(prometheus.CounterOpts{
			Name: "flock_tallies_mapped_total",
			Help: "Issued tallies later mapped to a person",
		}),
		Voided: f.NewCounter(prometheus.CounterOpts{
			Name: "flock_tallies_voided_total",
			Help: "Tallies voided",
		}),
		MappingDelay: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "flock_tally_mapping_delay_seconds",
			Help:    "Time between issuing a tally and mapping it to a person",
			Buckets: []float64{1, 10, 60, 300, 900, 1800, 3600, 4 * 3600, 24 * 3600},
		}),
	}
}

func (m *Metrics) AddGenerated(n int) {
	if m == nil || n == 0 {
		return
	}
	m.Generated.Add(float64(n))
}

func (m *Metrics) IncrementIssued(known bool) {
	if m == nil {
		return
	}
	identity := "anonymous"
	if known {
		identity = "known"
	}
	m.Issued.WithLabelValues(identity).Inc()
}

// ObserveMapped records a mapping and the lag since issue.
func (m *Metrics) ObserveMapped(issuedAt, mappedAt time.Time) {
	if m == nil {
		return
	}
	m.Mapped.Inc()
	m.MappingDelay.Observe(mappedAt.Sub(issuedAt).Seconds())
}

func (m *Metrics) IncrementVoided() {
	if m == nil {
		return
	}
	m.Voided.Inc()
}
