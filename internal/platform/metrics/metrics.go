package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the core's Prometheus metrics outside the tally engine.
type Metrics struct {
	PeopleRegistered  *prometheus.CounterVec
	Promotions        prometheus.Counter
	AttendanceMarked  *prometheus.CounterVec
	FollowUpsCreated  *prometheus.CounterVec
	MessagesSent      *prometheus.CounterVec
	AutomationRuns    *prometheus.CounterVec
	AutomationLatency *prometheus.HistogramVec
}

// New creates and registers all metrics on the default registry.
func New() *Metrics {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry registers on reg; tests pass a fresh prometheus.NewRegistry().
func NewWithRegistry(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		PeopleRegistered: f.NewCounterVec(prometheus.CounterOpts{
			Name: "flock_people_registered_total",
			Help: "People registered, by category",
		}, []string{"category"}),
		Promotions: f.NewCounter(prometheus.CounterOpts{
			Name: "flock_promotions_total",
			Help: "Guests promoted to member",
		}),
		AttendanceMarked: f.NewCounterVec(prometheus.CounterOpts{
			Name: "flock_attendance_marked_total",
			Help: "Attendance marks written, by status",
		}, []string{"status"}),
		FollowUpsCreated: f.NewCounterVec(prometheus.CounterOpts{
			Name: "flock_followups_created_total",
			Help: "Follow-ups created by automations, by type",
		}, []string{"type"}),
		MessagesSent: f.NewCounterVec(prometheus.CounterOpts{
			Name: "flock_messages_sent_total",
			Help: "Outbound messages attempted, by kind and outcome",
		}, []string{"kind", "outcome"}),
		AutomationRuns: f.NewCounterVec(prometheus.CounterOpts{
			Name: "flock_automation_runs_total",
			Help: "Automation runs, by rule and outcome",
		}, []string{"rule", "outcome"}),
		AutomationLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "flock_automation_duration_seconds",
			Help:    "Duration of automation runs",
			Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		}, []string{"rule"}),
	}
}

func (m *Metrics) IncrementPeopleRegistered(category string) {
	if m == nil {
		return
	}
	m.PeopleRegistered.WithLabelValues(category).Inc()
}

func (m *Metrics) IncrementPromotions() {
	if m == nil {
		return
	}
	m.Promotions.Inc()
}

func (m *Metrics) IncrementAttendanceMarked(status string) {
	if m == nil {
		return
	}
	m.AttendanceMarked.WithLabelValues(status).Inc()
}

func (m *Metrics) AddFollowUpsCreated(kind string, n int) {
	if m == nil || n == 0 {
		return
	}
	m.FollowUpsCreated.WithLabelValues(kind).Add(float64(n))
}

func (m *Metrics) IncrementMessagesSent(kind string, ok bool) {
	if m == nil {
		return
	}
	outcome := "failed"
	if ok {
		outcome = "sent"
	}
	m.MessagesSent.WithLabelValues(kind, outcome).Inc()
}

// ObserveAutomation records one run. Call with time.Now() taken at the start.
func (m *Metrics) ObserveAutomation(rule, outcome string, start time.Time) {
	if m == nil {
		return
	}
	m.AutomationRuns.WithLabelValues(rule, outcome).Inc()
	m.AutomationLatency.WithLabelValues(rule).Observe(time.Since(start).Seconds())
}
