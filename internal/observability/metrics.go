package observability

import (
	"strconv"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// DispatchTally is the outcome count of one notification event across all channels.
type DispatchTally struct {
	Attempted int
	Succeeded int
	Failed    int
	Skipped   int
}

// Metrics records service counters in Prometheus and keeps the most recent
// per-event dispatch tallies in memory for inspection.
type Metrics struct {
	registry   *prometheus.Registry
	requests   *prometheus.CounterVec
	errors     *prometheus.CounterVec
	deliveries *prometheus.CounterVec
	fetches    *prometheus.CounterVec

	mu       sync.Mutex
	tallies  map[string]DispatchTally
	order    []string
	capacity int
}

// NewMetrics registers collectors on a private registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "helpdesk",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests served, labeled by method and status",
		}, []string{"method", "status"}),
		errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "helpdesk",
			Subsystem: "http",
			Name:      "errors_total",
			Help:      "HTTP error responses, labeled by error code",
		}, []string{"code"}),
		deliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "helpdesk",
			Subsystem: "notification",
			Name:      "deliveries_total",
			Help:      "Notification deliveries, labeled by channel and outcome",
		}, []string{"channel", "outcome"}),
		fetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "helpdesk",
			Subsystem: "poll",
			Name:      "fetches_total",
			Help:      "Poller fetches, labeled by view and outcome",
		}, []string{"view", "outcome"}),
		tallies:  make(map[string]DispatchTally),
		capacity: 512,
	}
	m.registry.MustRegister(m.requests, m.errors, m.deliveries, m.fetches)
	return m
}

// Registry exposes the collectors for the /metrics endpoint.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// RecordRequest increments counters for requests.
func (m *Metrics) RecordRequest(method string, status int) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(method, strconv.Itoa(status)).Inc()
}

// RecordError increments error counters.
func (m *Metrics) RecordError(code string) {
	if m == nil {
		return
	}
	m.errors.WithLabelValues(code).Inc()
}

// RecordDelivery counts one channel delivery outcome ("success", "failure" or "skipped").
func (m *Metrics) RecordDelivery(channel, outcome string) {
	if m == nil {
		return
	}
	m.deliveries.WithLabelValues(channel, outcome).Inc()
}

// RecordFetch counts one poller fetch outcome.
func (m *Metrics) RecordFetch(view, outcome string) {
	if m == nil {
		return
	}
	m.fetches.WithLabelValues(view, outcome).Inc()
}

// RecordDispatch stores the tally for an event, evicting the oldest beyond capacity.
func (m *Metrics) RecordDispatch(eventID string, tally DispatchTally) {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.tallies[eventID]; !exists {
		m.order = append(m.order, eventID)
	}
	m.tallies[eventID] = tally
	for len(m.order) > m.capacity {
		delete(m.tallies, m.order[0])
		m.order = m.order[1:]
	}
}

// Dispatch returns the recorded tally for an event.
func (m *Metrics) Dispatch(eventID string) (DispatchTally, bool) {
	if m == nil {
		return DispatchTally{}, false
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	tally, ok := m.tallies[eventID]
	return tally, ok
}
