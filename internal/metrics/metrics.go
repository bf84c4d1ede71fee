package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector owns its registry, so tests and several processes in one binary
// can each build one.
type Collector struct {
	registry *prometheus.Registry

	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
	InFlightGauge   prometheus.Gauge

	BookingsTotal      *prometheus.CounterVec
	TransitionsTotal   *prometheus.CounterVec
	NotificationsTotal *prometheus.CounterVec
	RemindersSent      prometheus.Counter
}

func NewCollector(serviceName string) *Collector {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Collector{
		registry: reg,

		RequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: serviceName,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests by method, route, and status code.",
		}, []string{"method", "route", "status"}),

		RequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: serviceName,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency distribution.",
			Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0},
		}, []string{"method", "route", "status"}),

		InFlightGauge: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: serviceName,
			Subsystem: "http",
			Name:      "in_flight_requests",
			Help:      "Current number of in-flight HTTP requests.",
		}),

		BookingsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: serviceName,
			Subsystem: "scheduling",
			Name:      "bookings_total",
			Help:      "Booking attempts by outcome (created, conflict, rejected, error).",
		}, []string{"outcome"}),

		TransitionsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: serviceName,
			Subsystem: "scheduling",
			Name:      "status_transitions_total",
			Help:      "Applied appointment status transitions by target status.",
		}, []string{"to"}),

		NotificationsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: serviceName,
			Subsystem: "notify",
			Name:      "notifications_total",
			Help:      "Notifications by kind and delivery outcome. Alert on dropped.",
		}, []string{"kind", "outcome"}),

		RemindersSent: factory.NewCounter(prometheus.CounterOpts{
			Namespace: serviceName,
			Subsystem: "scheduling",
			Name:      "reminders_sent_total",
			Help:      "Appointment reminders sent.",
		}),
	}
}

// ObserveNotification matches notify.WithObserver.
func (c *Collector) ObserveNotification(kind, outcome string) {
	c.NotificationsTotal.WithLabelValues(kind, outcome).Inc()
}

func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}
