// Package metrics exposes Prometheus collectors for the HTTP surface, the
// order ledger and notification delivery.
package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

type Metrics struct {
	requests        *prometheus.CounterVec
	duration        *prometheus.HistogramVec
	ordersPlaced    prometheus.Counter
	ordersRejected  *prometheus.CounterVec
	transitions     *prometheus.CounterVec
	notifyPublished *prometheus.CounterVec
	notifyDelivered *prometheus.CounterVec
}

// New registers all collectors on reg. A nil reg yields a no-op Metrics.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		return &Metrics{}
	}
	m := &Metrics{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		}, []string{"method", "route", "status"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
		ordersPlaced: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "orders_placed_total",
			Help: "Orders committed with stock reserved.",
		}),
		ordersRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "orders_rejected_total",
			Help: "Order placements rejected, by reason.",
		}, []string{"reason"}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "order_transitions_total",
			Help: "Order status transitions, by target status.",
		}, []string{"to"}),
		notifyPublished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "notifications_published_total",
			Help: "Notification jobs handed to the broker, by result.",
		}, []string{"result"}),
		notifyDelivered: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "notifications_delivered_total",
			Help: "Notification jobs processed by the worker, by result.",
		}, []string{"result"}),
	}
	reg.MustRegister(m.requests, m.duration, m.ordersPlaced, m.ordersRejected,
		m.transitions, m.notifyPublished, m.notifyDelivered)
	return m
}

func (m *Metrics) OrderPlaced() {
	if m == nil || m.ordersPlaced == nil {
		return
	}
	m.ordersPlaced.Inc()
}

func (m *Metrics) OrderRejected(reason string) {
	if m == nil || m.ordersRejected == nil {
		return
	}
	m.ordersRejected.WithLabelValues(reason).Inc()
}

func (m *Metrics) OrderTransition(to string) {
	if m == nil || m.transitions == nil {
		return
	}
	m.transitions.WithLabelValues(to).Inc()
}

func (m *Metrics) NotificationPublished(ok bool) {
	if m == nil || m.notifyPublished == nil {
		return
	}
	m.notifyPublished.WithLabelValues(result(ok)).Inc()
}

func (m *Metrics) NotificationDelivered(ok bool) {
	if m == nil || m.notifyDelivered == nil {
		return
	}
	m.notifyDelivered.WithLabelValues(result(ok)).Inc()
}

// Middleware records request count and latency labelled by route template.
func (m *Metrics) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		if m == nil || m.requests == nil {
			return
		}
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		status := strconv.Itoa(c.Writer.Status())
		m.requests.WithLabelValues(c.Request.Method, route, status).Inc()
		m.duration.WithLabelValues(c.Request.Method, route, status).Observe(time.Since(start).Seconds())
	}
}

func result(ok bool) string {
	if ok {
		return "success"
	}
	return "failure"
}
