package api

import (
	"context"
	"net/http"
	"regexp"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/linesmerrill/chama-disputes-api/disputes"
	"github.com/linesmerrill/chama-disputes-api/models"
)

const metricsNamespace = "chama_disputes"

// Metrics holds the service's prometheus collectors on a private registry
type Metrics struct {
	Registry *prometheus.Registry

	RequestDuration      *prometheus.HistogramVec
	Activity             *prometheus.CounterVec
	VotesCast            *prometheus.CounterVec
	RemindersSent        *prometheus.CounterVec
	ScanRuns             *prometheus.CounterVec
	NotificationFailures *prometheus.CounterVec
}

// NewMetrics creates and registers every collector
func NewMetrics() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		RequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
		Activity: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "activity_total",
			Help:      "Dispute transitions and other audited actions.",
		}, []string{"action", "to_status"}),
		VotesCast: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "votes_total",
			Help:      "Votes cast by decision.",
		}, []string{"decision"}),
		RemindersSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "reminders_total",
			Help:      "Reminders claimed and sent by phase.",
		}, []string{"phase"}),
		ScanRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "scan_runs_total",
			Help:      "Deadline scanner passes by outcome.",
		}, []string{"pass", "result"}),
		NotificationFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "notification_failures_total",
			Help:      "Failed notification deliveries by channel.",
		}, []string{"channel"}),
	}
	m.Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.RequestDuration,
		m.Activity,
		m.VotesCast,
		m.RemindersSent,
		m.ScanRuns,
		m.NotificationFailures,
	)
	return m
}

// Handler serves the registry in the prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})
}

// Audit wraps an audit log so every recorded activity is also counted
func (m *Metrics) Audit(next disputes.AuditLog) disputes.AuditLog {
	return countingAudit{next: next, activity: m.Activity}
}

type countingAudit struct {
	next     disputes.AuditLog
	activity *prometheus.CounterVec
}

func (c countingAudit) Record(ctx context.Context, a models.DisputeActivity) error {
	c.activity.WithLabelValues(a.Action, string(a.ToStatus)).Inc()
	if c.next == nil {
		return nil
	}
	return c.next.Record(ctx, a)
}

var (
	objectIDPattern = regexp.MustCompile(`/[0-9a-fA-F]{24}(/|$)`)
	uuidPattern     = regexp.MustCompile(`/[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}(/|$)`)
)

// normalizeRoutePath replaces dynamic segments with placeholders so label
// cardinality stays bounded for requests that matched no route
// Examples:
//   - /api/v1/disputes/507f1f77bcf86cd799439011/votes -> /api/v1/disputes/{id}/votes
func normalizeRoutePath(path string) string {
	path = objectIDPattern.ReplaceAllString(path, "/{id}$1")
	return uuidPattern.ReplaceAllString(path, "/{id}$1")
}
