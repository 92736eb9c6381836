// Package metrics defines the Prometheus collectors of the account service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// OutcomeOK labels a flow that completed successfully.
const OutcomeOK = "ok"

// Metrics contains the custom account service metrics.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	FlowsTotal  *prometheus.CounterVec
	EmailsTotal *prometheus.CounterVec
}

// NewMetrics creates and registers the account service metrics.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		FlowsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "potatoauth_flows_total",
				Help: "Total number of account flows by flow and outcome code",
			},
			[]string{"flow", "outcome"},
		),
		EmailsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "potatoauth_emails_total",
				Help: "Total number of emails handed to the mail transport by template and status",
			},
			[]string{"template", "status"},
		),
	}

	reg.MustRegister(m.FlowsTotal)
	reg.MustRegister(m.EmailsTotal)

	return m
}

// ObserveFlow counts one finished flow.
func (m *Metrics) ObserveFlow(flow, outcome string) {
	if m == nil {
		return
	}
	m.FlowsTotal.WithLabelValues(flow, outcome).Inc()
}

// ObserveEmail counts one email delivery attempt.
func (m *Metrics) ObserveEmail(template string, err error) {
	if m == nil {
		return
	}
	status := "sent"
	if err != nil {
		status = "failed"
	}
	m.EmailsTotal.WithLabelValues(template, status).Inc()
}
