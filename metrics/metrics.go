/*
Package metrics holds the Prometheus collectors of the audit engine.

PURPOSE:
  One place for every counter the services bump, so the HTTP layer can
  expose them on /metrics and tests can assert on them with a private
  registry.

COLLECTORS:
  audit_batch_submissions_total{form_type,outcome}   Batch submissions
  audit_observations_written_total{form_type,status} Ledger rows written
  audit_ncr_writes_total{action}                     NCR creates/updates/closes
  audit_schema_changes_total{action}                 Column add/rename/remove
  audit_custom_values_written_total                  EAV upserts

USAGE:
  reg := prometheus.NewRegistry()
  m := metrics.New(reg)
  coordinator := checklist.NewCoordinator(store, logger, m)

  A nil *Metrics is valid and records nothing.
*/
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "audit"

// Outcome labels for batch submissions.
const (
	OutcomeAccepted = "accepted"
	OutcomeRejected = "rejected"
	OutcomeFailed   = "failed"
)

type Metrics struct {
	BatchSubmissions    *prometheus.CounterVec
	ObservationsWritten *prometheus.CounterVec
	NCRWrites           *prometheus.CounterVec
	SchemaChanges       *prometheus.CounterVec
	ValuesWritten       prometheus.Counter
}

// New builds the collectors and registers them on reg. A nil registerer
// leaves them unregistered.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		BatchSubmissions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "batch_submissions_total",
			Help:      "Daily checklist batch submissions by outcome.",
		}, []string{"form_type", "outcome"}),
		ObservationsWritten: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "observations_written_total",
			Help:      "Daily observation rows inserted or updated.",
		}, []string{"form_type", "status"}),
		NCRWrites: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ncr_writes_total",
			Help:      "Non-conformance report writes by action.",
		}, []string{"action"}),
		SchemaChanges: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "schema_changes_total",
			Help:      "Custom column definition changes by action.",
		}, []string{"action"}),
		ValuesWritten: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "custom_values_written_total",
			Help:      "Custom column values upserted.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.BatchSubmissions, m.ObservationsWritten, m.NCRWrites, m.SchemaChanges, m.ValuesWritten)
	}
	return m
}

func (m *Metrics) Batch(formType, outcome string) {
	if m == nil {
		return
	}
	m.BatchSubmissions.WithLabelValues(formType, outcome).Inc()
}

func (m *Metrics) Observation(formType, status string) {
	if m == nil {
		return
	}
	m.ObservationsWritten.WithLabelValues(formType, status).Inc()
}

func (m *Metrics) NCR(action string) {
	if m == nil {
		return
	}
	m.NCRWrites.WithLabelValues(action).Inc()
}

func (m *Metrics) Schema(action string) {
	if m == nil {
		return
	}
	m.SchemaChanges.WithLabelValues(action).Inc()
}

func (m *Metrics) Values(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.ValuesWritten.Add(float64(n))
}
