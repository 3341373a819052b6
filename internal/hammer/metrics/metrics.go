// Package metrics exposes the progress of a run as Prometheus metrics. Every run owns its own registry,
// which can be pushed to a Pushgateway once the run is over.
package metrics

import (
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"

	"github.com/G-Research/mediahammer/internal/hammer/batch"
	"github.com/G-Research/mediahammer/internal/hammer/verify"
)

const (
	MetricPrefix = "hammer_"
	PushJob      = "hammer"
)

type Metrics struct {
	registry        *prometheus.Registry
	stageDuration   *prometheus.HistogramVec
	groups          *prometheus.CounterVec
	operations      *prometheus.CounterVec
	groupDuration   *prometheus.HistogramVec
	verifications   *prometheus.CounterVec
	iterations      *prometheus.CounterVec
	servers         *prometheus.CounterVec
	scenarios       *prometheus.CounterVec
	certificateDays *prometheus.GaugeVec
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		stageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    MetricPrefix + "stage_duration_seconds",
			Help:    "Time taken to acquire a pipeline stage",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 15),
		}, []string{"stage", "result"}),
		groups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: MetricPrefix + "batch_groups_total",
			Help: "Number of batch groups that resolved, by outcome",
		}, []string{"stage", "outcome"}),
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: MetricPrefix + "batch_operations_total",
			Help: "Number of operations in resolved batch groups, by outcome of the group",
		}, []string{"stage", "outcome"}),
		groupDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    MetricPrefix + "batch_group_duration_seconds",
			Help:    "Time taken for a batch group to resolve",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 15),
		}, []string{"stage"}),
		verifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: MetricPrefix + "media_verifications_total",
			Help: "Number of verified media legs, by result",
		}, []string{"signal", "result"}),
		iterations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: MetricPrefix + "iterations_total",
			Help: "Number of completed iterations, by scenario and outcome",
		}, []string{"scenario", "outcome"}),
		servers: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: MetricPrefix + "scan_servers_total",
			Help: "Number of scanned media servers, by state",
		}, []string{"state"}),
		scenarios: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: MetricPrefix + "scan_scenarios_total",
			Help: "Number of probed scan scenarios, by scenario and state",
		}, []string{"scenario", "state"}),
		certificateDays: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: MetricPrefix + "certificate_days_remaining",
			Help: "Whole days until a TLS certificate observed during a scan expires",
		}, []string{"host"}),
	}
	m.registry.MustRegister(
		m.stageDuration,
		m.groups,
		m.operations,
		m.groupDuration,
		m.verifications,
		m.iterations,
		m.servers,
		m.scenarios,
		m.certificateDays,
	)
	return m
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) RecordStage(stage string, succeeded bool, elapsed time.Duration) {
	result := "success"
	if !succeeded {
		result = "failure"
	}
	m.stageDuration.WithLabelValues(stage, result).Observe(elapsed.Seconds())
}

func (m *Metrics) RecordGroup(stage string, outcome batch.Outcome, operations int, elapsed time.Duration) {
	m.groups.WithLabelValues(stage, outcome.String()).Inc()
	m.operations.WithLabelValues(stage, outcome.String()).Add(float64(operations))
	m.groupDuration.WithLabelValues(stage).Observe(elapsed.Seconds())
}

func (m *Metrics) RecordVerification(results []verify.Result) {
	for _, result := range results {
		label := "failed"
		if result.Satisfied {
			label = "verified"
		}
		m.verifications.WithLabelValues(result.Signal, label).Inc()
	}
}

func (m *Metrics) RecordIteration(scenario string, outcome string) {
	m.iterations.WithLabelValues(scenario, outcome).Inc()
}

func (m *Metrics) RecordServer(state string) {
	m.servers.WithLabelValues(state).Inc()
}

func (m *Metrics) RecordScenario(scenario string, state string) {
	m.scenarios.WithLabelValues(scenario, state).Inc()
}

func (m *Metrics) RecordCertificate(host string, daysRemaining int) {
	m.certificateDays.WithLabelValues(host).Set(float64(daysRemaining))
}

// Push sends every metric of the run to the Pushgateway at url.
func (m *Metrics) Push(url string) error {
	if err := push.New(url, PushJob).Gatherer(m.registry).Push(); err != nil {
		return errors.Wrapf(err, "error pushing metrics to %s", url)
	}
	return nil
}
