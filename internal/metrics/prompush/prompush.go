// Package prompush implements a Prometheus Pushgateway backend for the
// internal/metrics package.
//
// An export run is a batch job: nothing scrapes it, so observations go to a
// private registry and Flush pushes the whole registry to the gateway under
// the job's grouping key, replacing the previous push.
package prompush

import (
	"fmt"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"

	"caseexport/internal/metrics"
)

// Backend implements metrics.Backend on top of a Pushgateway pusher.
type Backend struct {
	pusher *push.Pusher

	steps         *prometheus.CounterVec
	stepDuration  *prometheus.HistogramVec
	rows          *prometheus.CounterVec
	batches       prometheus.Counter
	artifacts     *prometheus.CounterVec
	artifactBytes *prometheus.HistogramVec
}

// NewBackend registers the export collectors on a fresh registry and returns
// a backend pushing them to url as job. groupings are extra grouping-key
// label pairs, e.g. "run_id", "<uuid>".
func NewBackend(job, url string, groupings ...string) (*Backend, error) {
	if strings.TrimSpace(url) == "" {
		return nil, fmt.Errorf("prompush: empty pushgateway url")
	}
	if job == "" {
		job = "export"
	}
	if len(groupings)%2 != 0 {
		return nil, fmt.Errorf("prompush: odd number of grouping values")
	}

	b := &Backend{
		steps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: metrics.StepTotal,
			Help: "Completed pipeline steps by outcome.",
		}, []string{"step", "status"}),
		stepDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    metrics.StepDuration,
			Help:    "Pipeline step duration.",
			Buckets: prometheus.ExponentialBuckets(0.005, 4, 10),
		}, []string{"step", "status"}),
		rows: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: metrics.RowsTotal,
			Help: "Rows written by entity type.",
		}, []string{"entity"}),
		batches: prometheus.NewCounter(prometheus.CounterOpts{
			Name: metrics.BatchesTotal,
			Help: "Subject pages processed.",
		}),
		artifacts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: metrics.ArtifactsTotal,
			Help: "Artifacts produced by format.",
		}, []string{"format"}),
		artifactBytes: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    metrics.ArtifactBytes,
			Help:    "Artifact size in bytes.",
			Buckets: prometheus.ExponentialBuckets(1024, 4, 10),
		}, []string{"format"}),
	}

	reg := prometheus.NewRegistry()
	for _, c := range []prometheus.Collector{b.steps, b.stepDuration, b.rows, b.batches, b.artifacts, b.artifactBytes} {
		if err := reg.Register(c); err != nil {
			return nil, fmt.Errorf("prompush: register: %w", err)
		}
	}

	p := push.New(url, job).Gatherer(reg)
	for i := 0; i < len(groupings); i += 2 {
		p = p.Grouping(groupings[i], groupings[i+1])
	}
	b.pusher = p
	return b, nil
}

// IncCounter implements metrics.Backend. Unknown names are ignored.
func (b *Backend) IncCounter(name string, delta float64, labels metrics.Labels) {
	if delta <= 0 {
		return
	}
	switch name {
	case metrics.StepTotal:
		b.steps.WithLabelValues(labels["step"], labels["status"]).Add(delta)
	case metrics.RowsTotal:
		b.rows.WithLabelValues(labels["entity"]).Add(delta)
	case metrics.BatchesTotal:
		b.batches.Add(delta)
	case metrics.ArtifactsTotal:
		b.artifacts.WithLabelValues(labels["format"]).Add(delta)
	}
}

// ObserveHistogram implements metrics.Backend. Unknown names are ignored.
func (b *Backend) ObserveHistogram(name string, value float64, labels metrics.Labels) {
	switch name {
	case metrics.StepDuration:
		b.stepDuration.WithLabelValues(labels["step"], labels["status"]).Observe(value)
	case metrics.ArtifactBytes:
		b.artifactBytes.WithLabelValues(labels["format"]).Observe(value)
	}
}

// Flush pushes the registry, replacing metrics previously pushed for the
// same grouping key.
func (b *Backend) Flush() error {
	if err := b.pusher.Push(); err != nil {
		return fmt.Errorf("prompush: push: %w", err)
	}
	return nil
}

var _ metrics.Backend = (*Backend)(nil)
