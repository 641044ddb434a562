// Package metrics is the process-wide metrics facade used by the export
// pipeline.
//
// Core code records through the package functions below and never imports a
// concrete backend. cmd/export picks one (Pushgateway, Datadog or none) and
// installs it with SetBackend before the run starts. The default backend
// discards everything.
package metrics

import (
	"sync"
	"time"
)

// Metric names recorded by the pipeline.
const (
	StepTotal      = "export_step_total"            // labels: step, status
	StepDuration   = "export_step_duration_seconds" // labels: step, status
	RowsTotal      = "export_rows_total"            // labels: entity
	BatchesTotal   = "export_batches_total"
	ArtifactsTotal = "export_artifacts_total" // labels: format
	ArtifactBytes  = "export_artifact_bytes"  // labels: format
)

// Step status label values.
const (
	StatusOK    = "ok"
	StatusError = "error"
)

// Labels are metric dimensions.
type Labels map[string]string

// Backend receives metric observations.
type Backend interface {
	IncCounter(name string, delta float64, labels Labels)
	ObserveHistogram(name string, value float64, labels Labels)
	// Flush pushes buffered observations, if the backend buffers.
	Flush() error
}

type nopBackend struct{}

func (nopBackend) IncCounter(string, float64, Labels)       {}
func (nopBackend) ObserveHistogram(string, float64, Labels) {}
func (nopBackend) Flush() error                             { return nil }

var (
	mu      sync.RWMutex
	backend Backend = nopBackend{}
)

// SetBackend installs b process-wide. A nil b restores the discarding default.
func SetBackend(b Backend) {
	mu.Lock()
	defer mu.Unlock()
	if b == nil {
		b = nopBackend{}
	}
	backend = b
}

func current() Backend {
	mu.RLock()
	defer mu.RUnlock()
	return backend
}

// IncCounter adds delta to a counter.
func IncCounter(name string, delta float64, labels Labels) {
	current().IncCounter(name, delta, labels)
}

// ObserveHistogram records one sample.
func ObserveHistogram(name string, value float64, labels Labels) {
	current().ObserveHistogram(name, value, labels)
}

// Flush flushes the installed backend.
func Flush() error {
	return current().Flush()
}

// RecordStep counts one completion of step and records its duration.
// A non-nil err marks the step as failed.
func RecordStep(step string, start time.Time, err error) {
	status := StatusOK
	if err != nil {
		status = StatusError
	}
	l := Labels{"step": step, "status": status}
	IncCounter(StepTotal, 1, l)
	ObserveHistogram(StepDuration, time.Since(start).Seconds(), l)
}
