package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"caseexport/internal/config"
	"caseexport/internal/metrics"
	"caseexport/internal/output"
	"caseexport/internal/storage"
)

// Result is the outcome of a successful run.
type Result struct {
	RunID     string
	Artifacts []output.Artifact
}

// Runner executes export jobs end to end: open the source, resolve the
// configuration, run the engine, close the source.
type Runner struct {
	Logger Logger

	// NewSource is the storage-agnostic source factory seam.
	NewSource func(ctx context.Context, cfg storage.Config) (storage.Source, error)

	// Now and NewRunID are seams for deterministic tests.
	Now      func() time.Time
	NewRunID func() string
}

// NewDefaultRunner returns a Runner using the registered storage backends.
func NewDefaultRunner(logger Logger) *Runner {
	return &Runner{
		Logger:    logger,
		NewSource: storage.New,
		NewRunID:  func() string { return uuid.NewString() },
	}
}

// Run executes job.
//
// Errors:
//   - *ConfigError before the source is read for data.
//   - *SourceError, *WriterError or ctx.Err() from the engine.
//
// No partial result is returned on error.
func (r *Runner) Run(ctx context.Context, job config.Job) (Result, error) {
	runID := "run"
	if r.NewRunID != nil {
		runID = r.NewRunID()
	}
	logf := (&Engine{Logger: r.Logger}).logger()

	newSource := r.NewSource
	if newSource == nil {
		newSource = storage.New
	}
	openStart := time.Now()
	src, err := newSource(ctx, storage.Config{
		Kind:    job.Source.Kind,
		DSN:     job.Source.DSN,
		Where:   job.Source.Where,
		Args:    job.Source.Args,
		Options: job.Source.Options,
	})
	metrics.RecordStep("open_source", openStart, err)
	if err != nil {
		return Result{}, fmt.Errorf("open source: %w", err)
	}
	defer src.Close()
	logf("stage=open_source run_id=%s kind=%s duration=%s", runID, job.Source.Kind, durMS(openStart))

	resolveStart := time.Now()
	res, err := Resolve(ctx, job.Export, src)
	metrics.RecordStep("resolve", resolveStart, err)
	if err != nil {
		return Result{}, err
	}
	logf("stage=resolve run_id=%s format=%s entities=%d duration=%s", runID, res.Format, len(res.Entities), durMS(resolveStart))

	eng := &Engine{
		Source:  src,
		Runtime: job.Runtime,
		Logger:  r.Logger,
		RunID:   runID,
		Now:     r.Now,
	}
	arts, err := eng.Run(ctx, res)
	if err != nil {
		return Result{}, err
	}
	return Result{RunID: runID, Artifacts: arts}, nil
}
