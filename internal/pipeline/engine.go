// Package pipeline drives an export run: it resolves the configuration, pages
// through the candidate subjects, extracts every selected entity type per
// page and streams the rows into the output writer.
//
// Paging is two-level. The outer loop reads OuterBatchSize subjects at a time
// by ascending id; inside a page, child rows are fetched for InnerBatchSize
// subjects per query. Peak memory is one page of rows per selected entity
// type, whatever the size of the candidate set.
package pipeline

import (
	"context"
	"fmt"
	"io"
	"log"
	"time"

	"caseexport/internal/config"
	"caseexport/internal/extract"
	"caseexport/internal/metrics"
	"caseexport/internal/output"
	"caseexport/internal/schema"
	"caseexport/internal/storage"
	"caseexport/pkg/records"
)

// Logger is the minimal logging interface used by the pipeline.
// *log.Logger satisfies this interface.
type Logger interface {
	Printf(format string, v ...any)
}

// RowWriter is the output side of a run. *output.Writer implements it.
type RowWriter interface {
	Append(e schema.Entity, rows []records.Record) error
	Rotate() error
	Finish() ([]output.Artifact, error)
	Close() error
}

// Engine runs one resolved export against a source.
type Engine struct {
	Source  storage.Source
	Runtime config.RuntimeConfig
	Logger  Logger

	// RunID tags log lines. Optional.
	RunID string

	// Now anchors timestamps in filenames and derived fields. Defaults to
	// time.Now.
	Now func() time.Time

	// NewWriter is a seam for tests. When nil, output.New is used.
	NewWriter func(spec output.Spec) (RowWriter, error)
}

type entityPlan struct {
	sel     EntitySelection
	x       extract.Extractor
	columns []string
}

// Run exports res and returns every artifact, or an error and no artifacts.
//
// Pages are appended to the writer only after all their entity types
// extracted cleanly. Context cancellation is checked between pages. The
// writer is closed on every path.
func (e *Engine) Run(ctx context.Context, res Resolved) ([]output.Artifact, error) {
	if e.Source == nil {
		return nil, fmt.Errorf("engine: Source is required")
	}
	if len(res.Entities) == 0 {
		return nil, &ConfigError{Err: ErrNothingToDo}
	}
	logf := e.logger()
	rt := e.Runtime.WithDefaults()
	loc, err := time.LoadLocation(rt.Timezone)
	if err != nil {
		return nil, &ConfigError{Field: "runtime.timezone", Reason: err.Error()}
	}
	now := time.Now()
	if e.Now != nil {
		now = e.Now()
	}
	env := extract.Env{Now: now, Loc: loc}

	subject := entityPlan{x: extract.New(schema.Patients, env)}
	var children []entityPlan
	sheets := make([]output.Sheet, 0, len(res.Entities))
	for _, sel := range res.Entities {
		p := entityPlan{sel: sel, x: extract.New(sel.Entity, env)}
		p.columns = p.x.Columns(sel.Fields)
		if sel.Entity == schema.Patients {
			subject = p
		} else {
			children = append(children, p)
		}
		sheets = append(sheets, output.Sheet{Entity: sel.Entity, Name: sel.Name, Fields: sel.Names(), Headers: sel.Headers()})
	}
	if subject.columns == nil {
		subject.columns = subject.x.Columns(nil)
	}

	w, err := e.newWriter(output.Spec{
		Format:        res.Format,
		SeparateFiles: res.SeparateFiles,
		Base:          baseName(res.ExportType),
		Time:          now,
		Parts:         rt.PartSize > 0,
		Sheets:        sheets,
	})
	if err != nil {
		return nil, err
	}
	defer w.Close()

	var (
		after        int64
		pageIndex    int
		partSubjects int
		totalRows    = map[schema.Entity]int{}
		runStart     = time.Now()
	)
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		pageStart := time.Now()
		page, err := e.Source.Subjects(ctx, after, rt.OuterBatchSize, subject.columns)
		if err != nil {
			metrics.RecordStep("page", pageStart, err)
			return nil, fmt.Errorf("page %d: %w", pageIndex, err)
		}
		if len(page) == 0 {
			break
		}

		rows, err := e.extractPage(ctx, page, subject, children, rt.InnerBatchSize)
		if err != nil {
			metrics.RecordStep("page", pageStart, err)
			return nil, fmt.Errorf("page %d: %w", pageIndex, err)
		}

		if rt.PartSize > 0 && partSubjects >= rt.PartSize {
			if err := w.Rotate(); err != nil {
				return nil, err
			}
			partSubjects = 0
		}
		pageRows := 0
		for _, s := range sheets {
			if err := w.Append(s.Entity, rows[s.Entity]); err != nil {
				metrics.RecordStep("page", pageStart, err)
				return nil, err
			}
			n := len(rows[s.Entity])
			totalRows[s.Entity] += n
			pageRows += n
			metrics.IncCounter(metrics.RowsTotal, float64(n), metrics.Labels{"entity": s.Entity.Key()})
		}
		metrics.IncCounter(metrics.BatchesTotal, 1, nil)
		metrics.RecordStep("page", pageStart, nil)
		logf("stage=page run_id=%s index=%d subjects=%d rows=%d first_id=%d last_id=%d duration=%s",
			e.RunID, pageIndex, len(page), pageRows, page[0].ID(), page[len(page)-1].ID(), durMS(pageStart))

		partSubjects += len(page)
		after = page[len(page)-1].ID()
		pageIndex++
		if len(page) < rt.OuterBatchSize {
			break
		}
	}

	finishStart := time.Now()
	arts, err := w.Finish()
	metrics.RecordStep("finish", finishStart, err)
	if err != nil {
		return nil, err
	}
	for _, a := range arts {
		metrics.IncCounter(metrics.ArtifactsTotal, 1, metrics.Labels{"format": string(a.Format)})
		metrics.ObserveHistogram(metrics.ArtifactBytes, float64(len(a.Content)), metrics.Labels{"format": string(a.Format)})
	}
	for _, s := range sheets {
		logf("stage=entity run_id=%s entity=%s rows=%d", e.RunID, s.Entity.Key(), totalRows[s.Entity])
	}
	logf("stage=finish run_id=%s pages=%d artifacts=%d duration=%s", e.RunID, pageIndex, len(arts), durMS(runStart))
	return arts, nil
}

// extractPage produces the rows of every selected entity type for one page.
// Lookups are scoped to the page and dropped with it.
func (e *Engine) extractPage(ctx context.Context, page []records.Record, subject entityPlan, children []entityPlan, inner int) (map[schema.Entity][]records.Record, error) {
	out := make(map[schema.Entity][]records.Record, len(children)+1)
	base := extract.PageLookups(page)

	if subject.sel.Fields != nil {
		lk, err := subject.x.Prefetch(ctx, e.Source, page, subject.sel.Fields, base)
		if err != nil {
			return nil, fmt.Errorf("%s prefetch: %w", schema.Patients.Key(), err)
		}
		out[schema.Patients] = subject.x.Extract(page, subject.sel.Fields, lk)
	}

	ids := make([]int64, len(page))
	for i, r := range page {
		ids[i] = r.ID()
	}
	for _, p := range children {
		var rows []records.Record
		for _, chunk := range storage.Chunks(ids, inner) {
			recs, err := e.Source.Children(ctx, p.sel.Entity, chunk, p.columns)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", p.sel.Entity.Key(), err)
			}
			lk, err := p.x.Prefetch(ctx, e.Source, recs, p.sel.Fields, base)
			if err != nil {
				return nil, fmt.Errorf("%s prefetch: %w", p.sel.Entity.Key(), err)
			}
			rows = append(rows, p.x.Extract(recs, p.sel.Fields, lk)...)
		}
		out[p.sel.Entity] = rows
	}
	return out, nil
}

func (e *Engine) newWriter(spec output.Spec) (RowWriter, error) {
	if e.NewWriter != nil {
		return e.NewWriter(spec)
	}
	w, err := output.New(spec)
	if err != nil {
		return nil, err
	}
	return w, nil
}

func (e *Engine) logger() func(format string, v ...any) {
	if e.Logger == nil {
		return log.New(io.Discard, "", 0).Printf
	}
	return e.Logger.Printf
}

func baseName(exportType string) string {
	if exportType == "" {
		return schema.PresetCustom
	}
	return exportType
}

func durMS(start time.Time) time.Duration { return time.Since(start).Truncate(time.Millisecond) }
