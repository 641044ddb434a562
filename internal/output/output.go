// Package output serializes export rows into artifacts.
//
// A Writer owns every open container of a run. Header rows are written when
// the Writer (or a new part) is opened, rows are appended page by page, and
// Finish turns the containers into Artifacts:
//
//	csv                 one document per entity
//	xlsx, single        one workbook, one sheet per entity
//	xlsx, separate      one workbook per entity
//
// The set of sheets is fixed at New and never changes during the run.
package output

import (
	"errors"
	"fmt"
	"time"

	"caseexport/internal/config"
	"caseexport/internal/schema"
	"caseexport/pkg/records"
)

// Artifact is a finished output file.
type Artifact struct {
	Filename string
	Content  []byte
	Format   config.Format
	// Entities lists the entity keys contained, in sheet order.
	Entities []string
	// RowCount counts data rows (headers excluded) across all sheets.
	RowCount int
	// Digest is a hex SHA-256 over the header and row values of every sheet.
	Digest string
}

// Sheet is one entity's destination.
type Sheet struct {
	Entity schema.Entity
	// Name is the sheet name (xlsx) and the entity part of the filename.
	Name string
	// Fields are the concrete field names, in column order.
	Fields []string
	// Headers are the display headers, one per field.
	Headers []string
}

// Spec describes the containers of one run.
type Spec struct {
	Format        config.Format
	SeparateFiles bool
	// Base is the leading filename component, usually the export type.
	Base string
	// Time is the timestamp carried by every filename of the run.
	Time time.Time
	// Parts adds a batch index to filenames.
	Parts  bool
	Sheets []Sheet
}

// ErrClosed is returned when a Writer is used after Finish or Close.
var ErrClosed = errors.New("output: writer closed")

// WriterError reports a serialization failure.
type WriterError struct {
	Entity string
	Format config.Format
	Cause  error
}

func (e *WriterError) Error() string {
	if e.Entity == "" {
		return fmt.Sprintf("write %s: %v", e.Format, e.Cause)
	}
	return fmt.Sprintf("write %s %s: %v", e.Format, e.Entity, e.Cause)
}

func (e *WriterError) Unwrap() error { return e.Cause }

// container is one output file holding one or more sheets.
type container interface {
	addRow(sheet int, cells []any) error
	bytes() ([]byte, error)
	close() error
}

type group struct {
	name    string
	sheets  []int // indexes into Spec.Sheets
	c       container
	digests []*digest
	rows    int
}

type route struct{ group, sheet int }

// Writer streams rows into the containers described by a Spec.
type Writer struct {
	spec   Spec
	part   int
	groups []*group
	routes map[schema.Entity]route
	done   []Artifact
	closed bool
}

// New validates spec, opens its containers and writes the header rows.
func New(spec Spec) (*Writer, error) {
	if !spec.Format.Valid() {
		return nil, &WriterError{Format: spec.Format, Cause: fmt.Errorf("unsupported format %q", spec.Format)}
	}
	if len(spec.Sheets) == 0 {
		return nil, &WriterError{Format: spec.Format, Cause: errors.New("no sheets")}
	}
	seen := map[schema.Entity]bool{}
	for _, s := range spec.Sheets {
		if seen[s.Entity] {
			return nil, &WriterError{Entity: s.Entity.Key(), Format: spec.Format, Cause: errors.New("duplicate sheet")}
		}
		seen[s.Entity] = true
		if len(s.Headers) != len(s.Fields) {
			return nil, &WriterError{Entity: s.Entity.Key(), Format: spec.Format,
				Cause: fmt.Errorf("%d headers for %d fields", len(s.Headers), len(s.Fields))}
		}
	}
	if spec.Time.IsZero() {
		spec.Time = time.Now()
	}
	spec.Sheets = sanitizeSheetNames(spec.Sheets)

	w := &Writer{spec: spec}
	if err := w.open(); err != nil {
		w.Close()
		return nil, err
	}
	return w, nil
}

func (w *Writer) open() error {
	w.groups = nil
	w.routes = make(map[schema.Entity]route, len(w.spec.Sheets))

	if w.spec.Format == config.FormatXLSX && !w.spec.SeparateFiles {
		idx := make([]int, len(w.spec.Sheets))
		names := make([]string, len(w.spec.Sheets))
		for i, s := range w.spec.Sheets {
			idx[i] = i
			names[i] = s.Name
		}
		c, err := newWorkbook(names)
		if err != nil {
			return &WriterError{Format: w.spec.Format, Cause: err}
		}
		if err := w.addGroup("", idx, c); err != nil {
			return err
		}
		return nil
	}

	for i, s := range w.spec.Sheets {
		var (
			c   container
			err error
		)
		if w.spec.Format == config.FormatCSV {
			c = newCSVDoc()
		} else {
			c, err = newWorkbook([]string{s.Name})
		}
		if err != nil {
			return &WriterError{Entity: s.Entity.Key(), Format: w.spec.Format, Cause: err}
		}
		if err := w.addGroup(s.Name, []int{i}, c); err != nil {
			return err
		}
	}
	return nil
}

func (w *Writer) addGroup(name string, sheets []int, c container) error {
	g := &group{name: name, sheets: sheets, c: c}
	gi := len(w.groups)
	w.groups = append(w.groups, g)
	for si, idx := range sheets {
		s := w.spec.Sheets[idx]
		w.routes[s.Entity] = route{group: gi, sheet: si}
		d := newDigest()
		g.digests = append(g.digests, d)

		header := make([]any, len(s.Headers))
		for i, h := range s.Headers {
			header[i] = h
		}
		d.row(header)
		if err := c.addRow(si, header); err != nil {
			return &WriterError{Entity: s.Entity.Key(), Format: w.spec.Format, Cause: fmt.Errorf("header: %w", err)}
		}
	}
	return nil
}

// Append writes rows to e's sheet, taking cells in the sheet's field order.
// Absent fields are blank cells.
func (w *Writer) Append(e schema.Entity, rows []records.Record) error {
	if w.closed {
		return ErrClosed
	}
	rt, ok := w.routes[e]
	if !ok {
		return &WriterError{Entity: e.Key(), Format: w.spec.Format, Cause: errors.New("entity not opened")}
	}
	g := w.groups[rt.group]
	s := w.spec.Sheets[g.sheets[rt.sheet]]
	cells := make([]any, len(s.Fields))
	for _, r := range rows {
		for i, f := range s.Fields {
			v := r[f]
			if !validCell(v) {
				return &WriterError{Entity: e.Key(), Format: w.spec.Format, Cause: fmt.Errorf("field %s: unsupported cell type %T", f, v)}
			}
			cells[i] = v
		}
		g.digests[rt.sheet].row(cells)
		if err := g.c.addRow(rt.sheet, cells); err != nil {
			return &WriterError{Entity: e.Key(), Format: w.spec.Format, Cause: err}
		}
		g.rows++
	}
	return nil
}

// Rotate finishes the current part and opens the next one, headers included.
func (w *Writer) Rotate() error {
	if w.closed {
		return ErrClosed
	}
	if err := w.finishPart(); err != nil {
		return err
	}
	w.part++
	return w.open()
}

// Finish finalizes every open container and returns all artifacts of the run
// in creation order. The Writer is closed afterwards.
func (w *Writer) Finish() ([]Artifact, error) {
	if w.closed {
		return nil, ErrClosed
	}
	err := w.finishPart()
	w.closed = true
	if err != nil {
		return nil, err
	}
	return w.done, nil
}

// Close releases open containers without producing artifacts. It is safe to
// call after Finish and more than once.
func (w *Writer) Close() error {
	w.closed = true
	var first error
	for _, g := range w.groups {
		if err := g.c.close(); err != nil && first == nil {
			first = err
		}
	}
	w.groups = nil
	return first
}

func (w *Writer) finishPart() error {
	part := NoPart
	if w.spec.Parts {
		part = w.part
	}
	groups := w.groups
	w.groups = nil
	defer func() {
		for _, g := range groups {
			_ = g.c.close()
		}
	}()

	for _, g := range groups {
		content, err := g.c.bytes()
		if err != nil {
			return &WriterError{Entity: g.name, Format: w.spec.Format, Cause: err}
		}
		names := make([]string, len(g.sheets))
		entities := make([]string, len(g.sheets))
		sums := make([][]byte, len(g.sheets))
		for i, idx := range g.sheets {
			names[i] = w.spec.Sheets[idx].Name
			entities[i] = w.spec.Sheets[idx].Entity.Key()
			sums[i] = g.digests[i].sum()
		}
		w.done = append(w.done, Artifact{
			Filename: Filename(w.spec.Base, g.name, w.spec.Time, part, w.spec.Format.Extension()),
			Content:  content,
			Format:   w.spec.Format,
			Entities: entities,
			RowCount: g.rows,
			Digest:   combineDigests(names, sums),
		})
	}
	return nil
}

func validCell(v any) bool {
	switch v.(type) {
	case nil, string, bool, int, int64, float64:
		return true
	}
	return false
}
