// Package storage is the read boundary of the export: a Source answers the
// handful of bulk queries the pipeline needs, and backends register themselves
// by kind so the pipeline never imports a driver.
package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"caseexport/internal/config"
	"caseexport/internal/schema"
	"caseexport/pkg/records"
)

// Config is the minimal configuration needed to open a Source.
//
// When to use:
//   - Build it from the job's source section and pass it to New.
//
// Edge cases:
//   - Kind must match a registered backend kind.
//   - Where is a predicate over the patients table aliased p, in the backend's
//     placeholder dialect; Args bind to its placeholders in order. An empty
//     Where selects every non-purged subject.
//
// Errors:
//   - New returns an error if Kind is empty or unsupported.
type Config struct {
	Kind    string
	DSN     string
	Where   string
	Args    []any
	Options config.Options
}

// Jurisdiction is the display form of a jurisdiction.
type Jurisdiction struct {
	Name string
	Path string
}

// Transfer is the most recent transfer of a subject.
type Transfer struct {
	FromJurisdictionID int64
	ToJurisdictionID   int64
	CreatedAt          any
}

// Symptom is one distinct symptom present in the candidate set.
type Symptom struct {
	Name  string
	Label string
}

// SymptomValue is one symptom reported on one report.
type SymptomValue struct {
	Name  string
	Value any
}

// Source is the narrow bulk-read interface the export pipeline consumes.
//
// Every method issues one query per chunk of ids, never one per record. Ids
// passed in are not required to be sorted or unique.
//
// Records carry raw driver values; formatting is the extractor's job.
type Source interface {
	// Subjects returns up to limit candidate subjects with id > after, ordered
	// by id ascending. columns are patients columns; id is always included.
	Subjects(ctx context.Context, after int64, limit int, columns []string) ([]records.Record, error)

	// SymptomCatalog returns the distinct symptoms reported by any candidate
	// subject, sorted by name.
	SymptomCatalog(ctx context.Context) ([]Symptom, error)

	// Children returns the rows of a child entity belonging to subjectIDs,
	// ordered by patient_id then id.
	Children(ctx context.Context, e schema.Entity, subjectIDs []int64, columns []string) ([]records.Record, error)

	// Symptoms returns the symptom values of each report. A report without a
	// condition has no entry.
	Symptoms(ctx context.Context, reportIDs []int64) (map[int64][]SymptomValue, error)

	Jurisdictions(ctx context.Context, ids []int64) (map[int64]Jurisdiction, error)

	// Users maps user ids to their email.
	Users(ctx context.Context, ids []int64) (map[int64]string, error)

	LatestTransfers(ctx context.Context, subjectIDs []int64) (map[int64]Transfer, error)

	// RecentLabs returns up to n lab results per subject, most recent specimen
	// collection first; results without a collection date sort last.
	RecentLabs(ctx context.Context, subjectIDs []int64, n int) (map[int64][]records.Record, error)

	// Close releases backend resources. Call once.
	Close()
}

// Factory opens a Source for a Config.
type Factory func(ctx context.Context, cfg Config) (Source, error)

var (
	mu        sync.RWMutex
	factories = map[string]Factory{}
)

// Register registers a backend under a kind (e.g. "postgres", "sqlite").
//
// When to use:
//   - Call Register from an init() function in a backend package.
//
// Panics:
//   - If kind is empty, f is nil, or kind is already registered.
func Register(kind string, f Factory) {
	mu.Lock()
	defer mu.Unlock()

	if kind == "" {
		panic("storage: Register called with empty kind")
	}
	if f == nil {
		panic("storage: Register called with nil factory")
	}
	if _, exists := factories[kind]; exists {
		panic(fmt.Sprintf("storage: factory already registered for kind=%q", kind))
	}
	factories[kind] = f
}

// New opens a Source using the registered backend factory.
//
// Errors:
//   - Returns an error if cfg.Kind is empty or unsupported.
//   - Returns whatever error the registered factory returns.
func New(ctx context.Context, cfg Config) (Source, error) {
	if cfg.Kind == "" {
		return nil, fmt.Errorf("storage: missing source kind")
	}

	mu.RLock()
	f := factories[cfg.Kind]
	mu.RUnlock()

	if f == nil {
		return nil, fmt.Errorf("unsupported source kind=%s (registered: %v)", cfg.Kind, Kinds())
	}
	return f(ctx, cfg)
}

// Kinds lists the registered backend kinds, sorted.
func Kinds() []string {
	mu.RLock()
	defer mu.RUnlock()
	out := make([]string, 0, len(factories))
	for k := range factories {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// UniqueIDs returns the distinct positive ids in ascending order.
func UniqueIDs(ids []int64) []int64 {
	if len(ids) == 0 {
		return nil
	}
	seen := make(map[int64]struct{}, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if id <= 0 {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Chunks splits ids into consecutive slices of at most n. n <= 0 means one chunk.
func Chunks(ids []int64, n int) [][]int64 {
	if len(ids) == 0 {
		return nil
	}
	if n <= 0 || n >= len(ids) {
		return [][]int64{ids}
	}
	out := make([][]int64, 0, (len(ids)+n-1)/n)
	for start := 0; start < len(ids); start += n {
		end := start + n
		if end > len(ids) {
			end = len(ids)
		}
		out = append(out, ids[start:end])
	}
	return out
}
