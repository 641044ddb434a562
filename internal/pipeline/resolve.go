package pipeline

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"caseexport/internal/config"
	"caseexport/internal/format"
	"caseexport/internal/schema"
	"caseexport/internal/storage"
)

// Resolved is an export configuration whose field lists are fully concrete:
// no virtual fields, one header per field, entity types in output order.
type Resolved struct {
	Format        config.Format
	SeparateFiles bool
	ExportType    string
	Entities      []EntitySelection
}

// EntitySelection is the resolved selection of one entity type.
type EntitySelection struct {
	Entity schema.Entity
	// Name is the sheet name and filename component.
	Name string
	// Fields carry the display header in Field.Header.
	Fields []schema.Field
}

// Names returns the selected field names in column order.
func (s EntitySelection) Names() []string {
	out := make([]string, len(s.Fields))
	for i, f := range s.Fields {
		out[i] = f.Name
	}
	return out
}

// Headers returns the display headers in column order.
func (s EntitySelection) Headers() []string {
	out := make([]string, len(s.Fields))
	for i, f := range s.Fields {
		out[i] = f.Header
	}
	return out
}

// Selection returns the selection for e, if e is exported.
func (r Resolved) Selection(e schema.Entity) (EntitySelection, bool) {
	for _, s := range r.Entities {
		if s.Entity == e {
			return s, true
		}
	}
	return EntitySelection{}, false
}

// SymptomCataloger discovers the symptoms reported across the candidate set.
type SymptomCataloger interface {
	SymptomCatalog(ctx context.Context) ([]storage.Symptom, error)
}

// ApplyPreset fills an export configuration without data from its export
// type's preset. A format or separate_files choice already set on cfg wins.
func ApplyPreset(cfg config.Export) config.Export {
	if len(cfg.Data) > 0 {
		return cfg
	}
	p, ok := schema.Preset(cfg.ExportType)
	if !ok {
		return cfg
	}
	if cfg.Format != "" {
		p.Format = cfg.Format
	}
	p.SeparateFiles = cfg.SeparateFiles
	return p
}

// Resolve validates cfg against the field registry and expands its virtual
// fields.
//
// Race expands in place to the fixed race columns. Symptoms expands to one
// column per symptom found across the whole candidate set, sorted by name;
// the catalog is queried at most once and only when symptoms are selected.
// Entity types with no checked fields are dropped.
//
// Errors:
//   - *ConfigError for unknown entity types or fields, mismatched headers,
//     duplicate columns after expansion, or an empty selection.
//   - The catalog query's error, wrapped.
func Resolve(ctx context.Context, cfg config.Export, catalog SymptomCataloger) (Resolved, error) {
	cfg = ApplyPreset(cfg)
	if !cfg.Format.Valid() {
		return Resolved{}, &ConfigError{Field: "format", Reason: fmt.Sprintf("must be csv or xlsx, got %q", cfg.Format)}
	}

	byEntity := make(map[schema.Entity]config.EntityData, len(cfg.Data))
	keys := make([]string, 0, len(cfg.Data))
	for k := range cfg.Data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		e, ok := schema.ParseEntity(k)
		if !ok {
			return Resolved{}, &ConfigError{Entity: k, Err: ErrUnknownEntity}
		}
		byEntity[e] = cfg.Data[k]
	}

	res := Resolved{Format: cfg.Format, SeparateFiles: cfg.SeparateFiles, ExportType: cfg.ExportType}
	for _, e := range schema.Entities() {
		d, ok := byEntity[e]
		if !ok || len(d.Checked) == 0 {
			continue
		}
		fields, err := resolveFields(ctx, e, d, catalog)
		if err != nil {
			return Resolved{}, err
		}
		// symptoms alone expands to nothing when no report carries one
		if len(fields) == 0 {
			continue
		}
		name := strings.TrimSpace(d.Name)
		if name == "" {
			name = e.Label()
		}
		res.Entities = append(res.Entities, EntitySelection{Entity: e, Name: name, Fields: fields})
	}
	if len(res.Entities) == 0 {
		return Resolved{}, &ConfigError{Err: ErrNothingToDo}
	}
	return res, nil
}

func resolveFields(ctx context.Context, e schema.Entity, d config.EntityData, catalog SymptomCataloger) ([]schema.Field, error) {
	if len(d.Headers) > 0 && len(d.Headers) != len(d.Checked) {
		return nil, &ConfigError{Entity: e.Key(), Field: "headers",
			Reason: fmt.Sprintf("%d headers for %d checked fields", len(d.Headers), len(d.Checked))}
	}

	var out []schema.Field
	for i, name := range d.Checked {
		f, ok := schema.Lookup(e, name)
		if !ok {
			return nil, &ConfigError{Entity: e.Key(), Field: name, Err: ErrUnknownField}
		}
		if !f.IsVirtual() {
			if i < len(d.Headers) && strings.TrimSpace(d.Headers[i]) != "" {
				f.Header = d.Headers[i]
			}
			out = append(out, f)
			continue
		}

		switch f.Type {
		case schema.TypeRace:
			out = append(out, schema.RaceFields()...)
		case schema.TypeSymptoms:
			syms, err := symptomFields(ctx, catalog)
			if err != nil {
				return nil, err
			}
			out = append(out, syms...)
		default:
			return nil, &ConfigError{Entity: e.Key(), Field: name, Err: ErrVirtualField}
		}
	}

	seen := make(map[string]bool, len(out))
	for _, f := range out {
		if f.IsVirtual() {
			return nil, &ConfigError{Entity: e.Key(), Field: f.Name, Err: ErrVirtualField}
		}
		if seen[f.Name] {
			return nil, &ConfigError{Entity: e.Key(), Field: f.Name, Reason: "selected more than once"}
		}
		seen[f.Name] = true
	}
	return out, nil
}

func symptomFields(ctx context.Context, catalog SymptomCataloger) ([]schema.Field, error) {
	if catalog == nil {
		return nil, &ConfigError{Entity: schema.Assessments.Key(), Field: schema.SymptomsField, Reason: "no symptom catalog available"}
	}
	syms, err := catalog.SymptomCatalog(ctx)
	if err != nil {
		return nil, fmt.Errorf("symptom catalog: %w", err)
	}
	sort.SliceStable(syms, func(i, j int) bool { return syms[i].Name < syms[j].Name })
	out := make([]schema.Field, 0, len(syms))
	for _, s := range syms {
		out = append(out, schema.SymptomField(s.Name, format.Label(s.Name, s.Label)))
	}
	return out, nil
}
