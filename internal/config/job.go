// Package config defines the export job file and the export configuration
// consumed by the pipeline.
//
// The export configuration (Export) is the declarative description produced by
// the UI: which entity types and which fields to include, in what format. The
// job file (Job) wraps it with everything a standalone run needs: where to read
// subjects from, batch sizing, output directory and metrics backend.
package config

// Format is the output file format of an export.
type Format string

const (
	FormatCSV  Format = "csv"
	FormatXLSX Format = "xlsx"
)

// Extension returns the filename extension (without dot) for the format.
func (f Format) Extension() string {
	return string(f)
}

// Valid reports whether f is one of the supported formats.
func (f Format) Valid() bool {
	return f == FormatCSV || f == FormatXLSX
}

// Export is the export configuration.
//
// Data is keyed by entity type ("patients", "assessments", ...). An entity with
// an empty Checked list is not exported.
type Export struct {
	Format        Format                `json:"format" yaml:"format"`
	SeparateFiles bool                  `json:"separate_files" yaml:"separate_files"`
	ExportType    string                `json:"export_type" yaml:"export_type"`
	Data          map[string]EntityData `json:"data" yaml:"data" validate:"dive"`
}

// EntityData selects the fields of one entity type.
//
// Headers, when present, must have the same length and order as Checked.
// Name overrides the sheet name (xlsx) or the entity part of the filename.
type EntityData struct {
	Checked []string `json:"checked" yaml:"checked" validate:"unique"`
	Headers []string `json:"headers,omitempty" yaml:"headers,omitempty"`
	Name    string   `json:"name,omitempty" yaml:"name,omitempty" validate:"max=64"`
}

// Job is the standalone export job file consumed by cmd/export.
type Job struct {
	Source  SourceConfig  `json:"source" yaml:"source"`
	Export  Export        `json:"export" yaml:"export"`
	Runtime RuntimeConfig `json:"runtime" yaml:"runtime"`
	Output  OutputConfig  `json:"output" yaml:"output"`
	Metrics MetricsConfig `json:"metrics" yaml:"metrics"`
}

// SourceConfig selects the subject recordset backend.
//
// Where is an already-compiled predicate over the patients table (aliased p),
// written in the backend's own placeholder dialect, with Args bound in order.
// It is produced by the advanced-filter compiler, which is not part of this
// repository.
type SourceConfig struct {
	Kind    string  `json:"kind" yaml:"kind" validate:"required,oneof=postgres mssql sqlite memory"`
	DSN     string  `json:"dsn" yaml:"dsn" validate:"required"`
	Where   string  `json:"where,omitempty" yaml:"where,omitempty"`
	Args    []any   `json:"args,omitempty" yaml:"args,omitempty"`
	Options Options `json:"options,omitempty" yaml:"options,omitempty"`
}

// RuntimeConfig controls batching.
type RuntimeConfig struct {
	// OuterBatchSize is the number of subjects per page. Defaults to 10000.
	OuterBatchSize int `json:"outer_batch_size" yaml:"outer_batch_size" validate:"gte=0"`

	// InnerBatchSize is the number of subjects whose child records are fetched
	// per query inside a page. Defaults to 500 and is clamped to OuterBatchSize.
	InnerBatchSize int `json:"inner_batch_size" yaml:"inner_batch_size" validate:"gte=0"`

	// PartSize splits the output into parts of at least PartSize subjects,
	// rolling over only at page boundaries. 0 disables splitting.
	PartSize int `json:"part_size" yaml:"part_size" validate:"gte=0"`

	// Timezone is the IANA zone used to render timestamps. Defaults to UTC.
	Timezone string `json:"timezone" yaml:"timezone"`
}

// OutputConfig controls where cmd/export writes artifacts.
type OutputConfig struct {
	Dir string `json:"dir" yaml:"dir"`
}

// MetricsConfig selects the metrics backend for cmd/export.
type MetricsConfig struct {
	Backend        string   `json:"backend" yaml:"backend" validate:"omitempty,oneof=none pushgateway datadog"`
	PushgatewayURL string   `json:"pushgateway_url" yaml:"pushgateway_url" validate:"omitempty,url"`
	Tags           []string `json:"tags" yaml:"tags"`
}

const (
	DefaultOuterBatchSize = 10000
	DefaultInnerBatchSize = 500
)

// WithDefaults returns a copy of rc with zero values replaced by defaults and
// the inner batch size clamped to the outer one.
func (rc RuntimeConfig) WithDefaults() RuntimeConfig {
	if rc.OuterBatchSize <= 0 {
		rc.OuterBatchSize = DefaultOuterBatchSize
	}
	if rc.InnerBatchSize <= 0 {
		rc.InnerBatchSize = DefaultInnerBatchSize
	}
	if rc.InnerBatchSize > rc.OuterBatchSize {
		rc.InnerBatchSize = rc.OuterBatchSize
	}
	if rc.Timezone == "" {
		rc.Timezone = "UTC"
	}
	return rc
}
