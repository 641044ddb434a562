package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestRuntimeConfig_WithDefaults(t *testing.T) {
	tests := []struct {
		name string
		in   RuntimeConfig
		want RuntimeConfig
	}{
		{
			name: "zero",
			in:   RuntimeConfig{},
			want: RuntimeConfig{OuterBatchSize: 10000, InnerBatchSize: 500, Timezone: "UTC"},
		},
		{
			name: "inner_clamped_to_outer",
			in:   RuntimeConfig{OuterBatchSize: 100},
			want: RuntimeConfig{OuterBatchSize: 100, InnerBatchSize: 100, Timezone: "UTC"},
		},
		{
			name: "explicit_values_kept",
			in:   RuntimeConfig{OuterBatchSize: 23, InnerBatchSize: 7, PartSize: 50, Timezone: "America/New_York"},
			want: RuntimeConfig{OuterBatchSize: 23, InnerBatchSize: 7, PartSize: 50, Timezone: "America/New_York"},
		},
		{
			name: "negative_treated_as_unset",
			in:   RuntimeConfig{OuterBatchSize: -1, InnerBatchSize: -5},
			want: RuntimeConfig{OuterBatchSize: 10000, InnerBatchSize: 500, Timezone: "UTC"},
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.in.WithDefaults(); got != tc.want {
				t.Fatalf("got=%+v want=%+v", got, tc.want)
			}
		})
	}
}

func validJob() Job {
	return Job{
		Source: SourceConfig{Kind: "sqlite", DSN: "file:cases.db"},
		Export: Export{
			Format: FormatCSV,
			Data:   map[string]EntityData{"patients": {Checked: []string{"id", "first_name"}}},
		},
		Output: OutputConfig{Dir: "out"},
	}
}

func TestValidateJob(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(*Job)
		wantPath  string
		wantError bool
	}{
		{name: "valid", mutate: func(*Job) {}},
		{name: "missing_kind", mutate: func(j *Job) { j.Source.Kind = "" }, wantPath: "source.kind", wantError: true},
		{name: "unknown_kind", mutate: func(j *Job) { j.Source.Kind = "oracle" }, wantPath: "source.kind", wantError: true},
		{name: "missing_dsn", mutate: func(j *Job) { j.Source.DSN = "" }, wantPath: "source.dsn", wantError: true},
		{name: "bad_format", mutate: func(j *Job) { j.Export.Format = "pdf" }, wantPath: "export.format", wantError: true},
		{
			name: "duplicate_checked",
			mutate: func(j *Job) {
				j.Export.Data["patients"] = EntityData{Checked: []string{"id", "id"}}
			},
			wantPath:  "export.data[patients].checked",
			wantError: true,
		},
		{
			name: "headers_length",
			mutate: func(j *Job) {
				j.Export.Data["patients"] = EntityData{Checked: []string{"id"}, Headers: []string{"a", "b"}}
			},
			wantPath:  "export.data.patients.headers",
			wantError: true,
		},
		{
			name:      "empty_data_without_preset",
			mutate:    func(j *Job) { j.Export.Data = nil },
			wantPath:  "export.data",
			wantError: true,
		},
		{
			name: "preset_without_format",
			mutate: func(j *Job) {
				j.Export = Export{ExportType: "full-history"}
			},
		},
		{name: "negative_batch", mutate: func(j *Job) { j.Runtime.OuterBatchSize = -1 }, wantPath: "runtime.outer_batch_size", wantError: true},
		{name: "bad_timezone", mutate: func(j *Job) { j.Runtime.Timezone = "Mars/Olympus" }, wantPath: "runtime.timezone", wantError: true},
		{name: "inner_exceeds_outer_warns", mutate: func(j *Job) { j.Runtime = RuntimeConfig{OuterBatchSize: 10, InnerBatchSize: 20} }, wantPath: "runtime.inner_batch_size"},
		{name: "empty_output_dir_warns", mutate: func(j *Job) { j.Output.Dir = "" }, wantPath: "output.dir"},
		{name: "bad_metrics_backend", mutate: func(j *Job) { j.Metrics.Backend = "statsd" }, wantPath: "metrics.backend", wantError: true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			job := validJob()
			tc.mutate(&job)
			issues := ValidateJob(job)

			if got := HasErrors(issues); got != tc.wantError {
				t.Fatalf("HasErrors=%v want=%v issues=%+v", got, tc.wantError, issues)
			}
			if tc.wantPath == "" {
				if len(issues) != 0 {
					t.Fatalf("issues=%+v, want none", issues)
				}
				return
			}
			found := false
			for _, iss := range issues {
				if iss.Path == tc.wantPath {
					found = true
				}
			}
			if !found {
				t.Fatalf("no issue at %q; issues=%+v", tc.wantPath, issues)
			}
		})
	}
}

func TestLoadJob_JSONAndYAML(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("CASES_DB", "/data/cases.db")

	jsonPath := filepath.Join(dir, "job.json")
	if err := os.WriteFile(jsonPath, []byte(`{
  "source": {"kind": "sqlite", "dsn": "file:${CASES_DB}", "options": {"busy_timeout_ms": 250}},
  "export": {"format": "xlsx", "separate_files": true, "data": {"patients": {"checked": ["id"], "name": "People"}}},
  "runtime": {"outer_batch_size": 50, "part_size": 100}
}`), 0o644); err != nil {
		t.Fatal(err)
	}
	yamlPath := filepath.Join(dir, "job.yml")
	if err := os.WriteFile(yamlPath, []byte(`source:
  kind: sqlite
  dsn: file:${CASES_DB}
  options:
    busy_timeout_ms: 250
export:
  format: xlsx
  separate_files: true
  data:
    patients:
      checked: [id]
      name: People
runtime:
  outer_batch_size: 50
  part_size: 100
`), 0o644); err != nil {
		t.Fatal(err)
	}

	for _, p := range []string{jsonPath, yamlPath} {
		job, err := LoadJob(p)
		if err != nil {
			t.Fatalf("LoadJob(%s): %v", filepath.Base(p), err)
		}
		if job.Source.DSN != "file:/data/cases.db" {
			t.Fatalf("%s dsn=%q", filepath.Base(p), job.Source.DSN)
		}
		if got := job.Source.Options.Int("busy_timeout_ms", 0); got != 250 {
			t.Fatalf("%s busy_timeout_ms=%d", filepath.Base(p), got)
		}
		if job.Export.Format != FormatXLSX || !job.Export.SeparateFiles || job.Export.Data["patients"].Name != "People" {
			t.Fatalf("%s export=%+v", filepath.Base(p), job.Export)
		}
		if job.Runtime.OuterBatchSize != 50 || job.Runtime.PartSize != 100 {
			t.Fatalf("%s runtime=%+v", filepath.Base(p), job.Runtime)
		}
	}
}

func TestLoadJob_Errors(t *testing.T) {
	dir := t.TempDir()
	if _, err := LoadJob(filepath.Join(dir, "missing.json")); err == nil {
		t.Fatalf("want error for missing file")
	}
	p := filepath.Join(dir, "bad.json")
	if err := os.WriteFile(p, []byte(`{"source": {"kind": "sqlite"}, "unknown": true}`), 0o644); err != nil {
		t.Fatal(err)
	}
	_, err := LoadJob(p)
	if err == nil || !strings.Contains(err.Error(), "decode job json") {
		t.Fatalf("err=%v, want decode error for unknown field", err)
	}
}

func TestDecodeExport(t *testing.T) {
	e, err := DecodeExport([]byte(`{"format":"csv","export_type":"custom","data":{"assessments":{"checked":["id","symptoms"],"headers":["ID","Symptoms"]}}}`))
	if err != nil {
		t.Fatalf("DecodeExport: %v", err)
	}
	d := e.Data["assessments"]
	if e.Format != FormatCSV || len(d.Checked) != 2 || d.Headers[1] != "Symptoms" {
		t.Fatalf("export=%+v", e)
	}
}

func TestOptions(t *testing.T) {
	o := Options{
		"s":     " value ",
		"blank": "  ",
		"b1":    "yes",
		"b2":    false,
		"i1":    float64(42),
		"i2":    "17",
		"i3":    "x",
		"m":     map[string]any{"a": 1, "b": nil},
	}
	if got := o.String("s", "d"); got != "value" {
		t.Fatalf("String=%q", got)
	}
	if got := o.String("blank", "d"); got != "d" {
		t.Fatalf("String blank=%q", got)
	}
	if !o.Bool("b1", false) || o.Bool("b2", true) || !o.Bool("missing", true) {
		t.Fatalf("Bool getters wrong")
	}
	if o.Int("i1", 0) != 42 || o.Int("i2", 0) != 17 || o.Int("i3", 5) != 5 {
		t.Fatalf("Int getters wrong")
	}
	if m := o.StringMap("m"); len(m) != 1 || m["a"] != "1" {
		t.Fatalf("StringMap=%v", m)
	}
	var nilOpts Options
	if nilOpts.Any("x") != nil || nilOpts.String("x", "d") != "d" {
		t.Fatalf("nil Options getters must return defaults")
	}
}
