package pipeline

import (
	"bytes"
	"context"
	"errors"
	"log"
	"strings"
	"testing"
	"time"

	"caseexport/internal/config"
	"caseexport/internal/storage"
	"caseexport/internal/storage/memory"
)

func TestRunner_Run(t *testing.T) {
	src := memory.New(cohort(4))
	var gotCfg storage.Config
	var logs bytes.Buffer
	r := &Runner{
		Logger: log.New(&logs, "", 0),
		NewSource: func(_ context.Context, cfg storage.Config) (storage.Source, error) {
			gotCfg = cfg
			return src, nil
		},
		Now:      func() time.Time { return testNow },
		NewRunID: func() string { return "r1" },
	}
	job := config.Job{
		Source:  config.SourceConfig{Kind: "memory", DSN: "fixture.json"},
		Export:  cohortExport(),
		Runtime: config.RuntimeConfig{OuterBatchSize: 3},
	}
	res, err := r.Run(context.Background(), job)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.RunID != "r1" || len(res.Artifacts) != 2 {
		t.Fatalf("res run_id=%s artifacts=%d", res.RunID, len(res.Artifacts))
	}
	if gotCfg.Kind != "memory" || gotCfg.DSN != "fixture.json" {
		t.Fatalf("source cfg=%+v", gotCfg)
	}
	if src.Closed() != 1 {
		t.Fatalf("source closed %d times, want 1", src.Closed())
	}
	for _, want := range []string{"stage=open_source run_id=r1", "stage=resolve run_id=r1", "stage=page run_id=r1 index=1", "stage=finish run_id=r1 pages=2"} {
		if !strings.Contains(logs.String(), want) {
			t.Fatalf("logs missing %q:\n%s", want, logs.String())
		}
	}
}

func TestRunner_ClosesSourceOnError(t *testing.T) {
	src := memory.New(cohort(4))
	r := &Runner{NewSource: func(context.Context, storage.Config) (storage.Source, error) { return src, nil }}

	job := config.Job{Export: config.Export{Format: config.FormatCSV, Data: map[string]config.EntityData{"pets": {Checked: []string{"id"}}}}}
	_, err := r.Run(context.Background(), job)
	var ce *ConfigError
	if !errors.As(err, &ce) {
		t.Fatalf("err=%v, want *ConfigError", err)
	}
	if src.Closed() != 1 {
		t.Fatalf("source closed %d times, want 1", src.Closed())
	}
	if got := src.Calls("subjects"); got != 0 {
		t.Fatalf("config error must precede data reads; subjects calls=%d", got)
	}
}

func TestRunner_OpenSourceError(t *testing.T) {
	boom := storage.Wrap("memory", "open", errors.New("no such file"))
	r := &Runner{NewSource: func(context.Context, storage.Config) (storage.Source, error) { return nil, boom }}
	_, err := r.Run(context.Background(), config.Job{Export: cohortExport()})
	var se *SourceError
	if !errors.As(err, &se) || !strings.HasPrefix(err.Error(), "open source:") {
		t.Fatalf("err=%v, want wrapped *SourceError", err)
	}
}
