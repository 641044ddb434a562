// Command export runs one case export job: it reads the job file, opens the
// configured source, streams the selected entity types through the batched
// pipeline and writes the resulting CSV/XLSX artifacts to the output directory.
package main

import (
	"bytes"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"
	_ "time/tzdata"

	"caseexport/internal/config"
	"caseexport/internal/metrics"
	"caseexport/internal/metrics/datadog"
	"caseexport/internal/metrics/prompush"
	"caseexport/internal/output"
	"caseexport/internal/pipeline"
	"caseexport/internal/schema"

	// register all backends with the storage factory.
	// the job file specifies which to use.
	_ "caseexport/internal/storage/all"
)

const (
	metricsJobName    = "case_export"
	defaultGatewayURL = "http://localhost:9091"
	usage             = "usage: export -config <job.json|job.yaml> [-validate] [-v] [-metrics-backend none|pushgateway|datadog] [-pushgateway-url URL] [-out DIR]"
)

// runner is the part of *pipeline.Runner the CLI depends on.
type runner interface {
	Run(ctx context.Context, job config.Job) (pipeline.Result, error)
}

// appDeps are the side-effecting seams of runMain.
type appDeps struct {
	readFile       func(string) ([]byte, error)
	unmarshal      func([]byte, any) error
	newRunner      func(logger pipeline.Logger) runner
	initMetrics    func(ctx context.Context, jobName string, mc config.MetricsConfig) (func(), error)
	writeArtifacts func(dir, base string, arts []output.Artifact) error
}

func defaultDeps() appDeps {
	return appDeps{
		readFile:       os.ReadFile,
		unmarshal:      unmarshalJob,
		newRunner:      func(l pipeline.Logger) runner { return pipeline.NewDefaultRunner(l) },
		initMetrics:    initMetrics,
		writeArtifacts: writeArtifacts,
	}
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := runMain(ctx, os.Args[1:], os.Stdout, os.Stderr, defaultDeps())
	stop()
	os.Exit(code)
}

// runMain is main without the process exit, so the CLI contract can be tested.
//
// Exit codes: 0 on success, 1 on any config/metrics/run/write failure, 2 on
// usage errors. On success stdout receives exactly "ok\n" ("valid\n" with
// -validate); everything else goes to stderr.
func runMain(ctx context.Context, args []string, stdout, stderr io.Writer, deps appDeps) int {
	fs := flag.NewFlagSet("export", flag.ContinueOnError)
	fs.SetOutput(stderr)

	var (
		cfgPath    string
		backendFlg string
		gatewayFlg string
		outDir     string
		validate   bool
		verbose    bool
	)
	fs.StringVar(&cfgPath, "config", "", "export job file (JSON or YAML)")
	fs.StringVar(&backendFlg, "metrics-backend", "", "metrics backend: none, pushgateway or datadog (overrides job and env METRICS_BACKEND)")
	fs.StringVar(&gatewayFlg, "pushgateway-url", "", "Pushgateway base URL (overrides job and env PUSHGATEWAY_URL)")
	fs.StringVar(&outDir, "out", "", "output directory (overrides output.dir)")
	fs.BoolVar(&validate, "validate", false, "validate the job file and exit")
	fs.BoolVar(&verbose, "v", false, "enable verbose logs")

	if err := fs.Parse(args); err != nil {
		return 2
	}
	cfgPath = strings.TrimSpace(cfgPath)
	if cfgPath == "" {
		fmt.Fprintln(stderr, usage)
		return 2
	}

	raw, err := deps.readFile(cfgPath)
	if err != nil {
		fmt.Fprintf(stderr, "read config: %v\n", err)
		return 1
	}
	var job config.Job
	if err := deps.unmarshal(raw, &job); err != nil {
		fmt.Fprintf(stderr, "parse config: %v\n", err)
		return 1
	}

	issues := config.ValidateJob(job)
	for _, iss := range issues {
		fmt.Fprintf(stderr, "%s: %s: %s\n", iss.Severity, iss.Path, iss.Message)
	}
	if config.HasErrors(issues) {
		fmt.Fprintf(stderr, "invalid config: %s\n", cfgPath)
		return 1
	}
	if validate {
		fmt.Fprintln(stdout, "valid")
		return 0
	}

	mc := job.Metrics
	mc.Backend = firstNonEmpty(backendFlg, mc.Backend, os.Getenv("METRICS_BACKEND"))
	mc.PushgatewayURL = firstNonEmpty(gatewayFlg, mc.PushgatewayURL, os.Getenv("PUSHGATEWAY_URL"))
	mc.Tags = append(append([]string(nil), mc.Tags...), datadog.ParseTagsCSV(os.Getenv("METRICS_TAGS"))...)

	cleanup, err := deps.initMetrics(ctx, metricsJobName, mc)
	if err != nil {
		fmt.Fprintf(stderr, "init metrics: %v\n", err)
		return 1
	}
	defer cleanup()

	var logger pipeline.Logger
	if verbose {
		logger = log.New(stderr, "", log.LstdFlags)
	}

	start := time.Now()
	res, err := deps.newRunner(logger).Run(ctx, job)
	if err != nil {
		fmt.Fprintf(stderr, "run: %v\n", err)
		return 1
	}

	dir := firstNonEmpty(outDir, job.Output.Dir, ".")
	base := job.Export.ExportType
	if base == "" {
		base = schema.PresetCustom
	}
	if err := deps.writeArtifacts(dir, base, res.Artifacts); err != nil {
		fmt.Fprintf(stderr, "write artifacts: %v\n", err)
		return 1
	}

	if verbose {
		for _, a := range res.Artifacts {
			logger.Printf("artifact=%s rows=%d bytes=%d digest=%s", filepath.Join(dir, a.Filename), a.RowCount, len(a.Content), a.Digest)
		}
		logger.Printf("completed run_id=%s in %s", res.RunID, time.Since(start).Truncate(time.Millisecond))
	}
	fmt.Fprintln(stdout, "ok")
	return 0
}

// unmarshalJob decodes a job file. Content starting with '{' is JSON with
// unknown fields rejected; anything else is YAML.
func unmarshalJob(data []byte, v any) error {
	job, ok := v.(*config.Job)
	if !ok {
		return fmt.Errorf("unmarshal target %T, want *config.Job", v)
	}
	trimmed := bytes.TrimSpace(data)
	decoded, err := config.DecodeJob(bytes.NewReader(trimmed), !bytes.HasPrefix(trimmed, []byte("{")))
	if err != nil {
		return err
	}
	*job = decoded
	return nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if s := strings.TrimSpace(v); s != "" {
			return s
		}
	}
	return ""
}

// ---- metrics ----

// metricsBackend is a metrics.Backend that owns background resources.
type metricsBackend interface {
	metrics.Backend
	Close() error
}

// Seams for initMetrics tests.
var (
	newDatadogBackend = func(ctx context.Context, opts datadog.Options) (metricsBackend, error) {
		return datadog.NewBackend(ctx, opts)
	}
	newPushBackend = func(job, url string) (metrics.Backend, error) {
		return prompush.NewBackend(job, url)
	}
	setMetricsBackend = metrics.SetBackend
	flushMetrics      = metrics.Flush
	logPrintf         = log.Printf
)

// initMetrics wires the selected metrics backend into the metrics package.
//
// The returned cleanup is never nil and must be called exactly once after the
// run: it pushes (pushgateway) or closes and flushes (datadog) the backend.
// "" and "none" leave the no-op backend in place.
func initMetrics(ctx context.Context, jobName string, mc config.MetricsConfig) (func(), error) {
	noop := func() {}
	switch strings.ToLower(strings.TrimSpace(mc.Backend)) {
	case "", "none":
		return noop, nil

	case "pushgateway", "prom", "prometheus":
		url := mc.PushgatewayURL
		if url == "" {
			url = defaultGatewayURL
		}
		b, err := newPushBackend(jobName, url)
		if err != nil {
			return noop, err
		}
		setMetricsBackend(b)
		return func() {
			if err := flushMetrics(); err != nil {
				logPrintf("metrics: pushgateway push error: %v", err)
			}
		}, nil

	case "datadog", "dd":
		b, err := newDatadogBackend(ctx, datadog.Options{
			JobName:    jobName,
			Tags:       mc.Tags,
			FlushEvery: 60 * time.Second,
		})
		if err != nil {
			return noop, err
		}
		setMetricsBackend(b)
		return func() {
			if err := b.Close(); err != nil {
				logPrintf("metrics: datadog close error: %v", err)
			}
		}, nil
	}
	return noop, fmt.Errorf("unknown metrics backend %q (want none|pushgateway|datadog)", mc.Backend)
}

// ---- artifacts ----

// writeArtifacts stores every artifact in dir, then removes older artifacts of
// the same export type; export types that merely share base as a prefix are
// left alone. Each file is written to a temporary name and renamed, so a
// reader never sees a partial file; on error nothing older is removed.
func writeArtifacts(dir, base string, arts []output.Artifact) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	keep := make(map[string]bool, len(arts))
	var entities []string
	for _, a := range arts {
		if err := writeFileAtomic(dir, a.Filename, a.Content); err != nil {
			return fmt.Errorf("%s: %w", a.Filename, err)
		}
		keep[a.Filename] = true
		if e, ok := output.ParseFilename(base, a.Filename, strings.TrimPrefix(filepath.Ext(a.Filename), ".")); ok && e != "" {
			entities = append(entities, e)
		}
	}

	var errs []error
	for _, f := range []config.Format{config.FormatCSV, config.FormatXLSX} {
		stale, err := filepath.Glob(filepath.Join(dir, output.Pattern(base, "", f.Extension())))
		if err != nil {
			return err
		}
		for _, p := range stale {
			name := filepath.Base(p)
			if keep[name] || !output.OwnedBy(base, name, f.Extension(), entities) {
				continue
			}
			if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

func writeFileAtomic(dir, name string, content []byte) error {
	tmp, err := os.CreateTemp(dir, ".export-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(content); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), filepath.Join(dir, name))
}
