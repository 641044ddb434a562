package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// LoadJob reads a job file. Files ending in .yaml or .yml are decoded as YAML,
// everything else as JSON. Environment variables in source.dsn are expanded.
func LoadJob(path string) (Job, error) {
	f, err := os.Open(path)
	if err != nil {
		return Job{}, fmt.Errorf("open job: %w", err)
	}
	defer f.Close()

	ext := strings.ToLower(filepath.Ext(path))
	return DecodeJob(f, ext == ".yaml" || ext == ".yml")
}

// DecodeJob decodes a job from r.
func DecodeJob(r io.Reader, isYAML bool) (Job, error) {
	var job Job
	if isYAML {
		dec := yaml.NewDecoder(r)
		dec.KnownFields(true)
		if err := dec.Decode(&job); err != nil {
			return Job{}, fmt.Errorf("decode job yaml: %w", err)
		}
	} else {
		dec := json.NewDecoder(r)
		dec.DisallowUnknownFields()
		if err := dec.Decode(&job); err != nil {
			return Job{}, fmt.Errorf("decode job json: %w", err)
		}
	}
	job.Source.DSN = os.ExpandEnv(job.Source.DSN)
	return job, nil
}

// DecodeExport decodes a bare export configuration as posted by the UI.
func DecodeExport(b []byte) (Export, error) {
	var e Export
	dec := json.NewDecoder(bytes.NewReader(b))
	if err := dec.Decode(&e); err != nil {
		return Export{}, fmt.Errorf("decode export config: %w", err)
	}
	return e, nil
}
