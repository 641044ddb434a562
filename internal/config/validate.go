package config

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
)

// Severity classifies a validation issue.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// Issue is a single validation finding with a dotted path into the job.
type Issue struct {
	Severity Severity
	Path     string
	Message  string
}

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

func structValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		// Report json names so issue paths match the job file.
		validate.RegisterTagNameFunc(func(f reflect.StructField) string {
			name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
			if name == "-" {
				return ""
			}
			return name
		})
	})
	return validate
}

// ValidateJob checks a job for structural problems before anything is opened.
//
// Struct-shape rules come from `validate` tags; cross-field rules are checked
// here. Field names and entity keys are not checked: the pipeline's resolver
// owns the field registry and reports unknown names as configuration errors.
func ValidateJob(job Job) []Issue {
	var issues []Issue

	if err := structValidator().Struct(job); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			for _, fe := range verrs {
				issues = append(issues, Issue{
					Severity: SeverityError,
					Path:     issuePath(fe.Namespace()),
					Message:  describeTag(fe),
				})
			}
		} else {
			issues = append(issues, Issue{Severity: SeverityError, Path: "job", Message: err.Error()})
		}
	}

	issues = append(issues, ValidateExport(job.Export)...)

	rt := job.Runtime
	if rt.OuterBatchSize > 0 && rt.InnerBatchSize > rt.OuterBatchSize {
		issues = append(issues, Issue{
			Severity: SeverityWarning,
			Path:     "runtime.inner_batch_size",
			Message:  fmt.Sprintf("inner batch size %d exceeds outer batch size %d; it will be clamped", rt.InnerBatchSize, rt.OuterBatchSize),
		})
	}
	if rt.Timezone != "" {
		if _, err := time.LoadLocation(rt.Timezone); err != nil {
			issues = append(issues, Issue{
				Severity: SeverityError,
				Path:     "runtime.timezone",
				Message:  fmt.Sprintf("unknown timezone %q", rt.Timezone),
			})
		}
	}
	if strings.TrimSpace(job.Output.Dir) == "" {
		issues = append(issues, Issue{
			Severity: SeverityWarning,
			Path:     "output.dir",
			Message:  "empty; artifacts are written to the working directory",
		})
	}
	return issues
}

// ValidateExport checks the parts of an export configuration that do not need
// the field registry.
func ValidateExport(e Export) []Issue {
	var issues []Issue
	presetOnly := len(e.Data) == 0 && strings.TrimSpace(e.ExportType) != ""
	if !e.Format.Valid() && !(presetOnly && e.Format == "") {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "export.format",
			Message:  fmt.Sprintf("must be csv or xlsx, got %q", e.Format),
		})
	}
	if len(e.Data) == 0 && strings.TrimSpace(e.ExportType) == "" {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "export.data",
			Message:  "empty and no export_type preset given",
		})
	}
	for key, d := range e.Data {
		if len(d.Headers) > 0 && len(d.Headers) != len(d.Checked) {
			issues = append(issues, Issue{
				Severity: SeverityError,
				Path:     "export.data." + key + ".headers",
				Message:  fmt.Sprintf("has %d entries, checked has %d", len(d.Headers), len(d.Checked)),
			})
		}
	}
	return issues
}

// HasErrors reports whether any issue is an error.
func HasErrors(issues []Issue) bool {
	for _, iss := range issues {
		if iss.Severity == SeverityError {
			return true
		}
	}
	return false
}

func issuePath(ns string) string {
	// Namespace is "Job.source.kind"; drop the root type name.
	if i := strings.IndexByte(ns, '.'); i >= 0 {
		return ns[i+1:]
	}
	return ns
}

func describeTag(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "oneof":
		return fmt.Sprintf("must be one of [%s], got %v", fe.Param(), fe.Value())
	case "unique":
		return "must not contain duplicates"
	case "gte":
		return fmt.Sprintf("must be >= %s", fe.Param())
	case "max":
		return fmt.Sprintf("must be at most %s characters", fe.Param())
	case "url":
		return fmt.Sprintf("must be a URL, got %v", fe.Value())
	default:
		return fmt.Sprintf("failed %q validation", fe.Tag())
	}
}
