package pipeline

import (
	"errors"
	"fmt"

	"caseexport/internal/output"
	"caseexport/internal/storage"
)

// Sentinel causes carried by ConfigError.
var (
	ErrUnknownEntity = errors.New("unknown entity type")
	ErrUnknownField  = errors.New("unknown field")
	ErrVirtualField  = errors.New("virtual field not expanded")
	ErrNothingToDo   = errors.New("no entity type selected")
)

// ConfigError is a configuration problem found before any page is read.
type ConfigError struct {
	Entity string
	Field  string
	Reason string
	Err    error
}

func (e *ConfigError) Error() string {
	msg := e.Reason
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	switch {
	case e.Entity != "" && e.Field != "":
		return fmt.Sprintf("config: %s.%s: %s", e.Entity, e.Field, msg)
	case e.Entity != "":
		return fmt.Sprintf("config: %s: %s", e.Entity, msg)
	case e.Field != "":
		return fmt.Sprintf("config: %s: %s", e.Field, msg)
	}
	return "config: " + msg
}

func (e *ConfigError) Unwrap() error { return e.Err }

// The writer and source error types live with their packages; they are
// re-exported here so callers can errors.As against the pipeline alone.
type (
	WriterError = output.WriterError
	SourceError = storage.SourceError
)
