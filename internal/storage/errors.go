package storage

import "fmt"

// SourceError is a failed bulk read. It is fatal for the run.
type SourceError struct {
	Backend   string
	Operation string
	Cause     error
}

func (e *SourceError) Error() string {
	return fmt.Sprintf("source %s: %s: %v", e.Backend, e.Operation, e.Cause)
}

func (e *SourceError) Unwrap() error { return e.Cause }

// Wrap returns a *SourceError for err, or nil when err is nil.
func Wrap(backend, operation string, err error) error {
	if err == nil {
		return nil
	}
	return &SourceError{Backend: backend, Operation: operation, Cause: err}
}
