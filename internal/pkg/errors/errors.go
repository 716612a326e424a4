package errors

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrNotFound  = errors.New("not found")
	ErrInvalid   = errors.New("invalid")
	ErrConflict  = errors.New("conflict")
	ErrInternal  = errors.New("internal")
	ErrConfig    = errors.New("invalid configuration")
	ErrTooMany   = errors.New("too many requests")
	ErrForbidden = errors.New("forbidden")

	ErrUnsupportedType = fmt.Errorf("%w: unsupported content type", ErrInvalid)
	ErrEmptyDocument   = fmt.Errorf("%w: no text extracted", ErrInvalid)

	ErrRetrievalFailed = errors.New("retrieval failed")
	ErrIngestionFailed = errors.New("ingestion failed")
)

const (
	OpRetrieve = "retrieve"
	OpIngest   = "ingest"
)

// StageError tags a dependency failure with the pipeline stage and the
// tenant/document it happened for.
type StageError struct {
	Op       string
	Stage    string
	TenantID string
	DocID    string
	Err      error
}

func (e *StageError) Error() string {
	parts := []string{e.Op, "stage=" + e.Stage}
	if e.TenantID != "" {
		parts = append(parts, "tenant="+e.TenantID)
	}
	if e.DocID != "" {
		parts = append(parts, "doc="+e.DocID)
	}
	return fmt.Sprintf("%s: %v", strings.Join(parts, " "), e.Err)
}

func (e *StageError) Unwrap() []error {
	kind := ErrInternal
	switch e.Op {
	case OpRetrieve:
		kind = ErrRetrievalFailed
	case OpIngest:
		kind = ErrIngestionFailed
	}
	return []error{kind, e.Err}
}

func RetrievalStage(stage, tenantID string, err error) error {
	return &StageError{Op: OpRetrieve, Stage: stage, TenantID: tenantID, Err: err}
}

func IngestionStage(stage, tenantID, docID string, err error) error {
	return &StageError{Op: OpIngest, Stage: stage, TenantID: tenantID, DocID: docID, Err: err}
}

func Invalid(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrInvalid, fmt.Sprintf(format, args...))
}

func Config(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrConfig, fmt.Sprintf(format, args...))
}

func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

func IsConflict(err error) bool {
	return errors.Is(err, ErrConflict)
}

func IsInput(err error) bool {
	return errors.Is(err, ErrInvalid)
}

func IsConfig(err error) bool {
	return errors.Is(err, ErrConfig)
}

// IsRetryable reports whether re-running the failed operation may succeed.
// Input, configuration and conflict errors never will.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	return !IsInput(err) && !IsConfig(err) && !IsConflict(err)
}

// StageOf returns the failing stage, or "" when err carries none.
func StageOf(err error) string {
	var se *StageError
	if errors.As(err, &se) {
		return se.Stage
	}
	return ""
}
