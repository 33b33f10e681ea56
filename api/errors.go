package api

import (
	"errors"
	"fmt"
	"reflect"
)

// ErrLLMGenerationFailed is returned when LLM generation fails
var ErrLLMGenerationFailed = errors.New("LLM generation failed")

// MetricExecutionError is a fault raised by a metric function while scoring.
// It never escapes a Metric; it is carried in MetricResult.Err.
type MetricExecutionError struct {
	Metric string
	Err    error
}

func (e *MetricExecutionError) Error() string {
	return fmt.Sprintf("Error executing metric %s: %v", e.Metric, e.Err)
}

func (e *MetricExecutionError) Unwrap() error { return e.Err }

// SchemaMappingError reports a record field with no column equivalent.
type SchemaMappingError struct {
	Model  string
	Field  string
	Type   reflect.Type
	Reason string
}

func (e *SchemaMappingError) Error() string {
	typ := "<nil>"
	if e.Type != nil {
		typ = e.Type.String()
	}
	if e.Field == "" {
		return fmt.Sprintf("schema: model %s (%s): %s", e.Model, typ, e.Reason)
	}
	return fmt.Sprintf("schema: %s.%s (%s): %s", e.Model, e.Field, typ, e.Reason)
}

// UnsupportedBackendError reports an unrecognized backend tag.
type UnsupportedBackendError struct {
	Backend Backend
}

func (e *UnsupportedBackendError) Error() string {
	return fmt.Sprintf("unsupported backend: %q", string(e.Backend))
}

// NotFoundError reports that a lookup by name or id found nothing.
type NotFoundError struct {
	Kind string
	Key  string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q does not exist", e.Kind, e.Key)
}

// UnsupportedOperationError reports an operation that is only defined for another backend.
type UnsupportedOperationError struct {
	Op      string
	Backend Backend
	Hint    string
}

func (e *UnsupportedOperationError) Error() string {
	msg := fmt.Sprintf("%s is not supported by the %s backend", e.Op, e.Backend)
	if e.Hint != "" {
		msg += "; " + e.Hint
	}
	return msg
}

// ColumnCreationError reports a remote dataset whose columns could not all be created.
// Orphaned is set when the dataset itself was left behind on the remote service.
type ColumnCreationError struct {
	DatasetID string
	Column    string
	Orphaned  bool
	Err       error
}

func (e *ColumnCreationError) Error() string {
	msg := fmt.Sprintf("create column %q of dataset %s: %v", e.Column, e.DatasetID, e.Err)
	if e.Orphaned {
		msg += " (dataset left on remote)"
	}
	return msg
}

func (e *ColumnCreationError) Unwrap() error { return e.Err }

// InvalidNameError reports a name that cannot address a resource.
type InvalidNameError struct {
	Kind   string
	Name   string
	Reason string
}

func (e *InvalidNameError) Error() string {
	return fmt.Sprintf("invalid %s name %q: %s", e.Kind, e.Name, e.Reason)
}

// DuplicateNameError reports several remote resources sharing a name.
type DuplicateNameError struct {
	Kind string
	Name string
}

func (e *DuplicateNameError) Error() string {
	return fmt.Sprintf("multiple %ss named %q", e.Kind, e.Name)
}

// IsNotFound returns true if err is or wraps a *NotFoundError.
func IsNotFound(err error) bool {
	var e *NotFoundError
	return errors.As(err, &e)
}

// IsUnsupportedBackend returns true if err is or wraps an *UnsupportedBackendError.
func IsUnsupportedBackend(err error) bool {
	var e *UnsupportedBackendError
	return errors.As(err, &e)
}

// IsUnsupportedOperation returns true if err is or wraps an *UnsupportedOperationError.
func IsUnsupportedOperation(err error) bool {
	var e *UnsupportedOperationError
	return errors.As(err, &e)
}

// IsInvalidName returns true if err is or wraps an *InvalidNameError.
func IsInvalidName(err error) bool {
	var e *InvalidNameError
	return errors.As(err, &e)
}

// IsSchemaMapping returns true if err is or wraps a *SchemaMappingError.
func IsSchemaMapping(err error) bool {
	var e *SchemaMappingError
	return errors.As(err, &e)
}
