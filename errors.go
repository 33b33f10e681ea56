package evalkit

import "github.com/datar-psa/evalkit/api"

var (
	// ErrLLMGenerationFailed is returned when LLM generation fails
	ErrLLMGenerationFailed = api.ErrLLMGenerationFailed
)

type MetricExecutionError = api.MetricExecutionError
type SchemaMappingError = api.SchemaMappingError
type UnsupportedBackendError = api.UnsupportedBackendError
type UnsupportedOperationError = api.UnsupportedOperationError
type NotFoundError = api.NotFoundError
type ColumnCreationError = api.ColumnCreationError
type DuplicateNameError = api.DuplicateNameError
type InvalidNameError = api.InvalidNameError

var (
	IsNotFound             = api.IsNotFound
	IsUnsupportedBackend   = api.IsUnsupportedBackend
	IsUnsupportedOperation = api.IsUnsupportedOperation
	IsSchemaMapping        = api.IsSchemaMapping
	IsInvalidName          = api.IsInvalidName
)
