package api

import (
	"context"
	"time"
)

// LLMGenerator is an interface for generating text using an LLM
// This interface must be implemented by library consumers
// A Gemini implementation is provided in the gemini subpackage
type LLMGenerator interface {
	// Generate generates text based on the provided prompt
	Generate(ctx context.Context, prompt string) (string, error)

	// StructuredGenerate generates structured data based on the provided prompt and JSON schema
	// schema must be a valid JSON schema (map[string]interface{})
	// Returns the generated data as a map[string]interface{} or an error
	StructuredGenerate(ctx context.Context, prompt string, schema map[string]interface{}) (map[string]interface{}, error)
}

// Inputs carries the named arguments a metric is scored with
// (e.g. "response", "reference", "question").
type Inputs map[string]any

// MetricResult represents the result of a metric invocation
type MetricResult struct {
	// Result is the value produced by the metric function; nil on failure
	Result any `json:"result"`
	// Reason is the explanation attached to the result, if any
	Reason string `json:"reason,omitempty"`
	// Err contains any error that occurred during scoring
	Err error `json:"-"`
}

// Failed reports whether the invocation that produced r failed.
func (r MetricResult) Failed() bool {
	return r.Err != nil
}

// Backend identifies one of the two dataset storage engines.
type Backend string

const (
	// BackendLocal stores datasets as files under the project root.
	BackendLocal Backend = "local"
	// BackendRemote stores datasets in the remote project service.
	BackendRemote Backend = "remote"
)

// ParseBackend converts a configuration string into a Backend.
func ParseBackend(s string) (Backend, error) {
	switch Backend(s) {
	case BackendLocal, BackendRemote:
		return Backend(s), nil
	default:
		return "", &UnsupportedBackendError{Backend: Backend(s)}
	}
}

// ColumnType is the logical type of a remote dataset column.
type ColumnType string

const (
	ColumnLongText    ColumnType = "longText"
	ColumnNumber      ColumnType = "number"
	ColumnSelect      ColumnType = "select"
	ColumnMultiSelect ColumnType = "multiSelect"
	ColumnCheckbox    ColumnType = "checkbox"
	ColumnDate        ColumnType = "date"
)

// ColumnDescriptor is the backend-schema representation of one record field.
type ColumnDescriptor struct {
	ID       string         `json:"id"`
	Name     string         `json:"name"`
	Type     ColumnType     `json:"type"`
	Settings map[string]any `json:"settings"`
}

// DatasetInfo describes a dataset as reported by the remote project service.
type DatasetInfo struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	ProjectID   string    `json:"project_id,omitempty"`
	CreatedAt   time.Time `json:"created_at,omitempty"`
	UpdatedAt   time.Time `json:"updated_at,omitempty"`
}

// RemoteDatasetStore is the remote project service as seen by dataset lifecycle operations.
// An HTTP implementation is provided in the remote subpackage
type RemoteDatasetStore interface {
	CreateDataset(ctx context.Context, projectID, name string) (*DatasetInfo, error)
	GetDataset(ctx context.Context, projectID, datasetID string) (*DatasetInfo, error)
	// GetDatasetByName returns a *NotFoundError if no dataset has that name
	GetDatasetByName(ctx context.Context, projectID, name string) (*DatasetInfo, error)
	ListDatasets(ctx context.Context, projectID string) ([]DatasetInfo, error)
	CreateDatasetColumn(ctx context.Context, projectID, datasetID string, col ColumnDescriptor) (*ColumnDescriptor, error)
}

// DatasetDeleter is implemented by remote stores that can remove a dataset.
// It is used to clean up after a failed dataset creation.
type DatasetDeleter interface {
	DeleteDataset(ctx context.Context, projectID, datasetID string) error
}
