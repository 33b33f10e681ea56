// Package dataset defines the caller-facing handle to a dataset stored in either backend.
package dataset

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/datar-psa/evalkit/api"
	"github.com/datar-psa/evalkit/schema"
)

// FileExt is the extension of local dataset files.
const FileExt = ".csv"

// Dir is the directory, relative to a project root, holding local dataset files.
const Dir = "datasets"

// Dataset carries the coordinates needed to address a dataset. It does not own the
// underlying store. Exactly one of RootDir (local) and Remote (remote) is set.
type Dataset struct {
	Name      string
	Model     *schema.Model
	Backend   api.Backend
	ProjectID string
	// DatasetID is session-local for local datasets, and service-assigned for remote ones
	DatasetID string

	RootDir string
	Remote  api.RemoteDatasetStore
}

// NewLocal returns a handle to a local dataset under rootDir.
func NewLocal(name string, model *schema.Model, projectID, datasetID, rootDir string) *Dataset {
	return &Dataset{
		Name:      name,
		Model:     model,
		Backend:   api.BackendLocal,
		ProjectID: projectID,
		DatasetID: datasetID,
		RootDir:   rootDir,
	}
}

// NewRemote returns a handle to a dataset held by a remote store.
func NewRemote(name string, model *schema.Model, projectID, datasetID string, remote api.RemoteDatasetStore) *Dataset {
	return &Dataset{
		Name:      name,
		Model:     model,
		Backend:   api.BackendRemote,
		ProjectID: projectID,
		DatasetID: datasetID,
		Remote:    remote,
	}
}

// ValidateLocalName checks that name is a single path element, so that the dataset file
// stays inside <rootDir>/datasets.
func ValidateLocalName(name string) error {
	invalid := func(reason string) error {
		return &api.InvalidNameError{Kind: "dataset", Name: name, Reason: reason}
	}
	switch {
	case name == "":
		return invalid("name is empty")
	case name == "." || strings.ContainsAny(name, `/\`):
		return invalid("must be a single path element")
	case !filepath.IsLocal(name):
		return invalid("must not escape the datasets directory")
	}
	return nil
}

// Path returns the local file backing a dataset named name under rootDir.
func Path(rootDir, name string) string {
	return filepath.Join(rootDir, Dir, name+FileExt)
}

// Path returns the file backing d. It is empty for remote datasets.
func (d *Dataset) Path() string {
	if d.Backend != api.BackendLocal {
		return ""
	}
	return Path(d.RootDir, d.Name)
}

// Validate checks that d carries the coordinates its backend needs.
func (d *Dataset) Validate() error {
	if d.Name == "" {
		return fmt.Errorf("dataset: name is required")
	}
	if d.Model == nil {
		return fmt.Errorf("dataset %s: model is required", d.Name)
	}
	switch d.Backend {
	case api.BackendLocal:
		if d.RootDir == "" || d.Remote != nil {
			return fmt.Errorf("dataset %s: local datasets need a root dir and no remote store", d.Name)
		}
		if err := ValidateLocalName(d.Name); err != nil {
			return err
		}
	case api.BackendRemote:
		if d.Remote == nil || d.RootDir != "" {
			return fmt.Errorf("dataset %s: remote datasets need a remote store and no root dir", d.Name)
		}
	default:
		return &api.UnsupportedBackendError{Backend: d.Backend}
	}
	return nil
}

// Info fetches the remote service's view of d.
func (d *Dataset) Info(ctx context.Context) (*api.DatasetInfo, error) {
	if d.Backend != api.BackendRemote {
		return nil, &api.UnsupportedOperationError{Op: "Info", Backend: d.Backend}
	}
	return d.Remote.GetDataset(ctx, d.ProjectID, d.DatasetID)
}

func (d *Dataset) String() string {
	model := "<nil>"
	if d.Model != nil {
		model = d.Model.Name
	}
	return fmt.Sprintf("Dataset(name=%s, model=%s, backend=%s, id=%s)", d.Name, model, d.Backend, d.DatasetID)
}
