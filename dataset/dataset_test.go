package dataset

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/datar-psa/evalkit/api"
	"github.com/datar-psa/evalkit/schema"
)

type row struct {
	Question string `json:"question"`
}

type infoStore struct {
	api.RemoteDatasetStore
	gotProject, gotID string
}

func (s *infoStore) GetDataset(ctx context.Context, projectID, datasetID string) (*api.DatasetInfo, error) {
	s.gotProject, s.gotID = projectID, datasetID
	return &api.DatasetInfo{ID: datasetID, Name: "qa"}, nil
}

func TestLocalHandle(t *testing.T) {
	m := schema.MustModelOf[row]()
	d := NewLocal("qa", m, "proj", "abc", "/tmp/proj")

	require.NoError(t, d.Validate())
	assert.Equal(t, api.BackendLocal, d.Backend)
	assert.Equal(t, filepath.Join("/tmp/proj", "datasets", "qa.csv"), d.Path())
	assert.Equal(t, "Dataset(name=qa, model=row, backend=local, id=abc)", d.String())

	_, err := d.Info(context.Background())
	assert.True(t, api.IsUnsupportedOperation(err))
}

func TestRemoteHandle(t *testing.T) {
	store := &infoStore{}
	d := NewRemote("qa", schema.MustModelOf[row](), "proj", "ds-1", store)

	require.NoError(t, d.Validate())
	assert.Empty(t, d.Path())

	info, err := d.Info(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "ds-1", info.ID)
	assert.Equal(t, "proj", store.gotProject)
	assert.Equal(t, "ds-1", store.gotID)
}

func TestValidate(t *testing.T) {
	m := schema.MustModelOf[row]()

	tests := []struct {
		name string
		d    *Dataset
	}{
		{name: "no name", d: &Dataset{Model: m, Backend: api.BackendLocal, RootDir: "/r"}},
		{name: "no model", d: &Dataset{Name: "qa", Backend: api.BackendLocal, RootDir: "/r"}},
		{name: "local without root", d: &Dataset{Name: "qa", Model: m, Backend: api.BackendLocal}},
		{name: "local with remote", d: &Dataset{Name: "qa", Model: m, Backend: api.BackendLocal, RootDir: "/r", Remote: &infoStore{}}},
		{name: "remote without store", d: &Dataset{Name: "qa", Model: m, Backend: api.BackendRemote}},
		{name: "remote with root", d: &Dataset{Name: "qa", Model: m, Backend: api.BackendRemote, RootDir: "/r", Remote: &infoStore{}}},
		{name: "unknown backend", d: &Dataset{Name: "qa", Model: m, Backend: "s3"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Error(t, tt.d.Validate())
		})
	}
}

func TestValidateLocalName(t *testing.T) {
	tests := []struct {
		name    string
		wantErr bool
	}{
		{name: "qa"},
		{name: "qa.v2"},
		{name: "my dataset"},
		{name: "", wantErr: true},
		{name: ".", wantErr: true},
		{name: "..", wantErr: true},
		{name: "../secret", wantErr: true},
		{name: "a/b", wantErr: true},
		{name: `a\b`, wantErr: true},
		{name: "/abs", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateLocalName(tt.name)
			if tt.wantErr {
				assert.True(t, api.IsInvalidName(err), "got %v", err)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestValidate_LocalNameEscapingRoot(t *testing.T) {
	d := NewLocal("../qa", schema.MustModelOf[row](), "proj", "abc", "/tmp/proj")
	assert.True(t, api.IsInvalidName(d.Validate()))
}
