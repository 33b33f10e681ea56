package project

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/datar-psa/evalkit/api"
	"github.com/datar-psa/evalkit/schema"
)

type qaRecord struct {
	Question string  `json:"question"`
	Answer   string  `json:"answer"`
	Score    float64 `json:"score"`
}

type unmappable struct {
	Question string         `json:"question"`
	Extra    map[string]int `json:"extra"`
}

// fakeRemote is an in-memory remote dataset store.
type fakeRemote struct {
	mu       sync.Mutex
	datasets map[string]api.DatasetInfo
	columns  map[string][]api.ColumnDescriptor
	nextID   int

	createCalls atomic.Int32
	columnCalls atomic.Int32
	deleted     []string

	// failColumnCall makes the n-th column call (1-based) fail
	failColumnCall int32
	deleteErr      error
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{
		datasets: map[string]api.DatasetInfo{},
		columns:  map[string][]api.ColumnDescriptor{},
	}
}

func (f *fakeRemote) CreateDataset(ctx context.Context, projectID, name string) (*api.DatasetInfo, error) {
	f.createCalls.Add(1)
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	info := api.DatasetInfo{ID: fmt.Sprintf("ds-%d", f.nextID), Name: name, ProjectID: projectID}
	f.datasets[info.ID] = info
	return &info, nil
}

func (f *fakeRemote) GetDataset(ctx context.Context, projectID, datasetID string) (*api.DatasetInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	info, ok := f.datasets[datasetID]
	if !ok {
		return nil, &api.NotFoundError{Kind: "dataset", Key: datasetID}
	}
	return &info, nil
}

func (f *fakeRemote) GetDatasetByName(ctx context.Context, projectID, name string) (*api.DatasetInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, info := range f.datasets {
		if info.Name == name {
			return &info, nil
		}
	}
	return nil, &api.NotFoundError{Kind: "dataset", Key: name}
}

func (f *fakeRemote) ListDatasets(ctx context.Context, projectID string) ([]api.DatasetInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]api.DatasetInfo, 0, len(f.datasets))
	for i := 1; i <= f.nextID; i++ {
		if info, ok := f.datasets[fmt.Sprintf("ds-%d", i)]; ok {
			out = append(out, info)
		}
	}
	return out, nil
}

func (f *fakeRemote) CreateDatasetColumn(ctx context.Context, projectID, datasetID string, col api.ColumnDescriptor) (*api.ColumnDescriptor, error) {
	n := f.columnCalls.Add(1)
	if n == f.failColumnCall {
		return nil, errors.New("column rejected")
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.columns[datasetID] = append(f.columns[datasetID], col)
	return &col, nil
}

func (f *fakeRemote) DeleteDataset(ctx context.Context, projectID, datasetID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, datasetID)
	if f.deleteErr != nil {
		return f.deleteErr
	}
	delete(f.datasets, datasetID)
	delete(f.columns, datasetID)
	return nil
}

// noDelete hides DeleteDataset from the wrapped store.
type noDelete struct {
	api.RemoteDatasetStore
}

// barrierRemote blocks every column call until all of them have been issued.
type barrierRemote struct {
	*fakeRemote
	want    int32
	arrived atomic.Int32
	allIn   chan struct{}
}

func (b *barrierRemote) CreateDatasetColumn(ctx context.Context, projectID, datasetID string, col api.ColumnDescriptor) (*api.ColumnDescriptor, error) {
	if b.arrived.Add(1) == b.want {
		close(b.allIn)
	}
	select {
	case <-b.allIn:
	case <-time.After(2 * time.Second):
		return nil, errors.New("column requests were not issued concurrently")
	}
	return b.fakeRemote.CreateDatasetColumn(ctx, projectID, datasetID, col)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
}

func newLocalProject(t *testing.T) *Project {
	t.Helper()
	p, err := New("proj", WithRootDir(t.TempDir()), WithLogger(testLogger()))
	require.NoError(t, err)
	return p
}

func newRemoteProject(t *testing.T, store api.RemoteDatasetStore) *Project {
	t.Helper()
	p, err := New("proj",
		WithRootDir(t.TempDir()),
		WithBackend(api.BackendRemote),
		WithRemoteStore(store),
		WithLogger(testLogger()),
	)
	require.NoError(t, err)
	return p
}

func touch(t *testing.T, path string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte("question,answer,score\n"), 0o644))
}

func TestNew(t *testing.T) {
	p, err := New("proj")
	require.NoError(t, err)
	assert.Equal(t, "proj", p.ID())
	assert.Equal(t, "proj", p.RootDir())
	assert.Equal(t, api.BackendLocal, p.Backend())

	_, err = New("")
	assert.Error(t, err)

	_, err = New("proj", WithBackend("s3"))
	assert.True(t, api.IsUnsupportedBackend(err))

	_, err = New("proj", WithBackend(api.BackendRemote))
	assert.ErrorIs(t, err, ErrNoRemoteStore)
}

func TestDatasetPath(t *testing.T) {
	p, err := New("proj", WithRootDir("/data/proj"))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join("/data/proj", "datasets", "qa.csv"), p.DatasetPath("qa"))
}

func TestLocal_CreateAndGet(t *testing.T) {
	ctx := context.Background()
	p := newLocalProject(t)
	model := schema.MustModelOf[qaRecord]()

	created, err := p.CreateDataset(ctx, model, WithDatasetName("qa"))
	require.NoError(t, err)
	assert.Equal(t, "qa", created.Name)
	assert.Equal(t, api.BackendLocal, created.Backend)
	assert.NotEmpty(t, created.DatasetID)
	assert.Equal(t, p.DatasetPath("qa"), created.Path())
	require.NoError(t, created.Validate())

	// nothing is written until records are
	_, err = p.GetDataset(ctx, "qa", model)
	assert.True(t, api.IsNotFound(err))

	touch(t, p.DatasetPath("qa"))
	got, err := p.GetDataset(ctx, "qa", model)
	require.NoError(t, err)
	assert.Equal(t, "qa", got.Name)
	assert.Equal(t, created.Path(), got.Path())
	assert.NotEqual(t, created.DatasetID, got.DatasetID, "local ids are per handle")
}

func TestLocal_DefaultNameIsModelName(t *testing.T) {
	p := newLocalProject(t)
	ds, err := p.CreateDataset(context.Background(), schema.MustModelOf[qaRecord]())
	require.NoError(t, err)
	assert.Equal(t, "qaRecord", ds.Name)
}

func TestLocal_ListDatasetNames(t *testing.T) {
	ctx := context.Background()
	p := newLocalProject(t)

	names, err := p.ListDatasetNames(ctx)
	require.NoError(t, err)
	assert.Empty(t, names)

	touch(t, p.DatasetPath("beta"))
	touch(t, p.DatasetPath("alpha"))
	touch(t, filepath.Join(p.RootDir(), "datasets", "notes.txt"))
	require.NoError(t, os.MkdirAll(filepath.Join(p.RootDir(), "datasets", "nested.csv"), 0o755))

	names, err = p.ListDatasetNames(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"alpha", "beta"}, names)
}

func TestLocal_GetDatasetByIDUnsupported(t *testing.T) {
	p := newLocalProject(t)
	_, err := p.GetDatasetByID(context.Background(), "abc", schema.MustModelOf[qaRecord]())
	require.Error(t, err)
	assert.True(t, api.IsUnsupportedOperation(err))
}

func TestUnsupportedBackend(t *testing.T) {
	ctx := context.Background()
	store := newFakeRemote()
	p := newRemoteProject(t, store)
	model := schema.MustModelOf[qaRecord]()

	_, err := p.CreateDataset(ctx, model, OnBackend("s3"))
	assert.True(t, api.IsUnsupportedBackend(err))
	_, err = p.GetDataset(ctx, "qa", model, OnBackend("s3"))
	assert.True(t, api.IsUnsupportedBackend(err))
	_, err = p.GetDatasetByID(ctx, "ds-1", model, OnBackend("s3"))
	assert.True(t, api.IsUnsupportedBackend(err))
	_, err = p.ListDatasetNames(ctx, OnBackend("s3"))
	assert.True(t, api.IsUnsupportedBackend(err))

	assert.Zero(t, store.createCalls.Load())
}

func TestBackendOverride(t *testing.T) {
	ctx := context.Background()
	store := newFakeRemote()
	p := newRemoteProject(t, store)

	ds, err := p.CreateDataset(ctx, schema.MustModelOf[qaRecord](), OnBackend(api.BackendLocal))
	require.NoError(t, err)
	assert.Equal(t, api.BackendLocal, ds.Backend)
	assert.Zero(t, store.createCalls.Load())

	ds, err = p.CreateDataset(ctx, schema.MustModelOf[qaRecord]())
	require.NoError(t, err)
	assert.Equal(t, api.BackendRemote, ds.Backend)
	assert.EqualValues(t, 1, store.createCalls.Load())
}

func TestRemote_NoStore(t *testing.T) {
	p := newLocalProject(t)
	_, err := p.ListDatasetNames(context.Background(), OnBackend(api.BackendRemote))
	assert.ErrorIs(t, err, ErrNoRemoteStore)
}

func TestRemote_CreateDataset(t *testing.T) {
	ctx := context.Background()
	store := newFakeRemote()
	p := newRemoteProject(t, store)
	model := schema.MustModelOf[qaRecord]()

	ds, err := p.CreateDataset(ctx, model, WithDatasetName("qa"))
	require.NoError(t, err)
	require.NoError(t, ds.Validate())
	assert.Equal(t, "qa", ds.Name)
	assert.Equal(t, "ds-1", ds.DatasetID)
	assert.Equal(t, "proj", ds.ProjectID)
	assert.Empty(t, ds.Path())

	cols := store.columns["ds-1"]
	require.Len(t, cols, 3)
	names := map[string]bool{}
	ids := map[string]bool{}
	for _, c := range cols {
		names[c.Name] = true
		assert.NotEmpty(t, c.ID)
		ids[c.ID] = true
	}
	assert.Equal(t, map[string]bool{"question": true, "answer": true, "score": true}, names)
	assert.Len(t, ids, 3)
}

func TestRemote_ColumnIDsAreFreshPerCreate(t *testing.T) {
	ctx := context.Background()
	store := newFakeRemote()
	p := newRemoteProject(t, store)
	model := schema.MustModelOf[qaRecord]()

	_, err := p.CreateDataset(ctx, model, WithDatasetName("a"))
	require.NoError(t, err)
	_, err = p.CreateDataset(ctx, model, WithDatasetName("b"))
	require.NoError(t, err)

	seen := map[string]bool{}
	for _, ds := range []string{"ds-1", "ds-2"} {
		for _, c := range store.columns[ds] {
			assert.False(t, seen[c.ID], "column id %s reused", c.ID)
			seen[c.ID] = true
		}
	}
}

func TestRemote_ColumnsIssuedConcurrently(t *testing.T) {
	store := &barrierRemote{fakeRemote: newFakeRemote(), want: 3, allIn: make(chan struct{})}
	p := newRemoteProject(t, store)

	_, err := p.CreateDataset(context.Background(), schema.MustModelOf[qaRecord]())
	require.NoError(t, err)
	assert.EqualValues(t, 3, store.arrived.Load())
}

func TestRemote_ColumnFailureCleansUp(t *testing.T) {
	store := newFakeRemote()
	store.failColumnCall = 2
	p := newRemoteProject(t, store)

	ds, err := p.CreateDataset(context.Background(), schema.MustModelOf[qaRecord]())
	require.Error(t, err)
	assert.Nil(t, ds)

	var colErr *api.ColumnCreationError
	require.ErrorAs(t, err, &colErr)
	assert.Equal(t, "ds-1", colErr.DatasetID)
	assert.False(t, colErr.Orphaned)
	assert.Equal(t, []string{"ds-1"}, store.deleted)

	names, err := p.ListDatasetNames(context.Background())
	require.NoError(t, err)
	assert.Empty(t, names)
}

func TestRemote_ColumnFailureOrphans(t *testing.T) {
	t.Run("store cannot delete", func(t *testing.T) {
		inner := newFakeRemote()
		inner.failColumnCall = 2
		p := newRemoteProject(t, noDelete{inner})

		_, err := p.CreateDataset(context.Background(), schema.MustModelOf[qaRecord]())
		var colErr *api.ColumnCreationError
		require.ErrorAs(t, err, &colErr)
		assert.True(t, colErr.Orphaned)
		assert.Empty(t, inner.deleted)
	})

	t.Run("delete fails", func(t *testing.T) {
		store := newFakeRemote()
		store.failColumnCall = 1
		store.deleteErr = errors.New("boom")
		p := newRemoteProject(t, store)

		_, err := p.CreateDataset(context.Background(), schema.MustModelOf[qaRecord]())
		var colErr *api.ColumnCreationError
		require.ErrorAs(t, err, &colErr)
		assert.True(t, colErr.Orphaned)
		assert.Equal(t, []string{"ds-1"}, store.deleted)
	})
}

func TestRemote_UnmappableModelNeverReachesService(t *testing.T) {
	store := newFakeRemote()
	p := newRemoteProject(t, store)

	_, err := p.CreateDataset(context.Background(), schema.MustModelOf[unmappable]())
	require.Error(t, err)
	assert.True(t, api.IsSchemaMapping(err))
	assert.Zero(t, store.createCalls.Load())
	assert.Zero(t, store.columnCalls.Load())
}

func TestRemote_Lookups(t *testing.T) {
	ctx := context.Background()
	store := newFakeRemote()
	p := newRemoteProject(t, store)
	model := schema.MustModelOf[qaRecord]()

	_, err := p.CreateDataset(ctx, model, WithDatasetName("first"))
	require.NoError(t, err)
	_, err = p.CreateDataset(ctx, model, WithDatasetName("second"))
	require.NoError(t, err)

	byName, err := p.GetDataset(ctx, "second", model)
	require.NoError(t, err)
	assert.Equal(t, "ds-2", byName.DatasetID)

	byID, err := p.GetDatasetByID(ctx, "ds-1", model)
	require.NoError(t, err)
	assert.Equal(t, "first", byID.Name)

	_, err = p.GetDataset(ctx, "missing", model)
	assert.True(t, api.IsNotFound(err))
	_, err = p.GetDatasetByID(ctx, "ds-9", model)
	assert.True(t, api.IsNotFound(err))

	names, err := p.ListDatasetNames(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"first", "second"}, names)
}

// nilInfoRemote reports success from CreateDataset without describing the dataset.
type nilInfoRemote struct {
	*fakeRemote
}

func (nilInfoRemote) CreateDataset(context.Context, string, string) (*api.DatasetInfo, error) {
	return nil, nil
}

func TestRemote_CreateDatasetWithoutID(t *testing.T) {
	store := nilInfoRemote{fakeRemote: newFakeRemote()}
	p := newRemoteProject(t, store)

	ds, err := p.CreateDataset(context.Background(), schema.MustModelOf[qaRecord](), WithDatasetName("qa"))
	require.Error(t, err)
	assert.Nil(t, ds)
	assert.Contains(t, err.Error(), "returned no id")
	assert.Zero(t, store.columnCalls.Load())
}

func TestLocal_RejectsNamesOutsideDatasetsDir(t *testing.T) {
	ctx := context.Background()
	parent := t.TempDir()
	p, err := New("proj", WithRootDir(filepath.Join(parent, "proj")), WithLogger(testLogger()))
	require.NoError(t, err)
	model := schema.MustModelOf[qaRecord]()

	touch(t, filepath.Join(parent, "secret.csv"))

	for _, name := range []string{"../../secret", "nested/qa", `nested\qa`, "..", ".", "/etc/passwd"} {
		t.Run(name, func(t *testing.T) {
			ds, err := p.GetDataset(ctx, name, model)
			assert.Nil(t, ds)
			assert.True(t, api.IsInvalidName(err), "get: %v", err)

			ds, err = p.CreateDataset(ctx, model, WithDatasetName(name))
			assert.Nil(t, ds)
			assert.True(t, api.IsInvalidName(err), "create: %v", err)
		})
	}
}
