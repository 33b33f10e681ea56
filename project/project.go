// Package project creates, looks up and lists the datasets of an evaluation project,
// on the local file backend or on the remote project service.
package project

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/datar-psa/evalkit/api"
	"github.com/datar-psa/evalkit/dataset"
	"github.com/datar-psa/evalkit/schema"
)

// ErrNoRemoteStore is returned when the remote backend is selected but the project
// has no remote dataset store.
var ErrNoRemoteStore = errors.New("project: remote backend requires a remote dataset store")

// Project owns the coordinates of an evaluation project. It is safe for concurrent use.
type Project struct {
	id      string
	rootDir string
	backend api.Backend
	remote  api.RemoteDatasetStore
	logger  *slog.Logger
	tracer  trace.Tracer
}

// Options configures New
type Options struct {
	rootDir string
	backend api.Backend
	remote  api.RemoteDatasetStore
	logger  *slog.Logger
	tracer  trace.Tracer
}

// WithRootDir sets the directory holding the project's local files. Defaults to the project id.
func WithRootDir(dir string) func(*Options) {
	return func(opts *Options) {
		opts.rootDir = dir
	}
}

// WithBackend sets the project's default backend. Defaults to api.BackendLocal.
func WithBackend(backend api.Backend) func(*Options) {
	return func(opts *Options) {
		opts.backend = backend
	}
}

// WithRemoteStore sets the remote dataset store used by the remote backend
func WithRemoteStore(store api.RemoteDatasetStore) func(*Options) {
	return func(opts *Options) {
		opts.remote = store
	}
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) func(*Options) {
	return func(opts *Options) {
		opts.logger = logger
	}
}

// WithTracer sets the tracer. Defaults to the global OpenTelemetry tracer provider.
func WithTracer(tracer trace.Tracer) func(*Options) {
	return func(opts *Options) {
		opts.tracer = tracer
	}
}

// New creates a Project with the given id.
func New(id string, opts ...func(*Options)) (*Project, error) {
	if id == "" {
		return nil, fmt.Errorf("project: id is required")
	}
	options := &Options{backend: api.BackendLocal}
	for _, opt := range opts {
		opt(options)
	}

	backend, err := api.ParseBackend(string(options.backend))
	if err != nil {
		return nil, fmt.Errorf("project %s: %w", id, err)
	}
	if backend == api.BackendRemote && options.remote == nil {
		return nil, fmt.Errorf("project %s: %w", id, ErrNoRemoteStore)
	}

	p := &Project{
		id:      id,
		rootDir: options.rootDir,
		backend: backend,
		remote:  options.remote,
		logger:  options.logger,
		tracer:  options.tracer,
	}
	if p.rootDir == "" {
		p.rootDir = id
	}
	if p.logger == nil {
		p.logger = slog.Default()
	}
	if p.tracer == nil {
		p.tracer = otel.Tracer("github.com/datar-psa/evalkit/project")
	}
	return p, nil
}

func (p *Project) ID() string { return p.id }

func (p *Project) RootDir() string { return p.rootDir }

// Backend returns the project's default backend.
func (p *Project) Backend() api.Backend { return p.backend }

// DatasetPath returns the local file of the dataset called name.
func (p *Project) DatasetPath(name string) string {
	return dataset.Path(p.rootDir, name)
}

// DatasetOptions configures a single dataset operation
type DatasetOptions struct {
	// Name of the dataset to create; defaults to the model name
	Name string
	// Backend overrides the project's default backend
	Backend api.Backend
}

// WithDatasetName sets the name of the dataset to create
func WithDatasetName(name string) func(*DatasetOptions) {
	return func(opts *DatasetOptions) {
		opts.Name = name
	}
}

// OnBackend runs the operation on backend instead of the project default
func OnBackend(backend api.Backend) func(*DatasetOptions) {
	return func(opts *DatasetOptions) {
		opts.Backend = backend
	}
}

// datasetStore is implemented once per backend. Every backend must implement every
// operation, so adding an operation here fails to compile until all backends have it.
type datasetStore interface {
	create(ctx context.Context, name string, model *schema.Model) (*dataset.Dataset, error)
	get(ctx context.Context, name string, model *schema.Model) (*dataset.Dataset, error)
	getByID(ctx context.Context, id string, model *schema.Model) (*dataset.Dataset, error)
	listNames(ctx context.Context) ([]string, error)
}

var (
	_ datasetStore = localStore{}
	_ datasetStore = remoteStore{}
)

func (p *Project) storeFor(backend api.Backend) (datasetStore, error) {
	switch backend {
	case api.BackendLocal:
		return localStore{p: p}, nil
	case api.BackendRemote:
		if p.remote == nil {
			return nil, ErrNoRemoteStore
		}
		return remoteStore{p: p}, nil
	default:
		return nil, &api.UnsupportedBackendError{Backend: backend}
	}
}

func (p *Project) datasetOptions(opts []func(*DatasetOptions)) DatasetOptions {
	options := DatasetOptions{}
	for _, opt := range opts {
		opt(&options)
	}
	if options.Backend == "" {
		options.Backend = p.backend
	}
	return options
}

func (p *Project) startSpan(ctx context.Context, op string, backend api.Backend, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	attrs = append(attrs,
		attribute.String("evalkit.project", p.id),
		attribute.String("evalkit.backend", string(backend)),
	)
	return p.tracer.Start(ctx, "project."+op, trace.WithAttributes(attrs...))
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// CreateDataset creates a dataset shaped by model.
//
// On the remote backend one column is created per model field, concurrently. If any
// column fails the call fails with an *api.ColumnCreationError and no handle is returned;
// the half-created dataset is deleted when the store supports it.
func (p *Project) CreateDataset(ctx context.Context, model *schema.Model, opts ...func(*DatasetOptions)) (ds *dataset.Dataset, err error) {
	options := p.datasetOptions(opts)
	name := options.Name
	if name == "" && model != nil {
		name = model.Name
	}

	ctx, span := p.startSpan(ctx, "CreateDataset", options.Backend, attribute.String("evalkit.dataset", name))
	defer func() { endSpan(span, err) }()

	if model == nil {
		return nil, fmt.Errorf("create dataset %s: model is required", name)
	}
	store, err := p.storeFor(options.Backend)
	if err != nil {
		return nil, fmt.Errorf("create dataset %s: %w", name, err)
	}
	ds, err = store.create(ctx, name, model)
	if err != nil {
		return nil, fmt.Errorf("create dataset %s: %w", name, err)
	}

	p.logger.Info("dataset created",
		"project", p.id,
		"dataset", ds.Name,
		"dataset_id", ds.DatasetID,
		"backend", ds.Backend,
	)
	return ds, nil
}

// GetDataset returns the dataset called name, or an *api.NotFoundError.
// Local handles get a new session-local DatasetID on every call.
func (p *Project) GetDataset(ctx context.Context, name string, model *schema.Model, opts ...func(*DatasetOptions)) (ds *dataset.Dataset, err error) {
	options := p.datasetOptions(opts)
	ctx, span := p.startSpan(ctx, "GetDataset", options.Backend, attribute.String("evalkit.dataset", name))
	defer func() { endSpan(span, err) }()

	store, err := p.storeFor(options.Backend)
	if err != nil {
		return nil, fmt.Errorf("get dataset %s: %w", name, err)
	}
	ds, err = store.get(ctx, name, model)
	if err != nil {
		return nil, fmt.Errorf("get dataset %s: %w", name, err)
	}
	return ds, nil
}

// GetDatasetByID returns the remote dataset with the given service id. Local datasets
// are identified by name, so the local backend returns an *api.UnsupportedOperationError.
func (p *Project) GetDatasetByID(ctx context.Context, id string, model *schema.Model, opts ...func(*DatasetOptions)) (ds *dataset.Dataset, err error) {
	options := p.datasetOptions(opts)
	ctx, span := p.startSpan(ctx, "GetDatasetByID", options.Backend, attribute.String("evalkit.dataset_id", id))
	defer func() { endSpan(span, err) }()

	store, err := p.storeFor(options.Backend)
	if err != nil {
		return nil, fmt.Errorf("get dataset %s: %w", id, err)
	}
	ds, err = store.getByID(ctx, id, model)
	if err != nil {
		return nil, fmt.Errorf("get dataset %s: %w", id, err)
	}
	return ds, nil
}

// ListDatasetNames lists the names of the project's datasets.
func (p *Project) ListDatasetNames(ctx context.Context, opts ...func(*DatasetOptions)) (names []string, err error) {
	options := p.datasetOptions(opts)
	ctx, span := p.startSpan(ctx, "ListDatasetNames", options.Backend)
	defer func() { endSpan(span, err) }()

	store, err := p.storeFor(options.Backend)
	if err != nil {
		return nil, fmt.Errorf("list datasets: %w", err)
	}
	names, err = store.listNames(ctx)
	if err != nil {
		return nil, fmt.Errorf("list datasets: %w", err)
	}
	span.SetAttributes(attribute.Int("evalkit.dataset_count", len(names)))
	return names, nil
}
