package project

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/datar-psa/evalkit/api"
	"github.com/datar-psa/evalkit/dataset"
	"github.com/datar-psa/evalkit/idgen"
	"github.com/datar-psa/evalkit/schema"
)

// remoteStore keys datasets by the id the remote service assigns.
type remoteStore struct {
	p *Project
}

func (s remoteStore) create(ctx context.Context, name string, model *schema.Model) (*dataset.Dataset, error) {
	// Columns are derived first so an unmappable model never reaches the service.
	columns, err := schema.ToColumns(model)
	if err != nil {
		return nil, err
	}

	info, err := s.p.remote.CreateDataset(ctx, s.p.id, name)
	if err != nil {
		return nil, err
	}
	if info == nil || info.ID == "" {
		return nil, fmt.Errorf("remote: create dataset %s returned no id", name)
	}

	if err := s.createColumns(ctx, info.ID, columns); err != nil {
		return nil, s.abandon(ctx, info.ID, err)
	}

	if info.Name != "" {
		name = info.Name
	}
	return dataset.NewRemote(name, model, s.p.id, info.ID, s.p.remote), nil
}

// createColumns issues every column request before waiting on any of them.
func (s remoteStore) createColumns(ctx context.Context, datasetID string, columns []api.ColumnDescriptor) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, col := range columns {
		col.ID = idgen.New()
		g.Go(func() error {
			if _, err := s.p.remote.CreateDatasetColumn(gctx, s.p.id, datasetID, col); err != nil {
				return &api.ColumnCreationError{DatasetID: datasetID, Column: col.Name, Err: err}
			}
			return nil
		})
	}
	return g.Wait()
}

// abandon removes a dataset whose columns failed, if the store can delete.
func (s remoteStore) abandon(ctx context.Context, datasetID string, cause error) error {
	var colErr *api.ColumnCreationError
	if !errors.As(cause, &colErr) {
		colErr = &api.ColumnCreationError{DatasetID: datasetID, Err: cause}
	}

	deleter, ok := s.p.remote.(api.DatasetDeleter)
	if !ok {
		colErr.Orphaned = true
		s.p.logger.Warn("remote store cannot delete datasets, leaving incomplete dataset",
			"project", s.p.id,
			"dataset_id", datasetID,
		)
		return colErr
	}

	if err := deleter.DeleteDataset(context.WithoutCancel(ctx), s.p.id, datasetID); err != nil {
		colErr.Orphaned = true
		s.p.logger.Warn("failed to delete incomplete dataset",
			"project", s.p.id,
			"dataset_id", datasetID,
			"error", err,
		)
	}
	return colErr
}

func (s remoteStore) get(ctx context.Context, name string, model *schema.Model) (*dataset.Dataset, error) {
	info, err := s.p.remote.GetDatasetByName(ctx, s.p.id, name)
	if err != nil {
		return nil, err
	}
	if info == nil {
		return nil, &api.NotFoundError{Kind: "dataset", Key: name}
	}
	return dataset.NewRemote(info.Name, model, s.p.id, info.ID, s.p.remote), nil
}

func (s remoteStore) getByID(ctx context.Context, id string, model *schema.Model) (*dataset.Dataset, error) {
	info, err := s.p.remote.GetDataset(ctx, s.p.id, id)
	if err != nil {
		return nil, err
	}
	if info == nil {
		return nil, &api.NotFoundError{Kind: "dataset", Key: id}
	}
	return dataset.NewRemote(info.Name, model, s.p.id, info.ID, s.p.remote), nil
}

func (s remoteStore) listNames(ctx context.Context) ([]string, error) {
	infos, err := s.p.remote.ListDatasets(ctx, s.p.id)
	if err != nil {
		return nil, fmt.Errorf("remote: %w", err)
	}
	names := make([]string, 0, len(infos))
	for _, info := range infos {
		names = append(names, info.Name)
	}
	return names, nil
}
