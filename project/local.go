package project

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/datar-psa/evalkit/api"
	"github.com/datar-psa/evalkit/dataset"
	"github.com/datar-psa/evalkit/idgen"
	"github.com/datar-psa/evalkit/schema"
)

// localStore keys datasets by name: <root>/datasets/<name>.csv.
type localStore struct {
	p *Project
}

// create does no I/O; the file is written by the first record write.
func (s localStore) create(_ context.Context, name string, model *schema.Model) (*dataset.Dataset, error) {
	if err := dataset.ValidateLocalName(name); err != nil {
		return nil, err
	}
	return dataset.NewLocal(name, model, s.p.id, idgen.New(), s.p.rootDir), nil
}

func (s localStore) get(_ context.Context, name string, model *schema.Model) (*dataset.Dataset, error) {
	if err := dataset.ValidateLocalName(name); err != nil {
		return nil, err
	}
	path := dataset.Path(s.p.rootDir, name)
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, &api.NotFoundError{Kind: "dataset", Key: name}
		}
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}
	// The id is a handle for this session only; local identity is the name.
	return dataset.NewLocal(name, model, s.p.id, idgen.New(), s.p.rootDir), nil
}

func (s localStore) getByID(context.Context, string, *schema.Model) (*dataset.Dataset, error) {
	return nil, &api.UnsupportedOperationError{
		Op:      "GetDatasetByID",
		Backend: api.BackendLocal,
		Hint:    "local datasets are identified by name, use GetDataset",
	}
}

func (s localStore) listNames(context.Context) ([]string, error) {
	dir := filepath.Join(s.p.rootDir, dataset.Dir)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return []string{}, nil
		}
		return nil, fmt.Errorf("read %s: %w", dir, err)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), dataset.FileExt) {
			continue
		}
		names = append(names, strings.TrimSuffix(e.Name(), dataset.FileExt))
	}
	return names, nil
}
