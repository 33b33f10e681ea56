package evalkit

import (
	"github.com/datar-psa/evalkit/api"
)

type LLMGenerator = api.LLMGenerator
type Inputs = api.Inputs
type MetricResult = api.MetricResult

type Backend = api.Backend

const (
	BackendLocal  = api.BackendLocal
	BackendRemote = api.BackendRemote
)

type ColumnType = api.ColumnType
type ColumnDescriptor = api.ColumnDescriptor
type DatasetInfo = api.DatasetInfo
type RemoteDatasetStore = api.RemoteDatasetStore
type DatasetDeleter = api.DatasetDeleter
