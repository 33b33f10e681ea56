// Package remote is an HTTP client for the remote project service's dataset API.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/oauth2"

	"github.com/datar-psa/evalkit/api"
)

const (
	// DefaultTimeout applies to individual requests when Config.Timeout is zero.
	DefaultTimeout = 30 * time.Second
	// DefaultPageSize is the number of datasets fetched per list request.
	DefaultPageSize = 100
)

// Config holds the settings needed to construct a Client.
type Config struct {
	// BaseURL is the root URL of the project service (e.g. "http://localhost:8080").
	BaseURL string

	// APIKey is sent as a bearer token. Requests are unauthenticated when empty.
	APIKey string

	// HTTPClient is an optional custom HTTP client. If nil, a default client
	// with Timeout is used.
	HTTPClient *http.Client

	// Timeout applies to individual API requests. Defaults to 30 seconds.
	Timeout time.Duration

	// PageSize is the list page size. Defaults to DefaultPageSize.
	PageSize int
}

// Client is an HTTP client for the project service. All methods are safe for concurrent use.
type Client struct {
	baseURL  string
	client   *http.Client
	pageSize int
	tracer   trace.Tracer
}

var (
	_ api.RemoteDatasetStore = (*Client)(nil)
	_ api.DatasetDeleter     = (*Client)(nil)
)

// NewClient creates a Client from the given configuration.
// Returns an error if BaseURL is empty or not an absolute URL.
func NewClient(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("remote: BaseURL is required")
	}
	u, err := url.Parse(cfg.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("remote: invalid BaseURL %q", cfg.BaseURL)
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout == 0 {
			timeout = DefaultTimeout
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	if cfg.APIKey != "" {
		base := httpClient
		ctx := context.WithValue(context.Background(), oauth2.HTTPClient, base)
		httpClient = oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{
			AccessToken: cfg.APIKey,
			TokenType:   "Bearer",
		}))
		httpClient.Timeout = base.Timeout
	}

	pageSize := cfg.PageSize
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}

	return &Client{
		baseURL:  strings.TrimRight(cfg.BaseURL, "/"),
		client:   httpClient,
		pageSize: pageSize,
		tracer:   otel.Tracer("github.com/datar-psa/evalkit/remote"),
	}, nil
}

func datasetsPath(projectID string) string {
	return "/api/v1/projects/" + url.PathEscape(projectID) + "/datasets"
}

func datasetPath(projectID, datasetID string) string {
	return datasetsPath(projectID) + "/" + url.PathEscape(datasetID)
}

type createDatasetRequest struct {
	Name string `json:"name"`
}

// call describes one request to the service.
type call struct {
	op     string
	method string
	path   string
	body   any
	// missing is returned, wrapping the service error, when the service answers 404
	missing *api.NotFoundError
}

func missingDataset(datasetID string) *api.NotFoundError {
	return &api.NotFoundError{Kind: "dataset", Key: datasetID}
}

// CreateDataset creates an empty dataset called name.
func (c *Client) CreateDataset(ctx context.Context, projectID, name string) (*api.DatasetInfo, error) {
	var resp api.DatasetInfo
	err := c.do(ctx, call{
		op:     "CreateDataset",
		method: http.MethodPost,
		path:   datasetsPath(projectID),
		body:   createDatasetRequest{Name: name},
	}, &resp)
	if err != nil {
		return nil, err
	}
	return &resp, nil
}

// GetDataset fetches a dataset by id. A 404 is returned as an *api.NotFoundError.
func (c *Client) GetDataset(ctx context.Context, projectID, datasetID string) (*api.DatasetInfo, error) {
	var resp api.DatasetInfo
	err := c.do(ctx, call{
		op:      "GetDataset",
		method:  http.MethodGet,
		path:    datasetPath(projectID, datasetID),
		missing: missingDataset(datasetID),
	}, &resp)
	if err != nil {
		return nil, err
	}
	return &resp, nil
}

// DeleteDataset removes a dataset and its columns.
func (c *Client) DeleteDataset(ctx context.Context, projectID, datasetID string) error {
	return c.do(ctx, call{
		op:      "DeleteDataset",
		method:  http.MethodDelete,
		path:    datasetPath(projectID, datasetID),
		missing: missingDataset(datasetID),
	}, nil)
}

type listDatasetsResponse struct {
	Items  []api.DatasetInfo `json:"items"`
	Total  int               `json:"total"`
	Limit  int               `json:"limit"`
	Offset int               `json:"offset"`
}

// ListDatasets returns every dataset of the project, following all pages.
func (c *Client) ListDatasets(ctx context.Context, projectID string) ([]api.DatasetInfo, error) {
	out := []api.DatasetInfo{}
	for offset := 0; ; {
		params := url.Values{}
		params.Set("limit", strconv.Itoa(c.pageSize))
		params.Set("offset", strconv.Itoa(offset))

		var page listDatasetsResponse
		err := c.do(ctx, call{
			op:     "ListDatasets",
			method: http.MethodGet,
			path:   datasetsPath(projectID) + "?" + params.Encode(),
		}, &page)
		if err != nil {
			return nil, err
		}
		out = append(out, page.Items...)
		offset += len(page.Items)
		if len(page.Items) == 0 || offset >= page.Total {
			return out, nil
		}
	}
}

// GetDatasetByName finds the dataset called name. The service has no name index,
// so this lists the project and filters.
func (c *Client) GetDatasetByName(ctx context.Context, projectID, name string) (*api.DatasetInfo, error) {
	infos, err := c.ListDatasets(ctx, projectID)
	if err != nil {
		return nil, err
	}

	var found *api.DatasetInfo
	for i := range infos {
		if infos[i].Name != name {
			continue
		}
		if found != nil {
			return nil, &api.DuplicateNameError{Kind: "dataset", Name: name}
		}
		found = &infos[i]
	}
	if found == nil {
		return nil, &api.NotFoundError{Kind: "dataset", Key: name}
	}
	return found, nil
}

// CreateDatasetColumn adds one column to a dataset.
func (c *Client) CreateDatasetColumn(ctx context.Context, projectID, datasetID string, col api.ColumnDescriptor) (*api.ColumnDescriptor, error) {
	var resp api.ColumnDescriptor
	err := c.do(ctx, call{
		op:      "CreateDatasetColumn",
		method:  http.MethodPost,
		path:    datasetPath(projectID, datasetID) + "/columns",
		body:    col,
		missing: missingDataset(datasetID),
	}, &resp)
	if err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) do(ctx context.Context, r call, dest any) (err error) {
	ctx, span := c.tracer.Start(ctx, "remote."+r.op, trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("http.request.method", r.method),
			attribute.String("url.path", r.path),
		))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	var reader io.Reader
	if r.body != nil {
		encoded, err := json.Marshal(r.body)
		if err != nil {
			return fmt.Errorf("remote: marshal %s request: %w", r.op, err)
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, r.method, c.baseURL+r.path, reader)
	if err != nil {
		return fmt.Errorf("remote: create %s request: %w", r.op, err)
	}
	if r.body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("remote: %s %s: %w", req.Method, req.URL.Path, err)
	}
	defer func() { _ = resp.Body.Close() }()
	span.SetAttributes(attribute.Int("http.response.status_code", resp.StatusCode))

	return r.decode(resp, dest)
}

// envelope is the service's wire format: {"data": ...} on success,
// {"error": {"code": ..., "message": ...}} on failure.
type envelope struct {
	Data  json.RawMessage `json:"data"`
	Error *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// decode unwraps the envelope into dest, or turns a failure status into an *Error.
// A 404 on a call that names a resource is reported as that resource's *api.NotFoundError.
func (r call) decode(resp *http.Response, dest any) error {
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("remote: read %s response: %w", r.op, err)
	}

	var env envelope
	envErr := json.Unmarshal(body, &env)

	if resp.StatusCode >= 400 {
		svcErr := &Error{
			StatusCode: resp.StatusCode,
			Code:       http.StatusText(resp.StatusCode),
			Message:    strings.TrimSpace(string(body)),
		}
		if envErr == nil && env.Error != nil && env.Error.Message != "" {
			svcErr.Code, svcErr.Message = env.Error.Code, env.Error.Message
		}
		if resp.StatusCode == http.StatusNotFound && r.missing != nil {
			return fmt.Errorf("%w: %w", r.missing, svcErr)
		}
		return svcErr
	}

	if dest == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if envErr != nil {
		return fmt.Errorf("remote: decode %s response: %w", r.op, envErr)
	}
	if env.Data == nil {
		return fmt.Errorf("remote: %s response has no data", r.op)
	}
	return json.Unmarshal(env.Data, dest)
}
