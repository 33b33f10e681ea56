// Package evalkit turns plain functions into evaluation metrics and manages the datasets
// they are run against, on local files or a remote project service.
package evalkit

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"google.golang.org/genai"

	"github.com/datar-psa/evalkit/api"
	"github.com/datar-psa/evalkit/gemini"
	"github.com/datar-psa/evalkit/internal/config"
	"github.com/datar-psa/evalkit/metric"
	"github.com/datar-psa/evalkit/project"
	"github.com/datar-psa/evalkit/remote"
)

type Metric = metric.Metric
type MetricRequest = metric.Request
type MetricFunc = metric.Func
type AsyncMetricFunc = metric.AsyncFunc
type Project = project.Project

// NewMetric wraps fn, a MetricFunc or an AsyncMetricFunc, into a Metric.
// It is metric.Wrap.
func NewMetric(fn any, llm api.LLMGenerator, prompt string, opts ...func(*metric.Options)) (*Metric, error) {
	return metric.Wrap(fn, llm, prompt, opts...)
}

// NewProject creates a project with the given id. It is project.New.
func NewProject(id string, opts ...func(*project.Options)) (*Project, error) {
	return project.New(id, opts...)
}

// GeminiOptions configures Gemini LLM creation
type GeminiOptions struct {
	genaiClient *genai.Client
	modelName   string
}

// WithGenaiClient sets the Gemini client
func WithGenaiClient(client *genai.Client) func(*GeminiOptions) {
	return func(opts *GeminiOptions) {
		opts.genaiClient = client
	}
}

// WithModelName sets the model name
func WithModelName(modelName string) func(*GeminiOptions) {
	return func(opts *GeminiOptions) {
		opts.modelName = modelName
	}
}

// NewGeminiLLM returns a Gemini-backed LLMGenerator, or nil if no client is provided.
// Example model: "publishers/google/models/gemini-2.5-flash".
func NewGeminiLLM(opts ...func(*GeminiOptions)) api.LLMGenerator {
	options := &GeminiOptions{}
	for _, opt := range opts {
		opt(options)
	}
	if options.genaiClient == nil {
		return nil
	}
	return gemini.NewGenerator(options.genaiClient, options.modelName)
}

// Env is what NewProjectFromEnv builds from the environment.
type Env struct {
	Project *Project
	// LLM is nil unless GOOGLE_PROJECT_ID is set
	LLM    api.LLMGenerator
	Logger *slog.Logger
}

// NewProjectFromEnv loads a .env file if present, reads configuration from EVALKIT_CONFIG
// and the environment, and builds the project, its remote client and the Gemini LLM.
func NewProjectFromEnv(ctx context.Context) (*Env, error) {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	level, err := cfg.SlogLevel()
	if err != nil {
		return nil, err
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	opts := []func(*project.Options){
		project.WithRootDir(cfg.RootDir),
		project.WithBackend(cfg.BackendTag()),
		project.WithLogger(logger),
	}
	if cfg.RemoteURL != "" {
		client, err := remote.NewClient(remote.Config{
			BaseURL: cfg.RemoteURL,
			APIKey:  cfg.APIKey,
			Timeout: cfg.RemoteTimeout,
		})
		if err != nil {
			return nil, err
		}
		opts = append(opts, project.WithRemoteStore(client))
	}

	p, err := project.New(cfg.ProjectID, opts...)
	if err != nil {
		return nil, err
	}

	env := &Env{Project: p, Logger: logger}
	if cfg.GoogleProjectID != "" {
		client, err := genai.NewClient(ctx, &genai.ClientConfig{
			Backend:  genai.BackendVertexAI,
			Project:  cfg.GoogleProjectID,
			Location: cfg.GoogleRegion,
		})
		if err != nil {
			return nil, fmt.Errorf("gemini client: %w", err)
		}
		env.LLM = NewGeminiLLM(WithGenaiClient(client), WithModelName(cfg.GeminiModel))
	}

	logger.Debug("evalkit configured",
		"project", p.ID(),
		"backend", p.Backend(),
		"root_dir", p.RootDir(),
		"llm", env.LLM != nil,
	)
	return env, nil
}
