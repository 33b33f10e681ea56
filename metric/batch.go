package metric

import (
	"context"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/datar-psa/evalkit/api"
)

// BatchOptions configures ScoreBatch
type BatchOptions struct {
	// Concurrency bounds the number of rows scored at once; 0 means unbounded
	Concurrency int
	// Score options applied to every row
	Score []func(*ScoreOptions)
	// Logger receives a debug record per failed row; defaults to slog.Default()
	Logger *slog.Logger
}

// WithConcurrency bounds the number of rows scored at once
func WithConcurrency(n int) func(*BatchOptions) {
	return func(opts *BatchOptions) {
		opts.Concurrency = n
	}
}

// WithScoreOptions applies score options to every row of the batch
func WithScoreOptions(opts ...func(*ScoreOptions)) func(*BatchOptions) {
	return func(o *BatchOptions) {
		o.Score = append(o.Score, opts...)
	}
}

// WithBatchLogger sets the logger used by ScoreBatch
func WithBatchLogger(logger *slog.Logger) func(*BatchOptions) {
	return func(opts *BatchOptions) {
		opts.Logger = logger
	}
}

// ScoreBatch scores m against every row concurrently and returns the results in row
// order. A failing row does not stop the others; its failure is in its MetricResult.
func ScoreBatch(ctx context.Context, m *Metric, rows []api.Inputs, opts ...func(*BatchOptions)) []api.MetricResult {
	options := &BatchOptions{}
	for _, opt := range opts {
		opt(options)
	}
	logger := options.Logger
	if logger == nil {
		logger = slog.Default()
	}

	results := make([]api.MetricResult, len(rows))

	g := new(errgroup.Group)
	if options.Concurrency > 0 {
		g.SetLimit(options.Concurrency)
	}
	for i, row := range rows {
		g.Go(func() error {
			res, err := m.AScore(ctx, row, options.Score...).Await(ctx)
			if err != nil {
				res = m.failure(err)
			}
			if res.Failed() {
				logger.Debug("metric row failed", "metric", m.Name(), "row", i, "reason", res.Reason)
			}
			results[i] = res
			return nil
		})
	}
	_ = g.Wait() // failures are carried in the results

	return results
}
