// Package metric turns plain user functions into metrics that can be scored from
// blocking call sites (Score) and from concurrent batch call sites (AScore, ScoreBatch),
// whichever way the function was written.
package metric

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"reflect"
	"runtime"
	"strings"

	"github.com/datar-psa/evalkit/api"
	"github.com/datar-psa/evalkit/loop"
)

// Request carries everything a metric function is invoked with.
type Request struct {
	LLM    api.LLMGenerator
	Prompt string
	Inputs api.Inputs
	// N is the number of samples requested by the caller, at least 1
	N int
	// Params are the extra parameters given at wrap time
	Params map[string]any
}

// Func is a metric function that blocks until its result is ready.
type Func func(ctx context.Context, req Request) (any, error)

// AsyncFunc is a metric function that returns immediately with a future result.
// Work done before the future is returned runs on the scoring loop and must honor ctx.
type AsyncFunc func(ctx context.Context, req Request) *loop.Future[any]

// Kind tells how a wrapped function produces its result.
type Kind int

const (
	Sync Kind = iota
	Suspending
)

func (k Kind) String() string {
	switch k {
	case Sync:
		return "sync"
	case Suspending:
		return "suspending"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// ErrUnsupportedFunc is returned by Wrap for values that are not metric functions.
var ErrUnsupportedFunc = errors.New("metric: function must be a metric.Func or metric.AsyncFunc")

// Metric is a named evaluation unit wrapping a user function, an LLM and a prompt.
// Only SetName and SetDescription mutate a Metric; they are not safe to call
// concurrently with scoring.
type Metric struct {
	name        string
	description string
	llm         api.LLMGenerator
	prompt      string
	params      map[string]any

	kind Kind
	fn   Func
	afn  AsyncFunc
}

// Options configures Wrap
type Options struct {
	name        string
	description string
	params      map[string]any
}

// WithName overrides the metric name, which otherwise defaults to the function's name
func WithName(name string) func(*Options) {
	return func(opts *Options) {
		opts.name = name
	}
}

// WithDescription sets the metric description
func WithDescription(description string) func(*Options) {
	return func(opts *Options) {
		opts.description = description
	}
}

// WithParam adds an extra parameter passed to the function in Request.Params
func WithParam(key string, value any) func(*Options) {
	return func(opts *Options) {
		if opts.params == nil {
			opts.params = make(map[string]any)
		}
		opts.params[key] = value
	}
}

// Wrap builds a Metric around fn. fn must be a Func, an AsyncFunc, or a function
// literal with one of their signatures; its kind is fixed here.
func Wrap(fn any, llm api.LLMGenerator, prompt string, opts ...func(*Options)) (*Metric, error) {
	options := &Options{}
	for _, opt := range opts {
		opt(options)
	}

	m := &Metric{
		description: options.description,
		llm:         llm,
		prompt:      prompt,
		params:      options.params,
	}

	switch f := fn.(type) {
	case Func:
		m.kind, m.fn = Sync, f
	case func(context.Context, Request) (any, error):
		m.kind, m.fn = Sync, f
	case AsyncFunc:
		m.kind, m.afn = Suspending, f
	case func(context.Context, Request) *loop.Future[any]:
		m.kind, m.afn = Suspending, f
	default:
		return nil, fmt.Errorf("%w, got %T", ErrUnsupportedFunc, fn)
	}
	if m.fn == nil && m.afn == nil {
		return nil, fmt.Errorf("%w, got nil", ErrUnsupportedFunc)
	}

	m.name = options.name
	if m.name == "" {
		m.name = funcName(fn)
	}
	return m, nil
}

// MustWrap is like Wrap but panics on error.
func MustWrap(fn any, llm api.LLMGenerator, prompt string, opts ...func(*Options)) *Metric {
	m, err := Wrap(fn, llm, prompt, opts...)
	if err != nil {
		panic(err)
	}
	return m
}

// funcName returns the declared name of fn without its package path,
// e.g. "Faithfulness" for mypkg.Faithfulness.
func funcName(fn any) string {
	rf := runtime.FuncForPC(reflect.ValueOf(fn).Pointer())
	if rf == nil {
		return "metric"
	}
	name := rf.Name()
	if i := strings.LastIndex(name, "/"); i >= 0 {
		name = name[i+1:]
	}
	if i := strings.LastIndex(name, "."); i >= 0 {
		name = name[i+1:]
	}
	if name == "" {
		return "metric"
	}
	return name
}

func (m *Metric) Name() string { return m.name }

func (m *Metric) SetName(name string) { m.name = name }

func (m *Metric) Description() string { return m.description }

func (m *Metric) SetDescription(description string) { m.description = description }

func (m *Metric) Kind() Kind { return m.kind }

func (m *Metric) LLM() api.LLMGenerator { return m.llm }

func (m *Metric) Prompt() string { return m.prompt }

// Params returns a copy of the wrap-time parameters.
func (m *Metric) Params() map[string]any { return maps.Clone(m.params) }

// ScoreOptions configures a single Score or AScore call
type ScoreOptions struct {
	Reasoning bool
	N         int
}

// WithReasoning controls whether the result keeps its reason. Defaults to true.
func WithReasoning(reasoning bool) func(*ScoreOptions) {
	return func(opts *ScoreOptions) {
		opts.Reasoning = reasoning
	}
}

// WithN sets the number of samples requested from the metric. Defaults to 1.
func WithN(n int) func(*ScoreOptions) {
	return func(opts *ScoreOptions) {
		opts.N = n
	}
}

func (m *Metric) request(in api.Inputs, opts []func(*ScoreOptions)) (Request, ScoreOptions) {
	options := ScoreOptions{Reasoning: true, N: 1}
	for _, opt := range opts {
		opt(&options)
	}
	if options.N < 1 {
		options.N = 1
	}
	return Request{
		LLM:    m.llm,
		Prompt: m.prompt,
		Inputs: in,
		N:      options.N,
		Params: m.Params(),
	}, options
}

// Score runs the metric and blocks until its result is ready. It never panics:
// failures are reported in the returned MetricResult.
//
// A suspending function is driven on the loop carried by ctx, or on a loop created
// for this call. Calling Score from inside a function running on that same loop
// fails with loop.ErrReentrant.
//
// When ctx is done Score returns a failed result without waiting for a suspending
// function that is still doing work before returning its future.
func (m *Metric) Score(ctx context.Context, in api.Inputs, opts ...func(*ScoreOptions)) api.MetricResult {
	req, options := m.request(in, opts)

	var (
		v   any
		err error
	)
	switch m.kind {
	case Sync:
		v, err = m.callSync(ctx, req)
	case Suspending:
		lctx, lp, release := loop.Acquire(ctx)
		defer release()
		v, err = loop.RunUntilComplete(lctx, lp, func(ctx context.Context) (any, error) {
			return m.afn(ctx, req).Await(ctx)
		})
	}
	if err != nil {
		return m.failure(err)
	}
	return toResult(v, options.Reasoning)
}

// AScore runs the metric as a suspending computation. The returned future always
// resolves with a nil error; failures are reported in the MetricResult.
// Sync functions run before AScore returns.
func (m *Metric) AScore(ctx context.Context, in api.Inputs, opts ...func(*ScoreOptions)) *loop.Future[api.MetricResult] {
	req, options := m.request(in, opts)

	if m.kind == Sync {
		v, err := m.callSync(ctx, req)
		if err != nil {
			return loop.Resolved(m.failure(err), nil)
		}
		return loop.Resolved(toResult(v, options.Reasoning), nil)
	}

	pending, err := m.callAsync(ctx, req)
	if err != nil {
		return loop.Resolved(m.failure(err), nil)
	}
	return loop.Go(ctx, func(ctx context.Context) (api.MetricResult, error) {
		v, err := pending.Await(ctx)
		if err != nil {
			return m.failure(err), nil
		}
		return toResult(v, options.Reasoning), nil
	})
}

func (m *Metric) callSync(ctx context.Context, req Request) (v any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return m.fn(ctx, req)
}

func (m *Metric) callAsync(ctx context.Context, req Request) (f *loop.Future[any], err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	f = m.afn(ctx, req)
	if f == nil {
		return nil, loop.ErrNilFuture
	}
	return f, nil
}

func (m *Metric) failure(err error) api.MetricResult {
	execErr := &api.MetricExecutionError{Metric: m.name, Err: err}
	return api.MetricResult{Reason: execErr.Error(), Err: execErr}
}

// toResult post-processes a raw function result. Reasons are dropped when
// reasoning is disabled.
func toResult(v any, reasoning bool) api.MetricResult {
	var r api.MetricResult
	switch x := v.(type) {
	case api.MetricResult:
		r = x
	case *api.MetricResult:
		if x != nil {
			r = *x
		}
	default:
		r = api.MetricResult{Result: v}
	}
	if !reasoning {
		r.Reason = ""
	}
	return r
}
