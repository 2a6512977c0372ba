package temporal

import (
	"context"
	"errors"
	"sync"
	"time"

	temporalsdk "go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	"massgen.dev/coordination/engine"
	"massgen.dev/coordination/telemetry"
)

const defaultActivityTimeout = 5 * time.Minute

type temporalWorkflowContext struct {
	eng *Engine
	ctx workflow.Context

	sigMu sync.Mutex
	sigs  map[string]*temporalSignalChannel
}

func newTemporalWorkflowContext(eng *Engine, ctx workflow.Context) *temporalWorkflowContext {
	return &temporalWorkflowContext{
		eng:  eng,
		ctx:  ctx,
		sigs: make(map[string]*temporalSignalChannel),
	}
}

func (w *temporalWorkflowContext) Context() context.Context {
	return disconnectedContextAdapter{w.ctx}
}

func (w *temporalWorkflowContext) WorkflowID() string {
	return workflow.GetInfo(w.ctx).WorkflowExecution.ID
}

func (w *temporalWorkflowContext) RunID() string {
	return workflow.GetInfo(w.ctx).WorkflowExecution.RunID
}

func (w *temporalWorkflowContext) Logger() telemetry.Logger   { return w.eng.logger }
func (w *temporalWorkflowContext) Metrics() telemetry.Metrics { return w.eng.metrics }
func (w *temporalWorkflowContext) Tracer() telemetry.Tracer   { return w.eng.tracer }

func (w *temporalWorkflowContext) Now() time.Time {
	return workflow.Now(w.ctx)
}

func (w *temporalWorkflowContext) ExecuteActivity(_ context.Context, req engine.ActivityRequest, result any) error {
	fut, err := w.ExecuteActivityAsync(nil, req)
	if err != nil {
		return err
	}
	return fut.Get(nil, result)
}

func (w *temporalWorkflowContext) ExecuteActivityAsync(_ context.Context, req engine.ActivityRequest) (engine.Future, error) {
	defaults, _ := w.eng.activityOptionsFor(req.Name)
	actx := workflow.WithActivityOptions(w.ctx, activityOptionsFor(req, defaults))
	future := workflow.ExecuteActivity(actx, req.Name, req.Input)
	return &temporalFuture{wctx: w.ctx, future: future}, nil
}

func (w *temporalWorkflowContext) SignalChannel(name string) engine.SignalChannel {
	w.sigMu.Lock()
	defer w.sigMu.Unlock()
	if sc, ok := w.sigs[name]; ok {
		return sc
	}
	sc := &temporalSignalChannel{ctx: w.ctx, ch: workflow.GetSignalChannel(w.ctx, name)}
	w.sigs[name] = sc
	return sc
}

// temporalFuture adapts workflow.Future to engine.Future.
type temporalFuture struct {
	wctx   workflow.Context
	future workflow.Future
}

func (f *temporalFuture) Get(_ context.Context, result any) error {
	if result == nil {
		var discard any
		return normalizeTemporalError(f.future.Get(f.wctx, &discard))
	}
	return normalizeTemporalError(f.future.Get(f.wctx, result))
}

func (f *temporalFuture) IsReady() bool {
	return f.future.IsReady()
}

// temporalSignalChannel adapts workflow.ReceiveChannel to engine.SignalChannel.
type temporalSignalChannel struct {
	ctx workflow.Context
	ch  workflow.ReceiveChannel
}

func (s *temporalSignalChannel) Receive(_ context.Context, dest any) error {
	s.ch.Receive(s.ctx, dest)
	return nil
}

func (s *temporalSignalChannel) ReceiveAsync(dest any) bool {
	return s.ch.ReceiveAsync(dest)
}

// disconnectedContextAdapter satisfies context.Context for handlers that
// only use it as a carrier (deadlines/signals flow through workflow.Context,
// not this adapter); workflow code must never block on stdlib channel
// primitives directly, so Done/Err are unused in practice.
type disconnectedContextAdapter struct {
	wctx workflow.Context
}

func (disconnectedContextAdapter) Deadline() (time.Time, bool) { return time.Time{}, false }
func (disconnectedContextAdapter) Done() <-chan struct{}       { return nil }
func (disconnectedContextAdapter) Err() error                  { return nil }
func (d disconnectedContextAdapter) Value(key any) any         { return d.wctx.Value(key) }

// normalizeTemporalError maps Temporal's cancellation error type to the
// stdlib context.Canceled so scheduler code can use errors.Is uniformly
// across the inmem and Temporal engines.
func normalizeTemporalError(err error) error {
	if err == nil {
		return nil
	}
	var canceledErr *temporalsdk.CanceledError
	if errors.As(err, &canceledErr) {
		return context.Canceled
	}
	return err
}

// convertRetryPolicy translates the engine-agnostic RetryPolicy into a
// Temporal RetryPolicy, returning nil when rp is the zero value so Temporal's
// own defaults apply.
func convertRetryPolicy(rp engine.RetryPolicy) *temporalsdk.RetryPolicy {
	if rp.MaxAttempts == 0 && rp.InitialInterval == 0 && rp.BackoffCoefficient == 0 {
		return nil
	}
	out := &temporalsdk.RetryPolicy{MaximumAttempts: int32(rp.MaxAttempts)}
	if rp.InitialInterval > 0 {
		out.InitialInterval = rp.InitialInterval
	}
	if rp.BackoffCoefficient > 0 {
		out.BackoffCoefficient = rp.BackoffCoefficient
	}
	return out
}

// activityOptionsFor merges per-call overrides in req over the activity's
// registered defaults, falling back to package defaults for anything still
// unset.
func activityOptionsFor(req engine.ActivityRequest, defaults engine.ActivityOptions) workflow.ActivityOptions {
	timeout := req.Timeout
	if timeout == 0 {
		timeout = defaults.Timeout
	}
	if timeout == 0 {
		timeout = defaultActivityTimeout
	}

	rp := req.RetryPolicy
	if rp.MaxAttempts == 0 && rp.InitialInterval == 0 && rp.BackoffCoefficient == 0 {
		rp = defaults.RetryPolicy
	}

	opts := workflow.ActivityOptions{
		StartToCloseTimeout: timeout,
		TaskQueue:           req.Queue,
	}
	if tq := defaults.Queue; opts.TaskQueue == "" && tq != "" {
		opts.TaskQueue = tq
	}
	if p := convertRetryPolicy(rp); p != nil {
		opts.RetryPolicy = p
	}
	return opts
}
