// Package engine defines the workflow engine abstraction the Coordination
// Scheduler runs agent and subagent workflows on (spec §4.5, §4.6). It
// provides a pluggable interface so the scheduler can target an in-process
// goroutine pool (package engine/inmem) or a durable backend (package
// engine/temporal) without changes to scheduler code.
package engine

import (
	"context"
	"time"

	"massgen.dev/coordination/telemetry"
)

type (
	// Engine abstracts workflow registration and execution so adapters
	// (in-memory, Temporal, or custom) can be swapped without touching
	// scheduler code.
	Engine interface {
		// RegisterWorkflow registers a workflow definition with the engine.
		// Must be called before StartWorkflow targets it. Returns an error
		// if the name is already registered.
		RegisterWorkflow(ctx context.Context, def WorkflowDefinition) error

		// RegisterActivity registers an activity definition with the
		// engine. Activities are short-lived tasks invoked from workflows
		// (e.g. one model streaming turn, one tool call).
		RegisterActivity(ctx context.Context, def ActivityDefinition) error

		// StartWorkflow initiates a new workflow execution (one coordinating
		// agent's run, or one subagent's run) and returns a handle for
		// interacting with it.
		StartWorkflow(ctx context.Context, req WorkflowStartRequest) (WorkflowHandle, error)
	}

	// WorkflowDefinition binds a workflow handler to a logical name and
	// default queue.
	WorkflowDefinition struct {
		Name      string
		TaskQueue string
		Handler   WorkflowFunc
	}

	// WorkflowFunc is a workflow entry point. It must be deterministic:
	// replay must produce the same execution sequence given the same
	// inputs and activity results.
	WorkflowFunc func(ctx WorkflowContext, input any) (any, error)

	// WorkflowContext exposes engine operations to workflow handlers.
	//
	// Thread-safety: bound to a single workflow execution, must not be
	// shared across goroutines.
	WorkflowContext interface {
		Context() context.Context
		WorkflowID() string
		RunID() string

		// ExecuteActivity schedules an activity and blocks for its result.
		ExecuteActivity(ctx context.Context, req ActivityRequest, result any) error
		// ExecuteActivityAsync schedules an activity without blocking.
		ExecuteActivityAsync(ctx context.Context, req ActivityRequest) (Future, error)
		// SignalChannel returns the channel for the named signal (e.g. the
		// per-agent "inject" channel the scheduler uses for inject-and-continue,
		// spec §4.5).
		SignalChannel(name string) SignalChannel

		Logger() telemetry.Logger
		Metrics() telemetry.Metrics
		Tracer() telemetry.Tracer

		// Now returns a replay-safe current time.
		Now() time.Time
	}

	// Future represents a pending activity result.
	Future interface {
		Get(ctx context.Context, result any) error
		IsReady() bool
	}

	// ActivityDefinition registers an activity handler.
	ActivityDefinition struct {
		Name    string
		Handler ActivityFunc
		Options ActivityOptions
	}

	// ActivityFunc handles an activity invocation; unlike workflows,
	// activities may perform side effects (model calls, tool execution,
	// filesystem access).
	ActivityFunc func(ctx context.Context, input any) (any, error)

	// ActivityOptions configures retry/timeout behavior.
	ActivityOptions struct {
		Queue       string
		RetryPolicy RetryPolicy
		Timeout     time.Duration
	}

	// WorkflowStartRequest describes how to launch a workflow execution.
	WorkflowStartRequest struct {
		ID               string
		Workflow         string
		TaskQueue        string
		Input            any
		Memo             map[string]any
		SearchAttributes map[string]any
		RetryPolicy      RetryPolicy
	}

	// ActivityRequest contains the info needed to schedule an activity.
	ActivityRequest struct {
		Name        string
		Input       any
		Queue       string
		RetryPolicy RetryPolicy
		Timeout     time.Duration
	}

	// WorkflowHandle allows callers to interact with a running workflow.
	WorkflowHandle interface {
		Wait(ctx context.Context, result any) error
		Signal(ctx context.Context, name string, payload any) error
		Cancel(ctx context.Context) error
	}

	// RetryPolicy defines retry semantics shared by workflows and
	// activities. Zero-valued fields mean the engine's defaults apply.
	RetryPolicy struct {
		MaxAttempts        int
		InitialInterval    time.Duration
		BackoffCoefficient float64
	}

	// SignalChannel exposes workflow signal delivery in an engine-agnostic
	// way (spec §4.5 "inject-and-continue" delivers queued peer answers
	// this way; spec §4.6 delivers cancellation-recovery outcomes this way).
	SignalChannel interface {
		Receive(ctx context.Context, dest any) error
		ReceiveAsync(dest any) bool
	}
)
