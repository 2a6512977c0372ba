package inmem

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"massgen.dev/coordination/engine"
)

func TestStartWorkflowExecutesActivityAndCompletes(t *testing.T) {
	e := New()
	require.NoError(t, e.RegisterActivity(context.Background(), engine.ActivityDefinition{
		Name: "double",
		Handler: func(ctx context.Context, input any) (any, error) {
			return input.(int) * 2, nil
		},
	}))
	require.NoError(t, e.RegisterWorkflow(context.Background(), engine.WorkflowDefinition{
		Name: "doubler",
		Handler: func(wf engine.WorkflowContext, input any) (any, error) {
			var out int
			if err := wf.ExecuteActivity(wf.Context(), engine.ActivityRequest{Name: "double", Input: input}, &out); err != nil {
				return nil, err
			}
			return out, nil
		},
	}))

	h, err := e.StartWorkflow(context.Background(), engine.WorkflowStartRequest{ID: "run1", Workflow: "doubler", Input: 21})
	require.NoError(t, err)

	var result int
	require.NoError(t, h.Wait(context.Background(), &result))
	require.Equal(t, 42, result)
}

func TestSignalChannelDeliversPayload(t *testing.T) {
	e := New()
	received := make(chan string, 1)
	require.NoError(t, e.RegisterWorkflow(context.Background(), engine.WorkflowDefinition{
		Name: "waiter",
		Handler: func(wf engine.WorkflowContext, input any) (any, error) {
			var payload string
			if err := wf.SignalChannel("inject").Receive(wf.Context(), &payload); err != nil {
				return nil, err
			}
			received <- payload
			return nil, nil
		},
	}))

	h, err := e.StartWorkflow(context.Background(), engine.WorkflowStartRequest{ID: "run1", Workflow: "waiter"})
	require.NoError(t, err)

	require.NoError(t, h.Signal(context.Background(), "inject", "peer update"))

	select {
	case got := <-received:
		require.Equal(t, "peer update", got)
	case <-time.After(time.Second):
		t.Fatal("signal never delivered")
	}
	require.NoError(t, h.Wait(context.Background(), nil))
}

func TestStartWorkflowUnknownNameErrors(t *testing.T) {
	e := New()
	_, err := e.StartWorkflow(context.Background(), engine.WorkflowStartRequest{ID: "run1", Workflow: "missing"})
	require.Error(t, err)
}
