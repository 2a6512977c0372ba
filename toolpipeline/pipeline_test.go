package toolpipeline

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"massgen.dev/coordination/hooks"
	"massgen.dev/coordination/toolregistry"
	"massgen.dev/coordination/tools"
	"massgen.dev/coordination/transcript"
)

func newTestPipeline(t *testing.T, exec toolregistry.Executor) (*Pipeline, *toolregistry.Registry) {
	t.Helper()
	reg := toolregistry.New()
	reg.Register(toolregistry.Descriptor{
		Spec:     tools.Spec{Name: tools.CustomToolIdent("echo")},
		Executor: exec,
	})
	return &Pipeline{
		Tools:    reg,
		Hooks:    hooks.NewRegistry(),
		EvictDir: t.TempDir(),
	}, reg
}

func TestDispatchRunsToolAndAppendsTrace(t *testing.T) {
	p, _ := newTestPipeline(t, toolregistry.ExecutorFunc(func(args []byte) (any, error) {
		return map[string]any{"echoed": string(args)}, nil
	}))

	trace := transcript.New()
	res, err := p.Dispatch(context.Background(), Call{
		ToolName:   tools.CustomToolIdent("echo"),
		RoundLabel: "agent1.1",
		Payload:    []byte(`{"x":1}`),
	}, trace)
	require.NoError(t, err)
	require.False(t, res.IsError)
	require.Len(t, trace.Entries(), 2)
}

func TestDispatchUnknownToolIsError(t *testing.T) {
	p, _ := newTestPipeline(t, toolregistry.ExecutorFunc(func(args []byte) (any, error) { return nil, nil }))
	trace := transcript.New()
	_, err := p.Dispatch(context.Background(), Call{
		ToolName: tools.CustomToolIdent("missing"),
	}, trace)
	require.Error(t, err)
}

func TestPreToolUseDenyShortCircuits(t *testing.T) {
	p, _ := newTestPipeline(t, toolregistry.ExecutorFunc(func(args []byte) (any, error) {
		t.Fatal("executor should not run when denied")
		return nil, nil
	}))
	p.Hooks.RegisterGlobal(hooks.Hook{
		Event: hooks.PreToolUse,
		Handler: hooks.HandlerFunc(func(ctx context.Context, event hooks.Event) (hooks.Result, error) {
			return hooks.Result{Deny: true, DenyReason: "not allowed"}, nil
		}),
	})

	trace := transcript.New()
	res, err := p.Dispatch(context.Background(), Call{
		ToolName: tools.CustomToolIdent("echo"),
	}, trace)
	require.NoError(t, err)
	require.True(t, res.Denied)
	require.Equal(t, "not allowed", res.DenyReason)
}

func TestEvictionWritesOversizedResult(t *testing.T) {
	big := strings.Repeat("x", evictionThresholdChars+10)
	p, _ := newTestPipeline(t, toolregistry.ExecutorFunc(func(args []byte) (any, error) {
		return big, nil
	}))

	trace := transcript.New()
	res, err := p.Dispatch(context.Background(), Call{
		ToolName: tools.CustomToolIdent("echo"),
	}, trace)
	require.NoError(t, err)
	ref, ok := res.Content.(evictionReference)
	require.True(t, ok)
	require.True(t, ref.Evicted)
	require.FileExists(t, ref.Path)
}
