package hooks

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"massgen.dev/coordination/agent"
)

func TestRegistryResolveGlobalAndPerAgentExtend(t *testing.T) {
	r := NewRegistry()
	r.RegisterGlobal(Hook{Event: PreToolUse, Handler: HandlerFunc(func(ctx context.Context, e Event) (Result, error) {
		return Result{}, nil
	})})
	r.RegisterForAgent("agent1", Hook{Event: PreToolUse, Handler: HandlerFunc(func(ctx context.Context, e Event) (Result, error) {
		return Result{}, nil
	})})

	resolved := r.Resolve("agent1", PreToolUse, "custom_tool__search")
	require.Len(t, resolved, 2)

	other := r.Resolve("agent2", PreToolUse, "custom_tool__search")
	require.Len(t, other, 1)
}

func TestRegistryResolveOverrideReplacesGlobal(t *testing.T) {
	r := NewRegistry()
	r.RegisterGlobal(Hook{Event: PreToolUse, Handler: HandlerFunc(func(ctx context.Context, e Event) (Result, error) {
		return Result{}, nil
	})})
	r.RegisterForAgent("agent1", Hook{Event: PreToolUse, Override: true, Handler: HandlerFunc(func(ctx context.Context, e Event) (Result, error) {
		return Result{}, nil
	})})

	resolved := r.Resolve("agent1", PreToolUse, "anything")
	require.Len(t, resolved, 1)
}

func TestRegistryResolveMatcherFiltersToolName(t *testing.T) {
	r := NewRegistry()
	r.RegisterGlobal(Hook{Event: PreToolUse, Matcher: "mcp__*", Handler: HandlerFunc(func(ctx context.Context, e Event) (Result, error) {
		return Result{}, nil
	})})

	require.Len(t, r.Resolve("agent1", PreToolUse, "mcp__fs__read"), 1)
	require.Len(t, r.Resolve("agent1", PreToolUse, "custom_tool__search"), 0)
}

func TestAggregatePreToolUseDenyWins(t *testing.T) {
	hs := []Hook{
		{Handler: HandlerFunc(func(ctx context.Context, e Event) (Result, error) {
			return Result{UpdatedInput: json.RawMessage(`{"a":1}`)}, nil
		})},
		{Handler: HandlerFunc(func(ctx context.Context, e Event) (Result, error) {
			return Result{Deny: true, DenyReason: "blocked"}, nil
		})},
	}
	event := NewPreToolUseEvent("run1", "agent1", "custom_tool__search", "tc1", json.RawMessage(`{}`))
	denied, reason, payload, err := AggregatePreToolUse(context.Background(), hs, event)
	require.NoError(t, err)
	require.True(t, denied)
	require.Equal(t, "blocked", reason)
	require.JSONEq(t, `{"a":1}`, string(payload))
}

func TestAggregatePostToolUseConcatenatesInjections(t *testing.T) {
	hs := []Hook{
		{Handler: HandlerFunc(func(ctx context.Context, e Event) (Result, error) {
			return Result{Inject: &Injection{Content: "first", Strategy: InjectStrategyToolResult}}, nil
		})},
		{Handler: HandlerFunc(func(ctx context.Context, e Event) (Result, error) {
			return Result{Inject: &Injection{Content: "second", Strategy: InjectStrategyUserMessage}}, nil
		})},
	}
	event := NewPostToolUseEvent("run1", "agent1", "custom_tool__search", "tc1", "ok", false, 0)
	injections := AggregatePostToolUse(context.Background(), hs, event)
	require.Len(t, injections, 2)
	require.Equal(t, "first", injections[0].Content)
	require.Equal(t, "second", injections[1].Content)
}

type stubUpdateSource struct{ updates []Update }

func (s stubUpdateSource) PendingUpdates(agentID agent.Ident) []Update { return s.updates }

func TestMidStreamInjectionHookInjectsPendingUpdates(t *testing.T) {
	h := NewMidStreamInjectionHook(stubUpdateSource{updates: []Update{
		{AnswerLabel: "agent2.1", AgentID: "agent2", Content: "answer body"},
	}})
	event := NewPostToolUseEvent("run1", "agent1", "custom_tool__search", "tc1", "ok", false, 0)
	res, err := h.Handler.Handle(context.Background(), event)
	require.NoError(t, err)
	require.NotNil(t, res.Inject)
	require.Contains(t, res.Inject.Content, "agent2.1")
}

func TestHighPriorityTaskReminderHookInjectsReminder(t *testing.T) {
	h := NewHighPriorityTaskReminderHook()
	event := NewPostToolUseEvent("run1", "agent1", "custom_tool__search", "tc1", map[string]any{"reminder": "don't forget X"}, false, 0)
	res, err := h.Handler.Handle(context.Background(), event)
	require.NoError(t, err)
	require.NotNil(t, res.Inject)
	require.Equal(t, InjectStrategyUserMessage, res.Inject.Strategy)
	require.Contains(t, res.Inject.Content, "don't forget X")
}

func TestHighPriorityTaskReminderHookNoOpWithoutField(t *testing.T) {
	h := NewHighPriorityTaskReminderHook()
	event := NewPostToolUseEvent("run1", "agent1", "custom_tool__search", "tc1", map[string]any{"ok": true}, false, 0)
	res, err := h.Handler.Handle(context.Background(), event)
	require.NoError(t, err)
	require.Nil(t, res.Inject)
}

type stubResultSource struct{ results []PendingResult }

func (s stubResultSource) Drain(parentID agent.Ident) []PendingResult { return s.results }

func TestSubagentCompleteHookBatchesResults(t *testing.T) {
	h := NewSubagentCompleteHook(stubResultSource{results: []PendingResult{
		{SubagentID: "sub1", Status: "completed", Answer: "done"},
		{SubagentID: "sub2", Status: "partial", Answer: "partial answer"},
	}})
	event := NewPostToolUseEvent("run1", "agent1", "custom_tool__spawn_subagents", "tc1", "ok", false, 0)
	res, err := h.Handler.Handle(context.Background(), event)
	require.NoError(t, err)
	require.NotNil(t, res.Inject)
	require.Contains(t, res.Inject.Content, "count=2")
	require.Contains(t, res.Inject.Content, "sub1")
	require.Contains(t, res.Inject.Content, "sub2")
}
