package builtinhooks

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"massgen.dev/coordination/agent"
	"massgen.dev/coordination/agentrunner"
	"massgen.dev/coordination/hooks"
	"massgen.dev/coordination/model"
	"massgen.dev/coordination/subagent"
)

func TestMidStreamInjectionHookFoldsPendingIntoToolResult(t *testing.T) {
	r := &agentrunner.Runner{AgentID: "agent1"}
	r.Inject(&model.Message{Role: model.ConversationRoleUser, Parts: []model.Part{model.TextPart{Text: "peer update"}}})

	hook := NewMidStreamInjectionHook(func(id agent.Ident) *agentrunner.Runner {
		if id == "agent1" {
			return r
		}
		return nil
	})

	res, err := hook.Handle(context.Background(), &hooks.PostToolUseEvent{})
	require.NoError(t, err)
	require.Nil(t, res.Inject)

	res, err = hook.Handle(context.Background(), fakeEvent{agentID: "agent1"})
	require.NoError(t, err)
	require.NotNil(t, res.Inject)
	require.Contains(t, res.Inject.Content, "peer update")
	require.Equal(t, hooks.InjectStrategyToolResult, res.Inject.Strategy)
}

func TestHighPriorityTaskReminderHookExtractsReminderField(t *testing.T) {
	hook := NewHighPriorityTaskReminderHook()

	res, err := hook.Handle(context.Background(), &hooks.PostToolUseEvent{
		Result: map[string]any{"reminder": "finish the refactor"},
	})
	require.NoError(t, err)
	require.NotNil(t, res.Inject)
	require.Contains(t, res.Inject.Content, reminderBanner)
	require.Contains(t, res.Inject.Content, "finish the refactor")
	require.Equal(t, hooks.InjectStrategyUserMessage, res.Inject.Strategy)
}

func TestHighPriorityTaskReminderHookNoOpWithoutReminderField(t *testing.T) {
	hook := NewHighPriorityTaskReminderHook()

	res, err := hook.Handle(context.Background(), &hooks.PostToolUseEvent{Result: map[string]any{"ok": true}})
	require.NoError(t, err)
	require.Nil(t, res.Inject)
}

func TestSubagentCompleteHookDrainsAndFormats(t *testing.T) {
	queue := subagent.NewMemQueue()
	queue.Push("agent1", subagent.Result{SubagentID: "sub1", Status: subagent.StatusCompleted, Answer: "42", Duration: time.Second})

	hook := NewSubagentCompleteHook(queue)

	res, err := hook.Handle(context.Background(), fakeEvent{agentID: "agent1"})
	require.NoError(t, err)
	require.NotNil(t, res.Inject)
	require.Contains(t, res.Inject.Content, "<subagent_results count=1>")
	require.Contains(t, res.Inject.Content, "42")

	res, err = hook.Handle(context.Background(), fakeEvent{agentID: "agent1"})
	require.NoError(t, err)
	require.Nil(t, res.Inject)
}

// fakeEvent is a minimal hooks.Event for tests that only need AgentID().
type fakeEvent struct {
	agentID agent.Ident
}

func (e fakeEvent) Type() hooks.EventType { return hooks.PostToolUse }
func (e fakeEvent) RunID() string         { return "run1" }
func (e fakeEvent) SessionID() string     { return "" }
func (e fakeEvent) AgentID() string       { return string(e.agentID) }
func (e fakeEvent) Timestamp() int64      { return 0 }
func (e fakeEvent) TurnID() string        { return "" }
