package observability

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"massgen.dev/coordination/hooks"
)

func TestEnforcementSubscriberRecordsAttemptAndTotals(t *testing.T) {
	store, err := NewStore(t.TempDir(), "run-1", nil)
	require.NoError(t, err)
	sub := NewEnforcementSubscriber(store)

	err = sub.HandleEvent(context.Background(), hooks.NewEnforcementEvent("run-1", "agent1", "no_tool_calls", 1, "buf", 50))
	require.NoError(t, err)

	snap := store.Snapshot()
	a := snap.Agents["agent1"]
	require.NotNil(t, a)
	require.Len(t, a.EnforcementAttempts, 1)
	require.Equal(t, "no_tool_calls", a.EnforcementAttempts[0].Reason)
	require.Equal(t, 1, a.TotalEnforcementRetries)
	require.Equal(t, 50, a.TotalBufferCharsLost)
	require.Equal(t, 0, a.WorkflowErrors)
	require.Equal(t, AgentOutcomeOK, a.Outcome)
}

func TestEnforcementSubscriberMarksNonCompliantAtBound(t *testing.T) {
	store, err := NewStore(t.TempDir(), "run-1", nil)
	require.NoError(t, err)
	sub := NewEnforcementSubscriber(store)

	err = sub.HandleEvent(context.Background(), hooks.NewEnforcementEvent("run-1", "agent1", "answer_limit", enforcementRetryBound, "", 0))
	require.NoError(t, err)

	snap := store.Snapshot()
	a := snap.Agents["agent1"]
	require.Equal(t, AgentOutcomeNonCompliant, a.Outcome)
	require.Equal(t, 1, a.WorkflowErrors)
}

func TestEnforcementSubscriberIgnoresOtherEventTypes(t *testing.T) {
	store, err := NewStore(t.TempDir(), "run-1", nil)
	require.NoError(t, err)
	sub := NewEnforcementSubscriber(store)

	err = sub.HandleEvent(context.Background(), hooks.NewAnswerSubmittedEvent("run-1", "agent1", "agent1.1", 1))
	require.NoError(t, err)

	snap := store.Snapshot()
	require.Empty(t, snap.Agents)
}
