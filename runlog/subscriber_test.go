package runlog

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"massgen.dev/coordination/hooks"
)

func TestSubscriberAppendsPublishedEvents(t *testing.T) {
	store := NewMemStore()
	sub := NewSubscriber(store, nil)

	err := sub.HandleEvent(context.Background(), hooks.NewAnswerSubmittedEvent("run1", "agent1", "agent1.1", 1))
	require.NoError(t, err)

	page, err := store.List(context.Background(), "run1", "", 10)
	require.NoError(t, err)
	require.Len(t, page.Events, 1)
	require.Equal(t, hooks.AnswerSubmitted, page.Events[0].Type)
	require.Equal(t, "agent1", string(page.Events[0].AgentID))
}

func TestSubscriberEncodesEventSpecificPayload(t *testing.T) {
	store := NewMemStore()
	sub := NewSubscriber(store, nil)

	err := sub.HandleEvent(context.Background(), hooks.NewEnforcementEvent("run1", "agent1", "answer_limit", 2, "preview", 123))
	require.NoError(t, err)

	page, err := store.List(context.Background(), "run1", "", 10)
	require.NoError(t, err)
	require.Len(t, page.Events, 1)
	require.Equal(t, hooks.EnforcementRecorded, page.Events[0].Type)
	require.Contains(t, string(page.Events[0].Payload), "answer_limit")
	require.Contains(t, string(page.Events[0].Payload), "preview")
}
