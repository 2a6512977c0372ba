package reminder

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSnapshotOrdersByTierThenID(t *testing.T) {
	e := NewEngine()
	e.AddReminder("run1", Reminder{ID: "guidance", Text: "vote soon", Priority: TierGuidance})
	e.AddReminder("run1", Reminder{ID: "task", Text: "stay on task", Priority: TierTask})

	out := e.Snapshot("run1")
	require.Len(t, out, 2)
	require.Equal(t, "task", out[0].ID)
	require.Equal(t, "guidance", out[1].ID)
}

func TestSnapshotEnforcesMaxPerRunExceptTaskTier(t *testing.T) {
	e := NewEngine()
	e.AddReminder("run1", Reminder{ID: "once", Text: "x", Priority: TierGuidance, MaxPerRun: 1})
	e.AddReminder("run1", Reminder{ID: "always", Text: "y", Priority: TierTask, MaxPerRun: 1})

	first := e.Snapshot("run1")
	require.Len(t, first, 2)

	second := e.Snapshot("run1")
	require.Len(t, second, 1)
	require.Equal(t, "always", second[0].ID)
}

func TestSnapshotEnforcesMinTurnsBetween(t *testing.T) {
	e := NewEngine()
	e.AddReminder("run1", Reminder{ID: "spaced", Text: "x", MinTurnsBetween: 2})

	require.Len(t, e.Snapshot("run1"), 1)
	require.Len(t, e.Snapshot("run1"), 0)
	require.Len(t, e.Snapshot("run1"), 1)
}

func TestClearRunRemovesState(t *testing.T) {
	e := NewEngine()
	e.AddReminder("run1", Reminder{ID: "x", Text: "x"})
	e.ClearRun("run1")
	require.Nil(t, e.Snapshot("run1"))
}
