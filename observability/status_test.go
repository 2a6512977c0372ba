package observability

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"massgen.dev/coordination/run"
)

func TestStorePersistsAtomically(t *testing.T) {
	dir := t.TempDir()
	store, err := NewStore(dir, "run-1", nil)
	require.NoError(t, err)

	err = store.Mutate(func(s *Status) {
		s.Coordination.Phase = run.PhaseEnforcement
		s.AgentOf("agent1").RuntimeStatus = "streaming"
		s.Results.Votes["agent1.1"] = 2
	})
	require.NoError(t, err)

	view, full, err := ReadSimplified(filepath.Join(dir, "status.json"))
	require.NoError(t, err)
	require.Equal(t, string(run.StatusRunning), view.Status)
	require.Equal(t, run.PhaseEnforcement, full.Coordination.Phase)
	require.Equal(t, 2, full.Results.Votes["agent1.1"])
}

func TestSimplifyMapsPhaseToStatus(t *testing.T) {
	s := NewStatus()
	s.Coordination.Phase = run.PhaseDone
	s.Results.Winner = "agent1.final"
	view := s.Simplify()
	require.Equal(t, string(run.StatusCompleted), view.Status)
	require.Equal(t, "agent1.final", view.Winner)
}

func TestAgentOfCreatesDefault(t *testing.T) {
	s := NewStatus()
	a := s.AgentOf("agent2")
	require.Equal(t, AgentOutcomeOK, a.Outcome)
	require.Same(t, a, s.AgentOf("agent2"))
}
