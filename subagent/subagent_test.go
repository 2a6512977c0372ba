package subagent

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"massgen.dev/coordination/agent"
	"massgen.dev/coordination/config"
	"massgen.dev/coordination/observability"
	"massgen.dev/coordination/run"
	"massgen.dev/coordination/workspace"
)

type fakeHandle struct {
	statusPath string
	outcome    Outcome
	block      bool
	cancelled  bool
}

func (h *fakeHandle) StatusPath() string { return h.statusPath }

func (h *fakeHandle) Wait(ctx context.Context) (Outcome, error) {
	if h.block {
		<-ctx.Done()
		return Outcome{}, ctx.Err()
	}
	return h.outcome, nil
}

func (h *fakeHandle) Cancel() { h.cancelled = true }

type fakeLauncher struct {
	handle *fakeHandle
	err    error
}

func (l *fakeLauncher) Launch(ctx context.Context, parentAgentID agent.Ident, task Task) (Handle, error) {
	if l.err != nil {
		return nil, l.err
	}
	return l.handle, nil
}

func TestSpawnBlockingReturnsNaturalCompletion(t *testing.T) {
	launcher := &fakeLauncher{handle: &fakeHandle{
		statusPath: "unused",
		outcome:    Outcome{Answer: "42", InputTokens: 10, OutputTokens: 5, WorkspacePath: "/tmp/ws"},
	}}
	m := NewManager(launcher, NewMemQueue(), nil, "run1", config.CoordinationConfig{})

	results, err := m.Spawn(context.Background(), "agent1", []Task{{ID: "sub1"}}, false)
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Equal(t, StatusCompleted, results[0].Status)
	require.Equal(t, "42", results[0].Answer)
	require.Equal(t, 100.0, results[0].CompletionPercentage)
}

func TestSpawnAsyncDeliversViaQueue(t *testing.T) {
	launcher := &fakeLauncher{handle: &fakeHandle{
		statusPath: "unused",
		outcome:    Outcome{Answer: "done"},
	}}
	queue := NewMemQueue()
	m := NewManager(launcher, queue, nil, "run1", config.CoordinationConfig{
		AsyncSubagents: config.AsyncSubagentConfig{Enabled: true, MaxBackground: 2, InjectionStrategy: config.InjectionStrategyToolResult},
	})

	results, err := m.Spawn(context.Background(), "agent1", []Task{{ID: "sub1"}}, true)
	require.NoError(t, err)
	require.Nil(t, results)

	require.Eventually(t, func() bool {
		return len(queue.Drain("agent1")) == 1 || len(queue.pending["agent1"]) == 1
	}, time.Second, 5*time.Millisecond)
}

func writeStatus(t *testing.T, dir string, st *observability.Status) string {
	t.Helper()
	store, err := observability.NewStore(dir, "child-run", nil)
	require.NoError(t, err)
	require.NoError(t, store.Mutate(func(s *observability.Status) { *s = *st }))
	return filepath.Join(dir, "status.json")
}

func TestRecoverAtPresentationReadsWinnerAnswer(t *testing.T) {
	root := t.TempDir()
	wsMgr := workspace.NewManager(root)
	ws, err := wsMgr.CreateWorkspace("agent2")
	require.NoError(t, err)
	ref, err := wsMgr.Snapshot(ws, "agent2.1", "the winning answer", "# trace")
	require.NoError(t, err)

	st := observability.NewStatus()
	st.Coordination.Phase = run.PhasePresentation
	st.Results.Winner = "agent2.1"
	st.HistoricalWorkspaces = []observability.HistoricalWorkspace{
		{AgentID: "agent2", AnswerLabel: "agent2.1", Timestamp: time.Now(), WorkspacePath: ref.SnapshotPath},
	}
	statusPath := writeStatus(t, filepath.Join(root, "child-logs"), st)

	launcher := &fakeLauncher{handle: &fakeHandle{statusPath: statusPath, block: true}}
	m := NewManager(launcher, NewMemQueue(), nil, "run1", config.CoordinationConfig{
		SubagentMinTimeout: 10 * time.Millisecond, SubagentMaxTimeout: 50 * time.Millisecond, SubagentDefaultTimeout: 10 * time.Millisecond,
	})

	results, err := m.Spawn(context.Background(), "agent1", []Task{{ID: "sub1", Timeout: 10 * time.Millisecond}}, false)
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Equal(t, StatusCompletedButTimeout, results[0].Status)
	require.Equal(t, "the winning answer", results[0].Answer)
	require.True(t, launcher.handle.cancelled)
}

func TestRecoverAtEnforcementNoVotesReturnsFirstAnswer(t *testing.T) {
	root := t.TempDir()
	wsMgr := workspace.NewManager(root)
	ws1, err := wsMgr.CreateWorkspace("agent2")
	require.NoError(t, err)
	ref1, err := wsMgr.Snapshot(ws1, "agent2.1", "first answer", "# trace")
	require.NoError(t, err)

	st := observability.NewStatus()
	st.Coordination.Phase = run.PhaseEnforcement
	st.HistoricalWorkspaces = []observability.HistoricalWorkspace{
		{AgentID: "agent2", AnswerLabel: "agent2.1", Timestamp: time.Now(), WorkspacePath: ref1.SnapshotPath},
	}
	statusPath := writeStatus(t, filepath.Join(root, "child-logs"), st)

	launcher := &fakeLauncher{handle: &fakeHandle{statusPath: statusPath, block: true}}
	m := NewManager(launcher, NewMemQueue(), nil, "run1", config.CoordinationConfig{
		SubagentMinTimeout: 10 * time.Millisecond, SubagentMaxTimeout: 50 * time.Millisecond, SubagentDefaultTimeout: 10 * time.Millisecond,
	})

	results, err := m.Spawn(context.Background(), "agent1", []Task{{ID: "sub1"}}, false)
	require.NoError(t, err)
	require.Equal(t, StatusPartial, results[0].Status)
	require.Equal(t, "first answer", results[0].Answer)
}

func TestRecoverWithNoAnswersReturnsTimeout(t *testing.T) {
	root := t.TempDir()
	st := observability.NewStatus()
	st.Coordination.Phase = run.PhaseInitialAnswer
	statusPath := writeStatus(t, filepath.Join(root, "child-logs"), st)

	launcher := &fakeLauncher{handle: &fakeHandle{statusPath: statusPath, block: true}}
	m := NewManager(launcher, NewMemQueue(), nil, "run1", config.CoordinationConfig{
		SubagentMinTimeout: 10 * time.Millisecond, SubagentMaxTimeout: 50 * time.Millisecond, SubagentDefaultTimeout: 10 * time.Millisecond,
	})

	results, err := m.Spawn(context.Background(), "agent1", []Task{{ID: "sub1"}}, false)
	require.NoError(t, err)
	require.Equal(t, StatusTimeout, results[0].Status)
	require.Equal(t, "", results[0].Answer)
}

func TestClampTimeout(t *testing.T) {
	m := &Manager{Coordination: config.CoordinationConfig{
		SubagentMinTimeout: 60 * time.Second, SubagentMaxTimeout: 600 * time.Second, SubagentDefaultTimeout: 300 * time.Second,
	}}
	require.Equal(t, 300*time.Second, m.clampTimeout(0))
	require.Equal(t, 60*time.Second, m.clampTimeout(5*time.Second))
	require.Equal(t, 600*time.Second, m.clampTimeout(1000*time.Second))
	require.Equal(t, 120*time.Second, m.clampTimeout(120*time.Second))
}
