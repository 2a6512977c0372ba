package scheduler

import (
	"context"
	"fmt"
	"path/filepath"

	"massgen.dev/coordination/agent"
	"massgen.dev/coordination/agentrunner"
	"massgen.dev/coordination/config"
	"massgen.dev/coordination/hooks"
	"massgen.dev/coordination/observability"
	"massgen.dev/coordination/run"
	"massgen.dev/coordination/subagent"
	"massgen.dev/coordination/workspace"
)

// Launcher adapts Scheduler construction into subagent.Launcher (spec §4.6
// "spawn_subagents starts a nested coordination session against the same
// engine"). It depends only on subagent's interfaces, so the import points
// scheduler -> subagent, never back, matching subagent.Launcher's own doc
// comment.
type Launcher struct {
	// NewAgents builds a fresh roster of Runners for a nested run given its
	// run id, mirroring the parent run's agent configuration but with clean
	// per-child state (new Trace, no prior pending injections).
	NewAgents func(childRunID string) map[agent.Ident]*agentrunner.Runner
	// LogRoot is the base directory nested runs' status.json and workspace
	// trees are created under, one subdirectory per child run id.
	LogRoot string
	Config  config.CoordinationConfig
	Bus     hooks.Bus
}

type launcherHandle struct {
	statusPath string
	cancel     context.CancelFunc
	done       chan launchResult
}

type launchResult struct {
	answer *run.Answer
	err    error
}

// Launch implements subagent.Launcher.
func (l *Launcher) Launch(ctx context.Context, parentAgentID agent.Ident, task subagent.Task) (subagent.Handle, error) {
	childRunID := fmt.Sprintf("%s-sub-%s", parentAgentID, task.ID)
	logDir := filepath.Join(l.LogRoot, childRunID)

	store, err := observability.NewStore(logDir, childRunID, nil)
	if err != nil {
		return nil, fmt.Errorf("scheduler: launch subagent: %w", err)
	}
	wsMgr := workspace.NewManager(filepath.Join(logDir, "workspaces"))
	agents := l.NewAgents(childRunID)

	sched := NewScheduler(childRunID, run.Task{RunID: childRunID, Question: task.Context}, agents, wsMgr, l.Bus, store, l.Config)

	childCtx, cancel := context.WithCancel(ctx)
	h := &launcherHandle{
		statusPath: filepath.Join(logDir, "status.json"),
		cancel:     cancel,
		done:       make(chan launchResult, 1),
	}
	go func() {
		answer, err := sched.Run(childCtx)
		h.done <- launchResult{answer: answer, err: err}
	}()
	return h, nil
}

func (h *launcherHandle) StatusPath() string { return h.statusPath }

func (h *launcherHandle) Cancel() { h.cancel() }

func (h *launcherHandle) Wait(ctx context.Context) (subagent.Outcome, error) {
	select {
	case r := <-h.done:
		if r.err != nil {
			return subagent.Outcome{}, r.err
		}
		return subagent.Outcome{
			Answer:               r.answer.Content,
			WorkspacePath:        r.answer.SnapshotPath,
			CompletionPercentage: 100,
		}, nil
	case <-ctx.Done():
		return subagent.Outcome{}, ctx.Err()
	}
}
