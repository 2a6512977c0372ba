// Package subagent implements the Subagent Lifecycle Manager (spec §4.6):
// blocking and background spawning of nested coordination sessions, bounded
// background concurrency via a max_background semaphore, and cancellation
// recovery that reads a cancelled child's Observability Store status.json
// instead of discarding partial work.
package subagent

import (
	"context"
	"fmt"
	"sync"
	"time"

	"massgen.dev/coordination/agent"
	"massgen.dev/coordination/config"
	"massgen.dev/coordination/hooks"
	"massgen.dev/coordination/observability"
	"massgen.dev/coordination/run"
	"massgen.dev/coordination/workspace"
)

// Status classifies how a Result was obtained (spec §4.6 step 1-5).
type Status string

const (
	// StatusCompleted means the subagent finished naturally within its timeout.
	StatusCompleted Status = "completed"
	// StatusCompletedButTimeout means the subagent was cancelled once its
	// inner status.json reached the presentation phase; the winner's
	// answer was recovered from its snapshot.
	StatusCompletedButTimeout Status = "completed_but_timeout"
	// StatusPartial means the subagent was cancelled mid-enforcement and a
	// best-effort answer (vote winner, or first submission) was recovered.
	StatusPartial Status = "partial"
	// StatusTimeout means the subagent was cancelled with nothing to
	// recover: no answer existed at cancellation.
	StatusTimeout Status = "timeout"
	// StatusError means the subagent failed to start.
	StatusError Status = "error"
)

type (
	// Task describes one nested coordination session requested by a parent
	// agent's spawn_subagents call.
	Task struct {
		// ID identifies this subagent within the parent's batch.
		ID string
		// Context is the task/question handed to the nested session.
		Context string
		// Timeout is the requested wall-clock bound; zero means use the
		// configured default. It is clamped into
		// config.CoordinationConfig.EffectiveTimeouts().
		Timeout time.Duration
	}

	// Result is the spec's PendingSubagentResult (§3 glossary): queued at
	// completion (natural or recovered), drained at the parent's next tool
	// boundary by SubagentCompleteHook.
	Result struct {
		ParentAgentID agent.Ident
		SubagentID    string
		Status        Status
		Answer        string
		InputTokens   int64
		OutputTokens  int64
		// CompletionPercentage reflects the recovered coordination progress
		// when Status is not StatusCompleted.
		CompletionPercentage float64
		WorkspacePath        string
		Warnings             []string
		Duration             time.Duration
	}

	// Outcome is what a Handle yields on natural (non-cancelled) completion.
	Outcome struct {
		Answer               string
		InputTokens          int64
		OutputTokens         int64
		WorkspacePath        string
		CompletionPercentage float64
	}

	// Handle represents one running nested coordination session.
	Handle interface {
		// StatusPath is the filesystem path to the nested session's
		// Observability Store status.json, valid as soon as Launch
		// returns and readable even after Cancel (spec §4.6 step 1).
		StatusPath() string
		// Wait blocks until the session finishes naturally or ctx is done.
		Wait(ctx context.Context) (Outcome, error)
		// Cancel requests cooperative cancellation of the session.
		Cancel()
	}

	// Launcher starts nested coordination sessions. The scheduler package
	// supplies the concrete implementation (one in-process agent roster
	// running against the same engine); this package depends only on the
	// interface so the dependency points scheduler -> subagent, never back.
	Launcher interface {
		Launch(ctx context.Context, parentAgentID agent.Ident, task Task) (Handle, error)
	}

	// ResultQueue is a parent-scoped FIFO of completed background subagent
	// results, drained by SubagentCompleteHook at the parent's next tool
	// boundary (spec §4.3, §4.6).
	ResultQueue interface {
		Push(parentAgentID agent.Ident, res Result)
		Drain(parentAgentID agent.Ident) []Result
	}
)

// MemQueue is an in-process ResultQueue backed by a mutex-protected map.
type MemQueue struct {
	mu      sync.Mutex
	pending map[agent.Ident][]Result
}

// NewMemQueue returns an empty MemQueue.
func NewMemQueue() *MemQueue {
	return &MemQueue{pending: make(map[agent.Ident][]Result)}
}

// Push appends res to parentAgentID's pending queue.
func (q *MemQueue) Push(parentAgentID agent.Ident, res Result) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.pending[parentAgentID] = append(q.pending[parentAgentID], res)
}

// Drain removes and returns every result queued for parentAgentID.
func (q *MemQueue) Drain(parentAgentID agent.Ident) []Result {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := q.pending[parentAgentID]
	delete(q.pending, parentAgentID)
	return out
}

// Manager runs blocking and background subagent spawns under a
// max_background semaphore and performs cancellation recovery.
type Manager struct {
	Launcher Launcher
	Queue    ResultQueue
	Bus      hooks.Bus
	RunID    string

	Coordination config.CoordinationConfig

	sem chan struct{}
}

// NewManager constructs a Manager. cfg's AsyncSubagents.MaxBackground bounds
// concurrent background tasks; timeouts are clamped per
// cfg.EffectiveTimeouts().
func NewManager(launcher Launcher, queue ResultQueue, bus hooks.Bus, runID string, cfg config.CoordinationConfig) *Manager {
	m := &Manager{Launcher: launcher, Queue: queue, Bus: bus, RunID: runID, Coordination: cfg}
	if cfg.AsyncSubagents.Enabled && cfg.AsyncSubagents.MaxBackground > 0 {
		m.sem = make(chan struct{}, cfg.AsyncSubagents.MaxBackground)
	}
	return m
}

// Spawn runs tasks for parentAgentID. Blocking mode (async=false) waits for
// every task and returns their results directly, for the Agent Runner to
// feed back as the spawn_subagents tool result. Async mode starts each task
// under the max_background semaphore and returns immediately with a nil
// slice; results are delivered later via the ResultQueue and
// SubagentCompleted event.
func (m *Manager) Spawn(ctx context.Context, parentAgentID agent.Ident, tasks []Task, async bool) ([]Result, error) {
	if len(tasks) == 0 {
		return nil, nil
	}
	if !async {
		return m.runAll(ctx, parentAgentID, tasks), nil
	}
	for _, t := range tasks {
		t := t
		go m.runBackground(parentAgentID, t)
	}
	return nil, nil
}

func (m *Manager) runAll(ctx context.Context, parentAgentID agent.Ident, tasks []Task) []Result {
	results := make([]Result, len(tasks))
	var wg sync.WaitGroup
	for i, t := range tasks {
		i, t := i, t
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i] = m.run(ctx, parentAgentID, t)
		}()
	}
	wg.Wait()
	return results
}

func (m *Manager) runBackground(parentAgentID agent.Ident, t Task) {
	if m.sem != nil {
		m.sem <- struct{}{}
		defer func() { <-m.sem }()
	}
	res := m.run(context.Background(), parentAgentID, t)
	m.Queue.Push(parentAgentID, res)
	if m.Bus != nil {
		_ = m.Bus.Publish(context.Background(), hooks.NewSubagentCompletedEvent(m.RunID, parentAgentID, t.ID, string(res.Status)))
	}
}

func (m *Manager) run(ctx context.Context, parentAgentID agent.Ident, t Task) Result {
	timeout := m.clampTimeout(t.Timeout)
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	handle, err := m.Launcher.Launch(runCtx, parentAgentID, t)
	if err != nil {
		return Result{
			ParentAgentID: parentAgentID,
			SubagentID:    t.ID,
			Status:        StatusError,
			Warnings:      []string{err.Error()},
			Duration:      time.Since(start),
		}
	}

	outcome, waitErr := handle.Wait(runCtx)
	duration := time.Since(start)
	if waitErr == nil {
		return Result{
			ParentAgentID:        parentAgentID,
			SubagentID:           t.ID,
			Status:               StatusCompleted,
			Answer:               outcome.Answer,
			InputTokens:          outcome.InputTokens,
			OutputTokens:         outcome.OutputTokens,
			CompletionPercentage: 100,
			WorkspacePath:        outcome.WorkspacePath,
			Duration:             duration,
		}
	}

	handle.Cancel()
	return m.recover(parentAgentID, t, handle.StatusPath(), duration, waitErr)
}

func (m *Manager) clampTimeout(requested time.Duration) time.Duration {
	minT, maxT, defT := m.Coordination.EffectiveTimeouts()
	switch {
	case requested <= 0:
		return defT
	case requested < minT:
		return minT
	case requested > maxT:
		return maxT
	default:
		return requested
	}
}

// recover implements the cancellation-recovery algorithm (spec §4.6 steps
// 1-5): read the child's status.json, map its last observed phase to an
// outer status, and never report a hard-coded timeout when content could be
// recovered.
func (m *Manager) recover(parentAgentID agent.Ident, t Task, statusPath string, duration time.Duration, cause error) Result {
	base := Result{
		ParentAgentID: parentAgentID,
		SubagentID:    t.ID,
		Duration:      duration,
		Warnings:      []string{fmt.Sprintf("subagent cancelled: %v", cause)},
	}

	view, full, err := observability.ReadSimplified(statusPath)
	if err != nil {
		base.Status = StatusTimeout
		base.Warnings = append(base.Warnings, fmt.Sprintf("status.json unreadable: %v", err))
		return base
	}

	base.InputTokens = view.InputTokens
	base.OutputTokens = view.OutputTokens
	base.CompletionPercentage = view.CompletionPercentage

	switch full.Coordination.Phase {
	case run.PhasePresentation:
		if hw, ok := historicalFor(full, full.Results.Winner); ok {
			base.WorkspacePath = hw.WorkspacePath
			if ans, rerr := workspace.ReadAnswer(hw.WorkspacePath); rerr == nil {
				base.Answer = ans
				base.Status = StatusCompletedButTimeout
				return base
			}
			base.Warnings = append(base.Warnings, "presentation phase reached but winner answer unreadable")
		}
		base.Status = StatusTimeout
		return base

	case run.PhaseEnforcement:
		if hw, ok := voteWinner(full); ok {
			base.WorkspacePath = hw.WorkspacePath
			if ans, rerr := workspace.ReadAnswer(hw.WorkspacePath); rerr == nil {
				base.Answer = ans
			}
			base.Status = StatusPartial
			return base
		}
		if hw, ok := firstAnswer(full); ok {
			base.WorkspacePath = hw.WorkspacePath
			if ans, rerr := workspace.ReadAnswer(hw.WorkspacePath); rerr == nil {
				base.Answer = ans
			}
			base.Status = StatusPartial
			return base
		}
		base.Status = StatusTimeout
		return base

	default:
		base.Status = StatusTimeout
		return base
	}
}

func historicalFor(st *observability.Status, label string) (observability.HistoricalWorkspace, bool) {
	if label == "" {
		return observability.HistoricalWorkspace{}, false
	}
	for _, hw := range st.HistoricalWorkspaces {
		if hw.AnswerLabel == label {
			return hw, true
		}
	}
	return observability.HistoricalWorkspace{}, false
}

// voteWinner selects the same way §4.5's live-vote winner does: highest
// vote count, earliest submission breaking ties.
func voteWinner(st *observability.Status) (observability.HistoricalWorkspace, bool) {
	if len(st.Results.Votes) == 0 {
		return observability.HistoricalWorkspace{}, false
	}
	var best observability.HistoricalWorkspace
	bestCount := -1
	found := false
	for label, count := range st.Results.Votes {
		hw, ok := historicalFor(st, label)
		if !ok {
			continue
		}
		if count > bestCount || (count == bestCount && hw.Timestamp.Before(best.Timestamp)) {
			best = hw
			bestCount = count
			found = true
		}
	}
	return best, found
}

// firstAnswer returns the earliest-submitted answer when answers exist but
// no votes were cast (spec §4.6 step 4, "first registered agent's answer").
func firstAnswer(st *observability.Status) (observability.HistoricalWorkspace, bool) {
	if len(st.HistoricalWorkspaces) == 0 {
		return observability.HistoricalWorkspace{}, false
	}
	earliest := st.HistoricalWorkspaces[0]
	for _, hw := range st.HistoricalWorkspaces[1:] {
		if hw.Timestamp.Before(earliest.Timestamp) {
			earliest = hw
		}
	}
	return earliest, true
}
