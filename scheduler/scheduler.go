// Package scheduler implements the Coordination Scheduler (spec §4.5): the
// component driving one Agent Runner per agent in parallel, owning the
// single mutable CoordinationState (outstanding answers, votes, voting
// round, phase), vetoing workflow tool calls via the agentrunner.Validator
// seam, performing inject-and-continue delivery of peer UPDATEs, selecting
// a consensus winner, and running the final-presentation turn.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"massgen.dev/coordination/agent"
	"massgen.dev/coordination/agentrunner"
	"massgen.dev/coordination/config"
	"massgen.dev/coordination/engine"
	"massgen.dev/coordination/engine/inmem"
	"massgen.dev/coordination/hooks"
	"massgen.dev/coordination/model"
	"massgen.dev/coordination/observability"
	"massgen.dev/coordination/run"
	"massgen.dev/coordination/telemetry"
	"massgen.dev/coordination/toolerrors"
	"massgen.dev/coordination/toolpipeline"
	"massgen.dev/coordination/tools"
	"massgen.dev/coordination/workspace"
)

// coordinationState is the Scheduler's single mutable record of a run's
// progress (spec §3, §4.5). All access goes through Scheduler's methods,
// which hold mu for the duration of any read or write.
type coordinationState struct {
	mu sync.Mutex

	phase       run.Phase
	votingRound int

	answers []run.Answer
	votes   []run.Vote

	submissions  map[agent.Ident]int
	dropped      map[agent.Ident]bool
	nonCompliant map[agent.Ident]bool

	winner *run.Answer

	// changed is closed and replaced every time a field read by a blocked
	// voter (votingRound, votes, dropped, nonCompliant) is mutated, waking
	// driveAgent's post-vote holding loop (spec §4.5 "all votes from prior
	// rounds are marked invalid ... the agents that already voted are
	// re-queued for action").
	changed chan struct{}
}

func newCoordinationState() *coordinationState {
	return &coordinationState{
		phase:        run.PhaseInitialAnswer,
		submissions:  make(map[agent.Ident]int),
		dropped:      make(map[agent.Ident]bool),
		nonCompliant: make(map[agent.Ident]bool),
		changed:      make(chan struct{}),
	}
}

// notifyChanged wakes any goroutine blocked in Scheduler.awaitRevoteOrSettled.
// Callers must hold mu.
func (cs *coordinationState) notifyChanged() {
	close(cs.changed)
	cs.changed = make(chan struct{})
}

// Scheduler owns one coordination run: it drives every configured agent's
// Runner to completion, arbitrates workflow tool calls, and produces a
// single winning run.Answer.
type Scheduler struct {
	RunID string
	Task  run.Task

	Agents     map[agent.Ident]*agentrunner.Runner
	Workspaces *workspace.Manager
	Bus        hooks.Bus
	Store      *observability.Store
	Config     config.CoordinationConfig

	// Engine drives each agent's driveAgent loop as a workflow execution
	// (spec §2.1, §5 "the scheduler runs on engine.Engine, in-memory by
	// default, Temporal optional for durable coordination runs"). Defaults
	// to engine/inmem in NewScheduler; assign an engine/temporal.Engine
	// instead for a durable backend.
	Engine engine.Engine

	Logger  telemetry.Logger
	Metrics telemetry.Metrics

	state *coordinationState

	cancelOnce sync.Once
	cancelAll  context.CancelFunc
}

// NewScheduler constructs a Scheduler and wires itself in as every agent's
// Validator, so the Runners never import this package directly (spec §4.4
// "Validator lets the Scheduler veto a workflow tool call").
func NewScheduler(runID string, task run.Task, agents map[agent.Ident]*agentrunner.Runner, workspaces *workspace.Manager, bus hooks.Bus, store *observability.Store, cfg config.CoordinationConfig) *Scheduler {
	s := &Scheduler{
		RunID:      runID,
		Task:       task,
		Agents:     agents,
		Workspaces: workspaces,
		Bus:        bus,
		Store:      store,
		Config:     cfg,
		Engine:     inmem.New(),
		state:      newCoordinationState(),
	}
	for _, r := range agents {
		r.Validator = s
	}
	return s
}

// Run drives every agent to a terminal personal outcome (voted,
// non_compliant, or failed), selects a winner, runs final presentation, and
// returns the winning run.Answer. ctx's deadline is the overall-timeout
// boundary (spec §4.5 "Overall-timeout recovery").
func (s *Scheduler) Run(ctx context.Context) (*run.Answer, error) {
	agentCtx, cancel := context.WithCancel(ctx)
	s.cancelAll = cancel
	defer cancel()

	eng := s.Engine
	if eng == nil {
		eng = inmem.New()
	}
	workflowName := fmt.Sprintf("coordination.driveAgent.%s", s.RunID)
	if err := eng.RegisterWorkflow(agentCtx, engine.WorkflowDefinition{
		Name:    workflowName,
		Handler: s.driveAgentWorkflow,
	}); err != nil {
		return nil, fmt.Errorf("scheduler: register workflow: %w", err)
	}

	var wg sync.WaitGroup
	for id := range s.Agents {
		id := id
		handle, err := eng.StartWorkflow(agentCtx, engine.WorkflowStartRequest{
			ID:       fmt.Sprintf("%s-%s", s.RunID, id),
			Workflow: workflowName,
			Input:    id,
		})
		if err != nil {
			s.fail(id, err)
			continue
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = handle.Wait(agentCtx, nil)
		}()
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		winner := s.selectWinner()
		return s.present(ctx, winner)
	case <-ctx.Done():
		s.stopAll()
		winner := s.timeoutRecovery()
		return s.present(ctx, winner)
	}
}

func (s *Scheduler) stopAll() {
	s.cancelOnce.Do(func() {
		if s.cancelAll != nil {
			s.cancelAll()
		}
	})
}

// driveAgentWorkflow adapts driveAgent to engine.WorkflowFunc so it runs as
// a workflow execution on whichever Engine the Scheduler was given
// (engine/inmem by default, engine/temporal for durable coordination
// runs), rather than as a bare goroutine.
func (s *Scheduler) driveAgentWorkflow(wc engine.WorkflowContext, input any) (any, error) {
	id, _ := input.(agent.Ident)
	s.driveAgent(wc.Context(), id)
	return nil, nil
}

// driveAgent runs one agent's Runner to a terminal personal state: a
// validated vote, non-compliance, or failure. A new_answer outcome loops
// back into another Run call, since an agent may submit several answers
// before eventually voting (spec §4.5 "must ultimately call either
// new_answer or vote"). A vote outcome holds the agent here rather than
// returning immediately: if a later answer from another agent bumps the
// voting round, this agent's vote is invalidated and it is re-queued for
// another turn (spec §4.5, §3 "the agents that already voted are re-queued
// for action"); it returns only once every live agent has cast a vote for
// the current round, or the run context ends.
func (s *Scheduler) driveAgent(ctx context.Context, id agent.Ident) {
	r := s.Agents[id]
	history := s.initialHistory(id)
	for {
		label := run.NextLabel(id, s.priorSubmissions(id))
		outcome, err := r.Run(ctx, history, string(label))
		if err != nil {
			s.fail(id, err)
			return
		}

		switch outcome.Kind {
		case agentrunner.OutcomeNewAnswer:
			history = s.recordAnswer(ctx, id, outcome.Content, outcome.History)
			continue
		case agentrunner.OutcomeVote:
			votedRound := s.recordVote(ctx, id, outcome.TargetLabel, outcome.Reason)
			history = outcome.History
			if s.awaitRevoteOrSettled(ctx, votedRound) {
				continue
			}
			return
		case agentrunner.OutcomeNonCompliant:
			s.markNonCompliant(id)
			return
		}
	}
}

func (s *Scheduler) initialHistory(id agent.Ident) []*model.Message {
	return []*model.Message{
		{Role: model.ConversationRoleUser, Parts: []model.Part{model.TextPart{Text: s.Task.Question}}},
	}
}

func (s *Scheduler) priorSubmissions(id agent.Ident) int {
	s.state.mu.Lock()
	defer s.state.mu.Unlock()
	return s.state.submissions[id]
}

// recordAnswer performs the Scheduler's inject-and-continue algorithm (spec
// §4.5 steps 1-4): snapshot, bump the voting round and invalidate prior
// votes, append to the outstanding set, and queue an UPDATE to every other
// non-terminal runner.
func (s *Scheduler) recordAnswer(ctx context.Context, id agent.Ident, content string, history []*model.Message) []*model.Message {
	r := s.Agents[id]
	ws := s.workspaceFor(id)

	label := run.NextLabel(id, s.priorSubmissions(id))
	trace := ""
	if r.Trace != nil {
		trace = r.Trace.Render()
	}
	ref, err := s.Workspaces.Snapshot(ws, string(label), content, trace)
	if err != nil && s.Logger != nil {
		s.Logger.Warn(ctx, "scheduler: snapshot failed", "agent", id, "error", err)
	}

	ans := run.Answer{
		Label:        label,
		AgentID:      id,
		Content:      content,
		SubmittedAt:  time.Now(),
		SnapshotPath: ref.SnapshotPath,
	}

	s.state.mu.Lock()
	s.state.submissions[id]++
	s.state.answers = append(s.state.answers, ans)
	s.state.votingRound++
	from := s.state.phase
	if s.state.phase == run.PhaseInitialAnswer {
		s.state.phase = run.PhaseEnforcement
	}
	to := s.state.phase
	votingRound := s.state.votingRound
	s.state.notifyChanged()
	s.state.mu.Unlock()

	if s.Bus != nil {
		_ = s.Bus.Publish(ctx, hooks.NewAnswerSubmittedEvent(s.RunID, id, string(label), votingRound))
		if from != to {
			_ = s.Bus.Publish(ctx, hooks.NewPhaseChangedEvent(s.RunID, string(from), string(to)))
		}
	}
	if s.Store != nil {
		_ = s.Store.Mutate(func(st *observability.Status) {
			st.Coordination.Phase = to
			st.Coordination.CurrentVotingRound = votingRound
			st.Results.Votes = make(map[string]int)
			st.HistoricalWorkspaces = append(st.HistoricalWorkspaces, observability.HistoricalWorkspace{
				AgentID: string(id), AnswerLabel: string(label), Timestamp: ans.SubmittedAt, WorkspacePath: ref.SnapshotPath,
			})
			st.AgentOf(string(id)).RuntimeStatus = "answered"
		})
	}

	s.injectUpdate(ans)
	return history
}

// injectUpdate queues an UPDATE payload to every other runner not currently
// in a terminal workflow state (spec §4.5 step 4). A previously-voted
// runner still receives the UPDATE: the new answer just bumped the voting
// round and invalidated its vote, so it must be re-queued for action
// rather than skipped (spec §3, §4.5 "the agents that already voted are
// re-queued for action").
func (s *Scheduler) injectUpdate(ans run.Answer) {
	msg := &model.Message{
		Role: model.ConversationRoleUser,
		Parts: []model.Part{model.TextPart{Text: fmt.Sprintf(
			"UPDATE: %s submitted answer %s (snapshot: %s)\n\n%s",
			ans.AgentID, ans.Label, ans.SnapshotPath, ans.Content,
		)}},
		Meta: map[string]any{"source_agent": ans.AgentID},
	}
	for id, r := range s.Agents {
		if id == ans.AgentID {
			continue
		}
		if r.State() == agentrunner.StateFailed {
			continue
		}
		r.Inject(msg)
	}
}

// recordVote appends v to the tally and returns the voting round it was
// cast for, so driveAgent can detect a later invalidation (spec §4.5 "votes
// from prior rounds are marked invalid").
func (s *Scheduler) recordVote(ctx context.Context, id agent.Ident, target, reason string) int {
	s.state.mu.Lock()
	v := run.Vote{VoterAgentID: id, Target: run.AnswerLabel(target), Reason: reason, VotingRound: s.state.votingRound, SubmittedAt: time.Now()}
	s.state.votes = append(s.state.votes, v)
	s.state.notifyChanged()
	s.state.mu.Unlock()

	if s.Bus != nil {
		_ = s.Bus.Publish(ctx, hooks.NewVoteCastEvent(s.RunID, id, target, v.VotingRound))
	}
	if s.Store != nil {
		_ = s.Store.Mutate(func(st *observability.Status) {
			st.Results.Votes[target]++
			st.AgentOf(string(id)).RuntimeStatus = "voted"
		})
	}
	return v.VotingRound
}

// awaitRevoteOrSettled blocks after a vote for votedRound. It reports true
// (re-drive the agent with its saved history) once a later answer bumps
// votingRound past votedRound, invalidating the vote. It reports false
// (this agent's participation is over) once every live agent has cast a
// vote for the current round, or ctx ends.
func (s *Scheduler) awaitRevoteOrSettled(ctx context.Context, votedRound int) bool {
	for {
		s.state.mu.Lock()
		if s.state.votingRound != votedRound {
			s.state.mu.Unlock()
			return true
		}
		if s.consensusReachedLocked() {
			s.state.mu.Unlock()
			return false
		}
		wake := s.state.changed
		s.state.mu.Unlock()

		select {
		case <-wake:
		case <-ctx.Done():
			return false
		}
	}
}

// consensusReachedLocked reports whether every agent that is not dropped or
// non-compliant has cast a vote for the current voting round. Callers must
// hold s.state.mu.
func (s *Scheduler) consensusReachedLocked() bool {
	voted := make(map[agent.Ident]bool, len(s.state.votes))
	for _, v := range s.state.votes {
		if v.VotingRound == s.state.votingRound {
			voted[v.VoterAgentID] = true
		}
	}
	for id := range s.Agents {
		if s.state.dropped[id] || s.state.nonCompliant[id] {
			continue
		}
		if !voted[id] {
			return false
		}
	}
	return true
}

func (s *Scheduler) markNonCompliant(id agent.Ident) {
	s.state.mu.Lock()
	s.state.nonCompliant[id] = true
	s.state.notifyChanged()
	s.state.mu.Unlock()

	if s.Store != nil {
		_ = s.Store.Mutate(func(st *observability.Status) {
			st.AgentOf(string(id)).Outcome = observability.AgentOutcomeNonCompliant
		})
	}
}

func (s *Scheduler) fail(id agent.Ident, err error) {
	s.state.mu.Lock()
	s.state.dropped[id] = true
	s.state.notifyChanged()
	s.state.mu.Unlock()

	if s.Logger != nil {
		s.Logger.Error(context.Background(), "scheduler: agent failed", "agent", id, "error", err)
	}
	if s.Store != nil {
		_ = s.Store.Mutate(func(st *observability.Status) {
			st.AgentOf(string(id)).Outcome = observability.AgentOutcomeDropped
		})
	}
}

func (s *Scheduler) workspaceFor(id agent.Ident) *workspace.Workspace {
	ws, err := s.Workspaces.CreateWorkspace(id)
	if err != nil {
		return &workspace.Workspace{AgentID: id}
	}
	return ws
}

// selectWinner picks the consensus winner once every agent has reached a
// terminal personal state (spec §4.5 "Consensus & voting"): highest live
// vote count, ties broken by earliest answer-submission order. A
// single-agent run with skip_voting bypasses the vote tally entirely.
func (s *Scheduler) selectWinner() *run.Answer {
	s.state.mu.Lock()
	defer s.state.mu.Unlock()

	if s.Config.SkipVoting && len(s.Agents) == 1 && len(s.state.answers) > 0 {
		a := s.state.answers[len(s.state.answers)-1]
		return &a
	}

	tally := make(map[run.AnswerLabel]int)
	for _, v := range s.state.votes {
		if v.VotingRound != s.state.votingRound {
			continue
		}
		tally[v.Target]++
	}
	if len(tally) == 0 {
		if len(s.state.answers) > 0 && (s.Config.SkipVoting || len(s.Agents) == 1) {
			a := s.state.answers[len(s.state.answers)-1]
			return &a
		}
		return nil
	}

	var best *run.Answer
	bestCount := -1
	for i := range s.state.answers {
		a := &s.state.answers[i]
		count, ok := tally[a.Label]
		if !ok {
			continue
		}
		if count > bestCount {
			bestCount = count
			best = a
		}
	}
	return best
}

// timeoutRecovery implements overall-timeout recovery (spec §4.5): the
// live-vote winner if one exists, else the answer with the earliest
// SubmittedAt, else failure. Agent registration order is not consulted:
// Agents is a map and no separate order is kept.
func (s *Scheduler) timeoutRecovery() *run.Answer {
	if w := s.selectWinner(); w != nil {
		return w
	}
	s.state.mu.Lock()
	defer s.state.mu.Unlock()
	if len(s.state.answers) == 0 {
		return nil
	}
	earliest := s.state.answers[0]
	for _, a := range s.state.answers[1:] {
		if a.SubmittedAt.Before(earliest.SubmittedAt) {
			earliest = a
		}
	}
	return &earliest
}

// present runs the final-presentation turn for winner (spec §4.5 "Final
// presentation") and transitions to the done phase, or transitions to
// failed if no winner could be chosen.
func (s *Scheduler) present(ctx context.Context, winner *run.Answer) (*run.Answer, error) {
	if winner == nil {
		s.transitionFailed(ctx)
		return nil, fmt.Errorf("scheduler: no recoverable answer")
	}

	s.state.mu.Lock()
	from := s.state.phase
	s.state.phase = run.PhasePresentation
	s.state.mu.Unlock()
	if s.Bus != nil {
		_ = s.Bus.Publish(ctx, hooks.NewPhaseChangedEvent(s.RunID, string(from), string(run.PhasePresentation)))
	}
	if s.Store != nil {
		_ = s.Store.Mutate(func(st *observability.Status) {
			st.Coordination.Phase = run.PhasePresentation
			st.Results.Winner = string(winner.Label)
		})
	}

	final, err := s.presentFinal(ctx, *winner)
	if err != nil {
		s.transitionFailed(ctx)
		return nil, err
	}
	s.transitionDone(ctx, final)
	return final, nil
}

// refinementEnabled reports whether the run is configured for iterative
// multi-turn answer refinement (spec §4.5 "refinement enabled/disabled"),
// which this core maps onto planning mode since no other configuration
// field distinguishes the two.
func (s *Scheduler) refinementEnabled() bool {
	return s.Config.EnablePlanningMode
}

func (s *Scheduler) presentFinal(ctx context.Context, winner run.Answer) (*run.Answer, error) {
	ws := s.workspaceFor(winner.AgentID)
	writable := false
	for _, cp := range ws.ContextPaths {
		if cp.Permission == workspace.PermissionWrite {
			writable = true
			break
		}
	}
	if s.Config.SkipFinalPresentation || (!writable && !s.refinementEnabled()) {
		label := run.FinalLabel(winner.AgentID)
		final := winner
		final.Label = label
		return &final, nil
	}

	if err := s.Workspaces.EnableWriteAccess(ws); err != nil {
		return nil, fmt.Errorf("scheduler: enable write access: %w", err)
	}
	prior := s.Workspaces.SnapshotMtimeIndex(ws)

	r := s.Agents[winner.AgentID]
	content := winner.Content
	if r != nil && r.Backend != nil {
		if text, derr := s.runPresentationTurn(ctx, r, winner); derr == nil && strings.TrimSpace(text) != "" {
			content = text
		}
	}

	written, err := s.Workspaces.DiffAgainst(ws, prior)
	if err != nil {
		return nil, fmt.Errorf("scheduler: diff write tracking: %w", err)
	}
	if len(written) > 0 {
		content = content + "\n\n## Files written\n\n" + strings.Join(written, "\n")
	}

	label := run.FinalLabel(winner.AgentID)
	trace := ""
	if r != nil && r.Trace != nil {
		trace = r.Trace.Render()
	}
	ref, err := s.Workspaces.Snapshot(ws, string(label), content, trace)
	if err != nil {
		return nil, fmt.Errorf("scheduler: final snapshot: %w", err)
	}

	return &run.Answer{
		Label:        label,
		AgentID:      winner.AgentID,
		Content:      content,
		SubmittedAt:  time.Now(),
		SnapshotPath: ref.SnapshotPath,
	}, nil
}

// runPresentationTurn performs one non-enforced model turn asking the
// winner to finalize its answer with write access enabled, dispatching any
// tool calls it requests through the same pipeline the agent's normal loop
// uses. Unlike agentrunner.Runner.Run, this is a single turn: the winner
// has already reached consensus, so no workflow-tool enforcement applies.
func (s *Scheduler) runPresentationTurn(ctx context.Context, r *agentrunner.Runner, winner run.Answer) (string, error) {
	prompt := fmt.Sprintf("Your answer %s was selected by the group. Finalize it now: make any remaining edits to writable files, then restate your final answer in full.", winner.Label)
	req := &model.Request{
		AgentID:  string(r.AgentID),
		Messages: []*model.Message{{Role: model.ConversationRoleUser, Parts: []model.Part{model.TextPart{Text: prompt}}}},
		Tools:    r.ToolDefs,
	}
	stream, err := r.Backend.Stream(ctx, req)
	if err != nil {
		return "", err
	}
	defer stream.Close()

	var text strings.Builder
	for {
		chunk, err := stream.Recv()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return text.String(), err
		}
		switch chunk.Type {
		case model.ChunkTypeText:
			if chunk.Message != nil {
				for _, p := range chunk.Message.Parts {
					if tp, ok := p.(model.TextPart); ok {
						text.WriteString(tp.Text)
					}
				}
			}
		case model.ChunkTypeToolCall:
			if chunk.ToolCall != nil && r.Pipeline != nil {
				_, _ = r.Pipeline.Dispatch(ctx, toolCallToDispatch(r, chunk.ToolCall, winner.Label), r.Trace)
			}
		case model.ChunkTypeStop:
			return text.String(), nil
		}
	}
	return text.String(), nil
}

func toolCallToDispatch(r *agentrunner.Runner, tc *model.ToolCall, roundLabel run.AnswerLabel) toolpipeline.Call {
	return toolpipeline.Call{
		AgentID:    r.AgentID,
		RunID:      r.RunID,
		ToolName:   tools.Ident(tc.Name),
		ToolCallID: tc.ID,
		Payload:    tc.Payload,
		RoundLabel: string(roundLabel),
	}
}

func (s *Scheduler) transitionDone(ctx context.Context, final *run.Answer) {
	s.state.mu.Lock()
	from := s.state.phase
	s.state.phase = run.PhaseDone
	s.state.winner = final
	s.state.mu.Unlock()

	if s.Bus != nil {
		_ = s.Bus.Publish(ctx, hooks.NewPhaseChangedEvent(s.RunID, string(from), string(run.PhaseDone)))
	}
	if s.Store != nil {
		_ = s.Store.Mutate(func(st *observability.Status) {
			st.Coordination.Phase = run.PhaseDone
			st.Coordination.CompletionPercentage = 100
			st.Results.Winner = string(final.Label)
			st.HistoricalWorkspaces = append(st.HistoricalWorkspaces, observability.HistoricalWorkspace{
				AgentID: string(final.AgentID), AnswerLabel: string(final.Label), Timestamp: final.SubmittedAt, WorkspacePath: final.SnapshotPath,
			})
		})
	}
}

func (s *Scheduler) transitionFailed(ctx context.Context) {
	s.state.mu.Lock()
	from := s.state.phase
	s.state.phase = run.PhaseFailed
	s.state.mu.Unlock()

	if s.Bus != nil {
		_ = s.Bus.Publish(ctx, hooks.NewPhaseChangedEvent(s.RunID, string(from), string(run.PhaseFailed)))
	}
	if s.Store != nil {
		_ = s.Store.Mutate(func(st *observability.Status) {
			st.Coordination.Phase = run.PhaseFailed
		})
	}
}

// --- agentrunner.Validator implementation ---

// ValidateNewAnswer implements agentrunner.Validator (spec §4.5 "Workflow
// enforcement" reason codes answer_limit, answer_novelty, answer_duplicate).
func (s *Scheduler) ValidateNewAnswer(ctx context.Context, id agent.Ident, content string) agentrunner.ValidationOutcome {
	s.state.mu.Lock()
	defer s.state.mu.Unlock()

	if s.state.submissions[id] >= s.Config.EffectiveMaxAnswersPerAgent() {
		return agentrunner.ValidationOutcome{Reason: toolerrors.ReasonAnswerLimit, Message: "answer submission limit reached"}
	}

	trimmed := strings.TrimSpace(content)
	var lastOwn *run.Answer
	for i := len(s.state.answers) - 1; i >= 0; i-- {
		if s.state.answers[i].AgentID == id {
			lastOwn = &s.state.answers[i]
			break
		}
	}
	if lastOwn != nil && strings.TrimSpace(lastOwn.Content) == trimmed {
		return agentrunner.ValidationOutcome{Reason: toolerrors.ReasonAnswerDuplicate, Message: "identical to your own prior submission"}
	}

	latestByAgent := make(map[agent.Ident]string)
	for _, a := range s.state.answers {
		if a.AgentID != id {
			latestByAgent[a.AgentID] = strings.TrimSpace(a.Content)
		}
	}
	for other, c := range latestByAgent {
		if c == trimmed {
			return agentrunner.ValidationOutcome{Reason: toolerrors.ReasonAnswerNovelty, Message: fmt.Sprintf("identical to %s's current answer", other)}
		}
	}

	return agentrunner.ValidationOutcome{Valid: true}
}

// ValidateVote implements agentrunner.Validator (spec §4.5 reason codes
// invalid_vote_id, vote_no_answers, and the DeferVotingUntilAllAnswered
// gate, which this core maps onto vote_no_answers since the spec defines
// no distinct reason code for "not all agents have answered yet").
func (s *Scheduler) ValidateVote(ctx context.Context, id agent.Ident, targetLabel, reason string) agentrunner.ValidationOutcome {
	s.state.mu.Lock()
	defer s.state.mu.Unlock()

	if len(s.state.answers) == 0 {
		return agentrunner.ValidationOutcome{Reason: toolerrors.ReasonVoteNoAnswers, Message: "no answers exist to vote for"}
	}

	found := false
	for _, a := range s.state.answers {
		if string(a.Label) == targetLabel {
			found = true
			break
		}
	}
	if !found {
		return agentrunner.ValidationOutcome{Reason: toolerrors.ReasonInvalidVoteID, Message: "unknown answer label " + targetLabel}
	}

	if s.Config.DeferVotingUntilAllAnswered && s.Config.DisableInjection {
		for agentID := range s.Agents {
			if s.state.dropped[agentID] || s.state.nonCompliant[agentID] {
				continue
			}
			if s.state.submissions[agentID] == 0 {
				return agentrunner.ValidationOutcome{Reason: toolerrors.ReasonVoteNoAnswers, Message: "waiting for all agents to submit an initial answer"}
			}
		}
	}

	return agentrunner.ValidationOutcome{Valid: true}
}
