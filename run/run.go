// Package run defines the data shared by every coordination run: the fixed
// Task the agents are working, and the append-only Answer/Vote records that
// accumulate as agents submit and endorse candidate answers (spec §3).
//
// # Core concepts
//
// Task (immutable): the user-provided question plus the enclosing session
// (turn number, prior-turn history). Fixed for the lifetime of a
// coordination run.
//
// Answer / Vote (append-only): agents submit answers and cast votes; both
// are recorded permanently even when superseded or invalidated. The
// Coordination Scheduler (package scheduler) is the sole mutator of the
// outstanding-answer and voting-round state built from these records.
package run

import (
	"fmt"
	"time"

	"massgen.dev/coordination/agent"
)

type (
	// Task is the user-provided question plus the enclosing session. It is
	// immutable within a coordination run.
	Task struct {
		// RunID uniquely identifies this coordination run.
		RunID string
		// SessionID groups related runs into a conversation thread.
		SessionID string
		// TurnNumber is the 1-indexed turn within the session.
		TurnNumber int
		// Question is the user's question for this turn.
		Question string
		// History is the prior-turn conversation history, oldest first.
		History []string
	}

	// AnswerLabel identifies one submitted answer: "agent{N}.{k}" for the
	// agent's k-th submission, or "agent{N}.final" for the chosen winner.
	AnswerLabel string

	// Answer is one agent's submitted candidate, append-only and never
	// mutated once recorded; superseded answers remain accessible.
	Answer struct {
		// Label is this answer's AnswerLabel ("agent1.1", later "agent1.final").
		Label AnswerLabel
		// AgentID identifies the submitting agent.
		AgentID agent.Ident
		// Content is the submitted markdown content.
		Content string
		// SubmittedAt is when new_answer was called.
		SubmittedAt time.Time
		// SnapshotPath references the atomic workspace snapshot taken at
		// submission time (spec §4.1).
		SnapshotPath string
	}

	// Vote is one agent's endorsement of an existing answer. A vote is
	// valid only for an answer that existed at the moment it was cast, and
	// only within the voting round it was cast in; prior-round votes are
	// retained for history but never counted for winner selection.
	Vote struct {
		// VoterAgentID identifies the voting agent.
		VoterAgentID agent.Ident
		// Target is the endorsed AnswerLabel.
		Target AnswerLabel
		// Reason is the agent-supplied justification text.
		Reason string
		// VotingRound is the round this vote was cast in.
		VotingRound int
		// SubmittedAt is when vote was called.
		SubmittedAt time.Time
	}
)

// NextLabel computes the next answer label for agentID given how many
// answers it has already submitted (spec §3, §8 "Answer labels" invariant:
// labels form the strict sequence agent{N}.1, agent{N}.2, ...).
func NextLabel(agentID agent.Ident, priorSubmissions int) AnswerLabel {
	return AnswerLabel(fmt.Sprintf("%s.%d", agentID, priorSubmissions+1))
}

// FinalLabel returns the "agent{N}.final" label for agentID.
func FinalLabel(agentID agent.Ident) AnswerLabel {
	return AnswerLabel(fmt.Sprintf("%s.final", agentID))
}

// Status is the coarse-grained lifecycle status of a coordination run,
// persisted in status.json (spec §4.7) and reported by check_subagent_status.
type Status string

const (
	// StatusRunning indicates the coordination run is actively executing.
	StatusRunning Status = "running"
	// StatusCompleted indicates the run finished with a chosen winner.
	StatusCompleted Status = "completed"
	// StatusCompletedButTimeout indicates a subagent recovered a winner from
	// a presentation-phase status.json after its parent cancelled it
	// (spec §4.6 step 2).
	StatusCompletedButTimeout Status = "completed_but_timeout"
	// StatusPartial indicates a subagent was cancelled mid-enforcement and a
	// best-effort answer was recovered (spec §4.6 steps 3-4).
	StatusPartial Status = "partial"
	// StatusTimeout indicates a subagent was cancelled with nothing to
	// recover (spec §4.6 step 5).
	StatusTimeout Status = "timeout"
	// StatusFailed indicates the run failed with no recoverable answer.
	StatusFailed Status = "failed"
)

// Phase is CoordinationState's enumerated phase (spec §3, §4.5 state
// machine). The scheduler package owns the transition logic; Phase lives
// here so run records, observability, and subagent recovery can all refer
// to the same vocabulary without importing scheduler.
type Phase string

const (
	// PhaseInitialAnswer is the phase before any agent has submitted an answer.
	PhaseInitialAnswer Phase = "initial_answer"
	// PhaseEnforcement is the phase after at least one answer exists, while
	// the scheduler drives agents toward consensus.
	PhaseEnforcement Phase = "enforcement"
	// PhasePresentation is the phase where the winner writes the final answer.
	PhasePresentation Phase = "presentation"
	// PhaseDone is the terminal successful phase.
	PhaseDone Phase = "done"
	// PhaseFailed is the terminal unrecoverable-failure phase.
	PhaseFailed Phase = "failed"
)
