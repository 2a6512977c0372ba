// Package hooks implements the coordination core's extension seam (spec
// §4.3): a typed event bus plus the PreToolUse/PostToolUse hook protocol
// that lets in-process or external-command handlers deny, rewrite, or
// inject content around every tool invocation.
package hooks

import (
	"context"
	"encoding/json"
	"time"

	"massgen.dev/coordination/agent"
	"massgen.dev/coordination/tools"
)

// EventType identifies the kind of a published Event.
type EventType string

const (
	// PreToolUse fires before a tool executes. Handlers may deny the call
	// or rewrite its input (spec §4.2 step 2).
	PreToolUse EventType = "PreToolUse"
	// PostToolUse fires after a tool executes. Handlers may inject
	// additional content into the conversation (spec §4.2 step 6).
	PostToolUse EventType = "PostToolUse"
	// PhaseChanged fires on every CoordinationState phase transition (spec §4.5).
	PhaseChanged EventType = "PhaseChanged"
	// AnswerSubmitted fires when new_answer is accepted and snapshotted.
	AnswerSubmitted EventType = "AnswerSubmitted"
	// VoteCast fires when vote is accepted.
	VoteCast EventType = "VoteCast"
	// EnforcementRecorded fires when a workflow-protocol violation triggers
	// an enforcement restart (spec §4.5).
	EnforcementRecorded EventType = "EnforcementRecorded"
	// SubagentCompleted fires when a background subagent result is queued
	// (spec §4.6).
	SubagentCompleted EventType = "SubagentCompleted"
)

type (
	// Event is the interface every published event implements. Subscribers
	// use a type switch on the concrete type to read event-specific fields.
	Event interface {
		// Type returns the specific event type constant.
		Type() EventType
		// RunID returns the coordination run that produced this event.
		RunID() string
		// SessionID returns the logical session the run belongs to.
		SessionID() string
		// AgentID returns the agent that triggered this event, when applicable.
		AgentID() string
		// Timestamp returns the Unix timestamp in milliseconds when the event occurred.
		Timestamp() int64
		// TurnID returns the conversational turn identifier, or "" if unset.
		TurnID() string
	}

	// baseEvent holds the fields common to every event type. It is embedded
	// anonymously in each concrete event struct.
	baseEvent struct {
		eventType EventType
		runID     string
		sessionID string
		agentID   agent.Ident
		turnID    string
		timestamp int64
	}

	// PreToolUseEvent carries a tool call about to execute. Handlers may
	// return a Result denying the call or rewriting its Payload.
	PreToolUseEvent struct {
		baseEvent
		// ToolName is the fully namespaced tool identifier being invoked.
		ToolName tools.Ident
		// Payload is the canonical JSON arguments as submitted by the model,
		// possibly already rewritten by an earlier matching hook in the
		// aggregation chain.
		Payload json.RawMessage
		// ToolCallID is the provider-issued tool call identifier.
		ToolCallID string
	}

	// PostToolUseEvent carries a completed tool invocation and its result.
	// Handlers may return a Result injecting additional content.
	PostToolUseEvent struct {
		baseEvent
		// ToolName is the fully namespaced tool identifier that was invoked.
		ToolName tools.Ident
		// ToolCallID is the provider-issued tool call identifier.
		ToolCallID string
		// Result is the normalized tool result content (spec §4.2 step 4).
		Result any
		// IsError reports whether the tool call failed.
		IsError bool
		// Duration is how long the tool call took to execute.
		Duration time.Duration
	}

	// PhaseChangedEvent fires on every CoordinationState phase transition.
	PhaseChangedEvent struct {
		baseEvent
		// From is the prior phase.
		From string
		// To is the new phase.
		To string
	}

	// AnswerSubmittedEvent fires once new_answer is accepted and snapshotted.
	AnswerSubmittedEvent struct {
		baseEvent
		// Label is the new answer's label ("agent1.1").
		Label string
		// VotingRound is the voting round in effect after this submission.
		VotingRound int
	}

	// VoteCastEvent fires once vote is accepted.
	VoteCastEvent struct {
		baseEvent
		// Target is the endorsed answer label.
		Target string
		// VotingRound is the round this vote was cast in.
		VotingRound int
	}

	// EnforcementEvent fires when a workflow-protocol violation triggers an
	// enforcement restart.
	EnforcementEvent struct {
		baseEvent
		// Reason is the stable machine-readable reason code (toolerrors.Reason*).
		Reason string
		// Attempt is the 1-indexed enforcement attempt number for this agent
		// in the current round.
		Attempt int
		// BufferPreview is the first 500 characters of the discarded
		// streaming buffer.
		BufferPreview string
		// BufferChars is the full character count of the discarded buffer.
		BufferChars int
	}

	// SubagentCompletedEvent fires when a background subagent result is
	// queued for the parent to drain at its next tool boundary.
	SubagentCompletedEvent struct {
		baseEvent
		// SubagentID identifies the completed subagent.
		SubagentID string
		// Status is the recovered or natural completion status.
		Status string
	}
)

func newBaseEvent(eventType EventType, runID string, agentID agent.Ident) baseEvent {
	return baseEvent{
		eventType: eventType,
		runID:     runID,
		agentID:   agentID,
		timestamp: time.Now().UnixMilli(),
	}
}

func (e baseEvent) Type() EventType   { return e.eventType }
func (e baseEvent) RunID() string     { return e.runID }
func (e baseEvent) SessionID() string { return e.sessionID }
func (e baseEvent) AgentID() string   { return string(e.agentID) }
func (e baseEvent) Timestamp() int64  { return e.timestamp }
func (e baseEvent) TurnID() string    { return e.turnID }

// SetTurnID stamps the event with a turn identifier after construction.
func (e *baseEvent) SetTurnID(turnID string) { e.turnID = turnID }

// SetSessionID stamps the event with a session identifier after construction.
func (e *baseEvent) SetSessionID(sessionID string) { e.sessionID = sessionID }

// NewPreToolUseEvent constructs a PreToolUseEvent with the current timestamp.
func NewPreToolUseEvent(runID string, agentID agent.Ident, toolName tools.Ident, toolCallID string, payload json.RawMessage) *PreToolUseEvent {
	return &PreToolUseEvent{
		baseEvent:  newBaseEvent(PreToolUse, runID, agentID),
		ToolName:   toolName,
		ToolCallID: toolCallID,
		Payload:    payload,
	}
}

// NewPostToolUseEvent constructs a PostToolUseEvent with the current timestamp.
func NewPostToolUseEvent(runID string, agentID agent.Ident, toolName tools.Ident, toolCallID string, result any, isError bool, duration time.Duration) *PostToolUseEvent {
	return &PostToolUseEvent{
		baseEvent:  newBaseEvent(PostToolUse, runID, agentID),
		ToolName:   toolName,
		ToolCallID: toolCallID,
		Result:     result,
		IsError:    isError,
		Duration:   duration,
	}
}

// NewPhaseChangedEvent constructs a PhaseChangedEvent with the current timestamp.
func NewPhaseChangedEvent(runID string, from, to string) *PhaseChangedEvent {
	return &PhaseChangedEvent{baseEvent: newBaseEvent(PhaseChanged, runID, ""), From: from, To: to}
}

// NewAnswerSubmittedEvent constructs an AnswerSubmittedEvent with the current timestamp.
func NewAnswerSubmittedEvent(runID string, agentID agent.Ident, label string, votingRound int) *AnswerSubmittedEvent {
	return &AnswerSubmittedEvent{baseEvent: newBaseEvent(AnswerSubmitted, runID, agentID), Label: label, VotingRound: votingRound}
}

// NewVoteCastEvent constructs a VoteCastEvent with the current timestamp.
func NewVoteCastEvent(runID string, agentID agent.Ident, target string, votingRound int) *VoteCastEvent {
	return &VoteCastEvent{baseEvent: newBaseEvent(VoteCast, runID, agentID), Target: target, VotingRound: votingRound}
}

// NewEnforcementEvent constructs an EnforcementEvent with the current timestamp.
func NewEnforcementEvent(runID string, agentID agent.Ident, reason string, attempt int, bufferPreview string, bufferChars int) *EnforcementEvent {
	return &EnforcementEvent{
		baseEvent:     newBaseEvent(EnforcementRecorded, runID, agentID),
		Reason:        reason,
		Attempt:       attempt,
		BufferPreview: bufferPreview,
		BufferChars:   bufferChars,
	}
}

// NewSubagentCompletedEvent constructs a SubagentCompletedEvent with the current timestamp.
func NewSubagentCompletedEvent(runID string, agentID agent.Ident, subagentID, status string) *SubagentCompletedEvent {
	return &SubagentCompletedEvent{baseEvent: newBaseEvent(SubagentCompleted, runID, agentID), SubagentID: subagentID, Status: status}
}
