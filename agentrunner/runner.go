// Package agentrunner implements the Agent Runner (spec §4.4): the loop
// driving exactly one agent's streamed conversation against its backend,
// dispatching tool calls through the Tool-Execution Pipeline, handling the
// two terminal workflow tools, recovering from context-length failures via
// the Context Compression Adapter, and accepting inject-and-continue
// UPDATE payloads from the Coordination Scheduler without aborting an
// in-flight backend call.
package agentrunner

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"massgen.dev/coordination/agent"
	"massgen.dev/coordination/compression"
	"massgen.dev/coordination/hooks"
	"massgen.dev/coordination/model"
	"massgen.dev/coordination/telemetry"
	"massgen.dev/coordination/toolerrors"
	"massgen.dev/coordination/toolpipeline"
	"massgen.dev/coordination/tools"
	"massgen.dev/coordination/transcript"
)

// State is the Agent Runner's coarse-grained lifecycle state (spec §4.4).
type State string

const (
	StateWaiting                State = "waiting"
	StateStreaming               State = "streaming"
	StateSuspendedForInjection   State = "suspended_for_injection"
	StateAwaitingRestart         State = "awaiting_restart"
	StateVoted                   State = "voted"
	StateWon                     State = "won"
	StateFailed                  State = "failed"
)

// OutcomeKind classifies why Run returned.
type OutcomeKind string

const (
	// OutcomeNewAnswer reports a validated new_answer submission.
	OutcomeNewAnswer OutcomeKind = "new_answer"
	// OutcomeVote reports a validated vote.
	OutcomeVote OutcomeKind = "vote"
	// OutcomeNonCompliant reports the agent exceeded its enforcement retry
	// bound and is dropped from further participation this round.
	OutcomeNonCompliant OutcomeKind = "non_compliant"
)

type (
	// Outcome is what one Run call hands back to the Scheduler.
	Outcome struct {
		Kind OutcomeKind
		// Content is the submitted markdown for an OutcomeNewAnswer.
		Content string
		// TargetLabel is the endorsed answer label for an OutcomeVote.
		TargetLabel string
		// Reason is the agent-supplied vote justification for an OutcomeVote.
		Reason string
		// EnforcementAttempts is how many restarts were spent reaching this
		// outcome.
		EnforcementAttempts int
		// History is the final message list, ready for the next turn or for
		// archival alongside the workspace snapshot.
		History []*model.Message
	}

	// ValidationOutcome is the Scheduler-owned judgment on a workflow tool
	// call: whether it is acceptable given CoordinationState (existing
	// labels, voting round, per-agent submission count), and if not, which
	// stable reason code to record (spec §4.5 "Workflow enforcement").
	ValidationOutcome struct {
		Valid   bool
		Reason  string
		Message string
	}

	// Validator lets the Scheduler veto a workflow tool call without the
	// Agent Runner importing CoordinationState directly.
	Validator interface {
		ValidateNewAnswer(ctx context.Context, agentID agent.Ident, content string) ValidationOutcome
		ValidateVote(ctx context.Context, agentID agent.Ident, targetLabel, reason string) ValidationOutcome
	}

	// Runner drives one agent's conversation loop.
	Runner struct {
		AgentID agent.Ident
		RunID   string

		Backend     model.Backend
		Pipeline    *toolpipeline.Pipeline
		Validator   Validator
		Compression *compression.Adapter
		Bus         hooks.Bus
		Trace       *transcript.Trace
		Logger      telemetry.Logger
		Metrics     telemetry.Metrics

		// ToolDefs lists the non-workflow tools advertised to the backend,
		// in addition to the two built-in workflow tools the runner always
		// appends.
		ToolDefs []*model.ToolDefinition
		// IsKnownTool reports whether name is registered (directly or via
		// MCP); an unrecognized tool call is an enforcement event
		// (ReasonUnknownTool) rather than an ordinary tool error.
		IsKnownTool func(tools.Ident) bool

		// MaxEnforcementRetries bounds how many terminal restarts this
		// runner accepts before OutcomeNonCompliant (spec §4.5).
		MaxEnforcementRetries int

		mu      sync.Mutex
		pending []*model.Message
		state   State
	}
)

// Names of the two built-in terminal workflow tools (spec §4.2). They are
// bare, unnamespaced identifiers.
const (
	ToolNewAnswer = tools.Ident("new_answer")
	ToolVote      = tools.Ident("vote")
)

// Inject enqueues an UPDATE message to be delivered at the next safe
// boundary -- the start of the next Stream call -- without aborting any
// in-flight backend call (spec §4.5 "Inject-and-continue").
func (r *Runner) Inject(msg *model.Message) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pending = append(r.pending, msg)
}

func (r *Runner) drainPending() []*model.Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := r.pending
	r.pending = nil
	return out
}

// TakePending drains and returns any UPDATE messages queued by Inject
// without waiting for the next Run loop iteration, letting a PostToolUse
// hook (MidStreamInjectionHook, spec §4.5) fold them into the current tool
// response instead of a later conversation turn.
func (r *Runner) TakePending() []*model.Message {
	return r.drainPending()
}

// State returns the runner's current lifecycle state.
func (r *Runner) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

func (r *Runner) setState(s State) {
	r.mu.Lock()
	r.state = s
	r.mu.Unlock()
}

const maxEnforcementRetriesDefault = 3

// Run drives the conversation loop until a validated workflow tool call is
// reached or the enforcement retry bound is exceeded (spec §4.4 steps 1-6).
// roundLabel groups this call's trace entries and streaming-buffer preview
// under the answer round the Scheduler is currently driving this agent
// toward (e.g. "agent1.2"), mirroring transcript.Trace's RoundLabel grouping.
func (r *Runner) Run(ctx context.Context, history []*model.Message, roundLabel string) (*Outcome, error) {
	maxRetries := r.MaxEnforcementRetries
	if maxRetries <= 0 {
		maxRetries = maxEnforcementRetriesDefault
	}

	attempts := 0
	for {
		r.setState(StateStreaming)
		history = append(history, r.drainPending()...)

		req := r.buildRequest(history)
		turn, err := r.runOneTurn(ctx, req, roundLabel)
		if err != nil {
			var pe *model.ProviderError
			if errors.As(err, &pe) && pe.Kind() == model.ProviderErrorKindContextOverflow {
				compressed, cerr := r.compress(ctx, history, turn)
				if cerr != nil {
					r.setState(StateFailed)
					return nil, fmt.Errorf("agentrunner: compression: %w", cerr)
				}
				history = compressed
				continue
			}
			r.setState(StateFailed)
			return nil, err
		}

		history = append(history, turn.assistantMessage())

		workflowCall, nonWorkflow, enforcementReason := classifyToolCalls(turn.toolCalls, r.IsKnownTool)
		if enforcementReason != "" {
			attempts++
			if attempts > maxRetries {
				return r.nonCompliant(attempts, history), nil
			}
			history = r.recordEnforcement(ctx, history, enforcementReason, attempts, maxRetries, turn)
			continue
		}

		if workflowCall == nil {
			// Non-terminal tool calls: dispatch, feed results back, and
			// continue the same turn without consuming a retry.
			resultMsg, derr := r.dispatchAll(ctx, nonWorkflow, roundLabel)
			if derr != nil {
				r.setState(StateFailed)
				return nil, derr
			}
			history = append(history, resultMsg)
			continue
		}

		outcome, verr := r.validate(ctx, *workflowCall)
		if verr != "" {
			attempts++
			if attempts > maxRetries {
				return r.nonCompliant(attempts, history), nil
			}
			history = r.recordEnforcement(ctx, history, verr, attempts, maxRetries, turn)
			continue
		}

		outcome.EnforcementAttempts = attempts
		outcome.History = history
		if outcome.Kind == OutcomeVote {
			r.setState(StateVoted)
		}
		return outcome, nil
	}
}

func (r *Runner) nonCompliant(attempts int, history []*model.Message) *Outcome {
	r.setState(StateFailed)
	return &Outcome{Kind: OutcomeNonCompliant, EnforcementAttempts: attempts, History: history}
}

// buildRequest assembles the next model.Request: full history plus the
// two always-on workflow tool definitions alongside any configured
// ToolDefs.
func (r *Runner) buildRequest(history []*model.Message) *model.Request {
	defs := append([]*model.ToolDefinition{}, r.ToolDefs...)
	defs = append(defs, workflowToolDefs()...)
	return &model.Request{
		AgentID:  string(r.AgentID),
		Messages: history,
		Tools:    defs,
	}
}

func workflowToolDefs() []*model.ToolDefinition {
	return []*model.ToolDefinition{
		{
			Name:        string(ToolNewAnswer),
			Description: "Submit or refine a candidate answer to the task.",
			InputSchema: map[string]any{
				"type":       "object",
				"properties": map[string]any{"content": map[string]any{"type": "string"}},
				"required":   []string{"content"},
			},
		},
		{
			Name:        string(ToolVote),
			Description: "Endorse an existing submitted answer.",
			InputSchema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"target": map[string]any{"type": "string", "description": "answer label, e.g. agent1.1"},
					"reason": map[string]any{"type": "string"},
				},
				"required": []string{"target"},
			},
		},
	}
}

// turnResult accumulates one Stream call's output.
type turnResult struct {
	label     string
	text      strings.Builder
	toolCalls []model.ToolCall
	buffer    strings.Builder
	usage     model.TokenUsage
}

func (t *turnResult) assistantMessage() *model.Message {
	parts := make([]model.Part, 0, 1+len(t.toolCalls))
	if t.text.Len() > 0 {
		parts = append(parts, model.TextPart{Text: t.text.String()})
	}
	for _, tc := range t.toolCalls {
		parts = append(parts, model.ToolUsePart{ID: tc.ID, Name: string(tc.Name), Input: tc.Payload})
	}
	return &model.Message{Role: model.ConversationRoleAssistant, Parts: parts}
}

func (r *Runner) runOneTurn(ctx context.Context, req *model.Request, roundLabel string) (*turnResult, error) {
	stream, err := r.Backend.Stream(ctx, req)
	if err != nil {
		return nil, err
	}
	defer stream.Close()

	turn := &turnResult{label: roundLabel}
	for {
		chunk, err := stream.Recv()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return turn, nil
			}
			return turn, err
		}

		switch chunk.Type {
		case model.ChunkTypeText:
			if chunk.Message != nil {
				for _, p := range chunk.Message.Parts {
					if tp, ok := p.(model.TextPart); ok {
						turn.text.WriteString(tp.Text)
						turn.buffer.WriteString(tp.Text)
					}
				}
			}
		case model.ChunkTypeThinking:
			if chunk.Message != nil {
				for _, p := range chunk.Message.Parts {
					if thp, ok := p.(model.ThinkingPart); ok {
						r.Trace.AppendReasoning(turn.label, thp.Text)
					}
				}
			}
		case model.ChunkTypeToolCall:
			if chunk.ToolCall != nil {
				turn.toolCalls = append(turn.toolCalls, *chunk.ToolCall)
				turn.buffer.Write(chunk.ToolCall.Payload)
			}
		case model.ChunkTypeToolCallDelta:
			if chunk.ToolCallDelta != nil {
				turn.buffer.WriteString(chunk.ToolCallDelta.Delta)
			}
		case model.ChunkTypeUsage:
			if chunk.UsageDelta != nil {
				turn.usage.InputTokens += chunk.UsageDelta.InputTokens
				turn.usage.OutputTokens += chunk.UsageDelta.OutputTokens
			}
		case model.ChunkTypeStop:
			return turn, nil
		}
	}
}

// classifyToolCalls separates a turn's tool calls into the (at most one)
// terminal workflow call and the non-workflow calls to dispatch, or
// returns a non-empty enforcement reason when the call set itself is
// invalid (spec §4.5 reason codes that are detectable without
// CoordinationState: no_tool_calls, vote_and_answer, unknown_tool).
func classifyToolCalls(calls []model.ToolCall, isKnown func(tools.Ident) bool) (*workflowCall, []model.ToolCall, string) {
	if len(calls) == 0 {
		return nil, nil, toolerrors.ReasonNoToolCalls
	}

	var newAnswer, vote *model.ToolCall
	var nonWorkflow []model.ToolCall
	for i := range calls {
		c := &calls[i]
		switch tools.Ident(c.Name) {
		case ToolNewAnswer:
			newAnswer = c
		case ToolVote:
			vote = c
		default:
			if isKnown != nil && !isKnown(tools.Ident(c.Name)) {
				return nil, nil, toolerrors.ReasonUnknownTool
			}
			nonWorkflow = append(nonWorkflow, *c)
		}
	}

	if newAnswer != nil && vote != nil {
		return nil, nil, toolerrors.ReasonVoteAndAnswer
	}
	if newAnswer != nil {
		return &workflowCall{kind: OutcomeNewAnswer, call: *newAnswer}, nonWorkflow, ""
	}
	if vote != nil {
		return &workflowCall{kind: OutcomeVote, call: *vote}, nonWorkflow, ""
	}
	if len(nonWorkflow) == 0 {
		return nil, nil, toolerrors.ReasonNoToolCalls
	}
	return nil, nonWorkflow, ""
}

type workflowCall struct {
	kind OutcomeKind
	call model.ToolCall
}

// workflowPayload is the decoded body of a new_answer or vote tool call
// (spec §6 "Workflow-tool JSON shapes": vote is
// {"target": "agent{M}.{k}", "reason": "<text>"}). LegacyTargetAnswerLabel
// accepts the older target_answer_label key some callers may still send.
type workflowPayload struct {
	Content                 string `json:"content"`
	Target                  string `json:"target"`
	LegacyTargetAnswerLabel string `json:"target_answer_label"`
	Reason                  string `json:"reason"`
}

func (p workflowPayload) target() string {
	if p.Target != "" {
		return p.Target
	}
	return p.LegacyTargetAnswerLabel
}

func (r *Runner) validate(ctx context.Context, wc workflowCall) (*Outcome, string) {
	var payload workflowPayload
	_ = json.Unmarshal(wc.call.Payload, &payload)

	switch wc.kind {
	case OutcomeNewAnswer:
		if r.Validator == nil {
			return &Outcome{Kind: OutcomeNewAnswer, Content: payload.Content}, ""
		}
		v := r.Validator.ValidateNewAnswer(ctx, r.AgentID, payload.Content)
		if !v.Valid {
			return nil, v.Reason
		}
		return &Outcome{Kind: OutcomeNewAnswer, Content: payload.Content}, ""
	case OutcomeVote:
		target := payload.target()
		if r.Validator == nil {
			return &Outcome{Kind: OutcomeVote, TargetLabel: target, Reason: payload.Reason}, ""
		}
		v := r.Validator.ValidateVote(ctx, r.AgentID, target, payload.Reason)
		if !v.Valid {
			return nil, v.Reason
		}
		return &Outcome{Kind: OutcomeVote, TargetLabel: target, Reason: payload.Reason}, ""
	default:
		return nil, toolerrors.ReasonUnknownTool
	}
}

func (r *Runner) dispatchAll(ctx context.Context, calls []model.ToolCall, roundLabel string) (*model.Message, error) {
	var parts []model.Part
	for _, c := range calls {
		res, err := r.Pipeline.Dispatch(ctx, toolpipeline.Call{
			AgentID:    r.AgentID,
			RunID:      r.RunID,
			ToolName:   tools.Ident(c.Name),
			ToolCallID: c.ID,
			Payload:    c.Payload,
			RoundLabel: roundLabel,
		}, r.Trace)
		if err != nil {
			return nil, fmt.Errorf("agentrunner: dispatch %s: %w", c.Name, err)
		}
		parts = append(parts, model.ToolResultPart{ToolUseID: c.ID, Content: res.Content, IsError: res.IsError})
	}
	return &model.Message{Role: model.ConversationRoleUser, Parts: parts}, nil
}

// recordEnforcement publishes an EnforcementRecorded event (observed by an
// Observability Store subscriber per spec §4.7) and returns history with an
// injected retry-count message so the next Stream call carries the
// violation context (spec §4.5 "Messages include retry count...").
func (r *Runner) recordEnforcement(ctx context.Context, history []*model.Message, reason string, attempt, maxRetries int, turn *turnResult) []*model.Message {
	preview := turn.buffer.String()
	chars := len(preview)
	if len(preview) > 500 {
		preview = preview[:500]
	}

	if r.Bus != nil {
		_ = r.Bus.Publish(ctx, hooks.NewEnforcementEvent(r.RunID, r.AgentID, reason, attempt, preview, chars))
	}
	if r.Logger != nil {
		r.Logger.Warn(ctx, "workflow enforcement restart", "agent", r.AgentID, "reason", reason, "attempt", attempt)
	}

	msg := fmt.Sprintf("Your turn ended without a valid new_answer or vote call (%s). Retry (%d/%d): call new_answer(content) or vote(target, reason).", reason, attempt, maxRetries)
	return append(history, &model.Message{Role: model.ConversationRoleUser, Parts: []model.Part{model.TextPart{Text: msg}}})
}

func (r *Runner) compress(ctx context.Context, history []*model.Message, turn *turnResult) ([]*model.Message, error) {
	if r.Compression == nil {
		return nil, fmt.Errorf("agentrunner: context overflow but no compression adapter configured")
	}
	buffer := ""
	if turn != nil {
		buffer = turn.buffer.String()
	}
	res, err := r.Compression.Compress(ctx, compression.Request{History: history, Buffer: buffer})
	if err != nil {
		return nil, err
	}
	return res.Messages, nil
}
