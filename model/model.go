// Package model defines the provider-agnostic message and streaming types
// used by the agent runner and the backend contract (spec §3.1, §6).
// Messages are modeled as typed parts rather than flattened strings so the
// Context Compression Adapter and Execution Trace Recorder can reason about
// tool calls and reasoning content without re-parsing text.
package model

import (
	"context"
	"encoding/json"
	"errors"

	"massgen.dev/coordination/tools"
)

// ConversationRole is the role for a message in a conversation.
type ConversationRole string

const (
	// ConversationRoleSystem is the role for system messages.
	ConversationRoleSystem ConversationRole = "system"

	// ConversationRoleUser is the role for user messages, including injected
	// peer UPDATEs (spec §4.4).
	ConversationRoleUser ConversationRole = "user"

	// ConversationRoleAssistant is the role for assistant messages.
	ConversationRoleAssistant ConversationRole = "assistant"
)

type (
	// Part is a marker interface implemented by every message content block.
	// MassGen trims the teacher's full part taxonomy to what the transcript
	// and compression adapter need: text, reasoning, tool call, tool result.
	// Multimodal parts (image/document/citations) are dropped since neither
	// spec.md nor its Non-goals name multimodal input.
	Part interface {
		isPart()
	}

	// TextPart is a plain text content block.
	TextPart struct {
		// Text is the human-readable content for this part.
		Text string
	}

	// ThinkingPart represents provider-issued reasoning content. Callers
	// treat it as opaque metadata; the transcript records it but the
	// coordination scheduler never inspects it.
	ThinkingPart struct {
		// Text is the provider-visible reasoning text when available.
		Text string

		// Signature is the provider-issued signature for Text when present.
		Signature string

		// Redacted carries reasoning content in redacted form when plaintext
		// Text is not available.
		Redacted []byte

		// Index is the position of this block in the reasoning sequence.
		Index int

		// Final reports whether this is the last reasoning block for the turn.
		Final bool
	}

	// ToolUsePart declares a tool invocation by the assistant. The tool
	// pipeline turns these into concrete executions and correlates results
	// via ToolResultPart.ToolUseID.
	ToolUsePart struct {
		// ID uniquely identifies this tool call within the run.
		ID string

		// Name is the tool identifier requested by the model.
		Name string

		// Input is the JSON-compatible arguments object provided by the model.
		Input any
	}

	// ToolResultPart carries a tool result back to the model. Tool results
	// are attached to user messages so the model reads them on the next turn.
	ToolResultPart struct {
		// ToolUseID correlates this result to a prior tool use declaration.
		ToolUseID string

		// Content is the result payload, typically a JSON-compatible value or
		// string. Large results are replaced with a reference per spec §4.2
		// (20,000-token eviction) before this is populated.
		Content any

		// IsError reports whether Content represents an error from the tool.
		IsError bool
	}

	// Message is a single chat message. Messages are ordered and grouped
	// into a transcript passed to the backend contract. Parts preserve
	// structure rather than flattening to plain strings.
	Message struct {
		// Role identifies the speaker for this message.
		Role ConversationRole

		// Parts are the ordered content blocks for the message.
		Parts []Part

		// Meta carries optional application-specific metadata, e.g. the
		// originating agent.Ident for an injected peer UPDATE.
		Meta map[string]any
	}

	// ToolDefinition describes a tool exposed to the model: name,
	// description, and a JSON Schema input compiled by toolregistry.
	ToolDefinition struct {
		// Name is the tool identifier as seen by the model.
		Name string

		// Description is presented to the model to decide when to call it.
		Description string

		// InputSchema is a JSON Schema describing the tool input payload.
		InputSchema any
	}

	// ToolCall is a requested tool invocation from the model.
	ToolCall struct {
		// Name is the tool identifier requested by the model.
		Name tools.Ident

		// Payload is the canonical JSON arguments supplied by the model.
		//
		// Backend implementations MUST populate this as a canonical
		// json.RawMessage; the tool pipeline treats it as opaque JSON and
		// relies on toolregistry schemas for any schema-aware decoding.
		Payload json.RawMessage

		// ID is the provider-issued identifier for the tool call.
		ID string
	}

	// ToolCallDelta is an incremental tool-call payload fragment streamed by
	// a backend while it is still constructing the full tool input JSON.
	// This is a best-effort UX signal; the canonical payload is still
	// ToolCall.Payload on the closing ChunkTypeToolCall.
	ToolCallDelta struct {
		// Name is the canonical tool identifier for this delta stream.
		Name tools.Ident

		// ID correlates all deltas and the final ToolCall payload.
		ID string

		// Delta is a raw JSON fragment; not guaranteed to be valid on its own.
		Delta string
	}

	// TokenUsage tracks token counts for a model call.
	TokenUsage struct {
		InputTokens      int
		OutputTokens     int
		TotalTokens      int
		CacheReadTokens  int
		CacheWriteTokens int
	}

	// Request captures inputs for a model invocation.
	Request struct {
		// AgentID identifies the calling agent for logging/trace correlation.
		AgentID string

		// Model is the backend-specific model identifier.
		Model string

		// Messages is the ordered transcript provided to the model.
		Messages []*Message

		// Temperature controls sampling when supported.
		Temperature float32

		// Tools lists the tool definitions available to the model, always
		// including the two built-in workflow tools (new_answer, vote).
		Tools []*ToolDefinition

		// MaxTokens caps the number of output tokens when supported.
		MaxTokens int

		// Thinking configures reasoning behavior when supported.
		Thinking *ThinkingOptions
	}

	// Chunk is a streaming event from the model. Chunks are classified by
	// Type and may carry partial messages, tool calls, usage deltas, or a
	// final stop reason.
	Chunk struct {
		// Type identifies the kind of streaming event (Chunk* constants).
		Type string

		// Message carries incremental assistant content for text or
		// thinking chunks when present.
		Message *Message

		// ToolCall carries a complete tool invocation when Type is
		// ChunkTypeToolCall.
		ToolCall *ToolCall

		// ToolCallDelta carries an incremental tool-call fragment when Type
		// is ChunkTypeToolCallDelta. Safe to ignore.
		ToolCallDelta *ToolCallDelta

		// UsageDelta reports incremental token usage when available.
		UsageDelta *TokenUsage

		// StopReason records why streaming stopped when Type is ChunkTypeStop.
		StopReason string
	}

	// ThinkingOptions configures provider reasoning behavior.
	ThinkingOptions struct {
		Enable       bool
		BudgetTokens int
	}

	// Backend is the provider-agnostic streaming chat contract an
	// embedding application implements for each configured agent (spec §6).
	// MassGen ships no concrete backend: this is a pure contract between
	// the agent runner and an external collaborator.
	Backend interface {
		// Stream performs a streaming model invocation. The returned
		// Streamer must be drained to a terminal chunk or error, then closed.
		Stream(ctx context.Context, req *Request) (Streamer, error)
	}

	// Streamer delivers incremental model output for one Stream call.
	Streamer interface {
		// Recv returns the next streaming chunk or a terminal error
		// (io.EOF on ordinary completion).
		Recv() (Chunk, error)

		// Close releases resources associated with the stream.
		Close() error
	}
)

const (
	// ChunkTypeText identifies a chunk carrying assistant text.
	ChunkTypeText = "text"

	// ChunkTypeToolCall identifies a chunk carrying a complete tool invocation.
	ChunkTypeToolCall = "tool_call"

	// ChunkTypeToolCallDelta identifies an incremental tool-call JSON fragment.
	ChunkTypeToolCallDelta = "tool_call_delta"

	// ChunkTypeThinking identifies a chunk carrying reasoning content.
	ChunkTypeThinking = "thinking"

	// ChunkTypeUsage identifies a chunk carrying a usage delta.
	ChunkTypeUsage = "usage"

	// ChunkTypeStop identifies the terminal chunk carrying a stop reason.
	ChunkTypeStop = "stop"
)

// ErrStreamingUnsupported indicates the backend does not support streaming.
// The agent runner requires streaming (spec §6). No registration-time check
// for it exists; a Stream call that returns it fails the agent's Run like
// any other backend error.
var ErrStreamingUnsupported = errors.New("model: streaming not supported")

// ErrRateLimited indicates the backend rejected the request due to rate
// limiting after exhausting any backend-internal retries. The agent runner
// does not retry it: like every Stream error other than a context
// overflow, it fails the agent's Run, and it never counts as one of the
// workflow-protocol enforcement retries in spec §4.5.
var ErrRateLimited = errors.New("model: rate limited")

func (TextPart) isPart()       {}
func (ThinkingPart) isPart()   {}
func (ToolUsePart) isPart()    {}
func (ToolResultPart) isPart() {}
