// Package agent defines the small set of identity types shared across the
// coordination core: the agent identifier and the derived display name used
// in transcripts, status snapshots, and injected UPDATE messages.
package agent

import "fmt"

// Ident uniquely identifies one configured agent participating in a
// coordination run. Agent membership is fixed at run start (spec §3); Ident
// values are stable for the lifetime of the run.
type Ident string

// String returns the identifier as a plain string.
func (i Ident) String() string { return string(i) }

// Backend describes the capability set a model backend declares for an
// agent. The coordination core treats backends as an external collaborator
// (spec §6): this struct only captures what the scheduler and agent runner
// need to know, never how to speak the provider's wire protocol.
type Backend struct {
	// Model is the backend/model identifier (e.g. "claude-opus-4", "gpt-5").
	Model string
	// SupportsStreaming reports whether the backend streams chunks
	// incrementally. The agent runner requires this; the core does not
	// support polling-only backends.
	SupportsStreaming bool
	// DeclaredTools lists tool identifiers the backend has confirmed it can
	// invoke (some backends restrict tool-call support to a fixed set).
	DeclaredTools []string
	// ContextWindowTokens is the backend's context window size. The Context
	// Compression Adapter does not read it: compression runs only after the
	// backend reports a context overflow.
	ContextWindowTokens int
}

// Info captures the fixed identity of one agent for the duration of a
// coordination run: its Ident, Backend capability set, and a workspace path
// reference. DisplayName is derived, never stored redundantly.
type Info struct {
	ID      Ident
	Backend Backend
	// WorkspacePath is the filesystem root owned exclusively by this agent
	// during the run (spec §3 Workspace).
	WorkspacePath string
}

// DisplayName renders the agent's identity as "agent_id (model)", the form
// spec §3 requires for Agent.DisplayName.
func (i Info) DisplayName() string {
	if i.Backend.Model == "" {
		return string(i.ID)
	}
	return fmt.Sprintf("%s (%s)", i.ID, i.Backend.Model)
}

// Bounds describes how a tool or listing result has been bounded relative to
// the full underlying data set (e.g. a directory listing capped at N
// entries, or a time window). Tool implementations populate this so callers
// know a result is partial without having to guess from size alone.
type Bounds struct {
	// Kind identifies what was bounded (e.g. "list", "window", "bytes").
	Kind string
	// Returned is how many items/bytes were actually returned.
	Returned int
	// Total is the full size of the underlying data set, when known. Zero
	// means unknown (e.g. an unbounded stream).
	Total int
	// Truncated reports whether Returned < Total (or Total is unknown but
	// truncation is known to have occurred).
	Truncated bool
}
