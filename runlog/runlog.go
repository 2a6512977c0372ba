// Package runlog provides a durable, append-only event log for coordination
// runs, independent of the single authoritative status.json snapshot the
// observability package maintains (spec §4.7): runlog retains every event a
// run ever emitted, in order, for after-the-fact introspection and replay.
package runlog

import (
	"context"
	"encoding/json"
	"time"

	"massgen.dev/coordination/agent"
	"massgen.dev/coordination/hooks"
)

type (
	// Event is a single immutable run event appended to the run log.
	//
	// Store implementations assign ID when persisting the event. IDs are
	// opaque, monotonically ordered within a run, and suitable for
	// cursor-based pagination.
	Event struct {
		// ID is the store-assigned opaque identifier for this event.
		ID string
		// RunID is the coordination run this event belongs to.
		RunID string
		// AgentID is the agent that emitted the event, or "" for
		// run-level events (e.g. PhaseChanged).
		AgentID agent.Ident
		// SessionID groups related runs into a conversation thread.
		SessionID string
		// TurnID identifies the conversational turn within the session.
		TurnID string
		// Type is the hook event type.
		Type hooks.EventType
		// Payload is the canonical JSON-encoded event payload.
		Payload json.RawMessage
		// Timestamp is the event time.
		Timestamp time.Time
	}

	// Page is a forward page of run events.
	Page struct {
		// Events are ordered oldest-first.
		Events []*Event
		// NextCursor is the cursor for the next page, empty when exhausted.
		NextCursor string
	}

	// Store is an append-only event store for run introspection.
	//
	// Implementations must provide stable ordering within a run. Cursor
	// values are store-owned and opaque to callers.
	Store interface {
		// Append stores e in the run log. Append must be durable:
		// failures are surfaced to callers so the scheduler can decide
		// whether to fail the run when canonical logging is unavailable.
		Append(ctx context.Context, e *Event) error

		// List returns the next forward page of events for runID.
		// Cursor is an opaque value from a previous List call, or empty
		// to start from the beginning. Limit must be greater than zero.
		List(ctx context.Context, runID string, cursor string, limit int) (Page, error)
	}
)

// EventFromHook converts a published hooks.Event into a runlog.Event ready
// for Append, encoding payload as canonical JSON.
func EventFromHook(ev hooks.Event, payload any) (*Event, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return &Event{
		RunID:     ev.RunID(),
		AgentID:   agent.Ident(ev.AgentID()),
		SessionID: ev.SessionID(),
		TurnID:    ev.TurnID(),
		Type:      ev.Type(),
		Payload:   raw,
		Timestamp: time.UnixMilli(ev.Timestamp()),
	}, nil
}
