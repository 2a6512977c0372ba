// Package transcript implements the Execution Trace Recorder (spec §4.9):
// an append-only, full-fidelity ledger of one agent's tool calls, tool
// results, reasoning, and errors, rendered to markdown and persisted into
// every snapshot so peer agents can read another agent's reasoning.
package transcript

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Kind identifies one ExecutionTrace entry's category (spec §3).
type Kind string

const (
	// KindToolCall records a tool invocation with full arguments.
	KindToolCall Kind = "tool_call"
	// KindToolResult records a tool result in full, never truncated.
	KindToolResult Kind = "tool_result"
	// KindReasoning records a reasoning/thinking block.
	KindReasoning Kind = "reasoning"
	// KindError records an error entry.
	KindError Kind = "error"
)

// Entry is one append-only ExecutionTrace record. Entries are never
// truncated (spec §3 "Full fidelity: no truncation").
type Entry struct {
	Timestamp time.Time
	Kind      Kind
	// RoundLabel is the answer-round label this entry belongs to under
	// (e.g. "agent1.1"), used to group entries into round sections when
	// rendering markdown (spec §4.9 "round sections labeled by answer number").
	RoundLabel string
	// ToolName is set for KindToolCall/KindToolResult entries.
	ToolName string
	// Payload is the full, untruncated content: tool arguments, tool
	// result, reasoning text, or error message.
	Payload any
}

// Trace is one agent's append-only execution trace for a coordination run.
// Trace does no locking of its own: concurrent Append calls on one Trace
// are not safe.
type Trace struct {
	entries []Entry
}

// New constructs an empty Trace.
func New() *Trace {
	return &Trace{}
}

// Append adds one entry to the trace. Kind, toolName, and payload determine
// how the entry renders; roundLabel groups it under a markdown section.
func (t *Trace) Append(kind Kind, roundLabel, toolName string, payload any) {
	t.entries = append(t.entries, Entry{
		Timestamp:  time.Now(),
		Kind:       kind,
		RoundLabel: roundLabel,
		ToolName:   toolName,
		Payload:    payload,
	})
}

// AppendToolCall records a tool invocation with its full arguments.
func (t *Trace) AppendToolCall(roundLabel, toolName string, args json.RawMessage) {
	t.Append(KindToolCall, roundLabel, toolName, string(args))
}

// AppendToolResult records a tool result in full.
func (t *Trace) AppendToolResult(roundLabel, toolName string, result any) {
	t.Append(KindToolResult, roundLabel, toolName, result)
}

// AppendReasoning records a reasoning/thinking block.
func (t *Trace) AppendReasoning(roundLabel, text string) {
	t.Append(KindReasoning, roundLabel, "", text)
}

// AppendError records an error entry.
func (t *Trace) AppendError(roundLabel string, err error) {
	t.Append(KindError, roundLabel, "", err.Error())
}

// Entries returns every recorded entry in append order.
func (t *Trace) Entries() []Entry {
	return append([]Entry(nil), t.entries...)
}

// Render produces the markdown document persisted as execution_trace.md at
// snapshot time (spec §4.1 algorithm step 3, §4.9). Entries are grouped into
// round sections labeled by answer number, in the order the round first
// appears.
func (t *Trace) Render() string {
	var sb strings.Builder
	sb.WriteString("# Execution Trace\n\n")

	var order []string
	seen := make(map[string]bool)
	for _, e := range t.entries {
		label := e.RoundLabel
		if label == "" {
			label = "(unlabeled)"
		}
		if !seen[label] {
			seen[label] = true
			order = append(order, label)
		}
	}

	grouped := make(map[string][]Entry)
	for _, e := range t.entries {
		label := e.RoundLabel
		if label == "" {
			label = "(unlabeled)"
		}
		grouped[label] = append(grouped[label], e)
	}

	for _, label := range order {
		fmt.Fprintf(&sb, "## Round %s\n\n", label)
		for _, e := range grouped[label] {
			renderEntry(&sb, e)
		}
	}
	return sb.String()
}

func renderEntry(sb *strings.Builder, e Entry) {
	ts := e.Timestamp.Format(time.RFC3339Nano)
	switch e.Kind {
	case KindToolCall:
		fmt.Fprintf(sb, "### Tool call: %s (%s)\n\n```json\n%v\n```\n\n", e.ToolName, ts, e.Payload)
	case KindToolResult:
		fmt.Fprintf(sb, "### Tool result: %s (%s)\n\n```\n%v\n```\n\n", e.ToolName, ts, e.Payload)
	case KindReasoning:
		fmt.Fprintf(sb, "### Reasoning (%s)\n\n%v\n\n", ts, e.Payload)
	case KindError:
		fmt.Fprintf(sb, "### Error (%s)\n\n%v\n\n", ts, e.Payload)
	}
}
