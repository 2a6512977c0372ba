// Package reminder defines run-scoped reminder types injected alongside tool
// results and user turns to keep an agent anchored on the coordination task
// (spec §4.3 "HighPriorityTaskReminderHook"). The package is policy-agnostic;
// Engine owns lifetime and rate-limit evaluation.
package reminder

import (
	"massgen.dev/coordination/tools"
)

// Tier is the priority tier for a reminder. Lower-valued tiers take
// precedence when budgets are tight.
type Tier int

const (
	// TierTask is the highest priority tier: reminders that restate the
	// original task so an agent mid-enforcement-retry does not drift off
	// topic. Never suppressed by per-run caps.
	TierTask Tier = iota
	// TierGuidance carries workflow nudges (vote promptly, check peer
	// answers) and is the first tier suppressed under tight budgets.
	TierGuidance
)

// AttachmentKind describes where a reminder conceptually attaches.
type AttachmentKind string

const (
	// AttachmentRunStart reminders attach to the start of a run.
	AttachmentRunStart AttachmentKind = "run_start"
	// AttachmentToolResult reminders attach to a tool result (spec §4.3
	// PostToolUse injection).
	AttachmentToolResult AttachmentKind = "tool_result"
)

// Attachment scopes a reminder to a conversation point.
type Attachment struct {
	Kind AttachmentKind
	Tool tools.Ident
}

// Reminder describes concrete guidance to inject into an agent's prompt.
type Reminder struct {
	// ID is stable within a run; used for de-duplication and rate limiting.
	ID string
	// Text is the guidance to inject.
	Text string
	// Priority controls suppression order under budget pressure.
	Priority Tier
	// Attachment is where in the conversation this reminder attaches.
	Attachment Attachment
	// MaxPerRun caps emissions; zero means unlimited.
	MaxPerRun int
	// MinTurnsBetween enforces spacing between emissions; zero means none.
	MinTurnsBetween int
}
