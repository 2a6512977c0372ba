package hooks

import (
	"context"
	"encoding/json"
	"fmt"

	"massgen.dev/coordination/agent"
)

// reminderBanner is the fixed banner HighPriorityTaskReminderHook prepends
// to an injected reminder (spec §4.3).
const reminderBanner = "IMPORTANT REMINDER"

// UpdateSource supplies pending peer-answer UPDATEs for MidStreamInjectionHook
// (spec §4.5 "inject-and-continue"). The Coordination Scheduler implements
// this so the hook package never imports scheduler.
type UpdateSource interface {
	// PendingUpdates returns and clears any peer-answer updates queued for
	// agentID since its last delivery.
	PendingUpdates(agentID agent.Ident) []Update
}

// Update is one peer answer queued for delivery to a runner at its next
// safe boundary.
type Update struct {
	AnswerLabel string
	AgentID     agent.Ident
	Content     string
	SnapshotRef string
}

// NewMidStreamInjectionHook builds the PostToolUse hook that delivers
// queued peer UPDATEs into the current tool response (spec §4.5). It
// matches every tool so an update can ride along with any tool result.
func NewMidStreamInjectionHook(source UpdateSource) Hook {
	return Hook{
		Event:   PostToolUse,
		Matcher: "",
		Handler: HandlerFunc(func(ctx context.Context, event Event) (Result, error) {
			e, ok := event.(*PostToolUseEvent)
			if !ok {
				return Result{}, nil
			}
			updates := source.PendingUpdates(agent.Ident(e.AgentID()))
			if len(updates) == 0 {
				return Result{}, nil
			}
			content := renderUpdates(updates)
			return Result{Inject: &Injection{Content: content, Strategy: InjectStrategyToolResult}}, nil
		}),
	}
}

func renderUpdates(updates []Update) string {
	out := ""
	for _, u := range updates {
		out += fmt.Sprintf("UPDATE from %s (%s):\n%s\n\n", u.AgentID, u.AnswerLabel, u.Content)
	}
	return out
}

// reminderPayload is the shape HighPriorityTaskReminderHook expects a tool
// result to optionally carry.
type reminderPayload struct {
	Reminder string `json:"reminder"`
}

// NewHighPriorityTaskReminderHook builds the PostToolUse hook that extracts
// a "reminder" field from a tool result and injects it as a user message
// with a fixed banner (spec §4.3).
func NewHighPriorityTaskReminderHook() Hook {
	return Hook{
		Event:   PostToolUse,
		Matcher: "",
		Handler: HandlerFunc(func(ctx context.Context, event Event) (Result, error) {
			e, ok := event.(*PostToolUseEvent)
			if !ok || e.Result == nil {
				return Result{}, nil
			}
			raw, err := json.Marshal(e.Result)
			if err != nil {
				return Result{}, nil
			}
			var p reminderPayload
			if err := json.Unmarshal(raw, &p); err != nil || p.Reminder == "" {
				return Result{}, nil
			}
			content := fmt.Sprintf("[%s]\n%s", reminderBanner, p.Reminder)
			return Result{Inject: &Injection{Content: content, Strategy: InjectStrategyUserMessage}}, nil
		}),
	}
}

// PendingResultSource supplies completed background subagent results for
// SubagentCompleteHook (spec §4.6). The Subagent Lifecycle Manager
// implements this so the hook package never imports subagent.
type PendingResultSource interface {
	// Drain returns and clears every pending result queued for parentID.
	Drain(parentID agent.Ident) []PendingResult
}

// PendingResult mirrors run.Answer-adjacent subagent completion data
// needed to render the injected <subagent_results> wrapper (spec §4.6).
type PendingResult struct {
	SubagentID string
	Status     string
	Answer     string
	Tokens     int
	DurationMS int64
	Workspace  string
}

// NewSubagentCompleteHook builds the PostToolUse hook that drains the
// parent's pending-subagent queue and injects a batched
// <subagent_results count=k>...</subagent_results> wrapper (spec §4.6).
func NewSubagentCompleteHook(source PendingResultSource) Hook {
	return Hook{
		Event:   PostToolUse,
		Matcher: "",
		Handler: HandlerFunc(func(ctx context.Context, event Event) (Result, error) {
			e, ok := event.(*PostToolUseEvent)
			if !ok {
				return Result{}, nil
			}
			results := source.Drain(agent.Ident(e.AgentID()))
			if len(results) == 0 {
				return Result{}, nil
			}
			return Result{Inject: &Injection{Content: renderSubagentResults(results), Strategy: InjectStrategyToolResult}}, nil
		}),
	}
}

func renderSubagentResults(results []PendingResult) string {
	out := fmt.Sprintf("<subagent_results count=%d>\n", len(results))
	for _, r := range results {
		out += fmt.Sprintf(
			"  <result id=%q status=%q tokens=%d duration_ms=%d workspace=%q>\n%s\n  </result>\n",
			r.SubagentID, r.Status, r.Tokens, r.DurationMS, r.Workspace, r.Answer,
		)
	}
	out += "</subagent_results>"
	return out
}
