// Package builtinhooks implements the three built-in hooks the core
// requires (spec §4.3): MidStreamInjectionHook, HighPriorityTaskReminderHook,
// and SubagentCompleteHook. All three are PostToolUse hooks, registered
// globally so they apply to every configured agent.
package builtinhooks

import (
	"context"

	"massgen.dev/coordination/agent"
	"massgen.dev/coordination/agentrunner"
	"massgen.dev/coordination/hooks"
	"massgen.dev/coordination/model"
	"massgen.dev/coordination/subagent"
)

// reminderBanner prefixes every HighPriorityTaskReminderHook injection.
const reminderBanner = "⚠ HIGH PRIORITY REMINDER"

// NewMidStreamInjectionHook returns the hook that folds any UPDATE messages
// queued by the Coordination Scheduler's inject-and-continue algorithm into
// the current tool response (spec §4.5 "via the MidStreamInjectionHook on
// the next tool response"), rather than waiting for the runner's own next
// loop iteration to pick them up from its pending queue.
func NewMidStreamInjectionHook(lookup func(agent.Ident) *agentrunner.Runner) hooks.HandlerFunc {
	return func(ctx context.Context, event hooks.Event) (hooks.Result, error) {
		r := lookup(agent.Ident(event.AgentID()))
		if r == nil {
			return hooks.Result{}, nil
		}
		pending := r.TakePending()
		if len(pending) == 0 {
			return hooks.Result{}, nil
		}
		return hooks.Result{Inject: &hooks.Injection{
			Content:  renderPending(pending),
			Strategy: hooks.InjectStrategyToolResult,
		}}, nil
	}
}

func renderPending(msgs []*model.Message) string {
	var out string
	for _, m := range msgs {
		for _, p := range m.Parts {
			if tp, ok := p.(model.TextPart); ok {
				out += tp.Text + "\n\n"
			}
		}
	}
	return out
}

// reminderResult is the shape HighPriorityTaskReminderHook looks for in a
// tool's result payload.
type reminderResult struct {
	Reminder string `json:"reminder"`
}

// NewHighPriorityTaskReminderHook returns the hook that extracts a
// "reminder" field from a tool result and injects it as a user message
// with a fixed banner (spec §4.3).
func NewHighPriorityTaskReminderHook() hooks.HandlerFunc {
	return func(ctx context.Context, event hooks.Event) (hooks.Result, error) {
		pe, ok := event.(*hooks.PostToolUseEvent)
		if !ok {
			return hooks.Result{}, nil
		}
		reminder := extractReminder(pe.Result)
		if reminder == "" {
			return hooks.Result{}, nil
		}
		return hooks.Result{Inject: &hooks.Injection{
			Content:  reminderBanner + ": " + reminder,
			Strategy: hooks.InjectStrategyUserMessage,
		}}, nil
	}
}

func extractReminder(result any) string {
	switch v := result.(type) {
	case map[string]any:
		if s, ok := v["reminder"].(string); ok {
			return s
		}
	case reminderResult:
		return v.Reminder
	case *reminderResult:
		if v != nil {
			return v.Reminder
		}
	}
	return ""
}

// RegisterAll registers the three built-in hooks globally on reg, in the
// order the spec lists them (spec §4.3).
func RegisterAll(reg *hooks.Registry, lookup func(agent.Ident) *agentrunner.Runner, queue subagent.ResultQueue) {
	reg.RegisterGlobal(hooks.Hook{Event: hooks.PostToolUse, Handler: NewMidStreamInjectionHook(lookup)})
	reg.RegisterGlobal(hooks.Hook{Event: hooks.PostToolUse, Handler: NewHighPriorityTaskReminderHook()})
	reg.RegisterGlobal(hooks.Hook{Event: hooks.PostToolUse, Handler: NewSubagentCompleteHook(queue)})
}

// NewSubagentCompleteHook returns the hook that drains a parent agent's
// pending background-subagent results and injects them formatted as
// <subagent_results> (spec §4.6).
func NewSubagentCompleteHook(queue subagent.ResultQueue) hooks.HandlerFunc {
	return func(ctx context.Context, event hooks.Event) (hooks.Result, error) {
		results := queue.Drain(agent.Ident(event.AgentID()))
		if len(results) == 0 {
			return hooks.Result{}, nil
		}
		return hooks.Result{Inject: &hooks.Injection{
			Content:  subagent.FormatResults(results),
			Strategy: hooks.InjectStrategyToolResult,
		}}, nil
	}
}
