package hooks

import (
	"bytes"
	"context"
	"encoding/json"
	"os/exec"
	"path"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"massgen.dev/coordination/agent"
)

// DefaultTimeout is the default handler timeout (spec §4.3): 30 seconds,
// fail-open on timeout.
const DefaultTimeout = 30 * time.Second

// InjectStrategy controls how a PostToolUse injection is delivered
// (spec §4.2 step 6).
type InjectStrategy string

const (
	// InjectStrategyToolResult appends injected content to the current
	// tool result (cache-friendly).
	InjectStrategyToolResult InjectStrategy = "tool_result"
	// InjectStrategyUserMessage adds injected content as a follow-up user message.
	InjectStrategyUserMessage InjectStrategy = "user_message"
)

// Injection is one PostToolUse hook's requested content injection.
type Injection struct {
	Content  string
	Strategy InjectStrategy
}

// Result is a single handler's decision for one event. PreToolUse handlers
// populate Deny/DenyReason/UpdatedInput; PostToolUse handlers populate
// Inject. A handler may leave every field zero to signal "no opinion".
type Result struct {
	// Deny, when true, fails the tool call with DenyReason (PreToolUse only).
	Deny       bool
	DenyReason string
	// UpdatedInput replaces the tool payload when non-nil (PreToolUse only).
	UpdatedInput json.RawMessage
	// Ask requests operator confirmation before execution (PreToolUse only).
	Ask bool
	// Inject requests a PostToolUse content injection.
	Inject *Injection
}

// Handler executes a single hook's logic for one event.
type Handler interface {
	Handle(ctx context.Context, event Event) (Result, error)
}

// HandlerFunc adapts a plain function to the Handler interface.
type HandlerFunc func(ctx context.Context, event Event) (Result, error)

// Handle calls f.
func (f HandlerFunc) Handle(ctx context.Context, event Event) (Result, error) { return f(ctx, event) }

// Hook is one registered extension point: an event type, a glob-style
// matcher on tool name (empty matcher matches every tool), a handler, a
// timeout, and whether it overrides rather than extends global hooks for
// its event when registered per-agent (spec §4.3).
type Hook struct {
	Event    EventType
	Matcher  string
	Handler  Handler
	Timeout  time.Duration
	Override bool
}

// Matches reports whether h applies to toolName. An empty matcher matches
// every tool name; otherwise Matcher is a path.Match glob pattern.
func (h Hook) Matches(toolName string) bool {
	if h.Matcher == "" {
		return true
	}
	ok, err := path.Match(h.Matcher, toolName)
	return err == nil && ok
}

// Registry holds global and per-agent hook registrations and resolves the
// effective hook list for a given agent and event (spec §4.3 "Registration
// occurs at two levels").
type Registry struct {
	global   []Hook
	perAgent map[agent.Ident][]Hook
}

// NewRegistry constructs an empty hook registry.
func NewRegistry() *Registry {
	return &Registry{perAgent: make(map[agent.Ident][]Hook)}
}

// RegisterGlobal adds a hook that applies to every agent.
func (r *Registry) RegisterGlobal(h Hook) {
	r.global = append(r.global, h)
}

// RegisterForAgent adds a hook scoped to one agent. By default it extends
// the global hooks for its event; if h.Override is true, it replaces
// global hooks of the same event for this agent.
func (r *Registry) RegisterForAgent(agentID agent.Ident, h Hook) {
	r.perAgent[agentID] = append(r.perAgent[agentID], h)
}

// Resolve returns the effective, ordered list of hooks for agentID and
// eventType whose matcher matches toolName.
func (r *Registry) Resolve(agentID agent.Ident, eventType EventType, toolName string) []Hook {
	perAgent := r.perAgent[agentID]
	overridesEvent := false
	for _, h := range perAgent {
		if h.Event == eventType && h.Override {
			overridesEvent = true
			break
		}
	}

	var out []Hook
	if !overridesEvent {
		for _, h := range r.global {
			if h.Event == eventType && h.Matches(toolName) {
				out = append(out, h)
			}
		}
	}
	for _, h := range perAgent {
		if h.Event == eventType && h.Matches(toolName) {
			out = append(out, h)
		}
	}
	return out
}

// AggregatePreToolUse combines results from every matching PreToolUse
// handler (spec §4.3 aggregation): any deny wins; updated_input values
// chain in registration order.
func AggregatePreToolUse(ctx context.Context, hs []Hook, event *PreToolUseEvent) (denied bool, denyReason string, payload json.RawMessage, err error) {
	payload = event.Payload
	for _, h := range hs {
		hctx, cancel := context.WithTimeout(ctx, timeoutOrDefault(h.Timeout))
		ev := *event
		ev.Payload = payload
		res, herr := h.Handler.Handle(hctx, &ev)
		cancel()
		if herr != nil {
			// Runtime exceptions/timeouts fail open; import/setup errors are
			// surfaced by the handler itself via Deny (fail closed), matching
			// spec §4.3/§7's hook error taxonomy.
			continue
		}
		if res.Deny {
			return true, res.DenyReason, payload, nil
		}
		if res.UpdatedInput != nil {
			payload = res.UpdatedInput
		}
	}
	return false, "", payload, nil
}

// AggregatePostToolUse combines results from every matching PostToolUse
// handler: the inject payloads are returned in registration order and are
// not grouped by strategy.
func AggregatePostToolUse(ctx context.Context, hs []Hook, event *PostToolUseEvent) []Injection {
	var injections []Injection
	for _, h := range hs {
		hctx, cancel := context.WithTimeout(ctx, timeoutOrDefault(h.Timeout))
		res, err := h.Handler.Handle(hctx, event)
		cancel()
		if err != nil {
			continue
		}
		if res.Inject != nil {
			injections = append(injections, *res.Inject)
		}
	}
	return injections
}

func timeoutOrDefault(d time.Duration) time.Duration {
	if d <= 0 {
		return DefaultTimeout
	}
	return d
}

// ExternalHandler runs a hook as an external process communicating over the
// JSON stdin/stdout protocol (spec §4.3, §6): the event is written as one
// JSON HookEvent line to stdin; the process writes one JSON HookResult line
// to stdout. A token-bucket limiter bounds how often external processes may
// be spawned under load.
type ExternalHandler struct {
	Command string
	Args    []string

	limiter *rate.Limiter
}

// NewExternalHandler constructs an ExternalHandler rate-limited to at most
// ratePerSec invocations per second with a burst of burst.
func NewExternalHandler(command string, args []string, ratePerSec float64, burst int) *ExternalHandler {
	return &ExternalHandler{Command: command, Args: args, limiter: rate.NewLimiter(rate.Limit(ratePerSec), burst)}
}

// HookEvent is the external-command protocol's stdin payload.
type HookEvent struct {
	HookType   string          `json:"hook_type"`
	ToolName   string          `json:"tool_name"`
	SessionID  string          `json:"session_id"`
	AgentID    string          `json:"agent_id"`
	RunID      string          `json:"run_id"`
	Payload    json.RawMessage `json:"payload,omitempty"`
	Result     any             `json:"result,omitempty"`
	IsError    bool            `json:"is_error,omitempty"`
}

// HookResult is the external-command protocol's stdout payload.
type HookResult struct {
	Deny         bool            `json:"deny,omitempty"`
	DenyReason   string          `json:"deny_reason,omitempty"`
	UpdatedInput json.RawMessage `json:"updated_input,omitempty"`
	Ask          bool            `json:"ask,omitempty"`
	InjectContent string         `json:"inject_content,omitempty"`
	InjectStrategy string        `json:"inject_strategy,omitempty"`
}

// Handle implements Handler by spawning the external command, writing the
// JSON HookEvent to stdin, and decoding the JSON HookResult from stdout.
// A handler import/setup error (process fails to start) fails closed
// (denies); any other runtime error is left to the caller to treat as
// fail-open per spec §4.3/§7.
func (h *ExternalHandler) Handle(ctx context.Context, event Event) (Result, error) {
	if err := h.limiter.Wait(ctx); err != nil {
		return Result{}, err
	}

	in := toHookEvent(event)
	payload, err := json.Marshal(in)
	if err != nil {
		return Result{}, err
	}

	cmd := exec.CommandContext(ctx, h.Command, h.Args...)
	cmd.Env = append(cmd.Env,
		"HOOK_TYPE="+in.HookType,
		"TOOL_NAME="+in.ToolName,
		"SESSION_ID="+in.SessionID,
		"AGENT_ID="+in.AgentID,
	)
	cmd.Stdin = bytes.NewReader(append(payload, '\n'))
	var stdout bytes.Buffer
	cmd.Stdout = &stdout

	if err := cmd.Start(); err != nil {
		return Result{Deny: true, DenyReason: "hook command failed: " + err.Error()}, nil
	}
	if err := cmd.Wait(); err != nil {
		return Result{}, err
	}

	var res HookResult
	line := strings.TrimSpace(stdout.String())
	if line == "" {
		return Result{}, nil
	}
	if err := json.Unmarshal([]byte(line), &res); err != nil {
		return Result{}, err
	}
	return fromHookResult(res), nil
}

func toHookEvent(event Event) HookEvent {
	ev := HookEvent{
		HookType:  string(event.Type()),
		SessionID: event.SessionID(),
		AgentID:   event.AgentID(),
		RunID:     event.RunID(),
	}
	switch e := event.(type) {
	case *PreToolUseEvent:
		ev.ToolName = string(e.ToolName)
		ev.Payload = e.Payload
	case *PostToolUseEvent:
		ev.ToolName = string(e.ToolName)
		ev.Result = e.Result
		ev.IsError = e.IsError
	}
	return ev
}

func fromHookResult(res HookResult) Result {
	out := Result{Deny: res.Deny, DenyReason: res.DenyReason, UpdatedInput: res.UpdatedInput, Ask: res.Ask}
	if res.InjectContent != "" {
		out.Inject = &Injection{Content: res.InjectContent, Strategy: InjectStrategy(res.InjectStrategy)}
	}
	return out
}
