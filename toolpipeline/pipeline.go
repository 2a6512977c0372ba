// Package toolpipeline implements the Tool-Execution Pipeline (spec §4.2):
// resolve a tool call, run it through the PreToolUse hook chain, dispatch to
// the tool registry or an MCP server, evict oversized results to disk, run
// the PostToolUse hook chain, and append the full-fidelity call/result pair
// to the agent's execution trace.
package toolpipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"massgen.dev/coordination/agent"
	"massgen.dev/coordination/hooks"
	"massgen.dev/coordination/mcp"
	"massgen.dev/coordination/telemetry"
	"massgen.dev/coordination/toolerrors"
	"massgen.dev/coordination/toolregistry"
	"massgen.dev/coordination/tools"
	"massgen.dev/coordination/transcript"
	"massgen.dev/coordination/workspace"
)

// evictionThresholdChars is the large-result eviction cutoff, expressed in
// characters at the conservative ~4 chars/token ratio the ambient stack
// assumes elsewhere (spec §4.2 "large-result eviction at 20,000 tokens").
const evictionThresholdChars = 20_000 * 4

// Call describes one resolved tool invocation ready for the pipeline.
type Call struct {
	AgentID     agent.Ident
	RunID       string
	ToolName    tools.Ident
	ToolCallID  string
	Payload     json.RawMessage
	RoundLabel  string
}

// Result is what the pipeline hands back to the Agent Runner: either the
// tool's normalized result (fed back into the model stream) or a denial.
type Result struct {
	// Content is the normalized result value fed back to the model,
	// already reflecting any eviction and PostToolUse injections.
	Content any
	// IsError reports whether the tool call failed (including denial).
	IsError bool
	// Denied reports whether a PreToolUse hook denied the call.
	Denied bool
	// DenyReason is the hook-supplied denial explanation.
	DenyReason string
	// Duration is how long dispatch took, excluding hook overhead.
	Duration time.Duration
}

// Pipeline wires the tool registry, MCP registry, hook registry, and
// execution trace together into the per-call sequence (spec §4.2 steps 1-7).
type Pipeline struct {
	Tools     *toolregistry.Registry
	Validator *toolregistry.Validator
	MCP       *mcp.Registry
	Hooks     *hooks.Registry
	Bus       hooks.Bus
	Metrics   telemetry.Metrics
	Logger    telemetry.Logger

	// EvictDir is the directory oversized results are written under (spec
	// §4.2 "`.tool_results/`"), typically filepath.Join(manager.RunRoot,
	// ".tool_results").
	EvictDir string
}

// Dispatch runs call through the full pipeline and appends the resulting
// call/result pair to trace.
func (p *Pipeline) Dispatch(ctx context.Context, call Call, trace *transcript.Trace) (Result, error) {
	trace.AppendToolCall(call.RoundLabel, string(call.ToolName), call.Payload)

	payload, denied, denyReason, err := p.runPreToolUse(ctx, call)
	if err != nil {
		return Result{}, err
	}
	if denied {
		trace.AppendError(call.RoundLabel, fmt.Errorf("tool %s denied: %s", call.ToolName, denyReason))
		return Result{Denied: true, DenyReason: denyReason, IsError: true}, nil
	}
	call.Payload = payload

	start := time.Now()
	result, isErr, err := p.dispatch(ctx, call)
	duration := time.Since(start)
	if err != nil {
		trace.AppendError(call.RoundLabel, err)
		return Result{}, err
	}

	trace.AppendToolResult(call.RoundLabel, string(call.ToolName), result)

	evicted, err := p.evictIfOversized(call, result)
	if err != nil {
		p.logWarn(ctx, "tool result eviction failed", err)
	} else if evicted != nil {
		result = evicted
	}

	injected := p.runPostToolUse(ctx, call, result, isErr, duration)
	if len(injected) > 0 {
		result = applyInjections(result, injected)
	}

	if p.Bus != nil {
		_ = p.Bus.Publish(ctx, hooks.NewPostToolUseEvent(call.RunID, call.AgentID, call.ToolName, call.ToolCallID, result, isErr, duration))
	}

	return Result{Content: result, IsError: isErr, Duration: duration}, nil
}

func (p *Pipeline) runPreToolUse(ctx context.Context, call Call) (json.RawMessage, bool, string, error) {
	if p.Hooks == nil {
		return call.Payload, false, "", nil
	}
	hs := p.Hooks.Resolve(call.AgentID, hooks.PreToolUse, string(call.ToolName))
	if len(hs) == 0 {
		return call.Payload, false, "", nil
	}
	event := hooks.NewPreToolUseEvent(call.RunID, call.AgentID, call.ToolName, call.ToolCallID, call.Payload)
	denied, reason, payload, err := hooks.AggregatePreToolUse(ctx, hs, event)
	return payload, denied, reason, err
}

func (p *Pipeline) runPostToolUse(ctx context.Context, call Call, result any, isErr bool, duration time.Duration) []hooks.Injection {
	if p.Hooks == nil {
		return nil
	}
	hs := p.Hooks.Resolve(call.AgentID, hooks.PostToolUse, string(call.ToolName))
	if len(hs) == 0 {
		return nil
	}
	event := hooks.NewPostToolUseEvent(call.RunID, call.AgentID, call.ToolName, call.ToolCallID, result, isErr, duration)
	return hooks.AggregatePostToolUse(ctx, hs, event)
}

func (p *Pipeline) dispatch(ctx context.Context, call Call) (any, bool, error) {
	if call.ToolName.IsMCPTool() {
		return p.dispatchMCP(ctx, call)
	}

	desc, ok := p.Tools.Lookup(call.ToolName)
	if !ok {
		return nil, true, toolerrors.Errorf("unknown tool %q", call.ToolName)
	}
	if p.Validator != nil {
		if schema, ok := desc.Spec.InputSchema.(map[string]any); ok {
			if err := p.Validator.Validate(string(call.ToolName), schema, call.Payload); err != nil {
				return nil, true, toolerrors.NewWithCause("invalid tool arguments", err)
			}
		}
	}
	result, err := desc.Executor.Execute(call.Payload)
	if err != nil {
		return nil, true, toolerrors.NewWithCause(fmt.Sprintf("tool %q failed", call.ToolName), err)
	}
	return result, false, nil
}

func (p *Pipeline) dispatchMCP(ctx context.Context, call Call) (any, bool, error) {
	if p.MCP == nil {
		return nil, true, toolerrors.Errorf("mcp tool %q requested but no MCP registry configured", call.ToolName)
	}
	server := call.ToolName.MCPServer()
	toolName := strings.TrimPrefix(string(call.ToolName), "mcp__"+server+"__")
	resp, err := p.MCP.CallTool(ctx, mcp.CallRequest{Server: server, Tool: toolName, Payload: call.Payload})
	if err != nil {
		return nil, true, toolerrors.NewWithCause(fmt.Sprintf("mcp tool %q failed", call.ToolName), err)
	}
	var decoded any
	if len(resp.Result) > 0 {
		if err := json.Unmarshal(resp.Result, &decoded); err != nil {
			decoded = string(resp.Result)
		}
	}
	return decoded, resp.IsError, nil
}

// evictionReference is the compact, cache-friendly value substituted for an
// oversized tool result (spec §4.2 "references evicted-tool-result files
// verbatim" consumer in the compression adapter).
type evictionReference struct {
	Evicted  bool   `json:"evicted"`
	Path     string `json:"path"`
	Chars    int    `json:"chars"`
	Preview  string `json:"preview"`
}

func (p *Pipeline) evictIfOversized(call Call, result any) (any, error) {
	raw, err := json.Marshal(result)
	if err != nil {
		return nil, err
	}
	if len(raw) <= evictionThresholdChars {
		return nil, nil
	}
	if p.EvictDir == "" {
		return nil, fmt.Errorf("toolpipeline: result exceeds eviction threshold but no EvictDir configured")
	}
	if err := os.MkdirAll(p.EvictDir, 0o755); err != nil {
		return nil, err
	}

	hash := workspace.HashBytes(raw)
	name := fmt.Sprintf("%s_%d_%s.txt", sanitizeToolName(call.ToolName), time.Now().UnixNano(), hash[:16])
	path := filepath.Join(p.EvictDir, name)
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		return nil, err
	}

	preview := string(raw)
	if len(preview) > 500 {
		preview = preview[:500]
	}
	return evictionReference{Evicted: true, Path: path, Chars: len(raw), Preview: preview}, nil
}

func sanitizeToolName(name tools.Ident) string {
	return strings.NewReplacer("/", "_", " ", "_").Replace(string(name))
}

func applyInjections(result any, injections []hooks.Injection) any {
	var sb strings.Builder
	for _, inj := range injections {
		if inj.Strategy == hooks.InjectStrategyToolResult {
			sb.WriteString(inj.Content)
			sb.WriteString("\n")
		}
	}
	if sb.Len() == 0 {
		return result
	}
	return map[string]any{"result": result, "injected": sb.String()}
}

func (p *Pipeline) logWarn(ctx context.Context, msg string, err error) {
	if p.Logger != nil {
		p.Logger.Warn(ctx, msg, "err", err)
	}
}
