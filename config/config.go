// Package config defines the validated, strongly-typed configuration object
// the core consumes (spec §6 "CLI & configuration surface"). Parsing
// configuration from a file format is explicitly out of scope; this package
// only constructs and validates the in-memory object the embedding
// application builds.
package config

import (
	"fmt"
	"time"

	"massgen.dev/coordination/agent"
	"massgen.dev/coordination/workspace"
)

// Default and bound values for subagent timeouts (spec §4.6).
const (
	DefaultSubagentMinTimeout     = 60 * time.Second
	DefaultSubagentMaxTimeout     = 600 * time.Second
	DefaultSubagentDefaultTimeout = 300 * time.Second
)

// DefaultMaxAnswersPerAgent bounds how many new_answer submissions a single
// agent may make in one coordination run before further submissions are
// rejected with the "answer_limit" enforcement reason (spec §4.5). The spec
// names the reason code without a numeric bound; this default keeps a
// stalled or looping agent from monopolizing the voting pool while staying
// generous enough not to interfere with normal refinement.
const DefaultMaxAnswersPerAgent = 5

// InjectionStrategy selects how a background subagent's result is delivered
// to its parent (spec §4.6).
type InjectionStrategy string

const (
	InjectionStrategyToolResult  InjectionStrategy = "tool_result"
	InjectionStrategyUserMessage InjectionStrategy = "user_message"
)

// AgentConfig describes one coordinating agent.
type AgentConfig struct {
	ID      agent.Ident
	Backend string
	Model   string
	// HookOverrides, if non-empty, replace global hooks for this agent on
	// any event they cover (spec §4.3 "per-agent override:true").
	HookOverrides []HookConfig
}

// HookConfig describes one hook registration parsed into config (global or
// per-agent; spec §4.3, §6).
type HookConfig struct {
	Event    string
	Matcher  string
	Command  string
	Args     []string
	Override bool
}

// AsyncSubagentConfig configures background subagent spawning (spec §6
// "async_subagents.*").
type AsyncSubagentConfig struct {
	Enabled           bool
	InjectionStrategy InjectionStrategy
	InjectProgress    bool
	MaxBackground     int
}

// CoordinationConfig mirrors the spec's "orchestrator.coordination" options
// (§6) verbatim.
type CoordinationConfig struct {
	EnablePlanningMode          bool
	SkipVoting                  bool
	DisableInjection            bool
	DeferVotingUntilAllAnswered bool
	SkipFinalPresentation       bool
	AsyncSubagents              AsyncSubagentConfig
	SubagentMinTimeout          time.Duration
	SubagentMaxTimeout          time.Duration
	SubagentDefaultTimeout      time.Duration
	// MaxAnswersPerAgent bounds submissions per agent (see
	// DefaultMaxAnswersPerAgent); zero means the default applies.
	MaxAnswersPerAgent int
}

// EffectiveMaxAnswersPerAgent returns MaxAnswersPerAgent with the spec
// default applied when unset.
func (c CoordinationConfig) EffectiveMaxAnswersPerAgent() int {
	if c.MaxAnswersPerAgent <= 0 {
		return DefaultMaxAnswersPerAgent
	}
	return c.MaxAnswersPerAgent
}

// Config is the validated configuration object consumed by the core (spec
// §6). It is constructed and populated by the embedding application; this
// package never reads a config file itself.
type Config struct {
	Agents       []AgentConfig
	ContextPaths []workspace.ContextPath
	Coordination CoordinationConfig
	GlobalHooks  []HookConfig
}

// Validate rejects unknown/invalid combinations before a run starts (spec
// §6 "semantically invalid combinations... surface as configuration
// errors before coordination starts").
func (c Config) Validate() error {
	if len(c.Agents) == 0 {
		return fmt.Errorf("config: at least one agent is required")
	}
	seen := make(map[agent.Ident]bool, len(c.Agents))
	for _, a := range c.Agents {
		if a.ID == "" {
			return fmt.Errorf("config: agent id must not be empty")
		}
		if seen[a.ID] {
			return fmt.Errorf("config: duplicate agent id %q", a.ID)
		}
		seen[a.ID] = true
		if a.Backend == "" {
			return fmt.Errorf("config: agent %q missing backend", a.ID)
		}
		if a.Model == "" {
			return fmt.Errorf("config: agent %q missing model", a.ID)
		}
	}

	if err := c.Coordination.validate(); err != nil {
		return err
	}

	for i, cp := range c.ContextPaths {
		if cp.AbsolutePath == "" {
			return fmt.Errorf("config: context path %d missing absolute path", i)
		}
	}

	for i, h := range c.GlobalHooks {
		if err := h.validate(); err != nil {
			return fmt.Errorf("config: global hook %d: %w", i, err)
		}
	}
	for _, a := range c.Agents {
		for i, h := range a.HookOverrides {
			if err := h.validate(); err != nil {
				return fmt.Errorf("config: agent %q hook %d: %w", a.ID, i, err)
			}
		}
	}
	return nil
}

func (h HookConfig) validate() error {
	if h.Event == "" {
		return fmt.Errorf("missing event")
	}
	if h.Command == "" {
		return fmt.Errorf("missing command")
	}
	return nil
}

func (c CoordinationConfig) validate() error {
	minT, maxT, defT := c.effectiveTimeouts()
	if minT > maxT {
		return fmt.Errorf("config: subagent_min_timeout (%s) exceeds subagent_max_timeout (%s)", minT, maxT)
	}
	if defT < minT || defT > maxT {
		return fmt.Errorf("config: subagent_default_timeout (%s) outside [%s, %s]", defT, minT, maxT)
	}
	if c.AsyncSubagents.Enabled {
		switch c.AsyncSubagents.InjectionStrategy {
		case InjectionStrategyToolResult, InjectionStrategyUserMessage:
		default:
			return fmt.Errorf("config: async_subagents.injection_strategy %q is invalid", c.AsyncSubagents.InjectionStrategy)
		}
		if c.AsyncSubagents.MaxBackground <= 0 {
			return fmt.Errorf("config: async_subagents.max_background must be positive when enabled")
		}
	}
	return nil
}

// effectiveTimeouts fills in spec-defined defaults (spec §4.6) for any zero
// fields, without mutating c.
func (c CoordinationConfig) effectiveTimeouts() (minT, maxT, defT time.Duration) {
	minT, maxT, defT = c.SubagentMinTimeout, c.SubagentMaxTimeout, c.SubagentDefaultTimeout
	if minT == 0 {
		minT = DefaultSubagentMinTimeout
	}
	if maxT == 0 {
		maxT = DefaultSubagentMaxTimeout
	}
	if defT == 0 {
		defT = DefaultSubagentDefaultTimeout
	}
	return
}

// EffectiveTimeouts returns the subagent timeout bounds with spec defaults
// applied, clamping any configured default into range (spec §4.6 "clamping").
func (c CoordinationConfig) EffectiveTimeouts() (minT, maxT, defT time.Duration) {
	minT, maxT, defT = c.effectiveTimeouts()
	if defT < minT {
		defT = minT
	}
	if defT > maxT {
		defT = maxT
	}
	return
}
