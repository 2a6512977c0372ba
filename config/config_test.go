package config

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func validConfig() Config {
	return Config{
		Agents: []AgentConfig{
			{ID: "agent1", Backend: "anthropic", Model: "claude"},
			{ID: "agent2", Backend: "openai", Model: "gpt"},
		},
	}
}

func TestValidateRequiresAtLeastOneAgent(t *testing.T) {
	require.Error(t, Config{}.Validate())
}

func TestValidateRejectsDuplicateAgentIDs(t *testing.T) {
	c := validConfig()
	c.Agents = append(c.Agents, AgentConfig{ID: "agent1", Backend: "x", Model: "y"})
	require.Error(t, c.Validate())
}

func TestValidateRejectsMissingBackendOrModel(t *testing.T) {
	c := validConfig()
	c.Agents[0].Backend = ""
	require.Error(t, c.Validate())
}

func TestValidateRejectsBadSubagentTimeoutOrdering(t *testing.T) {
	c := validConfig()
	c.Coordination.SubagentMinTimeout = 500
	c.Coordination.SubagentMaxTimeout = 100
	require.Error(t, c.Validate())
}

func TestValidateRejectsAsyncSubagentsMissingMaxBackground(t *testing.T) {
	c := validConfig()
	c.Coordination.AsyncSubagents.Enabled = true
	c.Coordination.AsyncSubagents.InjectionStrategy = InjectionStrategyToolResult
	require.Error(t, c.Validate())
}

func TestValidateAcceptsWellFormedConfig(t *testing.T) {
	c := validConfig()
	c.Coordination.AsyncSubagents = AsyncSubagentConfig{
		Enabled:           true,
		InjectionStrategy: InjectionStrategyUserMessage,
		MaxBackground:     3,
	}
	require.NoError(t, c.Validate())
}

func TestEffectiveTimeoutsAppliesDefaultsAndClamps(t *testing.T) {
	var c CoordinationConfig
	minT, maxT, defT := c.EffectiveTimeouts()
	require.Equal(t, DefaultSubagentMinTimeout, minT)
	require.Equal(t, DefaultSubagentMaxTimeout, maxT)
	require.Equal(t, DefaultSubagentDefaultTimeout, defT)

	c.SubagentDefaultTimeout = 2 * DefaultSubagentMaxTimeout
	_, _, defT = c.EffectiveTimeouts()
	require.Equal(t, DefaultSubagentMaxTimeout, defT)
}
