package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"massgen.dev/coordination/agent"
	"massgen.dev/coordination/agentrunner"
	"massgen.dev/coordination/config"
	"massgen.dev/coordination/model"
	"massgen.dev/coordination/subagent"
	"massgen.dev/coordination/transcript"
)

func TestLauncherRunsNestedSessionToCompletion(t *testing.T) {
	l := &Launcher{
		LogRoot: t.TempDir(),
		Config:  config.CoordinationConfig{SkipVoting: true},
		NewAgents: func(childRunID string) map[agent.Ident]*agentrunner.Runner {
			b := &scriptedBackend{turns: [][]model.Chunk{
				{toolCallChunk("new_answer", "t1", `{"content":"nested answer"}`)},
				{toolCallChunk("vote", "t2", `{"target":"sub1.1"}`)},
			}}
			return map[agent.Ident]*agentrunner.Runner{
				"sub1": {AgentID: "sub1", RunID: childRunID, Backend: b, Trace: transcript.New()},
			}
		},
	}

	h, err := l.Launch(context.Background(), "agent1", subagent.Task{ID: "t1", Context: "nested question"})
	require.NoError(t, err)
	require.NotEmpty(t, h.StatusPath())

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	outcome, err := h.Wait(ctx)
	require.NoError(t, err)
	require.Equal(t, "nested answer", outcome.Answer)
}
