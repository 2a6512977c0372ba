package agentrunner

import (
	"context"
	"io"
	"testing"

	"github.com/stretchr/testify/require"

	"massgen.dev/coordination/hooks"
	"massgen.dev/coordination/model"
	"massgen.dev/coordination/toolpipeline"
	"massgen.dev/coordination/toolregistry"
	"massgen.dev/coordination/tools"
	"massgen.dev/coordination/transcript"
)

type scriptedStreamer struct {
	chunks []model.Chunk
	idx    int
}

func (s *scriptedStreamer) Recv() (model.Chunk, error) {
	if s.idx >= len(s.chunks) {
		return model.Chunk{}, io.EOF
	}
	c := s.chunks[s.idx]
	s.idx++
	return c, nil
}

func (s *scriptedStreamer) Close() error { return nil }

type scriptedBackend struct {
	turns [][]model.Chunk
	calls int
}

func (b *scriptedBackend) Stream(ctx context.Context, req *model.Request) (model.Streamer, error) {
	i := b.calls
	if i >= len(b.turns) {
		i = len(b.turns) - 1
	}
	b.calls++
	return &scriptedStreamer{chunks: b.turns[i]}, nil
}

func toolCallChunk(name, id, payload string) model.Chunk {
	return model.Chunk{Type: model.ChunkTypeToolCall, ToolCall: &model.ToolCall{Name: tools.Ident(name), ID: id, Payload: []byte(payload)}}
}

func TestRunAcceptsNewAnswer(t *testing.T) {
	backend := &scriptedBackend{turns: [][]model.Chunk{
		{toolCallChunk("new_answer", "t1", `{"content":"42"}`)},
	}}
	r := &Runner{AgentID: "agent1", RunID: "run1", Backend: backend, Trace: transcript.New()}

	out, err := r.Run(context.Background(), nil, "agent1.1")
	require.NoError(t, err)
	require.Equal(t, OutcomeNewAnswer, out.Kind)
	require.Equal(t, "42", out.Content)
}

func TestRunEnforcesNoToolCalls(t *testing.T) {
	backend := &scriptedBackend{turns: [][]model.Chunk{
		{{Type: model.ChunkTypeText, Message: &model.Message{Parts: []model.Part{model.TextPart{Text: "thinking out loud"}}}}},
		{{Type: model.ChunkTypeText, Message: &model.Message{Parts: []model.Part{model.TextPart{Text: "still thinking"}}}}},
		{toolCallChunk("vote", "t2", `{"target_answer_label":"agent2.1"}`)},
	}}
	r := &Runner{AgentID: "agent1", RunID: "run1", Backend: backend, Trace: transcript.New(), MaxEnforcementRetries: 2}

	out, err := r.Run(context.Background(), nil, "agent1.1")
	require.NoError(t, err)
	require.Equal(t, OutcomeVote, out.Kind)
	require.Equal(t, 2, out.EnforcementAttempts)
	require.Equal(t, "agent2.1", out.TargetLabel)
}

func TestRunMarksNonCompliantPastRetryBound(t *testing.T) {
	empty := []model.Chunk{{Type: model.ChunkTypeText, Message: &model.Message{Parts: []model.Part{model.TextPart{Text: "nope"}}}}}
	backend := &scriptedBackend{turns: [][]model.Chunk{empty, empty, empty}}
	r := &Runner{AgentID: "agent1", RunID: "run1", Backend: backend, Trace: transcript.New(), MaxEnforcementRetries: 1}

	out, err := r.Run(context.Background(), nil, "agent1.1")
	require.NoError(t, err)
	require.Equal(t, OutcomeNonCompliant, out.Kind)
}

func TestRunDispatchesNonWorkflowToolThenAccepts(t *testing.T) {
	reg := toolregistry.New()
	reg.Register(toolregistry.Descriptor{
		Spec:     tools.Spec{Name: tools.CustomToolIdent("lookup")},
		Executor: toolregistry.ExecutorFunc(func(args []byte) (any, error) { return "ok", nil }),
	})
	backend := &scriptedBackend{turns: [][]model.Chunk{
		{toolCallChunk("custom_tool__lookup", "t1", `{}`)},
		{toolCallChunk("new_answer", "t2", `{"content":"done"}`)},
	}}

	pipeline := &toolpipeline.Pipeline{Tools: reg, Hooks: hooks.NewRegistry(), EvictDir: t.TempDir()}
	r := &Runner{
		AgentID:     "agent1",
		RunID:       "run1",
		Backend:     backend,
		Pipeline:    pipeline,
		Trace:       transcript.New(),
		IsKnownTool: func(tools.Ident) bool { return true },
	}

	out, err := r.Run(context.Background(), nil, "agent1.1")
	require.NoError(t, err)
	require.Equal(t, OutcomeNewAnswer, out.Kind)
	require.Equal(t, "done", out.Content)
}

func TestRunRejectsUnknownTool(t *testing.T) {
	backend := &scriptedBackend{turns: [][]model.Chunk{
		{toolCallChunk("custom_tool__mystery", "t1", `{}`)},
		{toolCallChunk("new_answer", "t2", `{"content":"ok"}`)},
	}}
	r := &Runner{
		AgentID:               "agent1",
		RunID:                 "run1",
		Backend:               backend,
		Trace:                 transcript.New(),
		MaxEnforcementRetries: 2,
		IsKnownTool:           func(tools.Ident) bool { return false },
	}

	out, err := r.Run(context.Background(), nil, "agent1.1")
	require.NoError(t, err)
	require.Equal(t, OutcomeNewAnswer, out.Kind)
	require.Equal(t, 1, out.EnforcementAttempts)
}

