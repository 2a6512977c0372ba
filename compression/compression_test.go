package compression

import (
	"context"
	"io"
	"testing"

	"github.com/stretchr/testify/require"

	"massgen.dev/coordination/model"
)

type stubStreamer struct {
	chunks []model.Chunk
	idx    int
}

func (s *stubStreamer) Recv() (model.Chunk, error) {
	if s.idx >= len(s.chunks) {
		return model.Chunk{}, io.EOF
	}
	c := s.chunks[s.idx]
	s.idx++
	return c, nil
}

func (s *stubStreamer) Close() error { return nil }

type stubBackend struct {
	text string
}

func (b *stubBackend) Stream(ctx context.Context, req *model.Request) (model.Streamer, error) {
	return &stubStreamer{chunks: []model.Chunk{
		{Type: model.ChunkTypeText, Message: &model.Message{Parts: []model.Part{model.TextPart{Text: b.text}}}},
		{Type: model.ChunkTypeStop, StopReason: "end_turn"},
	}}, nil
}

func userMsg(text string) *model.Message {
	return &model.Message{Role: model.ConversationRoleUser, Parts: []model.Part{model.TextPart{Text: text}}}
}

func assistantMsg(text string) *model.Message {
	return &model.Message{Role: model.ConversationRoleAssistant, Parts: []model.Part{model.TextPart{Text: text}}}
}

func TestCompressSummarizesOldestAndKeepsRecentAndBuffer(t *testing.T) {
	adapter := New(&stubBackend{text: "summary text"}, WithKeepRecent(1))

	history := []*model.Message{
		{Role: model.ConversationRoleSystem, Parts: []model.Part{model.TextPart{Text: "system prompt"}}},
		userMsg("turn 1"),
		assistantMsg("reply 1"),
		userMsg("turn 2"),
		assistantMsg("reply 2"),
	}

	res, err := adapter.Compress(context.Background(), Request{
		History: history,
		Buffer:  "partial tool call json",
		Evicted: []EvictedResult{{ToolName: "list_files", Path: "/tmp/evicted.json", Chars: 90000}},
	})
	require.NoError(t, err)
	require.True(t, res.RetryFlag)
	require.Equal(t, 1, res.SummarizedTurns)

	require.Equal(t, model.ConversationRoleSystem, res.Messages[0].Role)

	var sawSummary, sawBuffer, sawEvicted, sawRecent bool
	for _, m := range res.Messages {
		tp, ok := m.Parts[0].(model.TextPart)
		if !ok {
			continue
		}
		switch {
		case contains(tp.Text, "[Conversation Summary]"):
			sawSummary = true
		case contains(tp.Text, "[Tool execution results]"):
			sawBuffer = true
		case contains(tp.Text, "Evicted tool results"):
			sawEvicted = true
		case contains(tp.Text, "turn 2"):
			sawRecent = true
		}
	}
	require.True(t, sawSummary)
	require.True(t, sawBuffer)
	require.True(t, sawEvicted)
	require.True(t, sawRecent)
}

func TestCompressNoClientStillSetsRetryFlag(t *testing.T) {
	adapter := New(nil)
	history := []*model.Message{userMsg("hello")}
	res, err := adapter.Compress(context.Background(), Request{History: history})
	require.NoError(t, err)
	require.True(t, res.RetryFlag)
}

func contains(s, substr string) bool {
	for i := 0; i+len(substr) <= len(s); i++ {
		if s[i:i+len(substr)] == substr {
			return true
		}
	}
	return false
}
