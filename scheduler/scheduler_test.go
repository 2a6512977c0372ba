package scheduler

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"massgen.dev/coordination/agent"
	"massgen.dev/coordination/agentrunner"
	"massgen.dev/coordination/config"
	"massgen.dev/coordination/model"
	"massgen.dev/coordination/run"
	"massgen.dev/coordination/toolerrors"
	"massgen.dev/coordination/transcript"
	"massgen.dev/coordination/tools"
	"massgen.dev/coordination/workspace"
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

func TestSchedulerSingleAgentAnswerThenVoteProducesWinner(t *testing.T) {
	backend := &scriptedBackend{turns: [][]model.Chunk{
		{toolCallChunk("new_answer", "t1", `{"content":"alpha"}`)},
		{toolCallChunk("vote", "t2", `{"target":"agent1.1"}`)},
	}}
	r := &agentrunner.Runner{AgentID: "agent1", RunID: "run1", Backend: backend, Trace: transcript.New()}

	wsMgr := workspace.NewManager(t.TempDir())
	s := NewScheduler("run1", run.Task{Question: "what is the answer?"}, map[agent.Ident]*agentrunner.Runner{"agent1": r}, wsMgr, nil, nil, config.CoordinationConfig{SkipVoting: true})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	final, err := s.Run(ctx)
	require.NoError(t, err)
	require.NotNil(t, final)
	require.Equal(t, run.AnswerLabel("agent1.final"), final.Label)
	require.Equal(t, "alpha", final.Content)
}

func TestValidateNewAnswerRejectsDuplicateAndLimit(t *testing.T) {
	s := &Scheduler{state: newCoordinationState(), Config: config.CoordinationConfig{MaxAnswersPerAgent: 1}}
	s.state.answers = append(s.state.answers, run.Answer{Label: "agent1.1", AgentID: "agent1", Content: "same text"})
	s.state.submissions["agent1"] = 1

	out := s.ValidateNewAnswer(context.Background(), "agent1", "same text")
	require.False(t, out.Valid)
	require.Equal(t, toolerrors.ReasonAnswerLimit, out.Reason)

	s.Config.MaxAnswersPerAgent = 2
	out = s.ValidateNewAnswer(context.Background(), "agent1", "same text")
	require.False(t, out.Valid)
	require.Equal(t, toolerrors.ReasonAnswerDuplicate, out.Reason)
}

func TestValidateNewAnswerRejectsNovelty(t *testing.T) {
	s := &Scheduler{state: newCoordinationState(), Config: config.CoordinationConfig{}}
	s.state.answers = append(s.state.answers, run.Answer{Label: "agent2.1", AgentID: "agent2", Content: "shared text"})

	out := s.ValidateNewAnswer(context.Background(), "agent1", "shared text")
	require.False(t, out.Valid)
	require.Equal(t, toolerrors.ReasonAnswerNovelty, out.Reason)
}

func TestValidateVoteRejectsUnknownLabelAndNoAnswers(t *testing.T) {
	s := &Scheduler{state: newCoordinationState(), Config: config.CoordinationConfig{}}

	out := s.ValidateVote(context.Background(), "agent1", "agent1.1", "")
	require.False(t, out.Valid)
	require.Equal(t, toolerrors.ReasonVoteNoAnswers, out.Reason)

	s.state.answers = append(s.state.answers, run.Answer{Label: "agent1.1", AgentID: "agent1"})
	out = s.ValidateVote(context.Background(), "agent1", "agent1.999", "")
	require.False(t, out.Valid)
	require.Equal(t, toolerrors.ReasonInvalidVoteID, out.Reason)

	out = s.ValidateVote(context.Background(), "agent1", "agent1.1", "")
	require.True(t, out.Valid)
}

func TestSelectWinnerTieBreaksByEarliestSubmission(t *testing.T) {
	s := &Scheduler{state: newCoordinationState(), Agents: map[agent.Ident]*agentrunner.Runner{"agent1": {}, "agent2": {}}}
	now := time.Now()
	s.state.answers = []run.Answer{
		{Label: "agent1.1", AgentID: "agent1", SubmittedAt: now},
		{Label: "agent2.1", AgentID: "agent2", SubmittedAt: now.Add(time.Second)},
	}
	s.state.votingRound = 1
	s.state.votes = []run.Vote{
		{Target: "agent1.1", VotingRound: 1},
		{Target: "agent2.1", VotingRound: 1},
	}

	winner := s.selectWinner()
	require.NotNil(t, winner)
	require.Equal(t, run.AnswerLabel("agent1.1"), winner.Label)
}

func TestTimeoutRecoveryFallsBackToEarliestAnswer(t *testing.T) {
	s := &Scheduler{state: newCoordinationState(), Agents: map[agent.Ident]*agentrunner.Runner{"agent1": {}, "agent2": {}}}
	now := time.Now()
	s.state.answers = []run.Answer{
		{Label: "agent2.1", AgentID: "agent2", SubmittedAt: now.Add(time.Second)},
		{Label: "agent1.1", AgentID: "agent1", SubmittedAt: now},
	}

	winner := s.timeoutRecovery()
	require.NotNil(t, winner)
	require.Equal(t, run.AnswerLabel("agent1.1"), winner.Label)
}
