// Package compression implements the Context Compression Adapter (spec
// §4.8): reactive recovery from a backend context-length failure. Unlike a
// proactive turn-count policy, the adapter only runs when the Agent Runner
// observes a model.ProviderError of kind ProviderErrorKindContextOverflow
// ("context_overflow"); it summarizes the oldest turns, folds the in-flight streaming
// buffer and any evicted-tool-result references into the retried request,
// and leaves recent turns untouched.
package compression

import (
	"context"
	"fmt"
	"strings"

	"massgen.dev/coordination/model"
)

type (
	// Option configures Adapter.
	Option func(*config)

	config struct {
		summaryPrompt string
		summaryRole   model.ConversationRole
		keepRecent    int
	}

	// turn groups a user query with its assistant/tool-result continuation,
	// mirroring the turn boundary invariant the Agent Runner's history must
	// never split (spec §4.4 streaming buffer / turn completion).
	turn struct {
		messages []*model.Message
	}

	// EvictedResult is a reference to a tool result toolpipeline wrote to
	// disk instead of inlining (spec §4.2 eviction), surfaced here so the
	// compressed history can cite it verbatim rather than re-summarizing
	// content the model can re-fetch from disk.
	EvictedResult struct {
		ToolName string
		Path     string
		Chars    int
	}

	// Request carries everything the adapter needs to build a compressed
	// replacement history for one retried call.
	Request struct {
		// History is the full message list at the moment of overflow,
		// including the in-progress assistant turn if any.
		History []*model.Message

		// Buffer is the in-flight streaming buffer: partial text, partial
		// tool-call JSON, and reasoning accumulated before the backend
		// signaled overflow (spec §4.4 "Streaming buffer").
		Buffer string

		// Evicted lists tool results evicted to disk during the turns being
		// compressed, so the summary can reference them by path instead of
		// dropping them silently.
		Evicted []EvictedResult
	}

	// Result is the compressed history ready for the retried call, plus the
	// retry flag the Agent Runner must honor.
	Result struct {
		// Messages is the compressed replacement history.
		Messages []*model.Message

		// RetryFlag is always true on a successful compression: the spec's
		// `_compression_retry` marker that suppresses premature streaming
		// -buffer clearing until the retried call itself succeeds.
		RetryFlag bool

		// SummarizedTurns is how many oldest turns were folded into the
		// summary message, for logging/telemetry.
		SummarizedTurns int
	}

	// Adapter implements the reactive compression policy.
	Adapter struct {
		client model.Backend
		cfg    config
	}
)

const defaultKeepRecent = 4

const defaultSummaryPrompt = `Summarize the conversation below. Preserve the user's explicit requests, the decisions already made, and any unresolved work-in-progress. Be concise but do not drop concrete names, file paths, or numeric values.

CONVERSATION:
%s`

func defaultConfig() config {
	return config{
		summaryPrompt: defaultSummaryPrompt,
		summaryRole:   model.ConversationRoleSystem,
		keepRecent:    defaultKeepRecent,
	}
}

// WithSummaryPrompt overrides the prompt used to ask the backend for a
// summary of the oldest turns. It must contain one %s placeholder.
func WithSummaryPrompt(prompt string) Option {
	return func(c *config) { c.summaryPrompt = prompt }
}

// WithSummaryRole sets the role the synthesized summary message carries.
func WithSummaryRole(role model.ConversationRole) Option {
	return func(c *config) { c.summaryRole = role }
}

// WithKeepRecent overrides how many of the most recent turns are kept
// verbatim alongside the summary and buffer message.
func WithKeepRecent(n int) Option {
	return func(c *config) { c.keepRecent = n }
}

// New builds an Adapter that summarizes via client, using the same
// model.Backend Stream contract the Agent Runner streams through: the
// summary is collected by draining one Stream call's text chunks. client
// may be a small/cheap model.
func New(client model.Backend, opts ...Option) *Adapter {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Adapter{client: client, cfg: cfg}
}

// Compress builds the compressed replacement history for req (spec §4.8).
// It always preserves leading system messages, summarizes everything before
// the kept tail, synthesizes the buffer-preserving assistant message, keeps
// the most recent keepRecent turns verbatim, and appends evicted-result
// references. RetryFlag is set in every case, since the caller only invokes
// Compress after an overflow has already been signaled. With too few turns
// nothing is summarized and every turn is kept. With no client (or an empty
// summary) no summary message is produced and the turns before the kept
// tail are dropped from the result.
func (a *Adapter) Compress(ctx context.Context, req Request) (Result, error) {
	systemEnd := 0
	for i, m := range req.History {
		if m.Role != model.ConversationRoleSystem {
			break
		}
		systemEnd = i + 1
	}

	history := req.History[systemEnd:]
	turns := parseTurns(history)

	keepRecent := a.cfg.keepRecent
	if keepRecent < 0 {
		keepRecent = 0
	}
	splitIdx := len(turns) - keepRecent
	if splitIdx < 0 {
		splitIdx = 0
	}

	toCompress := turns[:splitIdx]
	toKeep := turns[splitIdx:]

	var summaryMsg *model.Message
	if len(toCompress) > 0 && a.client != nil {
		msg, err := a.summarize(ctx, toCompress)
		if err != nil {
			return Result{}, fmt.Errorf("compression: summarize: %w", err)
		}
		summaryMsg = msg
	}

	bufferMsg := bufferMessage(req.Buffer)
	evictedMsg := evictedReferenceMessage(req.Evicted)

	out := make([]*model.Message, 0, systemEnd+3+len(toKeep))
	out = append(out, req.History[:systemEnd]...)
	if summaryMsg != nil {
		out = append(out, summaryMsg)
	}
	for _, t := range toKeep {
		out = append(out, t.messages...)
	}
	if bufferMsg != nil {
		out = append(out, bufferMsg)
	}
	if evictedMsg != nil {
		out = append(out, evictedMsg)
	}

	return Result{Messages: out, RetryFlag: true, SummarizedTurns: len(toCompress)}, nil
}

func (a *Adapter) summarize(ctx context.Context, turns []turn) (*model.Message, error) {
	var sb strings.Builder
	for _, t := range turns {
		for _, m := range t.messages {
			sb.WriteString(formatMessage(m))
			sb.WriteString("\n")
		}
	}

	prompt := fmt.Sprintf(a.cfg.summaryPrompt, sb.String())
	req := &model.Request{
		Messages: []*model.Message{
			{Role: model.ConversationRoleUser, Parts: []model.Part{model.TextPart{Text: prompt}}},
		},
	}

	stream, err := a.client.Stream(ctx, req)
	if err != nil {
		return nil, err
	}
	defer stream.Close()

	var text strings.Builder
	for {
		chunk, err := stream.Recv()
		if err != nil {
			break
		}
		if chunk.Type == model.ChunkTypeText && chunk.Message != nil {
			for _, p := range chunk.Message.Parts {
				if tp, ok := p.(model.TextPart); ok {
					text.WriteString(tp.Text)
				}
			}
		}
		if chunk.Type == model.ChunkTypeStop {
			break
		}
	}

	summary := strings.TrimSpace(text.String())
	if summary == "" {
		return nil, nil
	}

	return &model.Message{
		Role:  a.cfg.summaryRole,
		Parts: []model.Part{model.TextPart{Text: "[Conversation Summary]\n" + summary}},
		Meta:  map[string]any{"compression": "summary"},
	}, nil
}

// bufferMessage synthesizes the `[Tool execution results]\n<buffer>`
// assistant message spec §4.8 requires to preserve in-flight work that was
// never acknowledged by a completed turn.
func bufferMessage(buffer string) *model.Message {
	if buffer == "" {
		return nil
	}
	return &model.Message{
		Role:  model.ConversationRoleAssistant,
		Parts: []model.Part{model.TextPart{Text: "[Tool execution results]\n" + buffer}},
		Meta:  map[string]any{"compression": "buffer"},
	}
}

// evictedReferenceMessage cites evicted tool results by path rather than
// re-summarizing their content, so a later turn can still ask a file-read
// tool to fetch them in full.
func evictedReferenceMessage(evicted []EvictedResult) *model.Message {
	if len(evicted) == 0 {
		return nil
	}
	var sb strings.Builder
	sb.WriteString("[Evicted tool results from this turn are available on disk]\n")
	for _, e := range evicted {
		fmt.Fprintf(&sb, "- %s: %s (%d chars)\n", e.ToolName, e.Path, e.Chars)
	}
	return &model.Message{
		Role:  model.ConversationRoleUser,
		Parts: []model.Part{model.TextPart{Text: sb.String()}},
		Meta:  map[string]any{"compression": "evicted_refs"},
	}
}

// parseTurns groups messages into turns, treating a user message that
// carries only tool results as a continuation of the prior turn so a tool
// call is never separated from its result.
func parseTurns(msgs []*model.Message) []turn {
	var turns []turn
	var current turn

	for _, m := range msgs {
		if m == nil {
			continue
		}
		isNewTurn := m.Role == model.ConversationRoleUser && !isToolResultOnly(m)
		if isNewTurn {
			if len(current.messages) > 0 {
				turns = append(turns, current)
			}
			current = turn{messages: []*model.Message{m}}
		} else {
			current.messages = append(current.messages, m)
		}
	}
	if len(current.messages) > 0 {
		turns = append(turns, current)
	}
	return turns
}

func isToolResultOnly(m *model.Message) bool {
	if m.Role != model.ConversationRoleUser || len(m.Parts) == 0 {
		return false
	}
	for _, p := range m.Parts {
		if _, ok := p.(model.ToolResultPart); !ok {
			return false
		}
	}
	return true
}

func formatMessage(m *model.Message) string {
	var sb strings.Builder
	sb.WriteString(string(m.Role))
	sb.WriteString(": ")
	for _, p := range m.Parts {
		switch v := p.(type) {
		case model.TextPart:
			sb.WriteString(v.Text)
		case model.ToolUsePart:
			fmt.Fprintf(&sb, "[Tool Call: %s]", v.Name)
		case model.ToolResultPart:
			sb.WriteString("[Tool Result]")
		case model.ThinkingPart:
			// Reasoning content is skipped in the summary prompt; it is
			// still preserved verbatim in the transcript archive.
		}
	}
	return sb.String()
}
