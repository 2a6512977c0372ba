package transcript

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAppendAndRenderGroupsByRound(t *testing.T) {
	tr := New()
	tr.AppendToolCall("agent1.1", "custom_tool__search", json.RawMessage(`{"q":"go"}`))
	tr.AppendToolResult("agent1.1", "custom_tool__search", "result body")
	tr.AppendReasoning("agent1.1", "considering options")
	tr.AppendError("agent1.2", errors.New("boom"))

	out := tr.Render()
	require.Contains(t, out, "## Round agent1.1")
	require.Contains(t, out, "## Round agent1.2")
	require.Contains(t, out, "custom_tool__search")
	require.Contains(t, out, "considering options")
	require.Contains(t, out, "boom")

	// round agent1.1's section must precede agent1.2's section.
	require.Less(t, strings.Index(out, "Round agent1.1"), strings.Index(out, "Round agent1.2"))
}

func TestEntriesReturnsCopy(t *testing.T) {
	tr := New()
	tr.AppendReasoning("agent1.1", "one")
	entries := tr.Entries()
	entries[0].Payload = "mutated"

	require.Equal(t, "one", tr.Entries()[0].Payload)
}

func TestRenderUnlabeledEntries(t *testing.T) {
	tr := New()
	tr.Append(KindToolCall, "", "tool", "args")
	out := tr.Render()
	require.Contains(t, out, "(unlabeled)")
}
