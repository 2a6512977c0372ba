package subagent

import (
	"fmt"
	"strings"
)

// FormatResults renders a batch of drained Results as the XML-like wrapper
// injected into a parent's conversation (spec §4.6 "Result format... id,
// status, answer, tokens, duration, workspace path; multiple completions
// batch into a single <subagent_results count=k>...</> to minimize cache
// churn"). Used by SubagentCompleteHook.
func FormatResults(results []Result) string {
	if len(results) == 0 {
		return ""
	}
	var b strings.Builder
	fmt.Fprintf(&b, "<subagent_results count=%d>\n", len(results))
	for _, r := range results {
		fmt.Fprintf(&b, "  <result id=%q status=%q tokens_in=%d tokens_out=%d duration_ms=%d workspace=%q>\n",
			r.SubagentID, r.Status, r.InputTokens, r.OutputTokens, r.Duration.Milliseconds(), r.WorkspacePath)
		for _, w := range r.Warnings {
			fmt.Fprintf(&b, "    <warning>%s</warning>\n", w)
		}
		b.WriteString("    <answer>\n")
		b.WriteString(r.Answer)
		b.WriteString("\n    </answer>\n")
		b.WriteString("  </result>\n")
	}
	b.WriteString("</subagent_results>")
	return b.String()
}
