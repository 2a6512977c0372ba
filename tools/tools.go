// Package tools defines the shared tool identity and descriptor types used
// by the tool registry, tool-execution pipeline, and MCP integration
// (spec §4.2, §4.10, §6).
package tools

import "strings"

// Ident is the strong type for a fully qualified, namespaced tool
// identifier. Namespacing follows spec §6: bare names for the two built-in
// workflow tools ("new_answer", "vote"), "custom_tool__*" for tools the
// embedding application registers directly, and "mcp__<server>__*" for
// tools discovered from an MCP server.
type Ident string

// String returns the identifier as a plain string.
func (i Ident) String() string { return string(i) }

const (
	customToolPrefix = "custom_tool__"
	mcpToolPrefix    = "mcp__"
)

// CustomToolIdent namespaces a tool name registered directly by the
// embedding application.
func CustomToolIdent(name string) Ident {
	return Ident(customToolPrefix + name)
}

// MCPToolIdent namespaces a tool name discovered from an MCP server.
func MCPToolIdent(server, name string) Ident {
	return Ident(mcpToolPrefix + server + "__" + name)
}

// IsCustomTool reports whether i was namespaced by CustomToolIdent.
func (i Ident) IsCustomTool() bool { return strings.HasPrefix(string(i), customToolPrefix) }

// IsMCPTool reports whether i was namespaced by MCPToolIdent.
func (i Ident) IsMCPTool() bool { return strings.HasPrefix(string(i), mcpToolPrefix) }

// MCPServer returns the originating MCP server name for an MCP-namespaced
// tool identifier, or "" if i is not an MCP tool.
func (i Ident) MCPServer() string {
	if !i.IsMCPTool() {
		return ""
	}
	rest := strings.TrimPrefix(string(i), mcpToolPrefix)
	server, _, ok := strings.Cut(rest, "__")
	if !ok {
		return ""
	}
	return server
}

// ArtifactsMode controls whether UI artifacts are produced for a tool call.
// Valid values are "auto", "on", and "off"; the zero value means the caller
// did not specify a mode.
type ArtifactsMode string

const (
	// ArtifactsModeAuto lets the pipeline choose whether to emit artifacts.
	ArtifactsModeAuto ArtifactsMode = "auto"

	// ArtifactsModeOn forces artifacts to be produced when the tool supports them.
	ArtifactsModeOn ArtifactsMode = "on"

	// ArtifactsModeOff disables artifact production for the tool call.
	ArtifactsModeOff ArtifactsMode = "off"
)

// ParseArtifactsMode normalizes s to an ArtifactsMode, returning the zero
// value when s is not recognized.
func ParseArtifactsMode(s string) ArtifactsMode {
	switch strings.ToLower(s) {
	case string(ArtifactsModeAuto):
		return ArtifactsModeAuto
	case string(ArtifactsModeOn):
		return ArtifactsModeOn
	case string(ArtifactsModeOff):
		return ArtifactsModeOff
	default:
		return ""
	}
}

// Valid reports whether m is a recognized non-zero artifacts mode.
func (m ArtifactsMode) Valid() bool {
	switch m {
	case ArtifactsModeAuto, ArtifactsModeOn, ArtifactsModeOff:
		return true
	default:
		return false
	}
}

// Spec describes one registered tool: its identity, schema, and whether it
// is one of the two terminal workflow tools. The tool registry builds a
// keyed map of these at session start (spec §4.10).
type Spec struct {
	// Name is the fully qualified, namespaced tool identifier.
	Name Ident

	// Description is presented to the model so it can decide when to call
	// the tool.
	Description string

	// InputSchema is the JSON Schema for the tool payload. The built-in
	// tools' schemas are hand-written maps; toolregistry.GenerateSchema can
	// build one from a Go argument type, and MCP-declared schemas are passed
	// through verbatim.
	InputSchema any

	// IsWorkflow marks the two built-in terminal tools (new_answer, vote)
	// that end a streamed turn rather than returning a result to the model
	// (spec §4.2, §4.5).
	IsWorkflow bool
}

// FieldIssue describes a single payload validation issue.
// toolregistry.Validator does not produce FieldIssue values; it reports a
// failed validation as a wrapped error.
type FieldIssue struct {
	Field      string
	Constraint string
	Message    string
}
