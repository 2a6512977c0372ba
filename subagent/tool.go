package subagent

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"massgen.dev/coordination/agent"
	"massgen.dev/coordination/toolregistry"
	"massgen.dev/coordination/tools"
)

// SpawnSubagentsToolName is the custom_tool__ identifier the coordination
// core advertises for nested-session spawning (spec §4.6
// "spawn_subagents(context, tasks, async)").
var SpawnSubagentsToolName = tools.CustomToolIdent("spawn_subagents")

// spawnSubagentsArgs is the schema-validated payload for spawn_subagents.
type spawnSubagentsArgs struct {
	Tasks []struct {
		ID      string `json:"id"`
		Context string `json:"context"`
		Timeout int64  `json:"timeout_seconds,omitempty"`
	} `json:"tasks"`
	Async bool `json:"async"`
}

// RegisterSpawnTool registers the spawn_subagents descriptor on reg, bound
// to one calling agent: since toolregistry.Executor.Execute takes only a
// tool's raw arguments (spec §4.2 dispatch is argument-only), the parent
// agent identity spawn_subagents needs is captured in this closure rather
// than threaded through the pipeline, so each agent's own Registry gets its
// own spawn_subagents registration pointed at its own agentID.
func RegisterSpawnTool(reg *toolregistry.Registry, mgr *Manager, agentID agent.Ident) {
	reg.Register(toolregistry.Descriptor{
		Spec: tools.Spec{
			Name:        SpawnSubagentsToolName,
			Description: "Spawn one or more nested coordination sessions to investigate sub-questions in parallel.",
			InputSchema: spawnSubagentsSchema(),
		},
		Executor: toolregistry.ExecutorFunc(func(args []byte) (any, error) {
			var parsed spawnSubagentsArgs
			if err := json.Unmarshal(args, &parsed); err != nil {
				return nil, fmt.Errorf("subagent: decode spawn_subagents args: %w", err)
			}
			if len(parsed.Tasks) == 0 {
				return nil, fmt.Errorf("subagent: spawn_subagents requires at least one task")
			}
			tasks := make([]Task, len(parsed.Tasks))
			for i, t := range parsed.Tasks {
				tasks[i] = Task{ID: t.ID, Context: t.Context}
				if t.Timeout > 0 {
					tasks[i].Timeout = secondsToDuration(t.Timeout)
				}
			}
			results, err := mgr.Spawn(context.Background(), agentID, tasks, parsed.Async)
			if err != nil {
				return nil, err
			}
			if parsed.Async {
				return map[string]any{"spawned": len(tasks)}, nil
			}
			return results, nil
		}),
	})
}

func secondsToDuration(s int64) time.Duration {
	return time.Duration(s) * time.Second
}

func spawnSubagentsSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"tasks": map[string]any{
				"type": "array",
				"items": map[string]any{
					"type": "object",
					"properties": map[string]any{
						"id":               map[string]any{"type": "string"},
						"context":          map[string]any{"type": "string"},
						"timeout_seconds":  map[string]any{"type": "integer"},
					},
					"required": []string{"id", "context"},
				},
			},
			"async": map[string]any{"type": "boolean"},
		},
		"required": []string{"tasks"},
	}
}
