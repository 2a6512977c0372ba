// Command massgen wires together one complete coordination run end to end:
// a two-agent roster, the built-in hooks, the tool-execution pipeline, the
// Observability Store and run-log subscribers, and the Coordination
// Scheduler. It exists to demonstrate how the pieces connect, not as a
// general-purpose CLI (config-file parsing and model-backend selection are
// explicitly out of scope, spec §6 Non-goals).
package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"time"

	"massgen.dev/coordination/agent"
	"massgen.dev/coordination/agentrunner"
	"massgen.dev/coordination/builtinhooks"
	"massgen.dev/coordination/config"
	"massgen.dev/coordination/hooks"
	"massgen.dev/coordination/model"
	"massgen.dev/coordination/observability"
	"massgen.dev/coordination/run"
	"massgen.dev/coordination/runlog"
	"massgen.dev/coordination/scheduler"
	"massgen.dev/coordination/subagent"
	"massgen.dev/coordination/telemetry"
	"massgen.dev/coordination/toolpipeline"
	"massgen.dev/coordination/toolregistry"
	"massgen.dev/coordination/tools"
	"massgen.dev/coordination/transcript"
	"massgen.dev/coordination/workspace"
)

func main() {
	if err := runDemo(); err != nil {
		log.Fatal(err)
	}
}

func runDemo() error {
	runID := "demo-run-1"
	logDir := filepath.Join(os.TempDir(), "massgen", runID)

	bus := hooks.NewBus()

	store, err := observability.NewStore(logDir, runID, nil)
	if err != nil {
		return fmt.Errorf("observability store: %w", err)
	}
	if _, err := bus.Register(observability.NewEnforcementSubscriber(store)); err != nil {
		return err
	}
	if _, err := bus.Register(runlog.NewSubscriber(runlog.NewMemStore(), telemetry.NoopLogger{})); err != nil {
		return err
	}

	wsMgr := workspace.NewManager(filepath.Join(logDir, "workspaces"))
	toolReg := toolregistry.New()
	queue := subagent.NewMemQueue()

	registry := hooks.NewRegistry()
	builtinhooks.RegisterAll(registry, runnerLookup, queue)

	agents := map[agent.Ident]*agentrunner.Runner{
		"agent1": newDemoRunner("agent1", runID, wsMgr, toolReg, registry, bus),
		"agent2": newDemoRunner("agent2", runID, wsMgr, toolReg, registry, bus),
	}
	for id, r := range agents {
		runnerRegistry[id] = r
	}

	subagentMgr := subagent.NewManager(&scheduler.Launcher{
		LogRoot: filepath.Join(logDir, "subagents"),
		Config:  config.CoordinationConfig{SkipVoting: true},
		Bus:     bus,
		NewAgents: func(childRunID string) map[agent.Ident]*agentrunner.Runner {
			return map[agent.Ident]*agentrunner.Runner{
				"sub1": newDemoRunner("sub1", childRunID, wsMgr, toolReg, registry, bus),
			}
		},
	}, queue, bus, runID, config.CoordinationConfig{})
	for _, id := range []agent.Ident{"agent1", "agent2"} {
		subagent.RegisterSpawnTool(toolReg, subagentMgr, id)
	}

	task := run.Task{RunID: runID, Question: "What is the most reliable way to coordinate several language model agents on one task?"}
	sched := scheduler.NewScheduler(runID, task, agents, wsMgr, bus, store, config.CoordinationConfig{SkipVoting: true})

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	final, err := sched.Run(ctx)
	if err != nil {
		return fmt.Errorf("coordination run failed: %w", err)
	}
	fmt.Printf("winner: %s\n\n%s\n", final.Label, final.Content)
	return nil
}

// runnerRegistry backs runnerLookup: builtinhooks.MidStreamInjectionHook
// needs to resolve a live *agentrunner.Runner by agent id, and this demo has
// no broader registry type to reuse.
var runnerRegistry = map[agent.Ident]*agentrunner.Runner{}

func runnerLookup(id agent.Ident) *agentrunner.Runner {
	return runnerRegistry[id]
}

// demoBackend is a fixed single-turn stand-in for a real model.Backend. The
// core treats backends as an external collaborator it never implements
// (spec §6); this stub exists only so the demo wiring above can run without
// a live provider credential.
type demoBackend struct {
	agentID agent.Ident
}

func (b *demoBackend) Stream(ctx context.Context, req *model.Request) (model.Streamer, error) {
	return &demoStream{chunks: []model.Chunk{
		{
			Type: model.ChunkTypeToolCall,
			ToolCall: &model.ToolCall{
				Name:    agentrunner.ToolNewAnswer,
				ID:      "demo-call-1",
				Payload: []byte(fmt.Sprintf(`{"content":"%s proposes: run agents in parallel, inject peer updates, and vote to converge."}`, b.agentID)),
			},
		},
	}}, nil
}

type demoStream struct {
	chunks []model.Chunk
	idx    int
}

func (s *demoStream) Recv() (model.Chunk, error) {
	if s.idx >= len(s.chunks) {
		return model.Chunk{}, io.EOF
	}
	c := s.chunks[s.idx]
	s.idx++
	return c, nil
}

func (s *demoStream) Close() error { return nil }

func newDemoRunner(id agent.Ident, runID string, wsMgr *workspace.Manager, toolReg *toolregistry.Registry, hreg *hooks.Registry, bus hooks.Bus) *agentrunner.Runner {
	pipeline := &toolpipeline.Pipeline{
		Tools:     toolReg,
		Validator: toolregistry.NewValidator(),
		Hooks:     hreg,
		Bus:       bus,
		Logger:    telemetry.NoopLogger{},
		Metrics:   telemetry.NoopMetrics{},
		EvictDir:  filepath.Join(os.TempDir(), "massgen", runID, string(id), ".tool_results"),
	}
	return &agentrunner.Runner{
		AgentID: id,
		RunID:   runID,
		Backend: &demoBackend{agentID: id},
		Pipeline: pipeline,
		Trace:    transcript.New(),
		Logger:   telemetry.NoopLogger{},
		Metrics:  telemetry.NoopMetrics{},
		IsKnownTool: func(name tools.Ident) bool {
			return name == agentrunner.ToolNewAnswer || name == agentrunner.ToolVote || name == subagent.SpawnSubagentsToolName
		},
	}
}
