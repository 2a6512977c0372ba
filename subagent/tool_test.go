package subagent

import (
	"testing"

	"github.com/stretchr/testify/require"

	"massgen.dev/coordination/config"
	"massgen.dev/coordination/toolregistry"
)

func TestRegisterSpawnToolDispatchesToManager(t *testing.T) {
	launcher := &fakeLauncher{handle: &fakeHandle{statusPath: "/tmp/status.json", outcome: Outcome{Answer: "done"}}}
	mgr := NewManager(launcher, NewMemQueue(), nil, "run1", config.CoordinationConfig{})

	reg := toolregistry.New()
	RegisterSpawnTool(reg, mgr, "agent1")

	desc, ok := reg.Lookup(SpawnSubagentsToolName)
	require.True(t, ok)

	result, err := desc.Executor.Execute([]byte(`{"tasks":[{"id":"t1","context":"investigate X"}],"async":false}`))
	require.NoError(t, err)
	results, ok := result.([]Result)
	require.True(t, ok)
	require.Len(t, results, 1)
	require.Equal(t, "done", results[0].Answer)
}

func TestRegisterSpawnToolRejectsEmptyTasks(t *testing.T) {
	launcher := &fakeLauncher{}
	mgr := NewManager(launcher, NewMemQueue(), nil, "run1", config.CoordinationConfig{})

	reg := toolregistry.New()
	RegisterSpawnTool(reg, mgr, "agent1")

	desc, _ := reg.Lookup(SpawnSubagentsToolName)
	_, err := desc.Executor.Execute([]byte(`{"tasks":[]}`))
	require.Error(t, err)
}
