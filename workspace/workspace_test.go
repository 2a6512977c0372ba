package workspace

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCreateWorkspaceAndSnapshotAtomicity(t *testing.T) {
	root := t.TempDir()
	m := NewManager(root)

	ws, err := m.CreateWorkspace("agent1")
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(ws.Path, "notes.md"), []byte("hello"), 0o644))

	ref, err := m.Snapshot(ws, "agent1.1", "the answer content", "# trace")
	require.NoError(t, err)
	require.FileExists(t, ref.ExecutionTracePath)
	require.FileExists(t, filepath.Join(ref.SnapshotPath, "notes.md"))

	answer, err := ReadAnswer(ref.SnapshotPath)
	require.NoError(t, err)
	require.Equal(t, "the answer content", answer)

	historical := m.GetHistorical("agent1")
	require.Len(t, historical, 1)
	require.Equal(t, ref, historical[0])
}

func TestCheckReadBeforeDelete(t *testing.T) {
	root := t.TempDir()
	m := NewManager(root)
	ws, err := m.CreateWorkspace("agent1")
	require.NoError(t, err)

	target := filepath.Join(ws.Path, "file.txt")
	require.NoError(t, os.WriteFile(target, []byte("x"), 0o644))

	err = m.CheckDelete(ws, target)
	require.Error(t, err)

	require.NoError(t, m.CheckRead(ws, target))
	require.NoError(t, m.CheckDelete(ws, target))
}

func TestProtectedPathNeverWritable(t *testing.T) {
	root := t.TempDir()
	m := NewManager(root)
	ws, err := m.CreateWorkspace("agent1")
	require.NoError(t, err)

	ctxRoot := t.TempDir()
	m.MountContextPaths(ws, []ContextPath{
		{AbsolutePath: ctxRoot, Permission: PermissionWrite, ProtectedSubpaths: []string{"locked"}},
	})
	require.NoError(t, m.EnableWriteAccess(ws))

	protected := filepath.Join(ctxRoot, "locked", "secret.txt")
	err = m.CheckWrite(ws, protected)
	require.Error(t, err)

	writable := filepath.Join(ctxRoot, "open.txt")
	require.NoError(t, m.CheckWrite(ws, writable))
}

func TestDiffAgainstReportsNewAndModifiedFiles(t *testing.T) {
	root := t.TempDir()
	m := NewManager(root)
	ws, err := m.CreateWorkspace("agent1")
	require.NoError(t, err)

	ctxRoot := t.TempDir()
	m.MountContextPaths(ws, []ContextPath{{AbsolutePath: ctxRoot, Permission: PermissionWrite}})
	require.NoError(t, m.EnableWriteAccess(ws))
	prior := m.SnapshotMtimeIndex(ws)

	newFile := filepath.Join(ctxRoot, "output.md")
	require.NoError(t, os.WriteFile(newFile, []byte("result"), 0o644))

	written, err := m.DiffAgainst(ws, prior)
	require.NoError(t, err)
	require.Contains(t, written, newFile)
}
