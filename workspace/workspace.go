// Package workspace implements the Workspace & Snapshot Manager (spec §4.1):
// a permissioned filesystem area owned exclusively by one agent during a
// coordination run, with atomic snapshotting at answer-submission time and
// write tracking during the final-presentation window.
package workspace

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"massgen.dev/coordination/agent"
	"massgen.dev/coordination/toolerrors"
)

// Permission is the access mode granted to a context path.
type Permission string

const (
	// PermissionRead grants read-only access.
	PermissionRead Permission = "read"
	// PermissionWrite grants read/write access.
	PermissionWrite Permission = "write"
)

// AnswerFileName is the file a snapshot directory carries alongside
// execution_trace.md, holding the submitted answer's markdown content
// verbatim. Subagent cancellation-recovery (spec §4.6) reads it back from
// a recovered historical_workspaces path without re-invoking the model.
const AnswerFileName = "ANSWER.md"

// blockedReadExtensions are binary extensions read-blocked by default
// (spec §4.1 "Binary extensions... are read-blocked by default").
var blockedReadExtensions = map[string]bool{
	".mp3": true, ".wav": true, ".flac": true, ".ogg": true,
	".mp4": true, ".mov": true, ".avi": true, ".mkv": true,
	".o": true, ".so": true, ".dylib": true, ".exe": true, ".bin": true,
}

type (
	// ContextPath is one external directory mounted into a workspace.
	ContextPath struct {
		AbsolutePath     string
		Permission       Permission
		ProtectedSubpaths []string
	}

	// SnapshotRef identifies one immutable workspace snapshot taken at
	// answer-submission time (spec §3).
	SnapshotRef struct {
		AgentID            agent.Ident
		AnswerLabel        string
		Timestamp          time.Time
		SnapshotPath       string
		ExecutionTracePath string
	}

	// Workspace is the directory owned exclusively by one agent for the
	// duration of a coordination run.
	Workspace struct {
		AgentID         agent.Ident
		Path            string
		ContextPaths    []ContextPath
		SnapshotHistory []SnapshotRef
		WriteEnabled    bool

		initialMtimeIndex map[string]time.Time
		readSet           map[string]bool
		runRoot           string
	}

	// Manager owns workspace creation, snapshotting, and historical
	// snapshot lookup for one coordination run. It writes the
	// `snapshots/` and `workspaces/` trees under RunRoot (spec §6
	// "Snapshots & workspaces" layout); evicted tool results under
	// `.tool_results/` are written by toolpipeline.Pipeline.
	Manager struct {
		RunRoot    string
		workspaces map[agent.Ident]*Workspace
		historical map[agent.Ident][]SnapshotRef
	}
)

// NewManager constructs a Manager rooted at runRoot, the configured run
// directory (spec §6).
func NewManager(runRoot string) *Manager {
	return &Manager{
		RunRoot:    runRoot,
		workspaces: make(map[agent.Ident]*Workspace),
		historical: make(map[agent.Ident][]SnapshotRef),
	}
}

// CreateWorkspace creates and registers the workspace directory for agentID
// under "workspaces/<agent>/" (spec §4.1 public contract).
func (m *Manager) CreateWorkspace(agentID agent.Ident) (*Workspace, error) {
	path := filepath.Join(m.RunRoot, "workspaces", string(agentID))
	if err := os.MkdirAll(path, 0o755); err != nil {
		return nil, err
	}
	ws := &Workspace{
		AgentID:   agentID,
		Path:      path,
		readSet:   make(map[string]bool),
		runRoot:   m.RunRoot,
	}
	m.workspaces[agentID] = ws
	return ws, nil
}

// MountContextPaths applies permission and protected-subpath specs to ws
// (spec §4.1 public contract).
func (m *Manager) MountContextPaths(ws *Workspace, specs []ContextPath) {
	ws.ContextPaths = append(ws.ContextPaths, specs...)
}

// EnableWriteAccess grants write access to ws's writable context paths,
// used only at the final-presentation boundary (spec §4.1). It first
// snapshots the current (path → mtime) index for every writable context
// path so write tracking can compute a diff later.
func (m *Manager) EnableWriteAccess(ws *Workspace) error {
	index, err := mtimeIndex(writablePaths(ws))
	if err != nil {
		return err
	}
	ws.initialMtimeIndex = index
	ws.WriteEnabled = true
	return nil
}

// SnapshotMtimeIndex returns the (path → mtime) index captured when write
// access was enabled, or an empty index if write access was never enabled.
func (m *Manager) SnapshotMtimeIndex(ws *Workspace) map[string]time.Time {
	if ws.initialMtimeIndex == nil {
		return map[string]time.Time{}
	}
	out := make(map[string]time.Time, len(ws.initialMtimeIndex))
	for k, v := range ws.initialMtimeIndex {
		out[k] = v
	}
	return out
}

// DiffAgainst reports files whose mtime advanced, or which are new,
// relative to priorIndex (spec §4.1 "Write tracking").
func (m *Manager) DiffAgainst(ws *Workspace, priorIndex map[string]time.Time) ([]string, error) {
	current, err := mtimeIndex(writablePaths(ws))
	if err != nil {
		return nil, err
	}
	var written []string
	for path, mtime := range current {
		prior, existed := priorIndex[path]
		if !existed || mtime.After(prior) {
			written = append(written, path)
		}
	}
	sort.Strings(written)
	return written, nil
}

// GetHistorical returns every snapshot registered for agentID, ordered by
// submission time (spec §4.1 public contract).
func (m *Manager) GetHistorical(agentID agent.Ident) []SnapshotRef {
	return append([]SnapshotRef(nil), m.historical[agentID]...)
}

// Snapshot atomically captures ws's contents plus an execution trace into
// "snapshots/<agent>_<ts>/" and registers it in historical_workspaces
// (spec §4.1 algorithm). executionTrace is the rendered markdown to embed
// as execution_trace.md. Failures during the copy abort without
// publishing; the caller never observes a partial snapshot (spec §8
// "Snapshot atomicity").
func (m *Manager) Snapshot(ws *Workspace, answerLabel string, answerContent string, executionTrace string) (SnapshotRef, error) {
	ts := time.Now()
	finalDir := filepath.Join(m.RunRoot, "snapshots", fmt.Sprintf("%s_%d", ws.AgentID, ts.UnixNano()))
	stagingDir := finalDir + ".staging"

	if err := os.RemoveAll(stagingDir); err != nil {
		return SnapshotRef{}, err
	}
	if err := copyTree(ws.Path, stagingDir); err != nil {
		os.RemoveAll(stagingDir)
		return SnapshotRef{}, err
	}
	tracePath := filepath.Join(stagingDir, "execution_trace.md")
	if err := os.WriteFile(tracePath, []byte(executionTrace), 0o644); err != nil {
		os.RemoveAll(stagingDir)
		return SnapshotRef{}, err
	}
	answerPath := filepath.Join(stagingDir, AnswerFileName)
	if err := os.WriteFile(answerPath, []byte(answerContent), 0o644); err != nil {
		os.RemoveAll(stagingDir)
		return SnapshotRef{}, err
	}
	if err := fsyncTree(stagingDir); err != nil {
		os.RemoveAll(stagingDir)
		return SnapshotRef{}, err
	}
	if err := os.Rename(stagingDir, finalDir); err != nil {
		os.RemoveAll(stagingDir)
		return SnapshotRef{}, err
	}

	ref := SnapshotRef{
		AgentID:            ws.AgentID,
		AnswerLabel:        answerLabel,
		Timestamp:          ts,
		SnapshotPath:       finalDir,
		ExecutionTracePath: filepath.Join(finalDir, "execution_trace.md"),
	}
	ws.SnapshotHistory = append(ws.SnapshotHistory, ref)
	m.historical[ws.AgentID] = append(m.historical[ws.AgentID], ref)
	return ref, nil
}

// CheckRead validates a read against ws's own path, its context paths, or
// any registered historical snapshot (all read-only) (spec §4.1 "Permission
// rules"). On success it records the path as read for read-before-delete
// enforcement.
func (m *Manager) CheckRead(ws *Workspace, path string) error {
	ext := strings.ToLower(filepath.Ext(path))
	if blockedReadExtensions[ext] {
		return toolerrors.ErrPermissionDenied(path, "read")
	}
	if !m.readableBy(ws, path) {
		return toolerrors.ErrPermissionDenied(path, "read")
	}
	ws.readSet[filepath.Clean(path)] = true
	return nil
}

func (m *Manager) readableBy(ws *Workspace, path string) bool {
	clean := filepath.Clean(path)
	if within(clean, ws.Path) {
		return true
	}
	for _, cp := range ws.ContextPaths {
		if within(clean, cp.AbsolutePath) {
			return true
		}
	}
	for _, refs := range m.historical {
		for _, ref := range refs {
			if within(clean, ref.SnapshotPath) {
				return true
			}
		}
	}
	return false
}

// CheckWrite validates a write against ws's own path and currently
// writable context paths only (spec §4.1 "Permission rules").
func (m *Manager) CheckWrite(ws *Workspace, path string) error {
	clean := filepath.Clean(path)
	if isProtected(ws, clean) {
		return toolerrors.ErrProtectedPath(path)
	}
	if within(clean, ws.Path) {
		return nil
	}
	if ws.WriteEnabled {
		for _, wp := range writablePaths(ws) {
			if within(clean, wp) {
				return nil
			}
		}
	}
	return toolerrors.ErrPermissionDenied(path, "write")
}

// CheckDelete validates a delete: it is denied for protected paths, and
// requires a prior successful read of the same path in the same session
// (spec §4.1, §8 "Read-before-delete" invariant).
func (m *Manager) CheckDelete(ws *Workspace, path string) error {
	clean := filepath.Clean(path)
	if isProtected(ws, clean) {
		return toolerrors.ErrProtectedPath(path)
	}
	if !ws.readSet[clean] {
		return toolerrors.ErrReadBeforeDelete(path)
	}
	return m.CheckWrite(ws, path)
}

func isProtected(ws *Workspace, clean string) bool {
	for _, cp := range ws.ContextPaths {
		for _, protected := range cp.ProtectedSubpaths {
			if within(clean, filepath.Join(cp.AbsolutePath, protected)) {
				return true
			}
		}
	}
	return false
}

func within(path, root string) bool {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return false
	}
	return rel == "." || (!strings.HasPrefix(rel, "..") && !filepath.IsAbs(rel))
}

func writablePaths(ws *Workspace) []string {
	var out []string
	for _, cp := range ws.ContextPaths {
		if cp.Permission == PermissionWrite {
			out = append(out, cp.AbsolutePath)
		}
	}
	return out
}

func mtimeIndex(roots []string) (map[string]time.Time, error) {
	index := make(map[string]time.Time)
	for _, root := range roots {
		err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				if os.IsNotExist(err) {
					return nil
				}
				return err
			}
			if d.IsDir() {
				return nil
			}
			info, err := d.Info()
			if err != nil {
				return err
			}
			index[path] = info.ModTime()
			return nil
		})
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
	}
	return index, nil
}

func copyTree(src, dst string) error {
	return filepath.WalkDir(src, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)
		if d.IsDir() {
			return os.MkdirAll(target, 0o755)
		}
		return copyFile(path, target)
	})
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()
	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Sync()
}

func fsyncTree(root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		f, err := os.Open(path)
		if err != nil {
			return err
		}
		defer f.Close()
		return f.Sync()
	})
}

// hashBytes is used by the tool pipeline to name evicted large-result files
// (spec §4.2 ".tool_results/<tool>_<ts>_<hash>.txt").
func hashBytes(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:8])
}

// HashBytes exposes hashBytes for the tool pipeline.
func HashBytes(b []byte) string { return hashBytes(b) }

// ReadAnswer reads the answer content written alongside a snapshot at
// snapshotPath. Used by subagent cancellation-recovery (spec §4.6) to
// recover a winner's or best-effort answer from a historical_workspaces
// entry without the model backend.
func ReadAnswer(snapshotPath string) (string, error) {
	data, err := os.ReadFile(filepath.Join(snapshotPath, AnswerFileName))
	if err != nil {
		return "", err
	}
	return string(data), nil
}
