// Package observability implements the Observability Store (spec §4.7): a
// single authoritative status.json file, co-located with a coordination
// run's log directory, that is the sole source of truth for run
// introspection (check_subagent_status reads derive from it; there is no
// outer duplicate status file).
package observability

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"massgen.dev/coordination/run"
	"massgen.dev/coordination/telemetry"
)

type (
	// Status is the full contents of status.json.
	Status struct {
		Coordination CoordinationStatus          `json:"coordination"`
		Agents       map[string]*AgentStatus     `json:"agents"`
		Costs        CostStatus                  `json:"costs"`
		Results      ResultsStatus                `json:"results"`
		HistoricalWorkspaces []HistoricalWorkspace `json:"historical_workspaces"`
	}

	// CoordinationStatus mirrors run.Phase plus progress metadata.
	CoordinationStatus struct {
		Phase               run.Phase `json:"phase"`
		CompletionPercentage float64  `json:"completion_percentage"`
		CurrentVotingRound  int       `json:"current_voting_round"`
	}

	// EnforcementAttempt records one workflow-protocol violation (spec §4.5).
	EnforcementAttempt struct {
		Round         int       `json:"round"`
		Attempt       int       `json:"attempt"`
		Reason        string    `json:"reason"`
		ToolCalls     int       `json:"tool_calls"`
		ErrorMessage  string    `json:"error_message,omitempty"`
		BufferPreview string    `json:"buffer_preview,omitempty"`
		BufferChars   int       `json:"buffer_chars"`
		Timestamp     time.Time `json:"timestamp"`
	}

	// AgentOutcome classifies an agent's standing at the end of a round.
	AgentOutcome string

	// AgentStatus is the per-agent runtime status and reliability record.
	AgentStatus struct {
		RuntimeStatus          string                `json:"runtime_status"`
		EnforcementAttempts    []EnforcementAttempt   `json:"enforcement_attempts"`
		ByRound                map[int]int            `json:"by_round"`
		UnknownTools           []string               `json:"unknown_tools,omitempty"`
		WorkflowErrors         int                    `json:"workflow_errors"`
		TotalEnforcementRetries int                   `json:"total_enforcement_retries"`
		TotalBufferCharsLost   int                    `json:"total_buffer_chars_lost"`
		Outcome                AgentOutcome           `json:"outcome"`
	}

	// CostStatus aggregates token usage and estimated spend across all agents.
	CostStatus struct {
		InputTokens    int64   `json:"input_tokens"`
		OutputTokens   int64   `json:"output_tokens"`
		EstimatedCostUSD float64 `json:"estimated_cost_usd"`
	}

	// ResultsStatus records the winner (once chosen) and live vote tally.
	ResultsStatus struct {
		Winner string         `json:"winner,omitempty"`
		Votes  map[string]int `json:"votes"`
	}

	// HistoricalWorkspace is one entry in the ordered snapshot history.
	HistoricalWorkspace struct {
		AgentID       string    `json:"agent_id"`
		AnswerLabel   string    `json:"answer_label"`
		Timestamp     time.Time `json:"timestamp"`
		WorkspacePath string    `json:"workspace_path"`
	}

	// SimplifiedView is the derived, read-only projection status reads
	// (e.g. check_subagent_status) consume instead of the full Status
	// document (spec §4.7 "Status reads... derive a simplified view").
	SimplifiedView struct {
		Status               string  `json:"status"`
		CompletionPercentage float64 `json:"completion_percentage"`
		InputTokens          int64   `json:"input_tokens"`
		OutputTokens         int64   `json:"output_tokens"`
		Winner               string  `json:"winner,omitempty"`
	}
)

const (
	// AgentOutcomeOK marks an agent in good standing.
	AgentOutcomeOK AgentOutcome = "ok"
	// AgentOutcomeNonCompliant marks an agent that exceeded its enforcement retry bound.
	AgentOutcomeNonCompliant AgentOutcome = "non_compliant"
	// AgentOutcomeDropped marks an agent removed from the round entirely.
	AgentOutcomeDropped AgentOutcome = "dropped"
)

// NewStatus returns an empty Status ready for the initial_answer phase.
func NewStatus() *Status {
	return &Status{
		Coordination: CoordinationStatus{Phase: run.PhaseInitialAnswer},
		Agents:       make(map[string]*AgentStatus),
		Results:      ResultsStatus{Votes: make(map[string]int)},
	}
}

// AgentOf returns the AgentStatus for agentID, creating one in the ok
// outcome if it does not yet exist.
func (s *Status) AgentOf(agentID string) *AgentStatus {
	a, ok := s.Agents[agentID]
	if !ok {
		a = &AgentStatus{RuntimeStatus: "waiting", ByRound: make(map[int]int), Outcome: AgentOutcomeOK}
		s.Agents[agentID] = a
	}
	return a
}

// Simplify derives the SimplifiedView a status read (check_subagent_status)
// returns, mapping phase to a coarse status and pulling totals from costs
// and coordination (spec §4.7).
func (s *Status) Simplify() SimplifiedView {
	var status string
	switch s.Coordination.Phase {
	case run.PhaseDone:
		status = string(run.StatusCompleted)
	case run.PhaseFailed:
		status = string(run.StatusFailed)
	default:
		status = string(run.StatusRunning)
	}
	return SimplifiedView{
		Status:               status,
		CompletionPercentage: s.Coordination.CompletionPercentage,
		InputTokens:          s.Costs.InputTokens,
		OutputTokens:         s.Costs.OutputTokens,
		Winner:               s.Results.Winner,
	}
}

// Store is the authoritative, atomically-written status.json for one
// coordination run. All mutation methods hold an internal lock and persist
// the document to disk before returning, so every reader sees a consistent,
// fully-written file (spec §4.7 "Writes are atomic").
type Store struct {
	mu      sync.Mutex
	path    string
	status  *Status
	metrics *telemetry.PrometheusGauges
	runID   string
}

// NewStore creates a Store whose status.json lives at
// filepath.Join(logDir, "status.json"). metrics may be nil.
func NewStore(logDir, runID string, metrics *telemetry.PrometheusGauges) (*Store, error) {
	if logDir == "" {
		return nil, fmt.Errorf("observability: log directory is required")
	}
	if err := os.MkdirAll(logDir, 0o755); err != nil {
		return nil, fmt.Errorf("observability: create log dir: %w", err)
	}
	s := &Store{
		path:    filepath.Join(logDir, "status.json"),
		status:  NewStatus(),
		metrics: metrics,
		runID:   runID,
	}
	if err := s.persist(); err != nil {
		return nil, err
	}
	return s, nil
}

// Snapshot returns a deep-enough copy of the current status for read-only use.
func (s *Store) Snapshot() *Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return cloneStatus(s.status)
}

// Mutate applies fn to the live status under lock, then atomically persists
// the result. Callers must not retain the *Status passed to fn beyond the
// call.
func (s *Store) Mutate(fn func(*Status)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(s.status)
	return s.persist()
}

// persist must be called with s.mu held. It writes to a temp file in the
// same directory and renames over status.json, so readers never observe a
// partially written document.
func (s *Store) persist() error {
	data, err := json.MarshalIndent(s.status, "", "  ")
	if err != nil {
		return fmt.Errorf("observability: marshal status: %w", err)
	}

	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, ".status-*.json.tmp")
	if err != nil {
		return fmt.Errorf("observability: create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("observability: write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("observability: sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("observability: close temp file: %w", err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("observability: rename temp file: %w", err)
	}

	s.mirrorMetrics()
	return nil
}

// mirrorMetrics must be called with s.mu held. It pushes a subset of the
// just-persisted status to Prometheus, which remains a dashboard mirror,
// never the source of truth (telemetry.PrometheusGauges doc comment).
func (s *Store) mirrorMetrics() {
	if s.metrics == nil {
		return
	}
	for label, count := range s.status.Results.Votes {
		s.metrics.SetVotes(s.runID, label, count)
	}
	for agentID, a := range s.status.Agents {
		s.metrics.SetEnforcementAttempts(s.runID, agentID, a.TotalEnforcementRetries)
		s.metrics.SetAgentPhase(s.runID, agentID, phaseOrdinal(s.status.Coordination.Phase))
	}
}

func phaseOrdinal(p run.Phase) int {
	switch p {
	case run.PhaseInitialAnswer:
		return 0
	case run.PhaseEnforcement:
		return 1
	case run.PhasePresentation:
		return 2
	case run.PhaseDone:
		return 3
	case run.PhaseFailed:
		return 4
	default:
		return -1
	}
}

func cloneStatus(s *Status) *Status {
	data, err := json.Marshal(s)
	if err != nil {
		// Marshal failures indicate a programmer error in a field type;
		// fall back to returning the live pointer's zero-cost view.
		return s
	}
	out := &Status{}
	if err := json.Unmarshal(data, out); err != nil {
		return s
	}
	return out
}

// ReadSimplified reads status.json at path and returns its derived view,
// used by the Subagent Lifecycle Manager's cancellation-recovery logic
// (spec §4.6 step 1) to inspect a child run without importing its Store.
func ReadSimplified(path string) (SimplifiedView, *Status, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return SimplifiedView{}, nil, err
	}
	var st Status
	if err := json.Unmarshal(data, &st); err != nil {
		return SimplifiedView{}, nil, fmt.Errorf("observability: decode status.json: %w", err)
	}
	return st.Simplify(), &st, nil
}
