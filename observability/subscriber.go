package observability

import (
	"context"
	"time"

	"massgen.dev/coordination/hooks"
	"massgen.dev/coordination/toolerrors"
)

// enforcementRetryBound caps the per-agent outcome classification: an agent
// whose recorded enforcement attempt number reaches it is marked
// non_compliant in status.json. The value equals agentrunner.Runner's own
// default retry bound.
const enforcementRetryBound = 3

// EnforcementSubscriber appends every EnforcementRecorded event onto the
// originating agent's reliability record in status.json (spec §4.5 "the
// Observability Store records every PreToolUse/PostToolUse enforcement
// cycle under agents.<id>.enforcement_attempts[]"). The Scheduler mutates
// Store directly for AnswerSubmitted/VoteCast/PhaseChanged; this subscriber
// covers the one event kind the Scheduler never sees, since enforcement
// retries are entirely internal to agentrunner.Runner's turn loop.
type EnforcementSubscriber struct {
	Store *Store
}

// NewEnforcementSubscriber returns a subscriber ready for hooks.Bus.Register.
func NewEnforcementSubscriber(store *Store) *EnforcementSubscriber {
	return &EnforcementSubscriber{Store: store}
}

// HandleEvent implements hooks.Subscriber.
func (s *EnforcementSubscriber) HandleEvent(ctx context.Context, event hooks.Event) error {
	ev, ok := event.(*hooks.EnforcementEvent)
	if !ok {
		return nil
	}
	return s.Store.Mutate(func(st *Status) {
		agentStatus := st.AgentOf(ev.AgentID())
		agentStatus.EnforcementAttempts = append(agentStatus.EnforcementAttempts, EnforcementAttempt{
			Attempt:       ev.Attempt,
			Reason:        ev.Reason,
			BufferPreview: ev.BufferPreview,
			BufferChars:   ev.BufferChars,
			Timestamp:     eventTime(ev),
		})
		agentStatus.TotalEnforcementRetries++
		agentStatus.TotalBufferCharsLost += ev.BufferChars
		if ev.Reason != toolerrors.ReasonNoToolCalls {
			agentStatus.WorkflowErrors++
		}
		if ev.Attempt >= enforcementRetryBound {
			agentStatus.Outcome = AgentOutcomeNonCompliant
		}
	})
}

func eventTime(ev hooks.Event) time.Time {
	return time.UnixMilli(ev.Timestamp())
}
