package runlog

import (
	"context"

	"massgen.dev/coordination/hooks"
	"massgen.dev/coordination/telemetry"
)

// Subscriber appends every hooks.Event published on the bus to a Store,
// giving a coordination run a complete durable history independent of the
// observability package's single-snapshot status.json.
type Subscriber struct {
	Store  Store
	Logger telemetry.Logger
}

// NewSubscriber returns a Subscriber ready for hooks.Bus.Register.
func NewSubscriber(store Store, logger telemetry.Logger) *Subscriber {
	return &Subscriber{Store: store, Logger: logger}
}

// HandleEvent implements hooks.Subscriber. It never stops the bus: a runlog
// append failure is logged, not propagated, since runlog is a secondary
// record and must not block the scheduler's own status.json writes.
func (s *Subscriber) HandleEvent(ctx context.Context, event hooks.Event) error {
	e, err := EventFromHook(event, event)
	if err != nil {
		if s.Logger != nil {
			s.Logger.Warn(ctx, "runlog: encode event failed", "type", event.Type(), "error", err)
		}
		return nil
	}
	if err := s.Store.Append(ctx, e); err != nil && s.Logger != nil {
		s.Logger.Warn(ctx, "runlog: append failed", "type", event.Type(), "error", err)
	}
	return nil
}
