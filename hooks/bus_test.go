package hooks

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBusPublishFanOut(t *testing.T) {
	bus := NewBus()
	ctx := context.Background()

	count := 0
	sub := SubscriberFunc(func(ctx context.Context, event Event) error {
		count++
		return nil
	})
	_, err := bus.Register(sub)
	require.NoError(t, err)

	require.NoError(t, bus.Publish(ctx, NewPhaseChangedEvent("run1", "initial_answer", "enforcement")))
	require.NoError(t, bus.Publish(ctx, NewAnswerSubmittedEvent("run1", "agent1", "agent1.1", 1)))
	require.Equal(t, 2, count)
}

func TestBusRegisterNil(t *testing.T) {
	bus := NewBus()
	_, err := bus.Register(nil)
	require.Error(t, err)
}

func TestSubscriptionClose(t *testing.T) {
	bus := NewBus()
	ctx := context.Background()
	count := 0
	sub := SubscriberFunc(func(ctx context.Context, event Event) error {
		count++
		return nil
	})
	subscription, err := bus.Register(sub)
	require.NoError(t, err)

	require.NoError(t, bus.Publish(ctx, NewPhaseChangedEvent("run1", "initial_answer", "enforcement")))
	require.NoError(t, subscription.Close())
	require.NoError(t, bus.Publish(ctx, NewAnswerSubmittedEvent("run1", "agent1", "agent1.1", 1)))
	require.Equal(t, 1, count)
}

func TestBusPublishStopsAtFirstError(t *testing.T) {
	bus := NewBus()
	ctx := context.Background()
	var calls []int

	failing := SubscriberFunc(func(ctx context.Context, event Event) error {
		calls = append(calls, 1)
		return assertErr
	})
	never := SubscriberFunc(func(ctx context.Context, event Event) error {
		calls = append(calls, 2)
		return nil
	})
	_, err := bus.Register(failing)
	require.NoError(t, err)
	_, err = bus.Register(never)
	require.NoError(t, err)

	err = bus.Publish(ctx, NewPhaseChangedEvent("run1", "initial_answer", "enforcement"))
	require.ErrorIs(t, err, assertErr)
	require.Equal(t, []int{1}, calls)
}

var assertErr = &stubError{"subscriber failed"}

type stubError struct{ msg string }

func (e *stubError) Error() string { return e.msg }
