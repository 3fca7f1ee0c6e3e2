package events

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recorder collects delivered event names under a lock.
type recorder struct {
	mu    sync.Mutex
	names []string
}

func (r *recorder) listener(_ context.Context, event *Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.names = append(r.names, event.Name)
	return nil
}

func (r *recorder) seen() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.names))
	copy(out, r.names)
	return out
}

func mustEvent(t *testing.T, name string) *Event {
	t.Helper()
	event, err := New(name, map[string]any{"value": 1})
	require.NoError(t, err)
	return event
}

func TestNewRejectsUnprojectablePayload(t *testing.T) {
	_, err := New("Bad", map[string]any{"ch": make(chan int)})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not projectable")
}

type projectable struct{ id string }

func (p projectable) Project() map[string]any {
	return map[string]any{"id": p.id}
}

func TestNewProjectsPayload(t *testing.T) {
	event, err := New("Created", map[string]any{"model": projectable{id: "abc"}})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"id": "abc"}, event.Data["model"])
}

func TestSerializeRoundTrip(t *testing.T) {
	event, err := New("UserCreatedEvent", map[string]any{"id": "x", "count": float64(3)})
	require.NoError(t, err)

	encoded, err := event.Serialize()
	require.NoError(t, err)

	decoded, err := Deserialize(encoded)
	require.NoError(t, err)
	assert.Equal(t, event.Name, decoded.Name)
	assert.Equal(t, "x", decoded.Data["id"])
	assert.Equal(t, float64(3), decoded.Data["count"])
}

func TestImmediateDeliveryPreservesOrder(t *testing.T) {
	bus := NewBus("", WithTick(time.Millisecond))
	rec := &recorder{}
	bus.Register("First", rec.listener)
	bus.Register("Second", rec.listener)

	bus.Dispatch(mustEvent(t, "First"))
	bus.Dispatch(mustEvent(t, "Second"))

	require.NoError(t, bus.Start(context.Background()))
	assert.Eventually(t, func() bool {
		return len(rec.seen()) == 2
	}, time.Second, 5*time.Millisecond)
	bus.Stop(context.Background())

	assert.Equal(t, []string{"First", "Second"}, rec.seen())
}

func TestScheduledEventNotDeliveredEarly(t *testing.T) {
	bus := NewBus("", WithTick(time.Millisecond))
	rec := &recorder{}
	bus.Register("Later", rec.listener)

	bus.Schedule(mustEvent(t, "Later"), 80*time.Millisecond)
	require.NoError(t, bus.Start(context.Background()))

	time.Sleep(30 * time.Millisecond)
	assert.Empty(t, rec.seen())

	assert.Eventually(t, func() bool {
		return len(rec.seen()) == 1
	}, time.Second, 5*time.Millisecond)
	bus.Stop(context.Background())
}

func TestListenerFailureDoesNotSuppressOthers(t *testing.T) {
	bus := NewBus("", WithTick(time.Millisecond))
	rec := &recorder{}
	bus.Register("Boom", func(context.Context, *Event) error {
		return errors.New("listener exploded")
	})
	bus.Register("Boom", rec.listener)

	bus.Dispatch(mustEvent(t, "Boom"))
	require.NoError(t, bus.Start(context.Background()))
	assert.Eventually(t, func() bool {
		return len(rec.seen()) == 1
	}, time.Second, 5*time.Millisecond)
	bus.Stop(context.Background())
}

func TestStopDrainsQueuedEvents(t *testing.T) {
	bus := NewBus("", WithTick(time.Hour))
	rec := &recorder{}
	bus.Register("Queued", rec.listener)

	require.NoError(t, bus.Start(context.Background()))
	bus.Dispatch(mustEvent(t, "Queued"))
	bus.Dispatch(mustEvent(t, "Queued"))
	bus.Stop(context.Background())

	assert.Equal(t, []string{"Queued", "Queued"}, rec.seen())
}

func TestStoppedBusRejectsNewEvents(t *testing.T) {
	bus := NewBus("", WithTick(time.Hour))
	rec := &recorder{}
	bus.Register("Late", rec.listener)

	require.NoError(t, bus.Start(context.Background()))
	bus.Stop(context.Background())

	bus.Dispatch(mustEvent(t, "Late"))
	bus.Schedule(mustEvent(t, "Late"), time.Hour)

	assert.Zero(t, bus.QueuedCount())
	assert.Zero(t, bus.ScheduledCount())
	assert.Empty(t, rec.seen())
	require.Error(t, bus.Start(context.Background()))
}

func TestScheduledEventsPersistAcrossRestart(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scheduled_events.json")

	bus := NewBus(path, WithTick(time.Hour))
	require.NoError(t, bus.Start(context.Background()))
	bus.Schedule(mustEvent(t, "Reminder"), time.Hour)
	bus.Stop(context.Background())

	restored := NewBus(path, WithTick(time.Hour))
	require.NoError(t, restored.Start(context.Background()))
	defer restored.Stop(context.Background())

	assert.Equal(t, 1, restored.ScheduledCount())
}

func TestOverdueScheduledEventFiresAfterRestart(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scheduled_events.json")

	bus := NewBus(path, WithTick(time.Hour))
	require.NoError(t, bus.Start(context.Background()))
	bus.Schedule(mustEvent(t, "Missed"), time.Millisecond)
	time.Sleep(5 * time.Millisecond)
	bus.Stop(context.Background())

	restored := NewBus(path, WithTick(time.Millisecond))
	rec := &recorder{}
	restored.Register("Missed", rec.listener)
	require.NoError(t, restored.Start(context.Background()))
	assert.Eventually(t, func() bool {
		return len(rec.seen()) == 1
	}, time.Second, 5*time.Millisecond)
	restored.Stop(context.Background())
}
