package events

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/cuemby/burrow/pkg/log"
	"github.com/cuemby/burrow/pkg/metrics"
)

// Well-known lifecycle event names.
const (
	BeforeRequest      = "BeforeRequest"
	AfterRequest       = "AfterRequest"
	AuditEventName     = "AuditEvent"
	UnhandledException = "UnhandledException"
	Startup            = "Startup"
	Shutdown           = "Shutdown"
)

// Projector is implemented by payload values that can project themselves to a
// JSON-shaped mapping. ORM records satisfy it.
type Projector interface {
	Project() map[string]any
}

// Event is a named payload with an enqueue timestamp and, for scheduled
// events, a fire time.
type Event struct {
	Name      string         `json:"name"`
	Data      map[string]any `json:"data"`
	Timestamp time.Time      `json:"timestamp"`

	fireTime time.Time
	seq      uint64
}

// New builds an event, projecting the payload. Values must be JSON-shaped
// mappings, Projectors, or plain JSON scalars/slices; anything else fails at
// enqueue time.
func New(name string, data map[string]any) (*Event, error) {
	projected := make(map[string]any, len(data))
	for key, value := range data {
		v, err := project(value)
		if err != nil {
			return nil, fmt.Errorf("event %s: payload %q: %w", name, key, err)
		}
		projected[key] = v
	}
	return &Event{Name: name, Data: projected, Timestamp: time.Now().UTC()}, nil
}

func project(value any) (any, error) {
	switch v := value.(type) {
	case nil, bool, string, int, int64, float64, time.Time:
		return v, nil
	case Projector:
		return v.Project(), nil
	case map[string]any:
		out := make(map[string]any, len(v))
		for k, nested := range v {
			p, err := project(nested)
			if err != nil {
				return nil, err
			}
			out[k] = p
		}
		return out, nil
	case []any:
		out := make([]any, len(v))
		for i, nested := range v {
			p, err := project(nested)
			if err != nil {
				return nil, err
			}
			out[i] = p
		}
		return out, nil
	default:
		return nil, fmt.Errorf("value of type %T is not projectable", value)
	}
}

// FireTime returns when a scheduled event becomes due; zero for immediate
// events.
func (e *Event) FireTime() time.Time {
	return e.fireTime
}

// Serialize encodes the event as base64-wrapped JSON for durable storage.
func (e *Event) Serialize() (string, error) {
	raw, err := json.Marshal(e)
	if err != nil {
		return "", fmt.Errorf("failed to serialize event %s: %w", e.Name, err)
	}
	return base64.StdEncoding.EncodeToString(raw), nil
}

// Deserialize decodes an event produced by Serialize.
func Deserialize(encoded string) (*Event, error) {
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("failed to decode event: %w", err)
	}
	var e Event
	if err := json.Unmarshal(raw, &e); err != nil {
		return nil, fmt.Errorf("failed to unmarshal event: %w", err)
	}
	return &e, nil
}

// Listener handles one delivered event. Failures are logged and do not
// suppress later listeners.
type Listener func(ctx context.Context, event *Event) error

// Bus registers listeners by event name and delivers immediate and scheduled
// events from a single delivery goroutine.
type Bus struct {
	mu        sync.Mutex
	listeners map[string][]Listener
	queue     []*Event
	scheduled []*Event
	nextSeq   uint64

	storePath string
	tick      time.Duration

	running bool
	stopped bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// Option configures a Bus.
type Option func(*Bus)

// WithTick overrides the delivery loop interval. Tests use a short tick.
func WithTick(d time.Duration) Option {
	return func(b *Bus) { b.tick = d }
}

// NewBus creates a bus persisting unfired scheduled events to storePath.
func NewBus(storePath string, opts ...Option) *Bus {
	b := &Bus{
		listeners: make(map[string][]Listener),
		storePath: storePath,
		tick:      100 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Register adds a listener under an event name. Delivery follows registration
// order.
func (b *Bus) Register(name string, listener Listener) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.listeners[name] = append(b.listeners[name], listener)
}

// Dispatch enqueues an event for immediate delivery. Non-blocking. A stopped
// bus drops the event.
func (b *Bus) Dispatch(event *Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.stopped {
		log.WithComponent("eventbus").Warn().Str("event", event.Name).Msg("Bus stopped, dropping event")
		return
	}
	event.seq = b.nextSeq
	b.nextSeq++
	b.queue = append(b.queue, event)
}

// Schedule records an event to fire after delay. A stopped bus drops the
// event.
func (b *Bus) Schedule(event *Event, delay time.Duration) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.stopped {
		log.WithComponent("eventbus").Warn().Str("event", event.Name).Msg("Bus stopped, dropping event")
		return
	}
	event.seq = b.nextSeq
	b.nextSeq++
	event.fireTime = time.Now().Add(delay)
	b.scheduled = append(b.scheduled, event)
	metrics.EventsScheduled.Set(float64(len(b.scheduled)))
}

// Start restores persisted scheduled events and begins the delivery loop.
func (b *Bus) Start(ctx context.Context) error {
	b.mu.Lock()
	if b.running {
		b.mu.Unlock()
		return fmt.Errorf("event bus already started")
	}
	if b.stopped {
		b.mu.Unlock()
		return fmt.Errorf("event bus already stopped")
	}
	b.running = true
	b.stopCh = make(chan struct{})
	b.doneCh = make(chan struct{})
	b.mu.Unlock()

	if err := b.restoreScheduled(); err != nil {
		log.WithComponent("eventbus").Warn().Err(err).Msg("Failed to restore scheduled events")
	}

	go b.run(ctx)
	return nil
}

// Stop halts the loop, drains queued immediate events, and persists unfired
// scheduled events. Persistence is best effort.
func (b *Bus) Stop(ctx context.Context) {
	b.mu.Lock()
	if !b.running {
		b.mu.Unlock()
		return
	}
	b.running = false
	b.stopped = true
	close(b.stopCh)
	b.mu.Unlock()

	<-b.doneCh

	// Drain the immediate queue. Unfired scheduled events stay put so they
	// can be persisted below, even if they are already due.
	for {
		event := b.popQueued()
		if event == nil {
			break
		}
		b.deliver(ctx, event)
	}

	if err := b.persistScheduled(); err != nil {
		log.WithComponent("eventbus").Error().Err(err).Msg("Failed to persist scheduled events")
	}
}

func (b *Bus) run(ctx context.Context) {
	defer close(b.doneCh)
	logger := log.WithComponent("eventbus")

	for {
		select {
		case <-b.stopCh:
			return
		case <-ctx.Done():
			return
		case <-time.After(b.tick):
		}

		if event := b.popDue(time.Now()); event != nil {
			logger.Debug().Str("event", event.Name).Msg("Delivering event")
			b.deliver(ctx, event)
		}
	}
}

// popDue promotes due scheduled events into the immediate queue, then pops
// the head of the queue. Due events are promoted in ascending fire-time
// order, ties broken by enqueue order.
func (b *Bus) popDue(now time.Time) *Event {
	b.mu.Lock()
	defer b.mu.Unlock()

	var due, pending []*Event
	for _, e := range b.scheduled {
		if !e.fireTime.After(now) {
			due = append(due, e)
		} else {
			pending = append(pending, e)
		}
	}
	if len(due) > 0 {
		sort.SliceStable(due, func(i, j int) bool {
			if due[i].fireTime.Equal(due[j].fireTime) {
				return due[i].seq < due[j].seq
			}
			return due[i].fireTime.Before(due[j].fireTime)
		})
		b.scheduled = pending
		b.queue = append(b.queue, due...)
		metrics.EventsScheduled.Set(float64(len(b.scheduled)))
	}

	if len(b.queue) == 0 {
		return nil
	}
	event := b.queue[0]
	b.queue = b.queue[1:]
	return event
}

// popQueued pops the head of the immediate queue without touching the
// schedule.
func (b *Bus) popQueued() *Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.queue) == 0 {
		return nil
	}
	event := b.queue[0]
	b.queue = b.queue[1:]
	return event
}

// deliver awaits each registered listener in registration order. A failing
// listener does not suppress the rest.
func (b *Bus) deliver(ctx context.Context, event *Event) {
	b.mu.Lock()
	listeners := make([]Listener, len(b.listeners[event.Name]))
	copy(listeners, b.listeners[event.Name])
	b.mu.Unlock()

	metrics.EventsDispatched.WithLabelValues(event.Name).Inc()
	for _, listener := range listeners {
		if err := listener(ctx, event); err != nil {
			metrics.EventsFailed.WithLabelValues(event.Name).Inc()
			log.WithComponent("eventbus").Error().
				Err(err).
				Str("event", event.Name).
				Msg("Listener failed")
		}
	}
}

// QueuedCount returns the number of undelivered immediate events.
func (b *Bus) QueuedCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.queue)
}

// ScheduledCount returns the number of unfired scheduled events.
func (b *Bus) ScheduledCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.scheduled)
}
