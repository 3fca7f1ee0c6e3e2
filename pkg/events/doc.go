/*
Package events provides the application event bus for Burrow's lifecycle and
domain notifications.

The events package implements a single-consumer event bus with named
listeners, immediate dispatch, and durable scheduled delivery. Handlers,
the ORM, and the request pipeline publish events; listeners registered by
name react to them without coupling publishers to consumers.

# Architecture

A single delivery goroutine owns both queues:

	Publisher → Dispatch ──────────────► immediate queue
	Publisher → Schedule ──────────────► scheduled list (sorted by fire time)

	Delivery loop (every 100ms):
	  1. promote due scheduled events into the immediate queue
	  2. pop one event, invoke its listeners in registration order

Listener failures are logged and never suppress later listeners or crash
the loop.

# Scheduled Event Durability

On shutdown the bus drains the immediate queue, then writes unfired
scheduled events to a JSON file as base64-wrapped envelopes with their
fire times. On startup the file is read back, so reminders survive a
process restart; events that became due while the process was down fire
on the first tick.

# Usage

	bus := events.NewBus("scheduled_events.json")
	bus.Register("UserCreatedEvent", func(ctx context.Context, e *events.Event) error {
		log.Info().Str("id", e.Data["id"].(string)).Msg("User created")
		return nil
	})
	bus.Start(ctx)
	defer bus.Stop(ctx)

	e, _ := events.New("UserCreatedEvent", map[string]any{"id": user.ID()})
	bus.Dispatch(e)
*/
package events
