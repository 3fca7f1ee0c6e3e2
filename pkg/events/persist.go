package events

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"
)

// storedEvent is the on-disk form of one unfired scheduled event.
type storedEvent struct {
	Event    string    `json:"event"`
	FireTime time.Time `json:"fire_time"`
}

// persistScheduled writes unfired scheduled events to the store path as a
// JSON array. An empty schedule still writes an empty array so a stale file
// from a previous run cannot replay.
func (b *Bus) persistScheduled() error {
	if b.storePath == "" {
		return nil
	}

	b.mu.Lock()
	scheduled := make([]*Event, len(b.scheduled))
	copy(scheduled, b.scheduled)
	b.mu.Unlock()

	stored := make([]storedEvent, 0, len(scheduled))
	for _, e := range scheduled {
		encoded, err := e.Serialize()
		if err != nil {
			return err
		}
		stored = append(stored, storedEvent{Event: encoded, FireTime: e.fireTime.UTC()})
	}

	raw, err := json.Marshal(stored)
	if err != nil {
		return fmt.Errorf("failed to marshal scheduled events: %w", err)
	}
	if err := os.WriteFile(b.storePath, raw, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", b.storePath, err)
	}
	return nil
}

// restoreScheduled loads persisted scheduled events. A missing file is not an
// error; events whose fire time has passed are delivered on the next tick.
func (b *Bus) restoreScheduled() error {
	if b.storePath == "" {
		return nil
	}

	raw, err := os.ReadFile(b.storePath)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", b.storePath, err)
	}

	var stored []storedEvent
	if err := json.Unmarshal(raw, &stored); err != nil {
		return fmt.Errorf("failed to parse %s: %w", b.storePath, err)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	for _, s := range stored {
		event, err := Deserialize(s.Event)
		if err != nil {
			return err
		}
		event.fireTime = s.FireTime
		event.seq = b.nextSeq
		b.nextSeq++
		b.scheduled = append(b.scheduled, event)
	}
	return nil
}
