package bus

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/learnsphere/moderation/internal/model"
	"github.com/learnsphere/moderation/internal/store"
)

// Announcer receives change signals inside a store transaction.
type Announcer interface {
	Announce(a model.Announcement)
}

// Batch collects the events of one command while its transaction runs and
// delivers them, in staging order, only after the commit succeeded.
type Batch struct {
	events []model.Event
}

// Reset drops staged events. Call it at the top of a transaction body,
// which may run more than once.
func (b *Batch) Reset() {
	b.events = b.events[:0]
}

// Stage records an event and announces it on tx with the JSON-encoded payload.
func (b *Batch) Stage(tx Announcer, topic model.Topic, entityID string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return model.StoreUnavailable(fmt.Errorf("failed to encode %s payload: %w", topic, err))
	}

	tx.Announce(model.Announcement{Topic: topic, EntityID: entityID, Payload: data})
	b.events = append(b.events, model.Event{Topic: topic, EntityID: entityID, Payload: payload})

	return nil
}

// Len returns the number of staged events.
func (b *Batch) Len() int {
	return len(b.events)
}

// Topics returns the staged topics in order.
func (b *Batch) Topics() []model.Topic {
	out := make([]model.Topic, len(b.events))
	for i, ev := range b.events {
		out[i] = ev.Topic
	}
	return out
}

// Flush publishes the staged events on bus and empties the batch.
func (b *Batch) Flush(bus *Bus) error {
	events := b.events
	b.events = nil

	for _, ev := range events {
		if _, err := bus.Publish(ev); err != nil {
			return err
		}
	}

	return nil
}

// Updater is the transactional half of a store.
type Updater interface {
	Update(ctx context.Context, fn func(tx store.Tx) error) error
}

// Transact runs fn in one store transaction and publishes the events it
// staged once the commit succeeded. A failed transaction publishes nothing.
func Transact(ctx context.Context, s Updater, b *Bus, fn func(tx store.Tx, events *Batch) error) error {
	var events Batch

	err := s.Update(ctx, func(tx store.Tx) error {
		events.Reset()
		return fn(tx, &events)
	})
	if err != nil {
		return err
	}

	return events.Flush(b)
}
