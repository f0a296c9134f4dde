// Package events defines the change notifications that drive materialization and
// aggregation after a write, and an in-process dispatcher for single-node deployments.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"famfin/internal/logger"
)

//go:generate mockgen -source=events.go -destination=events_mock.go -package=events

// Type names a change notification.
type Type string

const (
	ObligationCreated  Type = "obligation.created"
	ObligationUpdated  Type = "obligation.updated"
	TransactionChanged Type = "transaction.changed"
)

// Event is a lightweight change notification. Consumers re-read current state by id,
// so an event may be delivered more than once.
type Event struct {
	ID            string    `json:"id"`
	Type          Type      `json:"type"`
	ObligationID  string    `json:"obligation_id,omitempty"`
	TransactionID string    `json:"transaction_id,omitempty"`
	ProjectionIDs []string  `json:"projection_ids,omitempty"`
	Version       int64     `json:"version,omitempty"`
	OccurredAt    time.Time `json:"occurred_at"`
}

// New returns an event of type t stamped with a fresh id and the current time.
func New(t Type) Event {
	id, err := uuid.NewV7()
	if err != nil {
		id = uuid.New()
	}
	return Event{ID: id.String(), Type: t, OccurredAt: time.Now().UTC()}
}

// ToJSON converts the event to JSON bytes
func (e Event) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

// FromJSON decodes an event and rejects payloads without a known type.
func FromJSON(data []byte) (Event, error) {
	var e Event
	if err := json.Unmarshal(data, &e); err != nil {
		return Event{}, err
	}
	switch e.Type {
	case ObligationCreated, ObligationUpdated:
		if e.ObligationID == "" {
			return Event{}, fmt.Errorf("%s event without obligation_id", e.Type)
		}
	case TransactionChanged:
	default:
		return Event{}, fmt.Errorf("unknown event type %q", e.Type)
	}
	return e, nil
}

// Publisher delivers change notifications.
type Publisher interface {
	Publish(ctx context.Context, e Event) error
}

// Handler reacts to change notifications.
type Handler interface {
	Handle(ctx context.Context, e Event) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, e Event) error

func (f HandlerFunc) Handle(ctx context.Context, e Event) error {
	return f(ctx, e)
}

// Dispatcher is a Publisher that runs its handlers synchronously in the publishing
// goroutine. Handler errors are logged and never returned to the publisher.
type Dispatcher struct {
	handlers []Handler
}

// NewDispatcher creates a Dispatcher with the given handlers.
func NewDispatcher(handlers ...Handler) *Dispatcher {
	return &Dispatcher{handlers: handlers}
}

// Subscribe adds a handler. It is not safe to call concurrently with Publish.
func (d *Dispatcher) Subscribe(h Handler) {
	d.handlers = append(d.handlers, h)
}

// Publish runs every handler for e.
func (d *Dispatcher) Publish(ctx context.Context, e Event) error {
	for _, h := range d.handlers {
		if err := h.Handle(ctx, e); err != nil {
			logger.Named("events").Errorw("event handler failed",
				"error", err,
				"event_id", e.ID,
				"type", e.Type,
				"obligation_id", e.ObligationID,
				"transaction_id", e.TransactionID,
			)
		}
	}
	return nil
}
