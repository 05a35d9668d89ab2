package storage

import (
	"context"
	"time"

	"clicks/internal/event"
)

// Storage persists dispatched click groups and daemon lifecycle events.
type Storage interface {
	Init(ctx context.Context) error
	SaveEvent(ctx context.Context, e event.Event) (int64, error)
	GetEvents(ctx context.Context, start, end time.Time, eventTypes ...event.EventType) ([]event.Event, error)
	// CountByTarget returns the number of events of type t per target in [start, end].
	CountByTarget(ctx context.Context, start, end time.Time, t event.EventType) (map[string]int, error)
	Close() error
}
