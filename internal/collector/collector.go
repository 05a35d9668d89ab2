package collector

import (
	"context"

	"clicks/internal/event"
)

// Source produces raw click events for a consumer. Each call to Stream
// starts a fresh subscription that lasts until ctx is done or the source
// runs dry. An error returned by emit stops the stream and is returned.
type Source interface {
	Stream(ctx context.Context, emit func(event.Raw) error) error
}

// SourceFunc adapts a function literal to the Source interface.
type SourceFunc func(ctx context.Context, emit func(event.Raw) error) error

// Stream calls the underlying function.
func (f SourceFunc) Stream(ctx context.Context, emit func(event.Raw) error) error {
	return f(ctx, emit)
}

// ChanSource is a Source fed by Push. Clicks injected over the command
// socket and synthetic clicks in tests go through it.
type ChanSource struct {
	events chan event.Raw
}

func NewChanSource(size int) *ChanSource {
	if size < 1 {
		size = 1
	}
	return &ChanSource{events: make(chan event.Raw, size)}
}

// Push queues ev without blocking. It reports false when the buffer is full
// and the event was dropped.
func (s *ChanSource) Push(ev event.Raw) bool {
	select {
	case s.events <- ev:
		return true
	default:
		return false
	}
}

func (s *ChanSource) Stream(ctx context.Context, emit func(event.Raw) error) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev := <-s.events:
			if err := emit(ev); err != nil {
				return err
			}
		}
	}
}
