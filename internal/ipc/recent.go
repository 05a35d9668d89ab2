package ipc

import (
	"sync"

	"github.com/eapache/queue"

	"clicks/internal/event"
)

// Recent keeps the last N dispatched events for the status command.
type Recent struct {
	mu    sync.Mutex
	limit int
	q     *queue.Queue
}

func NewRecent(limit int) *Recent {
	if limit < 1 {
		limit = 1
	}
	return &Recent{limit: limit, q: queue.New()}
}

func (r *Recent) Add(e event.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.q.Add(e)
	for r.q.Length() > r.limit {
		r.q.Remove()
	}
}

// Snapshot returns the kept events, newest first.
func (r *Recent) Snapshot() []event.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := r.q.Length()
	out := make([]event.Event, 0, n)
	for i := n - 1; i >= 0; i-- {
		out = append(out, r.q.Get(i).(event.Event))
	}
	return out
}
