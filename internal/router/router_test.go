package router

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"clicks/internal/clicks"
	"clicks/internal/clicks/clicktest"
	"clicks/internal/collector"
	"clicks/internal/event"
)

type sink struct {
	mu     sync.Mutex
	events []event.Event
}

func (s *sink) add(e event.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, e)
}

func (s *sink) snapshot() []event.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]event.Event(nil), s.events...)
}

var epoch = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func raw(target string, ms int) event.Raw {
	return event.Raw{Timestamp: epoch.Add(time.Duration(ms) * time.Millisecond), Target: target, Button: event.ButtonLeft}
}

func TestTargetsAreIndependent(t *testing.T) {
	clock := clicktest.NewClock(epoch)
	out := &sink{}
	r := New(clicks.Config{}, out.add, WithClock(clock))

	// Interleaved clicks on two targets each form their own double click.
	r.Handle(raw("a", 0))
	r.Handle(raw("b", 10))
	r.Handle(raw("a", 20))
	r.Handle(raw("b", 40))

	events := out.snapshot()
	require.Len(t, events, 2)
	assert.Equal(t, event.EventTypeMultiClick, events[0].Type)
	assert.Equal(t, "a", events[0].Target)
	assert.Equal(t, 2, events[0].Clicks)
	assert.Equal(t, "b", events[1].Target)
	assert.NotEqual(t, events[0].GroupID, events[1].GroupID)
	assert.Contains(t, events[1].Notes, "span=30ms")
}

func TestSingleClickEvent(t *testing.T) {
	clock := clicktest.NewClock(epoch)
	out := &sink{}
	r := New(clicks.Config{}, out.add, WithClock(clock))

	r.Handle(raw("a", 5))
	assert.Empty(t, out.snapshot())
	clock.Advance(clicks.DefaultDelay)

	events := out.snapshot()
	require.Len(t, events, 1)
	assert.Equal(t, event.EventTypeSingleClick, events[0].Type)
	assert.Equal(t, 1, events[0].Clicks)
	assert.Equal(t, epoch.Add(5*time.Millisecond), events[0].Timestamp)
	assert.NotEmpty(t, events[0].GroupID)
}

func TestSetConfigOnlyAffectsNewTargets(t *testing.T) {
	clock := clicktest.NewClock(epoch)
	out := &sink{}
	r := New(clicks.Config{}, out.add, WithClock(clock))

	r.Handle(raw("old", 0))
	r.SetConfig(clicks.Config{ClickCount: 3})
	r.Handle(raw("new", 0))
	assert.Equal(t, 3, r.Config().ClickCount)

	targets := r.Targets()
	require.Len(t, targets, 2)
	assert.Equal(t, "new", targets[0].Name)
	assert.Equal(t, 3, targets[0].Config.ClickCount)
	assert.Equal(t, 1, targets[0].Pending)
	assert.Equal(t, "old", targets[1].Name)
	assert.Equal(t, 2, targets[1].Config.ClickCount)

	// "old" still closes on two clicks.
	r.Handle(raw("old", 50))
	events := out.snapshot()
	require.Len(t, events, 1)
	assert.Equal(t, "old", events[0].Target)
}

func TestRunStreamsSource(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	out := &sink{}
	r := New(clicks.Config{ClickCount: 1}, out.add)
	src := collector.NewChanSource(4)
	go r.Run(ctx, src)

	src.Push(raw("a", 0))
	require.Eventually(t, func() bool { return len(out.snapshot()) == 1 }, time.Second, 5*time.Millisecond)
}
