// Package term turns terminal mouse presses into raw click events.
package term

import (
	"context"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"

	"clicks/internal/collector"
	"clicks/internal/event"
)

// Source is installed as a tview mouse capture. It forwards button-down
// actions only: tview folds its own double-click detection into the
// click/double-click actions, which would hide raw presses.
type Source struct {
	target string
	now    func() time.Time
	events *collector.ChanSource
}

var _ collector.Source = (*Source)(nil)

func NewSource(target string) *Source {
	return &Source{
		target: target,
		now:    time.Now,
		events: collector.NewChanSource(64),
	}
}

// Capture matches tview.Application.SetMouseCapture. The event is always
// passed through unchanged.
func (s *Source) Capture(ev *tcell.EventMouse, action tview.MouseAction) (*tcell.EventMouse, tview.MouseAction) {
	var b event.Button
	switch action {
	case tview.MouseLeftDown:
		b = event.ButtonLeft
	case tview.MouseMiddleDown:
		b = event.ButtonMiddle
	case tview.MouseRightDown:
		b = event.ButtonRight
	default:
		return ev, action
	}

	x, y := ev.Position()
	s.events.Push(event.Raw{
		Timestamp: s.now(),
		Target:    s.target,
		Button:    b,
		X:         x,
		Y:         y,
	})
	return ev, action
}

func (s *Source) Stream(ctx context.Context, emit func(event.Raw) error) error {
	return s.events.Stream(ctx, emit)
}
