// Package clicks tells single clicks apart from multi-clicks.
//
// A Disambiguator buffers the raw clicks of one target into windows. A
// window opens on the first click and closes when either Config.Delay has
// elapsed or Config.ClickCount clicks have arrived, whichever happens
// first. A window holding exactly ClickCount clicks is handed to the
// multi-click callback; any other window hands only its first click to the
// single-click callback and drops the rest.
//
//	d, err := clicks.Attach(ctx, src,
//	    func(ev event.Raw) { log.Println("single", ev.Target) },
//	    func(evs []event.Raw) { log.Println("double", evs[0].Target) },
//	)
package clicks

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/sourcegraph/conc/panics"

	"clicks/internal/collector"
	"clicks/internal/event"
)

// maxGroupHint caps the initial buffer capacity so a huge ClickCount does
// not reserve memory up front.
const maxGroupHint = 8

// SingleFunc receives the first click of a window that did not reach the
// configured click count.
type SingleFunc func(ev event.Raw)

// MultiFunc receives every click of a window that reached the configured
// click count, in arrival order.
type MultiFunc func(evs []event.Raw)

type state uint8

const (
	stateIdle state = iota
	stateCollecting
)

func (s state) String() string {
	if s == stateCollecting {
		return "collecting"
	}
	return "idle"
}

// Option configures a Disambiguator.
type Option func(*Disambiguator)

// WithConfig merges cfg over the defaults. Non-positive fields keep the
// default value.
func WithConfig(cfg Config) Option {
	return func(d *Disambiguator) {
		d.cfg = d.cfg.Merge(cfg)
	}
}

func WithDelay(delay time.Duration) Option {
	return WithConfig(Config{Delay: delay})
}

func WithClickCount(n int) Option {
	return WithConfig(Config{ClickCount: n})
}

func WithClock(clock Clock) Option {
	return func(d *Disambiguator) {
		if clock != nil {
			d.clock = clock
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(d *Disambiguator) {
		if logger != nil {
			d.logger = logger
		}
	}
}

// Disambiguator groups the raw clicks of a single target. It is safe for
// concurrent use; callbacks always run without the internal lock held.
//
// A window closed by its delay dispatches on the timer goroutine, while a
// window closed by count dispatches on the goroutine calling Handle. The
// callbacks of two consecutive windows may therefore overlap, and callers
// that need a strict order should sort on event timestamps. Callbacks may
// call Handle on the same Disambiguator.
type Disambiguator struct {
	cfg      Config
	onSingle SingleFunc
	onMulti  MultiFunc
	clock    Clock
	logger   *slog.Logger

	mu     sync.Mutex
	state  state
	group  []event.Raw
	timer  Timer
	window uint64 // incremented per opened window; stale timers compare against it
}

// New builds a Disambiguator driven by calls to Handle. Both callbacks are
// required.
func New(onSingle SingleFunc, onMulti MultiFunc, opts ...Option) (*Disambiguator, error) {
	if onSingle == nil {
		return nil, fmt.Errorf("%w: single-click callback is nil", ErrInvalidArgument)
	}
	if onMulti == nil {
		return nil, fmt.Errorf("%w: multi-click callback is nil", ErrInvalidArgument)
	}

	d := &Disambiguator{
		cfg:      DefaultConfig(),
		onSingle: onSingle,
		onMulti:  onMulti,
		clock:    realClock{},
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d, nil
}

// Attach subscribes a new Disambiguator to src for as long as ctx lives.
// There is no detach; cancel ctx when the target goes away. Callback panics
// raised inside the subscription are logged and do not end it.
func Attach(ctx context.Context, src collector.Source, onSingle SingleFunc, onMulti MultiFunc, opts ...Option) (*Disambiguator, error) {
	if src == nil {
		return nil, fmt.Errorf("%w: source is nil", ErrInvalidArgument)
	}
	d, err := New(onSingle, onMulti, opts...)
	if err != nil {
		return nil, err
	}

	go func() {
		err := src.Stream(ctx, func(ev event.Raw) error {
			var pc panics.Catcher
			pc.Try(func() { d.Handle(ev) })
			if r := pc.Recovered(); r != nil {
				d.logger.Error("click callback panicked", "target", ev.Target, "error", r.AsError())
			}
			return nil
		})
		if err != nil && !errors.Is(err, context.Canceled) {
			d.logger.Warn("click source stopped", "error", err)
			return
		}
		d.logger.Debug("click source closed")
	}()

	return d, nil
}

// Config returns the configuration fixed at construction.
func (d *Disambiguator) Config() Config {
	return d.cfg
}

// Pending returns the number of clicks buffered in the open window, or 0
// when no window is open.
func (d *Disambiguator) Pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.group)
}

// Handle feeds one raw click. If it completes the window the callback runs
// on the caller's goroutine before Handle returns; a panic there propagates
// to the caller with the window already reset.
func (d *Disambiguator) Handle(ev event.Raw) {
	d.mu.Lock()

	if d.state == stateIdle {
		d.window++
		window := d.window
		d.state = stateCollecting
		d.group = make([]event.Raw, 0, min(d.cfg.ClickCount, maxGroupHint))
		d.timer = d.clock.AfterFunc(d.cfg.Delay, func() { d.expire(window) })
		d.logger.Debug("click window opened", "target", ev.Target, "window", window, "delay", d.cfg.Delay)
	}
	d.group = append(d.group, ev)

	if len(d.group) < d.cfg.ClickCount {
		d.mu.Unlock()
		return
	}

	group := d.closeLocked("count")
	d.mu.Unlock()
	d.dispatch(group)
}

// expire runs on the timer goroutine. A window that was already closed by
// the count path, or replaced by a newer one, is left alone.
func (d *Disambiguator) expire(window uint64) {
	d.mu.Lock()
	if d.state != stateCollecting || d.window != window {
		d.mu.Unlock()
		return
	}
	group := d.closeLocked("delay")
	d.mu.Unlock()

	var pc panics.Catcher
	pc.Try(func() { d.dispatch(group) })
	if r := pc.Recovered(); r != nil {
		d.logger.Error("click callback panicked", "window", window, "error", r.AsError())
	}
}

// closeLocked resets the state to idle and returns the finished group.
// d.mu must be held.
func (d *Disambiguator) closeLocked(reason string) []event.Raw {
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	group := d.group
	d.group = nil
	d.state = stateIdle
	d.logger.Debug("click window closed", "window", d.window, "reason", reason, "clicks", len(group))
	return group
}

func (d *Disambiguator) dispatch(group []event.Raw) {
	if len(group) == d.cfg.ClickCount {
		d.onMulti(group)
		return
	}
	d.onSingle(group[0])
}
