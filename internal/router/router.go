// Package router attaches one click disambiguator per target and turns
// their dispatches into activity events.
package router

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/google/uuid"

	"clicks/internal/clicks"
	"clicks/internal/collector"
	"clicks/internal/event"
)

// TargetInfo describes an attached target.
type TargetInfo struct {
	Name    string        `json:"name"`
	Config  clicks.Config `json:"config"`
	Pending int           `json:"pending"`
}

type Router struct {
	mu      sync.Mutex
	cfg     clicks.Config
	targets map[string]*clicks.Disambiguator

	out    func(event.Event)
	clock  clicks.Clock
	logger *slog.Logger
}

type Option func(*Router)

func WithClock(clock clicks.Clock) Option {
	return func(r *Router) { r.clock = clock }
}

func WithLogger(logger *slog.Logger) Option {
	return func(r *Router) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// New returns a Router that sends every dispatched group to out. out is
// called from whichever goroutine closed the window.
func New(cfg clicks.Config, out func(event.Event), opts ...Option) *Router {
	r := &Router{
		cfg:     clicks.DefaultConfig().Merge(cfg),
		targets: make(map[string]*clicks.Disambiguator),
		out:     out,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// SetConfig changes the configuration used for targets attached from now
// on. Targets already attached keep the configuration they started with.
func (r *Router) SetConfig(cfg clicks.Config) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cfg = clicks.DefaultConfig().Merge(cfg)
}

// Handle routes ev to its target's disambiguator, attaching one on the
// target's first click.
func (r *Router) Handle(ev event.Raw) {
	d, err := r.lookup(ev.Target)
	if err != nil {
		r.logger.Error("failed to attach target", "target", ev.Target, "error", err)
		return
	}
	d.Handle(ev)
}

// Run feeds every event of src through Handle until src stops.
func (r *Router) Run(ctx context.Context, src collector.Source) error {
	return src.Stream(ctx, func(ev event.Raw) error {
		r.Handle(ev)
		return nil
	})
}

func (r *Router) lookup(target string) (*clicks.Disambiguator, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if d, ok := r.targets[target]; ok {
		return d, nil
	}

	opts := []clicks.Option{
		clicks.WithConfig(r.cfg),
		clicks.WithLogger(r.logger.With("target", target)),
	}
	if r.clock != nil {
		opts = append(opts, clicks.WithClock(r.clock))
	}
	d, err := clicks.New(r.single, r.multi, opts...)
	if err != nil {
		return nil, err
	}
	r.targets[target] = d
	r.logger.Info("target attached", "target", target, "delay", r.cfg.Delay, "click_count", r.cfg.ClickCount)
	return d, nil
}

func (r *Router) single(ev event.Raw) {
	r.out(event.Event{
		Timestamp: ev.Timestamp.UTC(),
		Type:      event.EventTypeSingleClick,
		Target:    ev.Target,
		Clicks:    1,
		GroupID:   uuid.NewString(),
		Notes:     fmt.Sprintf("button=%s x=%d y=%d", ev.Button, ev.X, ev.Y),
	})
}

func (r *Router) multi(evs []event.Raw) {
	first := evs[0]
	r.out(event.Event{
		Timestamp: first.Timestamp.UTC(),
		Type:      event.EventTypeMultiClick,
		Target:    first.Target,
		Clicks:    len(evs),
		GroupID:   uuid.NewString(),
		Notes:     fmt.Sprintf("button=%s x=%d y=%d span=%s", first.Button, first.X, first.Y, evs[len(evs)-1].Timestamp.Sub(first.Timestamp)),
	})
}

// Targets lists attached targets sorted by name.
func (r *Router) Targets() []TargetInfo {
	r.mu.Lock()
	attached := make(map[string]*clicks.Disambiguator, len(r.targets))
	for name, d := range r.targets {
		attached[name] = d
	}
	r.mu.Unlock()

	infos := make([]TargetInfo, 0, len(attached))
	for name, d := range attached {
		infos = append(infos, TargetInfo{Name: name, Config: d.Config(), Pending: d.Pending()})
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Name < infos[j].Name })
	return infos
}

// Config returns the configuration new targets are attached with.
func (r *Router) Config() clicks.Config {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cfg
}
