package x11

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/BurntSushi/xgb/xproto"
	"github.com/BurntSushi/xgbutil"
	"github.com/BurntSushi/xgbutil/ewmh"
	"github.com/BurntSushi/xgbutil/icccm"

	"clicks/internal/collector"
	"clicks/internal/event"
)

const DefaultPollInterval = 10 * time.Millisecond

// PointerSource reports pointer button presses on the X display. X11 has no
// passive way to observe clicks delivered to other clients, so the root
// window pointer state is polled and press edges are turned into raw
// events targeted at the active window's application.
type PointerSource struct {
	X        *xgbutil.XUtil
	interval time.Duration
	logger   *slog.Logger
}

var _ collector.Source = (*PointerSource)(nil)

func NewPointerSource(interval time.Duration, logger *slog.Logger) (*PointerSource, error) {
	X, err := xgbutil.NewConn()
	if err != nil {
		return nil, fmt.Errorf("failed to connect to X server: %w", err)
	}

	// _NET_ACTIVE_WINDOW is needed to name click targets
	if _, err := ewmh.CurrentDesktopGet(X); err != nil {
		logger.Warn("EWMH potentially not supported by window manager", "error", err)
	}

	if interval <= 0 {
		interval = DefaultPollInterval
	}
	return &PointerSource{X: X, interval: interval, logger: logger}, nil
}

func (s *PointerSource) Stream(ctx context.Context, emit func(event.Raw) error) error {
	s.logger.Info("starting X11 pointer source", "interval", s.interval)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	var lastMask uint16
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("X11 pointer source stopping", "reason", ctx.Err())
			return ctx.Err()
		case <-ticker.C:
			reply, err := xproto.QueryPointer(s.X.Conn(), s.X.RootWin()).Reply()
			if err != nil {
				continue
			}

			pressed := pressEdges(lastMask, reply.Mask)
			lastMask = reply.Mask
			if len(pressed) == 0 {
				continue
			}

			now := time.Now()
			target := s.activeApp()
			for _, b := range pressed {
				ev := event.Raw{
					Timestamp: now,
					Target:    target,
					Button:    b,
					X:         int(reply.RootX),
					Y:         int(reply.RootY),
				}
				if err := emit(ev); err != nil {
					return err
				}
			}
		}
	}
}

func (s *PointerSource) Close() error {
	s.X.Conn().Close()
	return nil
}

var buttonMasks = []struct {
	mask   uint16
	button event.Button
}{
	{xproto.KeyButMaskButton1, event.ButtonLeft},
	{xproto.KeyButMaskButton2, event.ButtonMiddle},
	{xproto.KeyButMaskButton3, event.ButtonRight},
}

// pressEdges returns the buttons that are down in cur but were up in prev.
func pressEdges(prev, cur uint16) []event.Button {
	var pressed []event.Button
	for _, bm := range buttonMasks {
		if cur&bm.mask != 0 && prev&bm.mask == 0 {
			pressed = append(pressed, bm.button)
		}
	}
	return pressed
}

// activeApp names the application owning the active window, falling back
// to its title.
func (s *PointerSource) activeApp() string {
	win, err := ewmh.ActiveWindowGet(s.X)
	if err != nil || win == 0 {
		return "root"
	}

	if class, err := icccm.WmClassGet(s.X, win); err == nil && class != nil && class.Class != "" {
		return class.Class
	}

	title, err := ewmh.WmNameGet(s.X, win)
	if err != nil || title == "" {
		title, err = icccm.WmNameGet(s.X, win)
		if err != nil || title == "" {
			return "unknown"
		}
	}
	return Truncate(title, 40)
}

// Truncate shortens s to at most maxLen runes, preferring to cut at a space.
func Truncate(s string, maxLen int) string {
	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	head := string(runes[:maxLen-3])
	if idx := strings.LastIndex(head, " "); idx >= 0 && utf8.RuneCountInString(head[:idx]) > maxLen/2 {
		return head[:idx] + "..."
	}
	return head + "..."
}
