package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/sourcegraph/conc"

	"clicks/internal/collector"
	"clicks/internal/collector/x11"
	"clicks/internal/config"
	"clicks/internal/event"
	"clicks/internal/ipc"
	"clicks/internal/router"
	"clicks/internal/storage"

	sqlitestore "clicks/internal/storage/sqlite"
)

const (
	maxInjectedClicks = 10
	maxInjectSpan     = 4 * time.Second
	recentLimit       = 20
)

type App struct {
	cfg     *config.Config
	logger  *slog.Logger
	storage storage.Storage
	pointer *x11.PointerSource
	router  *router.Router
	recent  *ipc.Recent

	// Clicks injected over the socket
	injected *collector.ChanSource

	socketPath string
	listener   *net.UnixListener

	eventChan chan event.Event

	wg     conc.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
}

func NewApp(cfg *config.Config, logger *slog.Logger) (*App, error) {
	ctx, cancel := context.WithCancel(context.Background())

	a := &App{
		cfg:        cfg,
		logger:     logger,
		recent:     ipc.NewRecent(recentLimit),
		injected:   collector.NewChanSource(64),
		socketPath: cfg.SocketPath,
		eventChan:  make(chan event.Event, 100),
		ctx:        ctx,
		cancel:     cancel,
	}
	a.router = router.New(cfg.Clicks, a.emit, router.WithLogger(logger))

	a.storage = sqlitestore.NewSQLiteStore(cfg.DatabasePath, logger)
	if err := a.storage.Init(ctx); err != nil {
		cancel()
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	if cfg.Source == config.SourceX11 {
		var err error
		a.pointer, err = x11.NewPointerSource(cfg.PollInterval, logger)
		if err != nil {
			logger.Warn("failed to initialize X11 pointer source, only injected clicks will be seen", "error", err)
			a.pointer = nil
		}
	}

	return a, nil
}

// OnConfigChange applies a reloaded configuration. Only click settings are
// picked up, and only by targets attached after the change.
func (a *App) OnConfigChange(cfg *config.Config) {
	a.router.SetConfig(cfg.Clicks)
	a.logger.Info("click settings updated for new targets", "delay", cfg.Clicks.Delay, "click_count", cfg.Clicks.ClickCount)
}

// emit receives dispatches from the router, on timer or source goroutines.
func (a *App) emit(e event.Event) {
	select {
	case a.eventChan <- e:
	case <-a.ctx.Done():
	case <-time.After(100 * time.Millisecond):
		a.logger.Warn("timeout forwarding click event", "type", e.Type, "target", e.Target)
	}
}

// setupSocket checks for existing socket and creates the listener
func (a *App) setupSocket() error {
	if _, err := os.Stat(a.socketPath); err == nil {
		conn, err := net.DialTimeout("unix", a.socketPath, 1*time.Second)
		if err == nil {
			conn.Close()
			return fmt.Errorf("socket %s already active, another instance might be running", a.socketPath)
		}
		a.logger.Info("removing stale socket file", "path", a.socketPath)
		if err := os.Remove(a.socketPath); err != nil {
			return fmt.Errorf("failed to remove stale socket file %s: %w", a.socketPath, err)
		}
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("error checking socket file %s: %w", a.socketPath, err)
	}

	addr, err := net.ResolveUnixAddr("unix", a.socketPath)
	if err != nil {
		return fmt.Errorf("failed to resolve unix addr %s: %w", a.socketPath, err)
	}

	listener, err := net.ListenUnix("unix", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on socket %s: %w", a.socketPath, err)
	}

	a.listener = listener
	a.logger.Info("listening for commands", "socket", a.socketPath)
	return nil
}

// listenForCommands accepts connections and handles them
func (a *App) listenForCommands() {
	defer a.logger.Info("socket command listener stopped")

	if a.listener == nil {
		a.logger.Error("socket listener not initialized")
		return
	}

	for {
		conn, err := a.listener.AcceptUnix()
		if err != nil {
			select {
			case <-a.ctx.Done():
				return
			default:
			}
			if errors.Is(err, net.ErrClosed) {
				return
			}
			a.logger.Warn("failed to accept connection", "error", err)
			time.Sleep(100 * time.Millisecond) // avoid a tight loop on persistent errors
			continue
		}
		a.wg.Go(func() { a.handleConnection(conn) })
	}
}

// handleConnection reads command, processes it, and sends response
func (a *App) handleConnection(conn *net.UnixConn) {
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	decoder := json.NewDecoder(conn)
	encoder := json.NewEncoder(conn)

	var cmd ipc.Command
	if err := decoder.Decode(&cmd); err != nil {
		if err != io.EOF {
			a.logger.Warn("failed to decode command", "error", err)
		}
		_ = encoder.Encode(ipc.Response{Success: false, Message: "Failed to decode command: " + err.Error()})
		return
	}

	conn.SetReadDeadline(time.Time{})
	conn.SetWriteDeadline(time.Now().Add(maxInjectSpan + 5*time.Second))

	a.logger.Debug("received command", "name", cmd.Name)
	response := a.processCommand(cmd)

	if err := encoder.Encode(response); err != nil {
		a.logger.Warn("failed to send response", "error", err)
	}
}

// processCommand routes the command to the correct handler
func (a *App) processCommand(cmd ipc.Command) ipc.Response {
	switch cmd.Name {
	case ipc.CmdPing:
		return ipc.Response{Success: true, Message: "pong"}

	case ipc.CmdStatus:
		return ipc.Response{Success: true, Data: ipc.StatusData{
			Config:  a.router.Config(),
			Targets: a.router.Targets(),
			Recent:  a.recent.Snapshot(),
		}}

	case ipc.CmdClick:
		var args ipc.ClickArgs
		if err := mapToStruct(cmd.Args, &args); err != nil {
			return ipc.Response{Success: false, Message: fmt.Sprintf("Invalid args for %s: %v", cmd.Name, err)}
		}
		return a.injectClicks(args)

	default:
		return ipc.Response{Success: false, Message: fmt.Sprintf("Unknown command: %s", cmd.Name)}
	}
}

func (a *App) injectClicks(args ipc.ClickArgs) ipc.Response {
	if strings.TrimSpace(args.Target) == "" {
		return ipc.Response{Success: false, Message: "Click target cannot be empty"}
	}
	if args.Count < 1 || args.Count > maxInjectedClicks {
		return ipc.Response{Success: false, Message: fmt.Sprintf("Click count must be between 1 and %d", maxInjectedClicks)}
	}
	var interval time.Duration
	if args.Interval != "" {
		var err error
		interval, err = time.ParseDuration(args.Interval)
		if err != nil || interval < 0 {
			return ipc.Response{Success: false, Message: fmt.Sprintf("Invalid interval '%s'", args.Interval)}
		}
	}
	if time.Duration(args.Count-1)*interval > maxInjectSpan {
		return ipc.Response{Success: false, Message: fmt.Sprintf("Clicks would span more than %s", maxInjectSpan)}
	}
	button, err := parseButton(args.Button)
	if err != nil {
		return ipc.Response{Success: false, Message: err.Error()}
	}

	for i := 0; i < args.Count; i++ {
		if i > 0 && interval > 0 {
			select {
			case <-time.After(interval):
			case <-a.ctx.Done():
				return ipc.Response{Success: false, Message: "App is shutting down"}
			}
		}
		if !a.injected.Push(event.Raw{Timestamp: time.Now(), Target: args.Target, Button: button}) {
			return ipc.Response{Success: false, Message: fmt.Sprintf("Click queue full after %d clicks", i)}
		}
	}
	return ipc.Response{Success: true, Message: fmt.Sprintf("%d click(s) sent to '%s'", args.Count, args.Target)}
}

func parseButton(s string) (event.Button, error) {
	switch strings.ToLower(s) {
	case "", "left":
		return event.ButtonLeft, nil
	case "middle":
		return event.ButtonMiddle, nil
	case "right":
		return event.ButtonRight, nil
	default:
		return event.ButtonNone, fmt.Errorf("unknown button '%s'", s)
	}
}

// Helper function to convert map[string]interface{} (from json unmarshal) to struct
func mapToStruct(input interface{}, output interface{}) error {
	if input == nil {
		return nil
	}
	jsonBytes, err := json.Marshal(input)
	if err != nil {
		return fmt.Errorf("failed to marshal args map: %w", err)
	}
	if err := json.Unmarshal(jsonBytes, output); err != nil {
		return fmt.Errorf("failed to unmarshal args into struct: %w", err)
	}
	return nil
}

func (a *App) Run() error {
	defer a.cleanup()

	a.logger.Info("starting clicks daemon",
		"source", a.cfg.Source,
		"delay", a.cfg.Clicks.Delay,
		"click_count", a.cfg.Clicks.ClickCount,
		"x11", a.pointer != nil,
	)

	if err := a.setupSocket(); err != nil {
		return err
	}

	a.handleSignals()

	a.wg.Go(a.processEvents)
	a.wg.Go(func() { a.runSource("injected", a.injected) })
	if a.pointer != nil {
		a.wg.Go(func() { a.runSource("x11", a.pointer) })
	}
	a.wg.Go(a.listenForCommands)

	if _, err := a.storage.SaveEvent(a.ctx, event.Event{Timestamp: time.Now().UTC(), Type: event.EventTypeAppStart}); err != nil {
		a.logger.Warn("failed to save app_start event", "error", err)
	}

	a.logger.Info("clicks daemon running, send commands via clicks-cli or socket")
	<-a.ctx.Done()

	a.logger.Info("shutdown signal received, waiting for components")

	// Close the listener before waiting so Accept returns
	if a.listener != nil {
		if err := a.listener.Close(); err != nil {
			a.logger.Warn("error closing socket listener", "error", err)
		}
	}

	waitChan := make(chan struct{})
	go func() {
		a.wg.Wait()
		close(waitChan)
	}()

	select {
	case <-waitChan:
		a.logger.Info("all application goroutines finished")
	case <-time.After(5 * time.Second):
		a.logger.Warn("timeout waiting for application goroutines to stop")
	}
	return nil
}

// Stop triggers the same shutdown as SIGTERM.
func (a *App) Stop() {
	a.cancel()
}

func (a *App) runSource(name string, src collector.Source) {
	a.logger.Info("launching click source", "source", name)
	err := a.router.Run(a.ctx, src)
	if err != nil && !errors.Is(err, context.Canceled) {
		a.logger.Error("click source failed", "source", name, "error", err)
	}
}

func (a *App) processEvents() {
	defer a.logger.Info("event processor stopped")

	for {
		select {
		case <-a.ctx.Done():
			return
		case e := <-a.eventChan:
			a.recent.Add(e)
			a.logger.Info("click dispatched", "type", e.Type, "target", e.Target, "clicks", e.Clicks)

			if _, err := a.storage.SaveEvent(a.ctx, e); err != nil {
				a.logger.Error("error saving event", "type", e.Type, "target", e.Target, "error", err)
			}
		}
	}
}

func (a *App) handleSignals() {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		select {
		case sig := <-sigChan:
			a.logger.Info("received signal, initiating shutdown", "signal", sig.String())
			a.cancel()
		case <-a.ctx.Done():
		}
		signal.Stop(sigChan)
	}()
}

func (a *App) cleanup() {
	a.cancel()

	saveCtx, saveCancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer saveCancel()
	if _, err := a.storage.SaveEvent(saveCtx, event.Event{Timestamp: time.Now().UTC(), Type: event.EventTypeAppStop}); err != nil {
		a.logger.Warn("failed to save app_stop event", "error", err)
	}

	if a.pointer != nil {
		if err := a.pointer.Close(); err != nil {
			a.logger.Warn("error closing X11 connection", "error", err)
		}
	}

	if err := a.storage.Close(); err != nil {
		a.logger.Warn("error closing storage", "error", err)
	}

	if a.listener != nil {
		if _, err := os.Stat(a.socketPath); err == nil {
			if err := os.Remove(a.socketPath); err != nil {
				a.logger.Warn("failed to remove socket file", "path", a.socketPath, "error", err)
			}
		}
	}
	a.logger.Info("cleanup finished")
}
