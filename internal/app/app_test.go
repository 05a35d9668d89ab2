package app

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"clicks/internal/clicks"
	"clicks/internal/config"
	"clicks/internal/event"
	"clicks/internal/ipc"
	sqlitestore "clicks/internal/storage/sqlite"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	// Unix socket paths are length limited, so keep them out of t.TempDir().
	sockDir, err := os.MkdirTemp("", "clk")
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(sockDir) })

	return &config.Config{
		DatabasePath: filepath.Join(t.TempDir(), "clicks.db"),
		SocketPath:   filepath.Join(sockDir, "d.sock"),
		Source:       config.SourceNone,
		PollInterval: 10 * time.Millisecond,
		Clicks:       clicks.Config{Delay: 150 * time.Millisecond, ClickCount: 2},
	}
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func startApp(t *testing.T, cfg *config.Config) *App {
	t.Helper()
	a, err := NewApp(cfg, quietLogger())
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- a.Run() }()
	t.Cleanup(func() {
		a.Stop()
		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(10 * time.Second):
			t.Error("app did not stop")
		}
	})

	require.Eventually(t, func() bool {
		resp, err := ipc.Send(cfg.SocketPath, ipc.Command{Name: ipc.CmdPing}, time.Second)
		return err == nil && resp.Success
	}, 5*time.Second, 20*time.Millisecond)
	return a
}

func decodeStatus(t *testing.T, resp ipc.Response) ipc.StatusData {
	t.Helper()
	require.True(t, resp.Success, resp.Message)
	var status ipc.StatusData
	require.NoError(t, mapToStruct(resp.Data, &status))
	return status
}

func TestDaemonDisambiguatesInjectedClicks(t *testing.T) {
	cfg := testConfig(t)
	startApp(t, cfg)

	resp, err := ipc.Send(cfg.SocketPath, ipc.Command{
		Name: ipc.CmdClick,
		Args: ipc.ClickArgs{Target: "editor", Count: 2, Interval: "20ms"},
	}, 5*time.Second)
	require.NoError(t, err)
	require.True(t, resp.Success, resp.Message)

	resp, err = ipc.Send(cfg.SocketPath, ipc.Command{
		Name: ipc.CmdClick,
		Args: ipc.ClickArgs{Target: "terminal", Count: 1},
	}, 5*time.Second)
	require.NoError(t, err)
	require.True(t, resp.Success, resp.Message)

	var status ipc.StatusData
	require.Eventually(t, func() bool {
		resp, err := ipc.Send(cfg.SocketPath, ipc.Command{Name: ipc.CmdStatus}, time.Second)
		if err != nil {
			return false
		}
		status = decodeStatus(t, resp)
		return len(status.Recent) == 2
	}, 5*time.Second, 20*time.Millisecond)

	byTarget := map[string]event.Event{}
	for _, e := range status.Recent {
		byTarget[e.Target] = e
	}
	assert.Equal(t, event.EventTypeMultiClick, byTarget["editor"].Type)
	assert.Equal(t, 2, byTarget["editor"].Clicks)
	assert.Equal(t, event.EventTypeSingleClick, byTarget["terminal"].Type)
	assert.Equal(t, 1, byTarget["terminal"].Clicks)

	require.Len(t, status.Targets, 2)
	assert.Equal(t, "editor", status.Targets[0].Name)
	assert.Equal(t, cfg.Clicks, status.Config)
}

func TestDaemonPersistsDispatches(t *testing.T) {
	cfg := testConfig(t)
	a := startApp(t, cfg)

	resp, err := ipc.Send(cfg.SocketPath, ipc.Command{
		Name: ipc.CmdClick,
		Args: ipc.ClickArgs{Target: "panel", Count: 2},
	}, 5*time.Second)
	require.NoError(t, err)
	require.True(t, resp.Success, resp.Message)

	require.Eventually(t, func() bool {
		return len(a.recent.Snapshot()) == 1
	}, 5*time.Second, 20*time.Millisecond)

	// Stop the daemon, then read the database the way clicks-cli does.
	a.Stop()
	require.Eventually(t, func() bool {
		_, err := os.Stat(cfg.SocketPath)
		return os.IsNotExist(err)
	}, 10*time.Second, 20*time.Millisecond)

	store := sqlitestore.NewSQLiteStore(cfg.DatabasePath, quietLogger())
	ctx := context.Background()
	require.NoError(t, store.Init(ctx))
	defer store.Close()

	require.Eventually(t, func() bool {
		events, err := store.GetEvents(ctx, time.Now().Add(-time.Hour), time.Now().Add(time.Hour), event.EventTypeAppStop)
		return err == nil && len(events) == 1
	}, 5*time.Second, 20*time.Millisecond)

	events, err := store.GetEvents(ctx, time.Now().Add(-time.Hour), time.Now().Add(time.Hour), event.EventTypeMultiClick)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "panel", events[0].Target)
	assert.NotEmpty(t, events[0].GroupID)
}

func TestProcessCommandValidation(t *testing.T) {
	a, err := NewApp(testConfig(t), quietLogger())
	require.NoError(t, err)
	defer a.storage.Close()
	defer a.cancel()

	tests := []struct {
		name string
		cmd  ipc.Command
	}{
		{"unknown", ipc.Command{Name: "reboot"}},
		{"empty target", ipc.Command{Name: ipc.CmdClick, Args: ipc.ClickArgs{Count: 1}}},
		{"zero count", ipc.Command{Name: ipc.CmdClick, Args: ipc.ClickArgs{Target: "a"}}},
		{"too many", ipc.Command{Name: ipc.CmdClick, Args: ipc.ClickArgs{Target: "a", Count: 11}}},
		{"bad interval", ipc.Command{Name: ipc.CmdClick, Args: ipc.ClickArgs{Target: "a", Count: 2, Interval: "soon"}}},
		{"too long", ipc.Command{Name: ipc.CmdClick, Args: ipc.ClickArgs{Target: "a", Count: 10, Interval: "1s"}}},
		{"bad button", ipc.Command{Name: ipc.CmdClick, Args: ipc.ClickArgs{Target: "a", Count: 1, Button: "fourth"}}},
		{"bad args", ipc.Command{Name: ipc.CmdClick, Args: "not an object"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := a.processCommand(tt.cmd)
			assert.False(t, resp.Success)
			assert.NotEmpty(t, resp.Message)
		})
	}

	resp := a.processCommand(ipc.Command{Name: ipc.CmdPing})
	assert.True(t, resp.Success)
	assert.Equal(t, "pong", resp.Message)
}

func TestMapToStruct(t *testing.T) {
	var raw interface{}
	require.NoError(t, json.Unmarshal([]byte(`{"target":"x","count":3,"interval":"5ms"}`), &raw))

	var args ipc.ClickArgs
	require.NoError(t, mapToStruct(raw, &args))
	assert.Equal(t, ipc.ClickArgs{Target: "x", Count: 3, Interval: "5ms"}, args)

	assert.NoError(t, mapToStruct(nil, &args))
}
