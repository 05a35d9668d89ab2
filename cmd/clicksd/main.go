package main

import (
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/sevlyar/go-daemon"

	"clicks/internal/app"
	"clicks/internal/config"
	"clicks/internal/logging"
)

var (
	configPath = flag.String("c", "", "Path to configuration file (e.g., config.yaml). Defaults to ./config.yaml, ~/.config/clicks/config.yaml, /etc/clicks/config.yaml")
	logPath    = flag.String("log", "", "Path to log file (optional, defaults to stderr)")
	daemonize  = flag.Bool("d", false, "Detach and run in the background (requires -log)")
	pidPath    = flag.String("pid", "", "PID file written in daemon mode (default: <log dir>/clicksd.pid)")
)

// openLogOutput returns the log destination and a closer for it.
func openLogOutput(logFilePath string) (io.Writer, func(), error) {
	if logFilePath == "" {
		return os.Stderr, func() {}, nil
	}

	dir := filepath.Dir(logFilePath)
	if err := os.MkdirAll(dir, 0750); err != nil {
		return nil, nil, fmt.Errorf("failed to create log directory %s: %w", dir, err)
	}

	file, err := os.OpenFile(logFilePath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open log file %s: %w", logFilePath, err)
	}
	return file, func() { file.Close() }, nil
}

func main() {
	flag.Parse()

	if *daemonize {
		if *logPath == "" {
			fmt.Fprintln(os.Stderr, "Error: -d requires -log")
			os.Exit(2)
		}
		pidFile := *pidPath
		if pidFile == "" {
			pidFile = filepath.Join(filepath.Dir(*logPath), "clicksd.pid")
		}
		dctx := &daemon.Context{
			PidFileName: pidFile,
			PidFilePerm: 0644,
			WorkDir:     ".",
			Umask:       027,
		}
		child, err := dctx.Reborn()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: failed to daemonize: %v\n", err)
			os.Exit(1)
		}
		if child != nil {
			fmt.Printf("clicksd started in background (pid %d)\n", child.Pid)
			return
		}
		defer dctx.Release()
	}

	// Config is read before the logger exists; its warnings go to the default logger.
	loader := config.NewLoader(*configPath)
	cfg, err := loader.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	out, closeLog, err := openLogOutput(*logPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error setting up file logging: %v. Logging to stderr instead.\n", err)
		out, closeLog = os.Stderr, func() {}
	}
	defer closeLog()

	logger, err := logging.New(logging.Options{Level: cfg.Log.Level, Format: cfg.Log.Format, Output: out})
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: Invalid log settings: %v\n", err)
		os.Exit(1)
	}
	slog.SetDefault(logger)
	logger.Info("configuration loaded", "config", fmt.Sprintf("%+v", *cfg))

	application, err := app.NewApp(cfg, logger)
	if err != nil {
		logger.Error("failed to create application", "error", err)
		os.Exit(1)
	}
	loader.Watch(application.OnConfigChange)

	if err := application.Run(); err != nil {
		logger.Error("application exited with error", "error", err)
		os.Exit(1)
	}
	logger.Info("clicksd finished successfully")
}
