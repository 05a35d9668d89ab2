package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"
	"github.com/spf13/cobra"
	"golang.org/x/term"
	"gopkg.in/yaml.v3"

	"clicks/internal/clicks"
	termsource "clicks/internal/collector/term"
	"clicks/internal/config"
	"clicks/internal/event"
	"clicks/internal/ipc"

	sqlitestore "clicks/internal/storage/sqlite"
)

var (
	configPath string
	socketPath string
	dbPath     string

	cfg *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "clicks-cli",
	Short: "CLI tool to interact with the clicks daemon",
	Long:  `A command-line interface to inspect the running clicks daemon, inject clicks through its Unix socket, and read the recorded click history.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.LoadConfig(configPath)
		if err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}
		if socketPath == "" {
			socketPath = cfg.SocketPath
		}
		if dbPath == "" {
			dbPath = cfg.DatabasePath
		}
		return nil
	},
	SilenceUsage:  true,
	SilenceErrors: true,
}

// sendCommand sends cmd to the daemon and prints the response.
func sendCommand(cmd ipc.Command, timeout time.Duration) error {
	resp, err := ipc.Send(socketPath, cmd, timeout)
	if err != nil {
		return fmt.Errorf("%w\nIs the clicks daemon running?", err)
	}
	if !resp.Success {
		return errors.New(resp.Message)
	}

	if resp.Message != "" {
		fmt.Println("Success:", resp.Message)
	}
	if resp.Data != nil {
		prettyData, err := json.MarshalIndent(resp.Data, "", "  ")
		if err != nil {
			fmt.Println("Data (raw):", resp.Data)
			return nil
		}
		fmt.Println(string(prettyData))
	}
	return nil
}

var pingCmd = &cobra.Command{
	Use:   "ping",
	Short: "Check if the clicks daemon is running",
	RunE: func(cmd *cobra.Command, args []string) error {
		return sendCommand(ipc.Command{Name: ipc.CmdPing}, 5*time.Second)
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show click settings, attached targets and recent dispatches",
	RunE: func(cmd *cobra.Command, args []string) error {
		return sendCommand(ipc.Command{Name: ipc.CmdStatus}, 5*time.Second)
	},
}

var clickCmd = &cobra.Command{
	Use:   "click",
	Short: "Inject raw clicks on a target (e.g. --count 2 --interval 80ms)",
	RunE: func(cmd *cobra.Command, args []string) error {
		target, _ := cmd.Flags().GetString("target")
		count, _ := cmd.Flags().GetInt("count")
		interval, _ := cmd.Flags().GetDuration("interval")
		button, _ := cmd.Flags().GetString("button")

		return sendCommand(ipc.Command{
			Name: ipc.CmdClick,
			Args: ipc.ClickArgs{
				Target:   target,
				Count:    count,
				Interval: interval.String(),
				Button:   button,
			},
		}, 15*time.Second)
	},
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Print dispatched click groups recorded by the daemon",
	RunE: func(cmd *cobra.Command, args []string) error {
		days, _ := cmd.Flags().GetInt("days")
		typeFilter, _ := cmd.Flags().GetString("type")
		format, _ := cmd.Flags().GetString("format")

		if _, err := os.Stat(dbPath); err != nil {
			return fmt.Errorf("database file not found at %s, ensure clicksd has run or pass --db: %w", dbPath, err)
		}

		var types []event.EventType
		switch typeFilter {
		case "all":
		case "single":
			types = append(types, event.EventTypeSingleClick)
		case "multi":
			types = append(types, event.EventTypeMultiClick)
		default:
			return fmt.Errorf("invalid --type %q, use single, multi or all", typeFilter)
		}

		end := time.Now().UTC()
		start := end.AddDate(0, 0, -days)

		store := sqlitestore.NewSQLiteStore(dbPath, slog.New(slog.NewTextHandler(io.Discard, nil)))
		ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
		defer cancel()
		if err := store.Init(ctx); err != nil {
			return fmt.Errorf("failed to initialize storage connection: %w", err)
		}
		defer store.Close()

		events, err := store.GetEvents(ctx, start, end, types...)
		if err != nil {
			return fmt.Errorf("failed to fetch events: %w", err)
		}
		multi, err := store.CountByTarget(ctx, start, end, event.EventTypeMultiClick)
		if err != nil {
			return fmt.Errorf("failed to count multi-clicks: %w", err)
		}
		single, err := store.CountByTarget(ctx, start, end, event.EventTypeSingleClick)
		if err != nil {
			return fmt.Errorf("failed to count single clicks: %w", err)
		}

		report := historyReport{
			Start:   start,
			End:     end,
			Events:  events,
			Targets: summarize(single, multi),
		}
		return writeHistory(cmd.OutOrStdout(), format, report)
	},
}

type targetSummary struct {
	Target string `json:"target" yaml:"target"`
	Single int    `json:"single" yaml:"single"`
	Multi  int    `json:"multi" yaml:"multi"`
}

type historyReport struct {
	Start   time.Time       `json:"start" yaml:"start"`
	End     time.Time       `json:"end" yaml:"end"`
	Events  []event.Event   `json:"events" yaml:"events"`
	Targets []targetSummary `json:"targets" yaml:"targets"`
}

// summarize merges per-target counts, busiest target first.
func summarize(single, multi map[string]int) []targetSummary {
	byTarget := make(map[string]*targetSummary)
	get := func(name string) *targetSummary {
		s, ok := byTarget[name]
		if !ok {
			s = &targetSummary{Target: name}
			byTarget[name] = s
		}
		return s
	}
	for name, n := range single {
		get(name).Single = n
	}
	for name, n := range multi {
		get(name).Multi = n
	}

	out := make([]targetSummary, 0, len(byTarget))
	for _, s := range byTarget {
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool {
		ti, tj := out[i].Single+out[i].Multi, out[j].Single+out[j].Multi
		if ti != tj {
			return ti > tj
		}
		return out[i].Target < out[j].Target
	})
	return out
}

func writeHistory(w io.Writer, format string, report historyReport) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		defer enc.Close()
		return enc.Encode(report)
	case "table":
		if len(report.Events) == 0 {
			fmt.Fprintln(w, "No click data found for the specified period.")
			return nil
		}
		tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "TIME\tTYPE\tTARGET\tCLICKS\tNOTES")
		for _, e := range report.Events {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\n", e.Timestamp.Local().Format("2006-01-02 15:04:05.000"), e.Type, e.Target, e.Clicks, e.Notes)
		}
		fmt.Fprintln(tw)
		fmt.Fprintln(tw, "TARGET\tSINGLE\tMULTI")
		for _, s := range report.Targets {
			fmt.Fprintf(tw, "%s\t%d\t%d\n", s.Target, s.Single, s.Multi)
		}
		return tw.Flush()
	default:
		return fmt.Errorf("invalid --format %q, use table, json or yaml", format)
	}
}

var tryCmd = &cobra.Command{
	Use:   "try",
	Short: "Click inside the terminal and watch single and multi clicks being told apart",
	RunE: func(cmd *cobra.Command, args []string) error {
		if !term.IsTerminal(int(os.Stdout.Fd())) {
			return errors.New("try needs an interactive terminal")
		}
		delay, _ := cmd.Flags().GetDuration("delay")
		count, _ := cmd.Flags().GetInt("count")
		settings := cfg.Clicks.Merge(clicks.Config{Delay: delay, ClickCount: count})
		return runPlayground(cmd.Context(), settings)
	},
}

func runPlayground(ctx context.Context, settings clicks.Config) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	src := termsource.NewSource("terminal")

	view := tview.NewTextView().SetDynamicColors(true).SetScrollable(true)
	view.SetBorder(true).SetTitle(fmt.Sprintf(" click here: delay %s, %d clicks for multi (q to quit) ", settings.Delay, settings.ClickCount))

	ui := tview.NewApplication().EnableMouse(true).SetRoot(view, true)
	ui.SetMouseCapture(src.Capture)
	ui.SetInputCapture(func(ev *tcell.EventKey) *tcell.EventKey {
		if ev.Key() == tcell.KeyEscape || ev.Rune() == 'q' {
			ui.Stop()
			return nil
		}
		return ev
	})

	write := func(line string) {
		ui.QueueUpdateDraw(func() { fmt.Fprintln(view, line) })
	}

	_, err := clicks.Attach(ctx, src,
		func(ev event.Raw) {
			write(fmt.Sprintf("%s  [green]single[-]  %s at %d,%d", ev.Timestamp.Format("15:04:05.000"), ev.Button, ev.X, ev.Y))
		},
		func(evs []event.Raw) {
			first := evs[0]
			write(fmt.Sprintf("%s  [yellow]multi x%d[-]  %s at %d,%d", first.Timestamp.Format("15:04:05.000"), len(evs), first.Button, first.X, first.Y))
		},
		clicks.WithConfig(settings),
		clicks.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	)
	if err != nil {
		return err
	}
	return ui.Run()
}

func main() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to configuration file (default: search ./, ~/.config/clicks, /etc/clicks)")
	rootCmd.PersistentFlags().StringVar(&socketPath, "socket", "", "Daemon socket path (default: loaded from config)")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "Path to the clicks database file (default: loaded from config or 'clicks.db')")

	clickCmd.Flags().StringP("target", "t", "", "Target to click (required)")
	clickCmd.Flags().IntP("count", "n", 1, "Number of raw clicks to send")
	clickCmd.Flags().DurationP("interval", "i", 50*time.Millisecond, "Time between clicks")
	clickCmd.Flags().StringP("button", "b", "left", "Button (left, middle, right)")
	clickCmd.MarkFlagRequired("target")

	historyCmd.Flags().IntP("days", "d", 1, "Number of past days to include")
	historyCmd.Flags().String("type", "all", "Event type to list (single, multi, all)")
	historyCmd.Flags().StringP("format", "f", "table", "Output format (table, json, yaml)")

	tryCmd.Flags().Duration("delay", 0, "Window delay (default: from config)")
	tryCmd.Flags().Int("count", 0, "Clicks that make a multi-click (default: from config)")

	rootCmd.AddCommand(pingCmd, statusCmd, clickCmd, historyCmd, tryCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
