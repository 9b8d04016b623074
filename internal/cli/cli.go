package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"calexport/internal/config"
	"calexport/internal/daterange"
	"calexport/internal/export"
	appLog "calexport/internal/log"
	"calexport/internal/model"
	"calexport/internal/store"
)

const (
	ExitSuccess = 0
	ExitError   = 1
)

// Deps are the process collaborators Run talks to.
type Deps struct {
	Stdout io.Writer
	Stderr io.Writer
	// Now is the clock used for "today" and generated_at.
	Now func() time.Time
	// OpenStore builds the calendar store from the loaded config.
	OpenStore func(ctx context.Context, cfg *config.Config) (store.Store, error)
}

// DefaultDeps wires Run to the real process streams, clock and store.
func DefaultDeps() Deps {
	return Deps{
		Stdout: os.Stdout,
		Stderr: os.Stderr,
		Now:    time.Now,
		OpenStore: func(ctx context.Context, cfg *config.Config) (store.Store, error) {
			return store.Build(ctx, cfg)
		},
	}
}

type options struct {
	days          int
	from          string
	to            string
	calendars     string
	out           string
	listCalendars bool
	configPath    string
	verbose       bool
}

// usageError is an argument problem; it is reported together with usage.
type usageError struct {
	err error
}

func (e *usageError) Error() string { return e.err.Error() }
func (e *usageError) Unwrap() error { return e.err }

var errAccessDenied = errors.New("calendar access denied")

// accessError is a failed authorization handshake.
type accessError struct {
	err error
}

func (e *accessError) Error() string { return "calendar access error: " + e.err.Error() }
func (e *accessError) Unwrap() error { return e.err }

// NewRootCmd creates the root command. The returned command writes its
// output to deps.Stdout and deps.Stderr.
func NewRootCmd(deps Deps) *cobra.Command {
	opts := &options{}

	cmd := &cobra.Command{
		Use:   "calexport",
		Short: "Export calendar events as JSON",
		Long: `Export events from the configured calendars (ICS feeds and CalDAV
accounts) over a date range as a single JSON document.

The range starts at --from (default today) and ends at --to, or --days
days later when --to is not given.`,
		Args: func(cmd *cobra.Command, args []string) error {
			if len(args) > 0 {
				return &usageError{fmt.Errorf("unexpected argument '%s'", args[0])}
			}
			return nil
		},
		SilenceErrors: true,
		SilenceUsage:  true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExport(cmd, opts, deps)
		},
	}

	f := cmd.Flags()
	f.IntVar(&opts.days, "days", daterange.DefaultDays, "Fetch N days from start date")
	f.StringVar(&opts.from, "from", "", "Start date, YYYY-MM-DD (default: today)")
	f.StringVar(&opts.to, "to", "", "End date, YYYY-MM-DD (overrides --days)")
	f.StringVar(&opts.calendars, "calendars", "", "Comma-separated calendar names (default: all)")
	f.StringVar(&opts.out, "out", "", "Write JSON to FILE instead of stdout (supports ~)")
	f.BoolVar(&opts.listCalendars, "list-calendars", false, "Print available calendar names and exit")
	f.StringVar(&opts.configPath, "config", config.DefaultPath, "Path to config file (.yaml or .toml)")
	f.BoolVar(&opts.verbose, "verbose", false, "Enable debug logging on stderr")

	cmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return &usageError{err}
	})
	cmd.SetOut(deps.Stdout)
	cmd.SetErr(deps.Stderr)

	return cmd
}

// Run executes the command line and returns the process exit code.
func Run(ctx context.Context, args []string, deps Deps) int {
	cmd := NewRootCmd(deps)
	cmd.SetArgs(args)

	if err := cmd.ExecuteContext(ctx); err != nil {
		report(deps.Stderr, cmd, err)
		return ExitError
	}
	return ExitSuccess
}

// Execute runs the CLI with the process arguments.
func Execute(ctx context.Context) int {
	return Run(ctx, os.Args[1:], DefaultDeps())
}

func report(w io.Writer, cmd *cobra.Command, err error) {
	var ue *usageError
	var ae *accessError
	switch {
	case errors.As(err, &ue):
		fmt.Fprintf(w, "Error: %v\n%s", err, cmd.UsageString())
	case errors.Is(err, errAccessDenied):
		fmt.Fprintln(w, "Calendar access denied. Check the credentials and file permissions of the configured calendars.")
	case errors.As(err, &ae):
		fmt.Fprintf(w, "Calendar access error: %v\n", ae.err)
	case errors.Is(err, store.ErrNoCalendarsMatched):
		fmt.Fprintf(w, "Warning: %v\n", err)
	default:
		fmt.Fprintf(w, "Error: %v\n", err)
	}
}

func runExport(cmd *cobra.Command, opts *options, deps Deps) error {
	ctx := cmd.Context()

	rangeOpts, err := parseRange(opts)
	if err != nil {
		return err
	}
	requested := splitCalendars(opts.calendars)

	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return fmt.Errorf("loading config %s: %w", opts.configPath, err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config %s: %w", opts.configPath, err)
	}
	if err := setupLogging(cfg, opts.verbose, deps.Stderr); err != nil {
		return err
	}

	if !cmd.Flags().Changed("days") {
		rangeOpts.Days = cfg.DefaultDays
	}
	loc, err := cfg.Location()
	if err != nil {
		return err
	}
	now := deps.Now()
	window := daterange.Resolve(rangeOpts, daterange.Today(now, loc))

	appLog.Debug("export range",
		"from", window.From.Format(time.RFC3339),
		"to", window.To.Format(time.RFC3339),
		"calendars", strings.Join(requested, ","),
	)

	st, err := deps.OpenStore(ctx, cfg)
	if err != nil {
		if errors.Is(err, store.ErrNoSources) {
			return fmt.Errorf("%w; add ics or caldav entries to %s", err, opts.configPath)
		}
		return err
	}

	if err := authorize(ctx, st); err != nil {
		return err
	}

	available, err := st.Calendars(ctx)
	if err != nil {
		return fmt.Errorf("listing calendars: %w", err)
	}

	if opts.listCalendars {
		for _, name := range export.CalendarNames(nil, available) {
			fmt.Fprintln(deps.Stdout, name)
		}
		return nil
	}

	var selected []string
	if len(requested) > 0 {
		selected, err = store.MatchCalendars(requested, available)
		if err != nil {
			return err
		}
	}

	events, err := st.Events(ctx, window, selected)
	if err != nil {
		return fmt.Errorf("querying events: %w", err)
	}

	payload := export.Assemble(export.Input{
		GeneratedAt: now,
		Window:      window,
		Requested:   requested,
		Available:   available,
		Events:      events,
	})
	data, err := export.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encoding export: %w", err)
	}

	if opts.out == "" {
		_, err := deps.Stdout.Write(data)
		return err
	}

	p, err := config.ExpandHome(opts.out)
	if err != nil {
		return err
	}
	if err := os.WriteFile(p, data, 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", opts.out, err)
	}
	fmt.Fprintf(deps.Stderr, "Wrote %d events to %s\n", payload.EventCount, opts.out)
	return nil
}

func authorize(ctx context.Context, st store.Store) error {
	access, err := st.Authorize(ctx)
	if err != nil {
		return &accessError{err}
	}
	if access != model.AccessGranted {
		return errAccessDenied
	}
	return nil
}

func parseRange(opts *options) (daterange.Options, error) {
	ro := daterange.Options{Days: opts.days}
	if opts.from != "" {
		d, err := daterange.ParseDate(opts.from)
		if err != nil {
			return ro, &usageError{fmt.Errorf("--from %w", err)}
		}
		ro.From = &d
	}
	if opts.to != "" {
		d, err := daterange.ParseDate(opts.to)
		if err != nil {
			return ro, &usageError{fmt.Errorf("--to %w", err)}
		}
		ro.To = &d
	}
	return ro, nil
}

// splitCalendars splits a comma-separated list, trimming spaces and
// dropping empty names. Order is kept.
func splitCalendars(s string) []string {
	var names []string
	for _, part := range strings.Split(s, ",") {
		if name := strings.TrimSpace(part); name != "" {
			names = append(names, name)
		}
	}
	return names
}

func setupLogging(cfg *config.Config, verbose bool, w io.Writer) error {
	appLog.SetOutput(w)
	if verbose {
		appLog.SetLevel(appLog.LevelDebug)
		return nil
	}
	lvl, err := appLog.ParseLevel(cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("config log_level: %w", err)
	}
	appLog.SetLevel(lvl)
	return nil
}
