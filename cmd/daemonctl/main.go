package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/loykin/daemonctl/internal/daemon"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root := buildRoot()
	if err := root.ExecuteContext(ctx); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		stop()
		os.Exit(1)
	}
}

// buildRoot creates the root command and its subcommands
func buildRoot() *cobra.Command {
	globalFlags := &GlobalFlags{}
	lastChangeFlags := &LastChangeFlags{}
	resumeFlags := &ControlFlags{}
	recordFlags := &RecordStateFlags{}
	monitorFlags := &MonitorFlags{}

	c := &command{global: globalFlags}

	root := createRootCommand(globalFlags)
	root.AddCommand(
		createStatusCommand(c),
		createLastChangeCommand(c, lastChangeFlags),
		createPauseCommand(c),
		createResumeCommand(c, resumeFlags),
		createWorkersCommand(c, "incr", "Add workers to the daemon", daemon.ActionIncrease),
		createWorkersCommand(c, "decr", "Remove workers from the daemon", daemon.ActionDecrease),
		createRecordStateCommand(c, recordFlags),
		createMonitorCommand(c, monitorFlags),
	)
	return root
}

// createRootCommand creates the root command with the persistent flags
func createRootCommand(flags *GlobalFlags) *cobra.Command {
	root := &cobra.Command{
		Use:   "daemonctl",
		Short: "Status and control client for the workflow daemon",
		Long: `daemonctl queries the supervisor of the workflow daemon for its status,
its workers and the last process state change, and sends control commands.

Examples:
  daemonctl status
  daemonctl status --api-url=http://remote:8080/api --json
  daemonctl last-change --kind=work
  daemonctl incr 2
  daemonctl monitor --listen=:9100`,
		SilenceUsage: true,
	}

	pf := root.PersistentFlags()
	pf.StringVar(&flags.ConfigPath, "config", "", "path to TOML config file (optional)")
	pf.StringVar(&flags.APIUrl, "api-url", "", "supervisor control API URL (e.g. http://host:8080/api)")
	pf.StringVar(&flags.Socket, "socket", "", "supervisor control unix socket")
	pf.StringVar(&flags.PIDFile, "pid-file", "", "daemon pid file checked before contacting the supervisor")
	pf.DurationVar(&flags.APITimeout, "api-timeout", 0, "request timeout (default from config, 10s)")
	pf.StringVar(&flags.LogLevel, "log-level", "", "log level: debug, info, warn, error")
	pf.BoolVar(&flags.JSON, "json", false, "print results as JSON")
	pf.StringVar(&flags.Color, "color", "auto", "color output: auto, always, never")

	return root
}

func createStatusCommand(c *command) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Print the status of the daemon and its workers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.Status(cmd.Context(), cmd.OutOrStdout())
		},
	}
}

func createLastChangeCommand(c *command, flags *LastChangeFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "last-change",
		Short: "Print when a process last changed state",
		Long: `Print the last time a process of the given kind changed its state and warn
when the daemon is not running.

Examples:
  daemonctl last-change --kind=calculation
  daemonctl last-change --kind=work --config=/etc/daemonctl.toml`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.LastChange(cmd.Context(), cmd.OutOrStdout(), *flags)
		},
	}
	cmd.Flags().StringVar(&flags.Kind, "kind", "calculation", "process kind: calculation or work")
	return cmd
}

func createPauseCommand(c *command) *cobra.Command {
	return &cobra.Command{
		Use:   "pause",
		Short: "Pause the daemon",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.Control(cmd.Context(), cmd.OutOrStdout(), daemon.Command{Action: daemon.ActionPause})
		},
	}
}

func createResumeCommand(c *command, flags *ControlFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "resume",
		Short: "Resume a paused daemon",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			action := daemon.ActionResume
			if flags.Reset {
				action = daemon.ActionReset
			}
			return c.Control(cmd.Context(), cmd.OutOrStdout(), daemon.Command{Action: action})
		},
	}
	cmd.Flags().BoolVar(&flags.Reset, "reset", false, "reset the daemon out of an unexpected state")
	return cmd
}

func createWorkersCommand(c *command, use, short string, action daemon.Action) *cobra.Command {
	return &cobra.Command{
		Use:   use + " [num]",
		Short: short,
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			n := 1
			if len(args) == 1 {
				v, err := strconv.Atoi(args[0])
				if err != nil || v < 1 {
					return fmt.Errorf("invalid number of workers %q", args[0])
				}
				n = v
			}
			return c.Control(cmd.Context(), cmd.OutOrStdout(), daemon.Command{Action: action, Workers: n})
		},
	}
}

func createRecordStateCommand(c *command, flags *RecordStateFlags) *cobra.Command {
	var at string
	cmd := &cobra.Command{
		Use:   "record-state",
		Short: "Record a process state change in the process-state store",
		Long: `Record a process state change. The daemon's process runner calls this, and
operators can use it to seed or repair the store.

Examples:
  daemonctl record-state --kind=work --name=wf-12 --pid=4242 --state=finished
  daemonctl record-state --kind=calculation --state=running --at=2024-05-01T10:00:00Z`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := *flags
			if at != "" {
				t, err := time.Parse(time.RFC3339, at)
				if err != nil {
					return fmt.Errorf("invalid --at: %w", err)
				}
				f.At = t
			}
			return c.RecordState(cmd.Context(), cmd.OutOrStdout(), f)
		},
	}
	cmd.Flags().StringVar(&flags.Kind, "kind", "", "process kind: calculation or work (required)")
	cmd.Flags().StringVar(&flags.Name, "name", "", "process name")
	cmd.Flags().IntVar(&flags.PID, "pid", 0, "process pid")
	cmd.Flags().StringVar(&flags.State, "state", "", "new execution state (required)")
	cmd.Flags().StringVar(&at, "at", "", "time of the change, RFC3339 (default now)")

	if err := cmd.MarkFlagRequired("kind"); err != nil {
		panic(err)
	}
	if err := cmd.MarkFlagRequired("state"); err != nil {
		panic(err)
	}
	return cmd
}

func createMonitorCommand(c *command, flags *MonitorFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "monitor",
		Short: "Poll the daemon on a schedule and serve status and metrics over HTTP",
		Long: `Poll the daemon on a cron schedule, export Prometheus metrics and relay the
latest status report over HTTP.

Examples:
  daemonctl monitor
  daemonctl monitor --schedule="@every 30s" --listen=:9100 --base-path=/api
  daemonctl monitor --once --json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.Monitor(cmd.Context(), cmd.OutOrStdout(), *flags)
		},
	}
	cmd.Flags().StringVar(&flags.Listen, "listen", "", "relay API listen address (default from config, :9100)")
	cmd.Flags().StringVar(&flags.BasePath, "base-path", "", "relay API base path (default from config, /api)")
	cmd.Flags().StringVar(&flags.Schedule, "schedule", "", "poll schedule, cron expression (default from config, @every 10s)")
	cmd.Flags().BoolVar(&flags.Once, "once", false, "poll once, print the snapshot and exit")
	return cmd
}
