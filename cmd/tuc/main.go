package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
)

func main() {
	root := buildRoot()
	if err := root.Execute(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// GlobalFlags holds minimal global/persistent flags for CLI commands
type GlobalFlags struct {
	ConfigPath string
}

// APIFlags holds the daemon connection flags shared by client commands
type APIFlags struct {
	APIUrl      string
	APITimeout  time.Duration
	APIToken    string
	APICACert   string
	APIInsecure bool
}

// ScriptFlags holds flags for commands acting on one script
type ScriptFlags struct {
	Path string
	APIFlags
}

// ServeFlags holds flags for the serve command
type ServeFlags struct {
	ConfigPath string
	Daemonize  bool
	PIDFile    string
	LogFile    string
}

// buildRoot creates the root command and all subcommands
func buildRoot() *cobra.Command {
	globalFlags := &GlobalFlags{}
	c := command{out: os.Stdout}

	root := createRootCommand(globalFlags)
	root.AddCommand(
		createServeCommand(globalFlags),
		createListCommand(c),
		createAddCommand(c),
		createRemoveCommand(c),
		createRunCommand(c),
		createStopCommand(c),
		createRunAllCommand(c),
		createStopAllCommand(c),
		createAutostartCommand(c),
		createNoticesCommand(c),
		createTokenCommand(globalFlags, c),
	)
	return root
}

// createRootCommand creates the root command with minimal persistent flags
func createRootCommand(flags *GlobalFlags) *cobra.Command {
	root := &cobra.Command{
		Use:   "tuc",
		Short: "Run command scripts as elevated one-shot scheduled tasks",
		Long: `tuc keeps a list of command scripts and launches each one as its own
elevated, run-once task in the Windows Task Scheduler. Running tasks can be
ended individually or all at once.

Examples:
  tuc serve --config tuc.toml               # Start daemon
  tuc add --path C:\jobs\backup.cmd
  tuc run --path C:\jobs\backup.cmd
  tuc stop-all
  tuc list --api-url=http://127.0.0.1:8765/api`,
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&flags.ConfigPath, "config", "", "path to TOML config file (optional)")
	return root
}

func addAPIFlags(cmd *cobra.Command, f *APIFlags) {
	cmd.Flags().StringVar(&f.APIUrl, "api-url", "", "daemon URL (default http://127.0.0.1:8765/api)")
	cmd.Flags().DurationVar(&f.APITimeout, "api-timeout", 2*time.Minute, "request timeout")
	cmd.Flags().StringVar(&f.APIToken, "api-token", os.Getenv("TUC_API_TOKEN"), "bearer token (see tuc token)")
	cmd.Flags().StringVar(&f.APICACert, "api-cacert", "", "CA certificate for an https daemon")
	cmd.Flags().BoolVar(&f.APIInsecure, "api-insecure", false, "skip TLS certificate verification")
}

func addPathFlag(cmd *cobra.Command, f *ScriptFlags) {
	cmd.Flags().StringVar(&f.Path, "path", "", "absolute path of the script (required)")
	if err := cmd.MarkFlagRequired("path"); err != nil {
		panic(err)
	}
}

// createServeCommand creates the serve subcommand
func createServeCommand(globalFlags *GlobalFlags) *cobra.Command {
	serveFlags := &ServeFlags{}
	cmd := &cobra.Command{
		Use:   "serve [config.toml]",
		Short: "Start the tuc daemon",
		Long: `Start the daemon: restore saved scripts, run them all when autostart is
on, and serve the HTTP API until interrupted. Running scripts are stopped on exit.

Examples:
  tuc serve                          # Defaults, config.properties in working dir
  tuc serve tuc.toml                 # Start with specific config file
  tuc serve --daemonize --pidfile tuc.pid`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			serveFlags.ConfigPath = globalFlags.ConfigPath
			return runServeCommand(cmd.Context(), serveFlags, args)
		},
	}
	cmd.Flags().BoolVar(&serveFlags.Daemonize, "daemonize", false, "run as daemon in background")
	cmd.Flags().StringVar(&serveFlags.PIDFile, "pidfile", "", "write daemon PID to file")
	cmd.Flags().StringVar(&serveFlags.LogFile, "logfile", "", "redirect daemon output to file")
	return cmd
}

func createListCommand(c command) *cobra.Command {
	f := &APIFlags{}
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List registered scripts and their state",
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.List(cmd.Context(), *f)
		},
	}
	addAPIFlags(cmd, f)
	return cmd
}

func createAddCommand(c command) *cobra.Command {
	f := &ScriptFlags{}
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Register a script",
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.Add(cmd.Context(), *f)
		},
	}
	addPathFlag(cmd, f)
	addAPIFlags(cmd, &f.APIFlags)
	return cmd
}

func createRemoveCommand(c command) *cobra.Command {
	f := &ScriptFlags{}
	cmd := &cobra.Command{
		Use:   "remove",
		Short: "Unregister an idle script",
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.Remove(cmd.Context(), *f)
		},
	}
	addPathFlag(cmd, f)
	addAPIFlags(cmd, &f.APIFlags)
	return cmd
}

func createRunCommand(c command) *cobra.Command {
	f := &ScriptFlags{}
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start a script as an elevated one-shot task",
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.Run(cmd.Context(), *f)
		},
	}
	addPathFlag(cmd, f)
	addAPIFlags(cmd, &f.APIFlags)
	return cmd
}

func createStopCommand(c command) *cobra.Command {
	f := &ScriptFlags{}
	cmd := &cobra.Command{
		Use:   "stop",
		Short: "End a running script's task",
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.Stop(cmd.Context(), *f)
		},
	}
	addPathFlag(cmd, f)
	addAPIFlags(cmd, &f.APIFlags)
	return cmd
}

func createRunAllCommand(c command) *cobra.Command {
	f := &APIFlags{}
	cmd := &cobra.Command{
		Use:   "run-all",
		Short: "Start every registered script",
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.RunAll(cmd.Context(), *f)
		},
	}
	addAPIFlags(cmd, f)
	return cmd
}

func createStopAllCommand(c command) *cobra.Command {
	f := &APIFlags{}
	cmd := &cobra.Command{
		Use:   "stop-all",
		Short: "Stop every running script",
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.StopAll(cmd.Context(), *f)
		},
	}
	addAPIFlags(cmd, f)
	return cmd
}

func createAutostartCommand(c command) *cobra.Command {
	f := &APIFlags{}
	cmd := &cobra.Command{
		Use:   "autostart",
		Short: "Manage start at logon",
	}
	mk := func(use, short string, run func(context.Context, APIFlags) error) *cobra.Command {
		sub := &cobra.Command{
			Use:   use,
			Short: short,
			RunE: func(cmd *cobra.Command, args []string) error {
				return run(cmd.Context(), *f)
			},
		}
		addAPIFlags(sub, f)
		return sub
	}
	cmd.AddCommand(
		mk("enable", "Start tuc at logon and run all scripts", func(ctx context.Context, f APIFlags) error { return c.SetAutostart(ctx, f, true) }),
		mk("disable", "Do not start tuc at logon", func(ctx context.Context, f APIFlags) error { return c.SetAutostart(ctx, f, false) }),
		mk("status", "Show whether autostart is enabled", c.AutostartStatus),
	)
	return cmd
}

func createNoticesCommand(c command) *cobra.Command {
	f := &APIFlags{}
	var limit int
	cmd := &cobra.Command{
		Use:   "notices",
		Short: "Show recent notifications",
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.Notices(cmd.Context(), *f, limit)
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "number of notices to show (0 for all)")
	addAPIFlags(cmd, f)
	return cmd
}

func createTokenCommand(globalFlags *GlobalFlags, c command) *cobra.Command {
	var subject string
	var ttl time.Duration
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue an API bearer token from the [server.auth] secret",
		Long: `Sign a bearer token with server.auth.secret from the config file. Pass it
to client commands with --api-token or the TUC_API_TOKEN environment variable.

Examples:
  tuc token --config tuc.toml
  tuc token --config tuc.toml --subject tray --ttl 720h`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.Token(globalFlags.ConfigPath, subject, ttl)
		},
	}
	cmd.Flags().StringVar(&subject, "subject", "cli", "token subject")
	cmd.Flags().DurationVar(&ttl, "ttl", 0, "token lifetime (default server.auth.token_ttl)")
	return cmd
}
