// Smarthouse - device control and telemetry for a small smart house
//
// This is the main entry point for the smarthouse binary. One binary plays
// every role:
//   - switch serve / switch ctl: a TCP power switch and its interactive client
//   - thermometer receive / send: UDP temperature telemetry and a demo sender
//   - report: one status line per device in the house directory
//   - serve: the HTTP API, WebSocket events and metrics over the whole house
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/nerrad567/smarthouse-core/internal/infrastructure/config"
	"github.com/nerrad567/smarthouse-core/internal/infrastructure/logging"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"     // Semantic version (e.g., "1.0.0")
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

// annotationLogToStderr marks commands whose stdout is their result, so
// logs must not be interleaved with it.
const annotationLogToStderr = "smarthouse/log-to-stderr"

func main() {
	// Cancel on Ctrl+C and SIGTERM so every subcommand shuts down cleanly.
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := execute(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// app is the state shared by all subcommands.
type app struct {
	configPath string

	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer

	// Set by the root PersistentPreRunE.
	cfg *config.Config
	log *logging.Logger
}

// execute builds the command tree and runs it against args.
// It is separated from main for testability.
func execute(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) error {
	a := &app{stdin: stdin, stdout: stdout, stderr: stderr}
	root := newRootCommand(a)
	root.SetArgs(args)
	root.SetIn(stdin)
	root.SetOut(stdout)
	root.SetErr(stderr)
	return root.ExecuteContext(ctx)
}

// newRootCommand creates the smarthouse command and its subcommands.
func newRootCommand(a *app) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "smarthouse",
		Short:         "Smart house power switches, thermometers and the house directory",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.init(cmd)
		},
	}

	rootCmd.PersistentFlags().StringVarP(&a.configPath, "config", "c", "",
		"Config file (default $SMARTHOUSE_CONFIG or "+defaultConfigPath+")")

	rootCmd.AddCommand(newSwitchCommand(a))
	rootCmd.AddCommand(newThermometerCommand(a))
	rootCmd.AddCommand(newReportCommand(a))
	rootCmd.AddCommand(newServeCommand(a))
	rootCmd.AddCommand(newVersionCommand(a))
	return rootCmd
}

// init loads the configuration and builds the logger for cmd.
func (a *app) init(cmd *cobra.Command) error {
	cfg, path, err := loadConfig(a.configPath)
	if err != nil {
		return err
	}
	a.cfg = cfg

	out := a.stdout
	if cfg.Logging.Output == "stderr" || cmd.Annotations[annotationLogToStderr] == "true" {
		out = a.stderr
	}
	a.log = logging.NewWithWriter(cfg.Logging, version, out)

	if path == "" {
		a.log.Debug("no config file found, using built-in defaults")
	} else {
		a.log.Debug("configuration loaded", "path", path)
	}
	return nil
}

// loadConfig loads the file at explicit, or the file named by getConfigPath.
// A missing default file falls back to the built-in defaults, in which
// case the returned path is empty. A path given by flag or environment
// must exist.
func loadConfig(explicit string) (*config.Config, string, error) {
	path := explicit
	if path == "" {
		path = getConfigPath()
	}

	cfg, err := config.Load(path)
	if err == nil {
		return cfg, path, nil
	}
	if explicit == "" && path == defaultConfigPath && errors.Is(err, fs.ErrNotExist) {
		cfg, err = config.Default()
		if err != nil {
			return nil, "", fmt.Errorf("loading default config: %w", err)
		}
		return cfg, "", nil
	}
	return nil, path, fmt.Errorf("loading config: %w", err)
}

// getConfigPath returns the configuration file path.
// Uses SMARTHOUSE_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("SMARTHOUSE_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// logToStderr marks cmd as printing its result on stdout.
func logToStderr(cmd *cobra.Command) *cobra.Command {
	if cmd.Annotations == nil {
		cmd.Annotations = make(map[string]string)
	}
	cmd.Annotations[annotationLogToStderr] = "true"
	return cmd
}
