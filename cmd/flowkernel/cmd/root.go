package cmd

import (
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"github.com/GoCodeAlone/flowkernel"
)

// Version information
var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

// PrintVersion returns the version line.
func PrintVersion() string {
	return fmt.Sprintf("flowkernel v%s (commit: %s, built on: %s)", Version, Commit, Date)
}

// globalOptions are the persistent flags shared by all commands.
type globalOptions struct {
	configPaths []string
	logLevel    string
}

// NewRootCommand creates the root command of the flowkernel CLI.
func NewRootCommand() *cobra.Command {
	opts := &globalOptions{}
	cmd := &cobra.Command{
		Use:   "flowkernel",
		Short: "flowkernel - run and inspect module dataflow graphs",
		Long: `flowkernel runs a graph of concurrently executing modules connected through
typed connectors. It loads project files, serves an HTTP API to inspect and
edit the graph and exposes Prometheus metrics.`,
		Version:       PrintVersion(),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	cmd.PersistentFlags().StringSliceVarP(&opts.configPaths, "config", "c", nil, "Configuration file (yaml, toml or json); may be repeated")
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "info", "Log level: debug, info, warn or error")

	cmd.AddCommand(NewRunCommand(opts))
	cmd.AddCommand(NewValidateCommand(opts))
	cmd.AddCommand(NewConfigCommand(opts))
	cmd.AddCommand(NewPrototypesCommand())

	return cmd
}

func (o *globalOptions) loadConfig() (*flowkernel.Config, error) {
	return flowkernel.LoadConfig(o.configPaths...)
}

func (o *globalOptions) logger(w io.Writer) (flowkernel.Logger, error) {
	var level slog.Level
	switch strings.ToLower(o.logLevel) {
	case "debug":
		level = slog.LevelDebug
	case "", "info":
		level = slog.LevelInfo
	case "warn", "warning":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		return nil, fmt.Errorf("unknown log level %q", o.logLevel)
	}
	return flowkernel.NewSlogLogger(slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))), nil
}
