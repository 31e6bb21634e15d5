package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/GoCodeAlone/flowkernel"
	"github.com/GoCodeAlone/flowkernel/httpapi"
	"github.com/GoCodeAlone/flowkernel/prototypes"
)

// shutdownGrace bounds the HTTP and watcher shutdown after the kernel stopped.
const shutdownGrace = 5 * time.Second

type runOptions struct {
	*globalOptions
	project string
	listen  string
	noHTTP  bool
	watch   bool
}

// NewRunCommand creates the run command.
func NewRunCommand(global *globalOptions) *cobra.Command {
	opts := &runOptions{globalOptions: global}
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start the kernel and serve the HTTP API until interrupted",
		Long: `Start the kernel with the stock prototypes, create the configured default
modules, load the project file and serve the HTTP API. The process runs until
it receives SIGINT or SIGTERM.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runKernel(ctx, cmd, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.project, "project", "p", "", "Project file to load at start (overrides kernel.project)")
	cmd.Flags().StringVar(&opts.listen, "listen", "", "HTTP listen address (overrides http.listen)")
	cmd.Flags().BoolVar(&opts.noHTTP, "no-http", false, "Do not start the HTTP API")
	cmd.Flags().BoolVar(&opts.watch, "watch", true, "Reload the configuration file when it changes")

	return cmd
}

func runKernel(ctx context.Context, cmd *cobra.Command, opts *runOptions) error {
	logger, err := opts.logger(cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	cfg, err := opts.loadConfig()
	if err != nil {
		return err
	}
	if opts.project != "" {
		cfg.Kernel.Project = opts.project
	}
	if opts.listen != "" {
		cfg.HTTP.Listen = opts.listen
	}

	metrics := flowkernel.NewMetrics("flowkernel")
	registry := prometheus.NewRegistry()
	registry.MustRegister(metrics, collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	kernel, err := flowkernel.NewKernel(cfg, logger,
		flowkernel.WithFactory(prototypes.NewFactory()),
		flowkernel.WithMetrics(metrics),
	)
	if err != nil {
		return err
	}
	if err := kernel.Start(ctx); err != nil {
		return fmt.Errorf("failed to start kernel: %w", err)
	}

	var server *httpapi.Server
	if !opts.noHTTP && cfg.HTTP.Listen != "" {
		server = httpapi.New(kernel, logger,
			httpapi.WithGatherer(registry),
			httpapi.WithEvents(cfg.HTTP.EnableEvents),
		)
		if err := server.Start(cfg.HTTP.Listen); err != nil {
			_ = kernel.Stop(context.Background())
			return err
		}
	}

	var watcher *flowkernel.ConfigWatcher
	if opts.watch && len(opts.configPaths) == 1 {
		watcher = flowkernel.NewConfigWatcher(opts.configPaths[0], logger, kernel.Reconfigure)
		if err := watcher.Start(ctx); err != nil {
			logger.Warn("Config watcher disabled", "error", err)
			watcher = nil
		}
	}

	<-ctx.Done()
	logger.Info("Shutting down")

	var errs []error
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	if watcher != nil {
		errs = append(errs, watcher.Stop())
	}
	if server != nil {
		errs = append(errs, server.Stop(shutdownCtx))
	}
	errs = append(errs, kernel.Stop(context.Background()))
	return errors.Join(errs...)
}
