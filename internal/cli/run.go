package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"gridsync/internal/api"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	Addr string
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start the sync service",
		Long: `Start the gridsync service.

The service accepts events over HTTP, buffers them durably, and flushes
the buffer into the grid as one merged batch per flush interval.

Example:
  gridsync run --config ./gridsync.yaml
  gridsync run --addr :9090 --verbose`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runService(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Addr, "addr", "", "HTTP listen address (overrides config)")

	return cmd
}

func runService(opts *RunOptions, cmd *cobra.Command) error {
	rt, err := openRuntime(opts.RootOptions)
	if err != nil {
		return err
	}
	defer rt.Close()

	addr := rt.cfg.HTTP.Addr
	if opts.Addr != "" {
		addr = opts.Addr
	}

	// Setup signal handling for graceful shutdown.
	// Use command's context if available (for testing), otherwise create one.
	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, cancel := context.WithCancel(parentCtx)
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	go func() {
		select {
		case sig := <-sigChan:
			rt.log.Info("received signal, shutting down", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	srv := api.NewServer(addr, rt.buf, rt.proj, rt.log)
	httpErr := make(chan error, 1)
	go func() {
		httpErr <- srv.Start()
	}()

	rt.log.Info("service starting",
		"addr", addr,
		"flush_interval", rt.cfg.Flush.Interval,
		"sink_backend", rt.cfg.Sink.Backend)
	fmt.Fprintln(cmd.OutOrStdout(), "Service started. Listening for events...")
	fmt.Fprintln(cmd.OutOrStdout(), "Press Ctrl-C to stop.")

	runErr := rt.proj.Run(ctx, rt.cfg.Flush.Interval)

	if err := srv.Stop(); err != nil {
		rt.log.Error("error stopping HTTP server", "error", err)
	}
	select {
	case err := <-httpErr:
		if err != nil {
			return WrapExitError(ExitFailure, "HTTP server error", err)
		}
	default:
	}

	if runErr != nil && !errors.Is(runErr, context.Canceled) && !errors.Is(runErr, context.DeadlineExceeded) {
		return WrapExitError(ExitFailure, "projector error", runErr)
	}

	rt.log.Info("service stopped gracefully")
	return nil
}
