package cli

import (
	"fmt"
	"log/slog"
	"os"

	"gridsync/internal/buffer"
	"gridsync/internal/config"
	"gridsync/internal/mapper"
	"gridsync/internal/projector"
	"gridsync/internal/sink"
)

// runtime bundles the wired components every command operates on:
// the loaded config, the event buffer, the grid adapter, and the
// projector that moves batches between them.
type runtime struct {
	cfg  config.Config
	log  *slog.Logger
	buf  buffer.Buffer
	proj *projector.Projector

	closers []func() error
}

// openRuntime loads configuration, validates the event kind table, and
// opens the buffer and grid backends the config selects. Callers must
// Close the returned runtime.
func openRuntime(opts *RootOptions) (*runtime, error) {
	if err := mapper.Validate(); err != nil {
		return nil, WrapExitError(ExitCommandError, "event kind table is incomplete", err)
	}

	cfg, err := config.Load(opts.Config)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to load config", err)
	}

	rt := &runtime{cfg: cfg, log: newLogger(opts.Verbose)}

	buf, err := openBuffer(cfg.Buffer)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open buffer", err)
	}
	rt.buf = buf
	rt.closers = append(rt.closers, buf.Close)

	grd, err := openGrid(cfg.Sink)
	if err != nil {
		rt.Close()
		return nil, WrapExitError(ExitCommandError, "failed to open grid", err)
	}
	if c, ok := grd.(interface{ Close() error }); ok {
		rt.closers = append(rt.closers, c.Close)
	}

	rt.proj = projector.New(buf, sink.NewAdapter(grd),
		projector.WithLogger(rt.log),
		projector.WithRetry(cfg.Flush.Attempts, cfg.Flush.Delay),
	)
	return rt, nil
}

// Close releases the runtime's backends in reverse open order.
func (rt *runtime) Close() {
	for i := len(rt.closers) - 1; i >= 0; i-- {
		if err := rt.closers[i](); err != nil {
			rt.log.Error("error closing backend", "error", err)
		}
	}
	rt.closers = nil
}

func openBuffer(cfg config.BufferConfig) (buffer.Buffer, error) {
	if cfg.Path == "" {
		return buffer.NewMemoryBuffer(), nil
	}
	return buffer.Open(cfg.Path)
}

func openGrid(cfg config.SinkConfig) (sink.Grid, error) {
	switch cfg.Backend {
	case config.BackendMemory:
		return sink.NewMemoryGrid(), nil
	case config.BackendSQLite:
		return sink.OpenSQLiteGrid(cfg.Path)
	default:
		return nil, fmt.Errorf("unknown sink backend %q", cfg.Backend)
	}
}

// newLogger configures slog output based on the verbose flag and
// installs it as the default.
func newLogger(verbose bool) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(log)
	return log
}
