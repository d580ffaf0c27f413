package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// NewFlushCommand creates the flush command.
func NewFlushCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "flush",
		Short: "Run one flush cycle",
		Long: `Drain the buffer and merge it into the grid as one batch.

One cycle performs a single batched read of the touched rows, at most
one append call, and at most one write call, regardless of how many
updates were buffered. An empty buffer is a no-op.

Example:
  gridsync flush --config ./gridsync.yaml`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFlush(rootOpts, cmd)
		},
	}
	return cmd
}

func runFlush(opts *RootOptions, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	rt, err := openRuntime(opts)
	if err != nil {
		return err
	}
	defer rt.Close()

	result, err := rt.proj.FlushOnce(cmd.Context())
	if err != nil {
		_ = formatter.Error("flush", err.Error(), nil)
		return WrapExitError(ExitFailure, "flush failed", err)
	}

	if opts.Format == "json" {
		return formatter.Success(map[string]any{
			"drained": result.Drained,
			"keys":    result.Keys,
		})
	}
	if result.Drained == 0 {
		return formatter.Success("Buffer empty, nothing to flush.")
	}
	return formatter.Success(fmt.Sprintf("Flushed %d updates across %d keys", result.Drained, result.Keys))
}
