package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// NewStatusCommand creates the status command.
func NewStatusCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show buffer and grid counters",
		Long: `Report how many updates are waiting in the buffer and how many
rows exist in the grid.

Example:
  gridsync status --config ./gridsync.yaml --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus(rootOpts, cmd)
		},
	}
	return cmd
}

func runStatus(opts *RootOptions, cmd *cobra.Command) error {
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

	buffered, err := rt.proj.Size(cmd.Context())
	if err != nil {
		_ = formatter.Error("buffer", err.Error(), nil)
		return WrapExitError(ExitFailure, "failed to read buffer size", err)
	}
	keys, err := rt.proj.Sink().ListKeys(cmd.Context())
	if err != nil {
		_ = formatter.Error("sink", err.Error(), nil)
		return WrapExitError(ExitFailure, "failed to list grid keys", err)
	}

	if opts.Format == "json" {
		return formatter.Success(map[string]any{
			"buffered":  buffered,
			"grid_rows": len(keys),
		})
	}
	return formatter.Success(fmt.Sprintf("Buffered updates: %d\nGrid rows:        %d", buffered, len(keys)))
}
