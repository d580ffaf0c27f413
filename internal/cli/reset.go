package cli

import (
	"github.com/spf13/cobra"
)

// ResetOptions holds flags for the reset command.
type ResetOptions struct {
	*RootOptions
	Yes bool
}

// NewResetCommand creates the reset command.
func NewResetCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ResetOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Clear all grid rows",
		Long: `Delete every row from the grid. The buffer is left alone, so
anything still buffered reappears on the next flush.

Requires --yes to confirm.

Example:
  gridsync reset --yes --config ./gridsync.yaml`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReset(opts, cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.Yes, "yes", false, "confirm clearing the grid")

	return cmd
}

func runReset(opts *ResetOptions, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	if !opts.Yes {
		_ = formatter.Error("confirm", "reset clears every grid row; pass --yes to confirm", nil)
		return NewExitError(ExitCommandError, "reset not confirmed")
	}

	rt, err := openRuntime(opts.RootOptions)
	if err != nil {
		return err
	}
	defer rt.Close()

	if err := rt.proj.Sink().ClearAll(cmd.Context()); err != nil {
		_ = formatter.Error("sink", err.Error(), nil)
		return WrapExitError(ExitFailure, "failed to clear grid", err)
	}

	return formatter.Success("Grid cleared.")
}
