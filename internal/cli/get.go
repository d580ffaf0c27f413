package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"gridsync/internal/grid"
)

// NewGetCommand creates the get command.
func NewGetCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "get <key>",
		Short: "Show the grid row for a key",
		Long: `Look up one row in the grid by entity key.

Only flushed state is visible; buffered updates do not show until the
next flush. Fields never written are reported as unset, which is
distinct from an empty value.

Example:
  gridsync get msg-1 --config ./gridsync.yaml`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGet(rootOpts, cmd, args[0])
		},
	}
	return cmd
}

func runGet(opts *RootOptions, cmd *cobra.Command, rawKey string) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	key := grid.NewKey(rawKey)
	if key == "" {
		_ = formatter.Error("key", "empty key", nil)
		return NewExitError(ExitCommandError, "empty key")
	}

	rt, err := openRuntime(opts)
	if err != nil {
		return err
	}
	defer rt.Close()

	row, ok, err := rt.proj.Sink().GetByKey(cmd.Context(), key)
	if err != nil {
		_ = formatter.Error("sink", err.Error(), nil)
		return WrapExitError(ExitFailure, "failed to read grid", err)
	}
	if !ok {
		_ = formatter.Error("not_found", fmt.Sprintf("no row for key %q", key), nil)
		return NewExitError(ExitFailure, "row not found")
	}

	if opts.Format == "json" {
		return formatter.Success(map[string]any{
			"key":    string(row.Key),
			"fields": row.Fields,
		})
	}
	return formatter.Success(renderRow(row))
}

// renderRow formats one row as an aligned field listing, printing
// "(unset)" for fields the grid has never been given.
func renderRow(row grid.Row) string {
	var b strings.Builder
	fmt.Fprintf(&b, "key: %s", row.Key)
	for _, name := range grid.FieldOrder {
		v := row.Fields.Get(name)
		if v.IsSet() {
			fmt.Fprintf(&b, "\n%-9s %q", name+":", v.Get())
		} else {
			fmt.Fprintf(&b, "\n%-9s (unset)", name+":")
		}
	}
	return b.String()
}
