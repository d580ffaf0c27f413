package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"gridsync/internal/grid"
	"gridsync/internal/mapper"
)

// IngestOptions holds flags for the ingest command.
type IngestOptions struct {
	*RootOptions
	Key  string
	Kind string

	Sender   string
	Subject  string
	Body     string
	Tags     string
	Summary  string
	Location string
}

// NewIngestCommand creates the ingest command.
func NewIngestCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &IngestOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "ingest [event-json]",
		Short: "Buffer a single event",
		Long: `Buffer a single event for the next flush.

The event is given either as one JSON document argument or assembled
from flags. A payload flag left unset stays unset in the stored
fragment; passing an empty string sets the field to empty, which is a
different thing.

Example:
  gridsync ingest --key msg-1 --kind message_received --sender alice --subject hello
  gridsync ingest '{"key":"msg-1","kind":"message_classified","tags":"inbox","summary":"greeting"}'`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runIngest(opts, cmd, args)
		},
	}

	cmd.Flags().StringVar(&opts.Key, "key", "", "entity key")
	cmd.Flags().StringVar(&opts.Kind, "kind", "", "event kind")
	cmd.Flags().StringVar(&opts.Sender, "sender", "", "sender field")
	cmd.Flags().StringVar(&opts.Subject, "subject", "", "subject field")
	cmd.Flags().StringVar(&opts.Body, "body", "", "body field")
	cmd.Flags().StringVar(&opts.Tags, "tags", "", "tags field")
	cmd.Flags().StringVar(&opts.Summary, "summary", "", "summary field")
	cmd.Flags().StringVar(&opts.Location, "location", "", "location field")

	return cmd
}

func runIngest(opts *IngestOptions, cmd *cobra.Command, args []string) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	ev, err := eventFromInput(opts, cmd, args)
	if err != nil {
		_ = formatter.Error("event", err.Error(), nil)
		return WrapExitError(ExitCommandError, "invalid event", err)
	}

	update, err := mapper.Map(ev)
	if err != nil {
		_ = formatter.Error("event", err.Error(), nil)
		return WrapExitError(ExitCommandError, "invalid event", err)
	}

	rt, err := openRuntime(opts.RootOptions)
	if err != nil {
		return err
	}
	defer rt.Close()

	buffered, err := rt.buf.Add(cmd.Context(), update)
	if err != nil {
		_ = formatter.Error("buffer", err.Error(), nil)
		return WrapExitError(ExitFailure, "failed to buffer event", err)
	}

	formatter.VerboseLog("buffered event key=%s kind=%s", update.Key, ev.Kind)
	if opts.Format == "json" {
		return formatter.Success(map[string]any{
			"key":      string(update.Key),
			"buffered": buffered,
		})
	}
	return formatter.Success(fmt.Sprintf("Buffered %s (%d pending)", update.Key, buffered))
}

// eventFromInput builds the event from either the JSON argument or the
// payload flags. Flag-built events mark only flags the caller actually
// passed as set, so an omitted flag stays distinct from an empty one.
func eventFromInput(opts *IngestOptions, cmd *cobra.Command, args []string) (mapper.Event, error) {
	if len(args) == 1 {
		var ev mapper.Event
		if err := json.Unmarshal([]byte(args[0]), &ev); err != nil {
			return mapper.Event{}, fmt.Errorf("parse event JSON: %w", err)
		}
		return ev, nil
	}

	ev := mapper.Event{
		Key:  opts.Key,
		Kind: mapper.Kind(opts.Kind),
	}
	flagValue := func(name, v string) grid.Value {
		if cmd.Flags().Changed(name) {
			return grid.String(v)
		}
		return grid.Unset()
	}
	ev.Sender = flagValue("sender", opts.Sender)
	ev.Subject = flagValue("subject", opts.Subject)
	ev.Body = flagValue("body", opts.Body)
	ev.Tags = flagValue("tags", opts.Tags)
	ev.Summary = flagValue("summary", opts.Summary)
	ev.Location = flagValue("location", opts.Location)
	return ev, nil
}
