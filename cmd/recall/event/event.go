// Package eventcmder provides commands for the append-only event log.
package eventcmder

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/recall/cmd/recall/workspace"
	"github.com/papercomputeco/recall/pkg/cliui"
	"github.com/papercomputeco/recall/pkg/record"
	"github.com/papercomputeco/recall/pkg/store"
)

func NewEventCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "event",
		Short: "Append to and read the event log",
		Long: `Append to and read a project's event log.

Kinds: added, modified, docs-update, auto-fix, enforcement-hit. Events are
never edited once written.`,
	}

	cmd.AddCommand(newLogCmd())
	cmd.AddCommand(newListCmd())

	return cmd
}

func newLogCmd() *cobra.Command {
	var (
		kind      string
		patternID string
		details   map[string]string
	)

	cmd := &cobra.Command{
		Use:     "log <project>",
		Short:   "Append an event",
		Example: `  recall event log data --kind enforcement-hit --pattern 8a1f... --detail file=etl/load.py`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			in := store.EventInput{
				Project:   args[0],
				Kind:      record.EventKind(kind),
				PatternID: patternID,
			}
			if len(details) > 0 {
				in.Details = make(map[string]any, len(details))
				for k, v := range details {
					in.Details[k] = v
				}
			}

			return workspace.Run(cmd, workspace.Options{}, func(ctx context.Context, w *workspace.Workspace) error {
				e, err := w.Store.AppendEvent(ctx, in)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "  %s logged %s %s\n", cliui.SuccessMark, e.Kind, cliui.IDStyle.Render(e.ID))
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&kind, "kind", "", "Event kind")
	cmd.Flags().StringVar(&patternID, "pattern", "", "Pattern the event concerns")
	cmd.Flags().StringToStringVar(&details, "detail", nil, "Detail as key=value (repeatable)")
	_ = cmd.MarkFlagRequired("kind")

	return cmd
}

func newListCmd() *cobra.Command {
	var (
		kind       string
		patternID  string
		since      string
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:   "list <project>",
		Short: "List events in timestamp order",
		Example: `  recall event list data --kind docs-update --since 168h
  recall event list data --since 2025-10-01T00:00:00Z`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return workspace.Run(cmd, workspace.Options{}, func(_ context.Context, w *workspace.Workspace) error {
				f := store.EventFilter{Kind: record.EventKind(kind), PatternID: patternID}
				if since != "" {
					t, err := parseSince(since, w.Store.Now())
					if err != nil {
						return err
					}
					f.Since = t
				}

				events, warnings, err := w.Store.ListEvents(args[0], f)
				if err != nil {
					return err
				}

				out := cmd.OutOrStdout()
				if jsonOutput {
					if events == nil {
						events = []*record.Event{}
					}
					return workspace.PrintJSON(out, events)
				}
				for _, warning := range warnings {
					fmt.Fprintf(cmd.ErrOrStderr(), "  %s\n", cliui.WarnStyle.Render(warning.String()))
				}
				for _, e := range events {
					fmt.Fprintf(out, "  %s  %-15s %s\n",
						cliui.DimStyle.Render(e.Timestamp.Format(time.RFC3339)), e.Kind, e.PatternID)
				}
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&kind, "kind", "", "Only events of this kind")
	cmd.Flags().StringVar(&patternID, "pattern", "", "Only events for this pattern")
	cmd.Flags().StringVar(&since, "since", "", "Only events at or after this RFC 3339 time or this long ago (e.g. 24h)")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Print the events as JSON")

	return cmd
}

func parseSince(raw string, now time.Time) (time.Time, error) {
	if d, err := time.ParseDuration(raw); err == nil {
		return now.Add(-d), nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("--since must be a duration or an RFC 3339 time: %q", raw)
	}
	return t, nil
}
