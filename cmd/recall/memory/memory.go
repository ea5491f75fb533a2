// Package memorycmder provides the commands that write and read individual
// patterns: learn, get, update, stale and archive.
package memorycmder

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/recall/cmd/recall/workspace"
	"github.com/papercomputeco/recall/pkg/cliui"
	"github.com/papercomputeco/recall/pkg/record"
	"github.com/papercomputeco/recall/pkg/store"
	"github.com/papercomputeco/recall/pkg/utils"
)

// contentFlags are the pattern fields shared by learn and update.
type contentFlags struct {
	title       string
	category    string
	severity    string
	approach    string
	antiPattern string
	example     string
	confidence  float64
	tags        []string
}

func (f *contentFlags) register(cmd *cobra.Command, defaultSeverity string) {
	cmd.Flags().StringVarP(&f.title, "title", "t", "", "Short name of the pattern")
	cmd.Flags().StringVarP(&f.category, "category", "c", "", "Category, e.g. performance or security")
	cmd.Flags().StringVar(&f.severity, "severity", defaultSeverity, "info, warning or error")
	cmd.Flags().StringVar(&f.approach, "approach", "", "What to do")
	cmd.Flags().StringVar(&f.antiPattern, "anti-pattern", "", "What to avoid")
	cmd.Flags().StringVar(&f.example, "example", "", "Optional example")
	cmd.Flags().Float64Var(&f.confidence, "confidence", 0, "Confidence in [0,1] (default: baseline for --source)")
	cmd.Flags().StringSliceVar(&f.tags, "tags", nil, "Comma separated tags")
}

func NewLearnCmd() *cobra.Command {
	var (
		content    contentFlags
		source     string
		agent      string
		sourceURL  string
		id         string
		idemKey    string
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:   "learn <project>",
		Short: "Record a new pattern",
		Long: `Record a new do/don't pattern in a project.

Confidence defaults to the baseline for the confidence source:
  user-instruction 0.95, verified-pattern 0.85, official-docs 0.80, inferred 0.60

Examples:
  recall learn data -t "Avoid iterrows" -c performance \
    --approach "Use vectorized operations" --anti-pattern "Looping with df.iterrows()" \
    --source official-docs --tags pandas,perf`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			in := store.PatternInput{
				ID:               id,
				IdempotencyKey:   idemKey,
				Project:          args[0],
				Title:            content.title,
				Category:         content.category,
				Severity:         record.Severity(content.severity),
				Approach:         content.approach,
				AntiPattern:      content.antiPattern,
				Example:          content.example,
				ConfidenceSource: record.ConfidenceSource(source),
				Provenance: record.Provenance{
					Agent:     agent,
					Version:   utils.Version,
					SourceURL: sourceURL,
				},
				Tags: content.tags,
			}
			if cmd.Flags().Changed("confidence") {
				in.Confidence = &content.confidence
			}

			return withWorkspace(cmd, func(ctx context.Context, w *workspace.Workspace) error {
				res, err := w.Store.CreatePattern(ctx, in)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if jsonOutput {
					return workspace.PrintJSON(out, res)
				}
				if res.Duplicate {
					fmt.Fprintf(out, "  %s already learned as %s\n", cliui.SuccessMark, cliui.IDStyle.Render(res.ID))
					return nil
				}
				fmt.Fprintf(out, "  %s learned %s\n", cliui.SuccessMark, cliui.IDStyle.Render(res.ID))
				return nil
			})
		},
	}

	content.register(cmd, string(record.SeverityInfo))
	cmd.Flags().StringVar(&source, "source", string(record.SourceInferred), "Confidence source: user-instruction, official-docs, verified-pattern or inferred")
	cmd.Flags().StringVar(&agent, "agent", "recall-cli", "Agent recorded as provenance")
	cmd.Flags().StringVar(&sourceURL, "source-url", "", "Where the knowledge came from")
	cmd.Flags().StringVar(&id, "id", "", "Explicit UUID (default: generated)")
	cmd.Flags().StringVar(&idemKey, "idempotency-key", "", "Retries with the same key return the first pattern")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Print the result as JSON")

	return cmd
}

func NewGetCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "get <project> <id>",
		Short: "Show a pattern",
		Long:  "Show a pattern by id. Archived patterns remain readable.",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withWorkspace(cmd, func(_ context.Context, w *workspace.Workspace) error {
				p, err := w.Store.GetPattern(args[0], args[1])
				if err != nil {
					return err
				}
				return printPattern(cmd.OutOrStdout(), w, p, jsonOutput)
			})
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Print the pattern as JSON")

	return cmd
}

func NewUpdateCmd() *cobra.Command {
	var (
		content    contentFlags
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:   "update <project> <id>",
		Short: "Edit a pattern's content",
		Long: `Edit a pattern in place. Only the flags given are changed; identity
fields cannot be edited. Use "recall stale" and "recall archive" to change
status.

Examples:
  recall update data 8a1f7e4c-... --confidence 0.9 --tags pandas,perf`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			patch := buildPatch(cmd, &content)
			if patch.Empty() {
				return fmt.Errorf("nothing to update: pass at least one field flag")
			}

			return withWorkspace(cmd, func(ctx context.Context, w *workspace.Workspace) error {
				p, err := w.Store.PatchPattern(ctx, args[0], args[1], patch)
				if err != nil {
					return err
				}
				return printPattern(cmd.OutOrStdout(), w, p, jsonOutput)
			})
		},
	}

	content.register(cmd, "")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Print the updated pattern as JSON")

	return cmd
}

func buildPatch(cmd *cobra.Command, f *contentFlags) store.PatternPatch {
	var patch store.PatternPatch
	changed := cmd.Flags().Changed

	if changed("title") {
		patch.Title = &f.title
	}
	if changed("category") {
		patch.Category = &f.category
	}
	if changed("severity") {
		sev := record.Severity(f.severity)
		patch.Severity = &sev
	}
	if changed("approach") {
		patch.Approach = &f.approach
	}
	if changed("anti-pattern") {
		patch.AntiPattern = &f.antiPattern
	}
	if changed("example") {
		patch.Example = &f.example
	}
	if changed("confidence") {
		patch.Confidence = &f.confidence
	}
	if changed("tags") {
		patch.Tags = &f.tags
	}
	return patch
}

func NewStaleCmd() *cobra.Command {
	return newStatusCmd("stale", "Mark a pattern stale",
		"Demote an active pattern to stale. Stale patterns are excluded from default queries.",
		func(ctx context.Context, s *store.Store, project, id string) (*record.Pattern, error) {
			return s.MarkStale(ctx, project, id)
		})
}

func NewArchiveCmd() *cobra.Command {
	return newStatusCmd("archive", "Archive a pattern",
		"Retire a pattern. The file stays in place and remains readable with \"recall get\".",
		func(ctx context.Context, s *store.Store, project, id string) (*record.Pattern, error) {
			return s.Archive(ctx, project, id)
		})
}

func newStatusCmd(use, short, long string, fn func(context.Context, *store.Store, string, string) (*record.Pattern, error)) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <project> <id>",
		Short: short,
		Long:  long,
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withWorkspace(cmd, func(ctx context.Context, w *workspace.Workspace) error {
				p, err := fn(ctx, w.Store, args[0], args[1])
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "  %s %s is now %s\n",
					cliui.SuccessMark, cliui.IDStyle.Render(p.ID), p.Status)
				return nil
			})
		},
	}
}

func printPattern(out io.Writer, w *workspace.Workspace, p *record.Pattern, asJSON bool) error {
	if asJSON {
		return workspace.PrintJSON(out, p)
	}
	fmt.Fprintln(out, cliui.PatternDetail(p, w.Store.Now()))
	return nil
}

func withWorkspace(cmd *cobra.Command, fn func(context.Context, *workspace.Workspace) error) error {
	return workspace.Run(cmd, workspace.Options{}, fn)
}
