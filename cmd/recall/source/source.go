// Package sourcecmder provides commands for monitored knowledge sources.
package sourcecmder

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/recall/cmd/recall/workspace"
	"github.com/papercomputeco/recall/pkg/cliui"
	"github.com/papercomputeco/recall/pkg/record"
	"github.com/papercomputeco/recall/pkg/store"
	"github.com/papercomputeco/recall/pkg/utils"
)

const sourceLongDesc string = `Manage monitored knowledge sources.

A source is an external document (official docs, a style guide) that
patterns were learned from. Each source has a recheck schedule; "recall
source list" shows which ones are due, and "recall source check" records
the outcome of a check. A changed version appends a docs-update event.`

func NewSourceCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "source",
		Short: "Manage monitored knowledge sources",
		Long:  sourceLongDesc,
	}

	cmd.AddCommand(newAddCmd())
	cmd.AddCommand(newListCmd())
	cmd.AddCommand(newCheckCmd())

	return cmd
}

func newAddCmd() *cobra.Command {
	var (
		name       string
		url        string
		sourceType string
		priority   int
		schedule   string
		idemKey    string
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:   "add <project>",
		Short: "Register a source",
		Example: `  recall source add data --name "pandas docs" \
    --url https://pandas.pydata.org/docs/ --type official-docs --schedule weekly`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return workspace.Run(cmd, workspace.Options{}, func(ctx context.Context, w *workspace.Workspace) error {
				res, err := w.Store.CreateSource(ctx, store.SourceInput{
					IdempotencyKey: idemKey,
					Project:        args[0],
					Name:           name,
					URL:            url,
					Type:           record.SourceType(sourceType),
					Priority:       priority,
					Schedule:       record.Schedule(schedule),
				})
				if err != nil {
					return err
				}
				if jsonOutput {
					return workspace.PrintJSON(cmd.OutOrStdout(), res)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "  %s added source %s\n", cliui.SuccessMark, cliui.IDStyle.Render(res.ID))
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "Display name")
	cmd.Flags().StringVar(&url, "url", "", "Source URL")
	cmd.Flags().StringVar(&sourceType, "type", string(record.SourceOfficialDocs), "Source type: user-instruction, official-docs, verified-pattern or inferred")
	cmd.Flags().IntVar(&priority, "priority", 0, "Priority 1 (lowest) to 5 (default 3)")
	cmd.Flags().StringVar(&schedule, "schedule", "", "hourly, daily, weekly, monthly or manual (default daily)")
	cmd.Flags().StringVar(&idemKey, "idempotency-key", "", "Retries with the same key return the first source")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Print the result as JSON")

	return cmd
}

func newListCmd() *cobra.Command {
	var (
		dueOnly    bool
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:   "list <project>",
		Short: "List sources, highest priority first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return workspace.Run(cmd, workspace.Options{}, func(_ context.Context, w *workspace.Workspace) error {
				sources, warnings, err := w.Store.ListSources(args[0])
				if err != nil {
					return err
				}
				now := w.Store.Now()
				if dueOnly {
					due := sources[:0]
					for _, src := range sources {
						if src.Due(now) {
							due = append(due, src)
						}
					}
					sources = due
				}

				out := cmd.OutOrStdout()
				if jsonOutput {
					return workspace.PrintJSON(out, sources)
				}
				for _, warning := range warnings {
					fmt.Fprintf(cmd.ErrOrStderr(), "  %s\n", cliui.WarnStyle.Render(warning.String()))
				}
				for _, src := range sources {
					state := cliui.DimStyle.Render("ok")
					switch {
					case src.LastError != "":
						state = cliui.WarnStyle.Render("error: " + src.LastError)
					case src.Due(now):
						state = cliui.KeyStyle.Render("due")
					}
					fmt.Fprintf(out, "  %d  %-24s %-8s %s  %s\n",
						src.Priority, src.Name, src.Schedule, state, cliui.DimStyle.Render(src.URL))
				}
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&dueOnly, "due", false, "Only list sources due for a check")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Print the sources as JSON")

	return cmd
}

func newCheckCmd() *cobra.Command {
	var (
		etag       string
		version    string
		failure    string
		retryAfter time.Duration
		fetch      bool
		timeout    time.Duration
	)

	cmd := &cobra.Command{
		Use:   "check <project> <id>",
		Short: "Record the outcome of checking a source",
		Long: `Record the outcome of checking a source.

Pass the observed --etag and --version, or --error when the check failed.
With --fetch the source URL is requested with HTTP HEAD and its ETag and
Last-Modified headers are recorded.`,
		Example: `  recall source check data 2c9e... --version 2.2.0
  recall source check data 2c9e... --error "503 from upstream" --retry-after 1h
  recall source check data 2c9e... --fetch`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return workspace.Run(cmd, workspace.Options{}, func(ctx context.Context, w *workspace.Workspace) error {
				project, id := args[0], args[1]

				check := store.SourceCheck{ETag: etag, Version: version}
				if fetch {
					src, err := w.Store.GetSource(project, id)
					if err != nil {
						return err
					}
					check = head(ctx, src.URL, timeout)
				} else if failure != "" {
					check.Err = errors.New(failure)
				}
				if check.Err != nil && check.RetryAfter == nil && retryAfter > 0 {
					at := w.Store.Now().Add(retryAfter)
					check.RetryAfter = &at
				}

				src, err := w.Store.RecordSourceCheck(ctx, project, id, check)
				if err != nil {
					return err
				}

				out := cmd.OutOrStdout()
				if src.LastError != "" {
					fmt.Fprintf(out, "  %s %s: %s\n", cliui.FailMark, src.Name, src.LastError)
					return nil
				}
				fmt.Fprintf(out, "  %s %s checked", cliui.SuccessMark, src.Name)
				if src.Version != "" {
					fmt.Fprintf(out, " (version %s)", src.Version)
				}
				fmt.Fprintln(out)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&etag, "etag", "", "Observed ETag")
	cmd.Flags().StringVar(&version, "version", "", "Observed version")
	cmd.Flags().StringVar(&failure, "error", "", "Record a failed check with this message")
	cmd.Flags().DurationVar(&retryAfter, "retry-after", 0, "Postpone the next check after a failure")
	cmd.Flags().BoolVar(&fetch, "fetch", false, "Check the source URL with HTTP HEAD")
	cmd.Flags().DurationVar(&timeout, "timeout", 10*time.Second, "HTTP timeout for --fetch")
	cmd.MarkFlagsMutuallyExclusive("fetch", "etag")
	cmd.MarkFlagsMutuallyExclusive("fetch", "version")
	cmd.MarkFlagsMutuallyExclusive("fetch", "error")

	return cmd
}

// head checks url with a HEAD request. Last-Modified stands in for the
// version. A 429 or 503 with Retry-After seconds postpones the next check.
func head(ctx context.Context, url string, timeout time.Duration) store.SourceCheck {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, url, nil)
	if err != nil {
		return store.SourceCheck{Err: err}
	}
	req.Header.Set("User-Agent", utils.UserAgent())
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return store.SourceCheck{Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		check := store.SourceCheck{Err: fmt.Errorf("HEAD %s: %s", url, resp.Status)}
		if secs, err := strconv.Atoi(resp.Header.Get("Retry-After")); err == nil && secs > 0 {
			at := time.Now().Add(time.Duration(secs) * time.Second)
			check.RetryAfter = &at
		}
		return check
	}

	return store.SourceCheck{
		ETag:    resp.Header.Get("ETag"),
		Version: resp.Header.Get("Last-Modified"),
	}
}
