// Package cachecmder provides commands for the response cache overlay.
package cachecmder

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os/exec"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/recall/cmd/recall/workspace"
	"github.com/papercomputeco/recall/pkg/cache"
	"github.com/papercomputeco/recall/pkg/cliui"
	"github.com/papercomputeco/recall/pkg/config"
)

const cacheLongDesc string = `Read and write cached responses to expensive external queries.

Entries are keyed by the normalized (query, target) pair. Writing the same
pair again inside the freshness window (default 24h) is suppressed; entries
never expire for reads and are shown with their age.`

type cacheCommander struct {
	target     string
	freshness  string
	jsonOutput bool
}

func NewCacheCmd() *cobra.Command {
	cmder := &cacheCommander{}

	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Read and write cached responses",
		Long:  cacheLongDesc,
	}

	cmd.PersistentFlags().StringVar(&cmder.target, "target", "", "What the query ran against, e.g. a docs site")
	cmd.PersistentFlags().BoolVar(&cmder.jsonOutput, "json", false, "Print results as JSON")

	cmd.AddCommand(cmder.newGetCmd())
	cmd.AddCommand(cmder.newPutCmd())
	cmd.AddCommand(cmder.newRunCmd())
	cmd.AddCommand(cmder.newListCmd())

	return cmd
}

func (c *cacheCommander) options() workspace.Options {
	return workspace.Options{Flags: []string{config.FlagFreshness}}
}

func (c *cacheCommander) newGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <project> <query>",
		Short: "Look up a cached response",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return workspace.Run(cmd, workspace.Options{}, func(_ context.Context, w *workspace.Workspace) error {
				hit, err := w.Cache().Lookup(args[0], args[1], c.target)
				if err != nil {
					return err
				}
				return c.printHit(cmd.OutOrStdout(), hit)
			})
		},
	}
}

func (c *cacheCommander) newPutCmd() *cobra.Command {
	var response string

	cmd := &cobra.Command{
		Use:   "put <project> <query>",
		Short: "Cache a JSON response",
		Long: `Cache a JSON response for a query. The response is read from
--response, or from stdin when --response is "-".`,
		Example: `  recall cache put data "merge dataframes" --target docs.pandas --response '{"answer": "pd.merge"}'
  curl -s https://api.example.com/q | recall cache put data "q" --response -`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			body := []byte(response)
			if response == "-" {
				var err error
				body, err = io.ReadAll(cmd.InOrStdin())
				if err != nil {
					return fmt.Errorf("reading response from stdin: %w", err)
				}
			}

			return workspace.Run(cmd, c.options(), func(ctx context.Context, w *workspace.Workspace) error {
				res, err := w.Cache().Put(ctx, cache.PutInput{
					Project:  args[0],
					Query:    args[1],
					Target:   c.target,
					Response: bytes.TrimSpace(body),
				})
				if err != nil {
					return err
				}

				out := cmd.OutOrStdout()
				if c.jsonOutput {
					return workspace.PrintJSON(out, res)
				}
				if res.Suppressed {
					fmt.Fprintf(out, "  %s fresh entry exists (%s old), not written\n",
						cliui.SuccessMark, cliui.FormatAge(res.Age))
					return nil
				}
				fmt.Fprintf(out, "  %s cached %s\n", cliui.SuccessMark, cliui.IDStyle.Render(res.Entry.ID))
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&response, "response", "", "JSON response, or - for stdin")
	config.AddStringFlag(cmd, config.Flags, config.FlagFreshness, &c.freshness)
	_ = cmd.MarkFlagRequired("response")

	return cmd
}

func (c *cacheCommander) newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run <project> <query> -- <command> [args...]",
		Short: "Return a fresh cached response or run a command to produce one",
		Long: `Print the cached response for a query when a fresh one exists.
Otherwise run the command, cache its stdout (which must be JSON) and
print it.`,
		Example: `  recall cache run data "pandas latest" --target pypi -- curl -s https://pypi.org/pypi/pandas/json`,
		Args:    cobra.MinimumNArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			project, query, argv := args[0], args[1], args[2:]

			return workspace.Run(cmd, c.options(), func(ctx context.Context, w *workspace.Workspace) error {
				hit, ran, err := w.Cache().GetOrCompute(ctx, project, query, c.target, func(ctx context.Context) (json.RawMessage, error) {
					var stdout bytes.Buffer
					run := exec.CommandContext(ctx, argv[0], argv[1:]...)
					run.Stdout = &stdout
					run.Stderr = cmd.ErrOrStderr()
					if err := run.Run(); err != nil {
						return nil, err
					}
					return bytes.TrimSpace(stdout.Bytes()), nil
				})
				if err != nil {
					return err
				}
				w.Logger.Debug("cache run", "project", project, "computed", ran)
				return c.printHit(cmd.OutOrStdout(), hit)
			})
		},
	}

	config.AddStringFlag(cmd, config.Flags, config.FlagFreshness, &c.freshness)

	return cmd
}

func (c *cacheCommander) newListCmd() *cobra.Command {
	var search string

	cmd := &cobra.Command{
		Use:   "list <project>",
		Short: "List cache entries, newest first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return workspace.Run(cmd, c.options(), func(_ context.Context, w *workspace.Workspace) error {
				hits, warnings, err := w.Cache().Search(args[0], search)
				if err != nil {
					return err
				}

				out := cmd.OutOrStdout()
				if c.jsonOutput {
					return workspace.PrintJSON(out, hits)
				}
				for _, warning := range warnings {
					fmt.Fprintf(cmd.ErrOrStderr(), "  %s\n", cliui.WarnStyle.Render(warning.String()))
				}
				for _, h := range hits {
					age := cliui.FormatAge(h.Age)
					if !h.Fresh {
						age = cliui.DimStyle.Render(age)
					}
					fmt.Fprintf(out, "  %-5s %s  %s\n", age, h.Entry.Query, cliui.DimStyle.Render(h.Entry.Target))
				}
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&search, "search", "s", "", "Only entries whose query or target contains this text")
	config.AddStringFlag(cmd, config.Flags, config.FlagFreshness, &c.freshness)

	return cmd
}

// printHit writes the cached response, or the annotated hit with --json.
func (c *cacheCommander) printHit(out io.Writer, hit *cache.Hit) error {
	if c.jsonOutput {
		return workspace.PrintJSON(out, hit)
	}

	var pretty bytes.Buffer
	if err := json.Indent(&pretty, hit.Entry.Response, "", "  "); err != nil {
		return errors.Join(cache.ErrInvalidResponse, err)
	}
	state := "fresh"
	if !hit.Fresh {
		state = "stale"
	}
	fmt.Fprintln(out, cliui.DimStyle.Render(fmt.Sprintf("# %s old, %s", cliui.FormatAge(hit.Age), state)))
	fmt.Fprintln(out, pretty.String())
	return nil
}
