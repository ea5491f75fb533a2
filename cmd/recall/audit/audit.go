// Package auditcmder provides the recall audit command.
package auditcmder

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/recall/cmd/recall/workspace"
	"github.com/papercomputeco/recall/pkg/audit"
	"github.com/papercomputeco/recall/pkg/cliui"
)

// ErrAuditFailed is returned when any audited project has violations.
var ErrAuditFailed = errors.New("audit found violations")

const auditLongDesc string = `Re-validate every file of a project against the JSON schemas stored in
the project's schemas/ directory.

Schema violations, id/filename mismatches and a missing manifest fail the
audit. Files that are valid but not in canonical form are reported without
failing it. Without a project every project in the store is audited.`

func NewAuditCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "audit [project...]",
		Short: "Validate stored records against their schemas",
		Long:  auditLongDesc,
		RunE: func(cmd *cobra.Command, args []string) error {
			return workspace.Run(cmd, workspace.Options{}, func(_ context.Context, w *workspace.Workspace) error {
				projects := args
				if len(projects) == 0 {
					var err error
					projects, err = w.Store.Projects()
					if err != nil {
						return err
					}
				}

				auditor := audit.New(w.StoreRoot, w.Logger)
				reports := make([]*audit.Report, 0, len(projects))
				failed := false
				for _, p := range projects {
					r, err := auditor.Audit(p)
					if err != nil {
						return err
					}
					reports = append(reports, r)
					failed = failed || !r.OK()
				}

				out := cmd.OutOrStdout()
				if jsonOutput {
					if err := workspace.PrintJSON(out, reports); err != nil {
						return err
					}
				} else {
					rendered, err := cliui.RenderMarkdown(markdown(reports))
					if err != nil {
						w.Logger.Debug("markdown rendering failed", "error", err)
					}
					fmt.Fprint(out, rendered)
				}

				if failed {
					return ErrAuditFailed
				}
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Print the reports as JSON")

	return cmd
}

func markdown(reports []*audit.Report) string {
	var b strings.Builder
	if len(reports) == 0 {
		b.WriteString("No projects to audit.\n")
	}

	for _, r := range reports {
		verdict := "ok"
		if !r.OK() {
			verdict = "FAILED"
		}
		fmt.Fprintf(&b, "# %s: %s\n\n", r.Project, verdict)
		fmt.Fprintf(&b, "Checked %d files.\n\n", r.Checked)

		kinds := make([]string, 0, len(r.Counts))
		for k := range r.Counts {
			kinds = append(kinds, k)
		}
		sort.Strings(kinds)
		for _, k := range kinds {
			fmt.Fprintf(&b, "- %s: %d\n", k, r.Counts[k])
		}
		if len(kinds) > 0 {
			b.WriteString("\n")
		}

		if len(r.Findings) == 0 {
			continue
		}
		b.WriteString("## Findings\n\n")
		for _, f := range r.Findings {
			fmt.Fprintf(&b, "- **%s** `%s`: %s", f.Problem, f.Path, f.Reason)
			if len(f.Fields) > 0 {
				fmt.Fprintf(&b, " (fields: %s)", strings.Join(f.Fields, ", "))
			}
			b.WriteString("\n")
		}
		b.WriteString("\n")
	}
	return b.String()
}
