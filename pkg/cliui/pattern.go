package cliui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/papercomputeco/recall/pkg/record"
)

var (
	doStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("82"))
	dontStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	boxStyle  = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("240")).
			Padding(0, 1)
)

// PatternLine renders one pattern as a single list row no wider than width.
func PatternLine(p *record.Pattern, score float64, width int) string {
	head := fmt.Sprintf("%s %s  %s",
		DimStyle.Render(fmt.Sprintf("%.2f", score)),
		Severity(string(p.Severity)),
		p.Title,
	)
	tail := DimStyle.Render(fmt.Sprintf("  %s/%s", p.Project, shortID(p.ID)))
	if p.Status != record.StatusActive {
		tail += " " + WarnStyle.Render(string(p.Status))
	}
	return Truncate(head+tail, width)
}

// PatternDetail renders every field of a pattern in a bordered box.
func PatternDetail(p *record.Pattern, now time.Time) string {
	var b strings.Builder

	fmt.Fprintf(&b, "%s\n", HeaderStyle.Render(p.Title))
	fmt.Fprintf(&b, "%s %s  %s  %s\n\n",
		IDStyle.Render(p.ID),
		Severity(string(p.Severity)),
		DimStyle.Render(p.Category),
		statusLabel(p.Status),
	)
	fmt.Fprintf(&b, "%s %s\n", doStyle.Render("DO   "), p.Approach)
	fmt.Fprintf(&b, "%s %s\n", dontStyle.Render("DON'T"), p.AntiPattern)
	if p.Example != "" {
		fmt.Fprintf(&b, "\n%s\n%s\n", KeyStyle.Render("Example"), p.Example)
	}

	b.WriteString("\n")
	fmt.Fprintf(&b, "%s %.2f (%s)\n", KeyStyle.Render("Confidence"), p.Confidence, p.ConfidenceSource)
	fmt.Fprintf(&b, "%s %s %s", KeyStyle.Render("Provenance"), p.Provenance.Agent, p.Provenance.Version)
	if p.Provenance.SourceURL != "" {
		fmt.Fprintf(&b, " %s", DimStyle.Render(p.Provenance.SourceURL))
	}
	b.WriteString("\n")
	if len(p.Tags) > 0 {
		fmt.Fprintf(&b, "%s %s\n", KeyStyle.Render("Tags"), strings.Join(p.Tags, ", "))
	}
	fmt.Fprintf(&b, "%s %s ago", KeyStyle.Render("Created"), FormatAge(now.Sub(p.CreatedAt)))
	if p.UpdatedAt != nil {
		fmt.Fprintf(&b, ", updated %s ago", FormatAge(now.Sub(*p.UpdatedAt)))
	}

	return boxStyle.Render(b.String())
}

func statusLabel(s record.PatternStatus) string {
	if s == record.StatusActive {
		return doStyle.Render(string(s))
	}
	return WarnStyle.Render(string(s))
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
