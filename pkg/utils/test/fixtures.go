// Package testutils holds fakes and fixtures shared by package tests.
package testutils

import (
	"github.com/papercomputeco/recall/pkg/record"
	"github.com/papercomputeco/recall/pkg/store"
)

// NewTestPatternInput returns a valid pattern input for project.
func NewTestPatternInput(project, title string) store.PatternInput {
	return store.PatternInput{
		Project:          project,
		Title:            title,
		Category:         "general",
		Severity:         record.SeverityInfo,
		Approach:         "approach for " + title,
		AntiPattern:      "anti-pattern for " + title,
		ConfidenceSource: record.SourceInferred,
		Provenance:       record.Provenance{Agent: "test-agent", Version: "0.0.1"},
	}
}

// Confidence returns a pointer for PatternInput.Confidence.
func Confidence(c float64) *float64 {
	return &c
}
