package ui

// columns.go provides generic column width calculation for bubbles/table.
// Use ColumnSpec and CalculateColumns() instead of duplicating percentage-based math.

import (
	"github.com/charmbracelet/bubbles/table"
)

// ColumnSpec defines a table column with flexible or fixed width.
// Use FlexRatio for columns that should expand/contract with terminal width.
// Use FixedWidth for columns that should maintain constant width.
type ColumnSpec struct {
	Title      string
	MinWidth   int // Minimum width (0 = no minimum)
	FixedWidth int // If > 0, use this exact width (ignores FlexRatio)
	FlexRatio  int // Relative ratio for flexible columns (0 = fixed-only)
}

// CalculateColumns computes column widths from specs.
// Flexible columns split remaining space by ratio after fixed columns are allocated.
//
// Example:
//
//	columns := CalculateColumns([]ColumnSpec{
//	    {Title: "ID", FixedWidth: 14},
//	    {Title: "Title", FlexRatio: 100, MinWidth: 20},
//	}, layout.TableWidth)
func CalculateColumns(specs []ColumnSpec, totalWidth int) []table.Column {
	if totalWidth < 50 {
		totalWidth = 50
	}

	// First pass: allocate fixed widths and sum flex ratios
	fixedTotal := 0
	flexTotal := 0
	for _, s := range specs {
		if s.FixedWidth > 0 {
			fixedTotal += s.FixedWidth
		} else {
			flexTotal += s.FlexRatio
		}
	}

	remaining := totalWidth - fixedTotal
	if remaining < 0 {
		remaining = 0
	}

	// Second pass: calculate final widths
	columns := make([]table.Column, len(specs))
	for i, s := range specs {
		var width int
		if s.FixedWidth > 0 {
			width = s.FixedWidth
		} else if flexTotal > 0 {
			width = remaining * s.FlexRatio / flexTotal
		}

		if s.MinWidth > 0 && width < s.MinWidth {
			width = s.MinWidth
		}

		columns[i] = table.Column{Title: s.Title, Width: width}
	}

	return columns
}

// RuleColumns returns column specs for the search results table.
// Order matches results.Headers().
func RuleColumns() []ColumnSpec {
	return []ColumnSpec{
		{Title: "ID", FixedWidth: 16},
		{Title: "Title", FlexRatio: 100, MinWidth: 20},
		{Title: "Active", FixedWidth: 9},
		{Title: "Created", FixedWidth: 12},
		{Title: "Updated", FixedWidth: 12},
	}
}

// RuleColumnsWithLabels applies header labels (with sort markers) to the rule columns
func RuleColumnsWithLabels(labels []string, totalWidth int) []table.Column {
	columns := CalculateColumns(RuleColumns(), totalWidth)
	for i := range columns {
		if i < len(labels) {
			columns[i].Title = labels[i]
		}
	}
	return columns
}
