package ui

import (
	"fmt"
	"io"
	"strings"

	"github.com/mattn/go-runewidth"
	"github.com/thesavant42/rulesearch/internal/models"
	"github.com/thesavant42/rulesearch/internal/results"
	"github.com/thesavant42/rulesearch/internal/search"
)

// printerWidths are the headless column widths, in results.Headers() order
var printerWidths = []int{12, 48, 6, 20, 20}

// Printer is the headless front end. It prints every filtered batch as soon
// as the driver renders it and keeps the rows for export.
type Printer struct {
	w     io.Writer
	table *results.Table
	pages int
}

// NewPrinter creates a printer writing to w
func NewPrinter(w io.Writer) *Printer {
	return &Printer{w: w, table: results.NewTable()}
}

// Reset implements search.Renderer and prints the column header
func (p *Printer) Reset() {
	p.table.Reset()
	p.pages = 0
	fmt.Fprintln(p.w, TitleStyle.Render(formatLine(results.Headers())))
	fmt.Fprintln(p.w, DimStyle.Render(strings.Repeat("─", lineWidth())))
}

// Render implements search.Renderer
func (p *Printer) Render(batch []models.Rule) {
	p.pages++
	p.table.Render(batch)
	for _, r := range batch {
		fmt.Fprintln(p.w, NormalStyle.Render(formatLine(results.NewRow(r).Cells)))
	}
}

// UpdateCount implements search.Renderer
func (p *Printer) UpdateCount(total int) {
	p.table.UpdateCount(total)
	fmt.Fprintln(p.w, DimStyle.Render(fmt.Sprintf("  page %d: %s", p.pages, p.table.CountText())))
}

// Notify implements search.Notifier
func (p *Printer) Notify(message string, severity search.Severity) {
	switch severity {
	case search.SeverityError:
		fmt.Fprintln(p.w, StatusMsgStyle.Render("Error: "+message))
	case search.SeverityAlert:
		fmt.Fprintln(p.w, AccentStyle.Render(message))
	default:
		fmt.Fprintln(p.w, HintStyle.Render(message))
	}
}

// SetSearching implements search.Controls
func (p *Printer) SetSearching(searching bool) {
	if searching {
		fmt.Fprintln(p.w, ProgressStyle.Render("Searching..."))
	}
}

// Rules returns the printed rules in arrival order
func (p *Printer) Rules() []models.Rule {
	return p.table.Rules()
}

// Count returns the number of printed rules
func (p *Printer) Count() int {
	return p.table.Count()
}

func formatLine(cells []string) string {
	parts := make([]string, len(printerWidths))
	for i, w := range printerWidths {
		cell := ""
		if i < len(cells) {
			cell = cells[i]
		}
		parts[i] = runewidth.FillRight(truncateToWidth(cell, w), w)
	}
	return strings.TrimRight(strings.Join(parts, "  "), " ")
}

func lineWidth() int {
	total := 2 * (len(printerWidths) - 1)
	for _, w := range printerWidths {
		total += w
	}
	return total
}
