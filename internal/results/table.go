package results

import (
	"fmt"
	"slices"
	"sort"
	"strconv"
	"strings"

	"github.com/thesavant42/rulesearch/internal/models"
)

// Column indexes of the rendered table
const (
	ColID = iota
	ColTitle
	ColActive
	ColCreated
	ColUpdated
)

// Headers returns the column titles in display order
func Headers() []string {
	return []string{"ID", "Title", "Active", "Created", "Updated"}
}

// Row is one rendered rule. Cells hold the displayed text the sort keys are read from.
type Row struct {
	Rule  models.Rule
	Cells []string
}

// Cell returns the text of a column, empty when out of range
func (r Row) Cell(col int) string {
	if col < 0 || col >= len(r.Cells) {
		return ""
	}
	return r.Cells[col]
}

// NewRow renders the display cells of a rule
func NewRow(rule models.Rule) Row {
	active := "No"
	if rule.Active {
		active = "Yes"
	}
	return Row{
		Rule: rule,
		Cells: []string{
			strconv.FormatInt(rule.ID, 10),
			rule.Title,
			active,
			rule.CreatedAt,
			rule.UpdatedAt,
		},
	}
}

// Table accumulates rendered rows across the pages of one search.
// It implements the search Renderer. Not safe for concurrent use.
type Table struct {
	rows      []Row
	count     int
	sortCol   int // -1 when no column is marked
	ascending bool
}

// NewTable creates an empty table
func NewTable() *Table {
	return &Table{sortCol: -1}
}

// Reset clears rows, the displayed count and the sort marker
func (t *Table) Reset() {
	t.rows = nil
	t.count = 0
	t.sortCol = -1
	t.ascending = false
}

// Render appends a filtered batch below the rows already shown
func (t *Table) Render(batch []models.Rule) {
	for _, rule := range batch {
		t.rows = append(t.rows, NewRow(rule))
	}
}

// UpdateCount sets the cumulative number of rendered rows
func (t *Table) UpdateCount(total int) {
	t.count = total
}

// Count returns the last reported total
func (t *Table) Count() int {
	return t.count
}

// CountText is the status line shown under the table
func (t *Table) CountText() string {
	return fmt.Sprintf("Displaying %d results", t.count)
}

// Len returns the number of rendered rows
func (t *Table) Len() int {
	return len(t.rows)
}

// Rows returns a copy of the rendered rows in display order
func (t *Table) Rows() []Row {
	return slices.Clone(t.rows)
}

// Rules returns the rendered rules in display order
func (t *Table) Rules() []models.Rule {
	out := make([]models.Rule, len(t.rows))
	for i, r := range t.rows {
		out[i] = r.Rule
	}
	return out
}

// At returns the row at a display index
func (t *Table) At(i int) (Row, bool) {
	if i < 0 || i >= len(t.rows) {
		return Row{}, false
	}
	return t.rows[i], true
}

// SortBy activates a column header. The first activation sorts ascending,
// activating the same column again flips the direction, and activating a
// different column clears the previous marker. Keys are the lower-cased cell
// texts compared lexicographically.
func (t *Table) SortBy(col int) error {
	if col < 0 || col >= len(Headers()) {
		return fmt.Errorf("invalid sort column %d", col)
	}

	if t.sortCol == col {
		t.ascending = !t.ascending
	} else {
		t.sortCol = col
		t.ascending = true
	}

	sort.SliceStable(t.rows, func(i, j int) bool {
		return strings.ToLower(t.rows[i].Cell(col)) < strings.ToLower(t.rows[j].Cell(col))
	})
	if !t.ascending {
		slices.Reverse(t.rows)
	}
	return nil
}

// SortState reports the marked column and its direction
func (t *Table) SortState() (col int, ascending bool, ok bool) {
	if t.sortCol < 0 {
		return -1, false, false
	}
	return t.sortCol, t.ascending, true
}

// HeaderLabels returns the headers with the sort marker applied
func (t *Table) HeaderLabels() []string {
	headers := Headers()
	if t.sortCol >= 0 {
		arrow := " ▼"
		if t.ascending {
			arrow = " ▲"
		}
		headers[t.sortCol] += arrow
	}
	return headers
}
