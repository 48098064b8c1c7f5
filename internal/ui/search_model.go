package ui

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/stopwatch"
	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/log"
	"github.com/thesavant42/rulesearch/internal/export"
	"github.com/thesavant42/rulesearch/internal/models"
	"github.com/thesavant42/rulesearch/internal/results"
	"github.com/thesavant42/rulesearch/internal/search"
)

type searchViewMode int

const (
	searchViewForm    searchViewMode = iota // Query form
	searchViewResults                       // Results table, live while fetching
	searchViewDetail                        // Actions of the selected rule
)

// Messages
type pageFetchedMsg struct {
	step  search.Step
	page  *models.Page
	err   error
	rtype models.ResourceType
}

type statusTickMsg time.Time

// screen is the state shared by every copy of SearchModel. It is the
// Renderer, Notifier and Controls of the driver and is only touched from Update.
type screen struct {
	PageState
	results   *results.Table
	searching bool
	ticking   bool // a status expiry tick is scheduled
}

func (s *screen) Reset()                     { s.results.Reset() }
func (s *screen) Render(batch []models.Rule) { s.results.Render(batch) }
func (s *screen) UpdateCount(total int)      { s.results.UpdateCount(total) }
func (s *screen) SetSearching(searching bool) {
	s.searching = searching
}

// SearchOptions configures the search TUI
type SearchOptions struct {
	Fetcher   search.Fetcher
	Account   string // base URL, shown in the header and stored with snapshots
	Logger    *log.Logger
	DBPath    string // SQLite snapshot database
	ExportDir string // directory for Markdown exports
	Initial   QueryValues
}

// SearchModel is the TUI model for building a query and watching results arrive page by page
type SearchModel struct {
	ctx       context.Context
	fetcher   search.Fetcher
	logger    *log.Logger
	account   string
	dbPath    string
	exportDir string

	screen *screen
	driver *search.Driver
	values *QueryValues

	form      *huh.Form
	table     table.Model
	spinner   spinner.Model
	stopwatch stopwatch.Model
	mode      searchViewMode
	fetchPage int

	detailRule   *models.Rule
	detailScroll int
}

// NewSearchModel creates the search TUI. ctx bounds every page request.
func NewSearchModel(ctx context.Context, opts SearchOptions) SearchModel {
	layout := DefaultLayout()
	scr := &screen{
		PageState: NewPageState(layout),
		results:   results.NewTable(),
	}

	values := opts.Initial
	driver := search.NewDriver(search.Config{
		Renderer: scr,
		Notifier: scr,
		Controls: scr,
		Logger:   opts.Logger,
	})

	columns := RuleColumnsWithLabels(results.Headers(), layout.TableWidth)

	return SearchModel{
		ctx:       ctx,
		fetcher:   opts.Fetcher,
		logger:    opts.Logger,
		account:   opts.Account,
		dbPath:    opts.DBPath,
		exportDir: opts.ExportDir,
		screen:    scr,
		driver:    driver,
		values:    &values,
		form:      NewQueryForm(&values, layout.InnerWidth),
		table:     InitTable(columns, nil, layout),
		spinner:   NewAppSpinner(),
		stopwatch: stopwatch.NewWithInterval(100 * time.Millisecond),
		mode:      searchViewForm,
	}
}

// Init implements tea.Model
func (m SearchModel) Init() tea.Cmd {
	return tea.Batch(m.form.Init(), StandardInit())
}

// Update implements tea.Model
func (m SearchModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	model, cmd := m.update(msg)
	sm := model.(SearchModel)
	return sm, tea.Batch(cmd, sm.scheduleStatusTick())
}

func (m SearchModel) update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.screen.UpdateLayout(msg.Width, msg.Height)
		m.table.SetHeight(m.screen.Layout.TableHeight)
		m.form = m.form.WithWidth(m.screen.Layout.InnerWidth)
		m.syncTable()
		return m, nil

	case spinner.TickMsg:
		if !m.screen.searching {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case stopwatch.TickMsg, stopwatch.StartStopMsg, stopwatch.ResetMsg:
		var cmd tea.Cmd
		m.stopwatch, cmd = m.stopwatch.Update(msg)
		return m, cmd

	case statusTickMsg:
		m.screen.ticking = false
		m.screen.ClearExpiredStatus()
		return m, nil

	case pageFetchedMsg:
		return m.handlePage(msg)

	case tea.KeyMsg:
		return m.handleKeyMsg(msg)
	}

	if m.mode == searchViewForm {
		return m.updateForm(msg)
	}
	return m, nil
}

func (m SearchModel) handleKeyMsg(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch m.mode {
	case searchViewForm:
		if msg.String() == "ctrl+c" {
			m.screen.Quitting = true
			return m, tea.Quit
		}
		return m.updateForm(msg)
	case searchViewResults:
		return m.handleResultsKeys(msg)
	case searchViewDetail:
		return m.handleDetailKeys(msg)
	default:
		return m, nil
	}
}

func (m SearchModel) updateForm(msg tea.Msg) (tea.Model, tea.Cmd) {
	model, cmd := m.form.Update(msg)
	if f, ok := model.(*huh.Form); ok {
		m.form = f
	}

	switch m.form.State {
	case huh.StateCompleted:
		return m.startSearch()
	case huh.StateAborted:
		m.screen.Quitting = true
		return m, tea.Quit
	}
	return m, cmd
}

// startSearch captures the form values and issues the first page request
func (m SearchModel) startSearch() (tea.Model, tea.Cmd) {
	req := m.values.Request()
	step, err := m.driver.Start(req)
	if err != nil {
		// Validation failed: the driver already notified, reopen the form
		m.form = NewQueryForm(m.values, m.screen.Layout.InnerWidth)
		return m, m.form.Init()
	}

	m.mode = searchViewResults
	m.fetchPage = step.Page
	m.detailRule = nil
	m.table.GotoTop()
	m.syncTable()

	sess, _ := m.driver.Current()
	m.stopwatch = stopwatch.NewWithInterval(100 * time.Millisecond)

	return m, tea.Batch(
		m.fetchCmd(step, sess.Request.Type),
		m.spinner.Tick,
		m.stopwatch.Init(),
	)
}

func (m SearchModel) fetchCmd(step search.Step, rt models.ResourceType) tea.Cmd {
	ctx, fetcher := m.ctx, m.fetcher
	return func() tea.Msg {
		page, err := fetcher.FetchPage(ctx, rt, step.Target)
		return pageFetchedMsg{step: step, page: page, err: err, rtype: rt}
	}
}

func (m SearchModel) handlePage(msg pageFetchedMsg) (tea.Model, tea.Cmd) {
	if !m.driver.IsCurrent(msg.step.Token) {
		// page of a superseded search
		return m, nil
	}
	if msg.err != nil {
		if err := m.driver.Fail(msg.step.Token, msg.err); err != nil {
			m.screen.Notify(err.Error(), search.SeverityError)
			return m, m.stopwatch.Stop()
		}
		return m, nil
	}

	next, more := m.driver.Deliver(msg.step.Token, msg.page)
	m.syncTable()
	if more {
		m.fetchPage = next.Page
		return m, m.fetchCmd(next, msg.rtype)
	}

	if sess, ok := m.driver.Current(); ok && sess.Token == msg.step.Token {
		text := fmt.Sprintf("Search finished: %d results from %d pages in %s",
			sess.Rendered, sess.Pages, m.stopwatch.Elapsed().Round(100*time.Millisecond))
		if sess.Cancelled {
			text = fmt.Sprintf("Search stopped after %d pages: %d results", sess.Pages, sess.Rendered)
		}
		if sess.Skipped > 0 {
			text += fmt.Sprintf(" (%d unreadable rules skipped)", sess.Skipped)
		}
		m.screen.Notify(text, search.SeverityNotice)
	}
	return m, m.stopwatch.Stop()
}

func (m SearchModel) handleResultsKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	key := msg.String()

	if quit, cmd := HandleQuitKeysNoEsc(key); quit {
		m.driver.Cancel()
		m.screen.Quitting = true
		return m, cmd
	}

	if col, ok := sortColumnForKey(key, len(results.Headers())); ok {
		if err := m.screen.results.SortBy(col); err == nil {
			m.syncTable()
		}
		return m, nil
	}

	switch key {
	case "s":
		if m.driver.Cancel() {
			m.screen.Notify("Stopping after the current page...", search.SeverityNotice)
		}
		return m, nil

	case "esc", "n":
		if m.screen.searching {
			if key == "esc" && m.driver.Cancel() {
				m.screen.Notify("Stopping after the current page...", search.SeverityNotice)
				return m, nil
			}
			m.screen.Notify("Stop the running search first (s)", search.SeverityAlert)
			return m, nil
		}
		m.mode = searchViewForm
		m.form = NewQueryForm(m.values, m.screen.Layout.InnerWidth)
		return m, m.form.Init()

	case "enter", "v":
		if row, ok := m.screen.results.At(m.table.Cursor()); ok {
			rule := row.Rule
			m.detailRule = &rule
			m.detailScroll = 0
			m.mode = searchViewDetail
		}
		return m, nil

	case "e":
		m.exportMarkdown()
		return m, nil

	case "x":
		m.exportSQLite()
		return m, nil
	}

	var cmd tea.Cmd
	m.table, cmd = m.table.Update(msg)
	return m, cmd
}

func (m SearchModel) handleDetailKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc", "v", "enter":
		m.detailRule = nil
		m.mode = searchViewResults
		return m, nil

	case "up", "k":
		if m.detailScroll > 0 {
			m.detailScroll--
		}
		return m, nil

	case "down", "j":
		m.detailScroll++
		return m, nil

	case "q", "ctrl+c":
		m.driver.Cancel()
		m.screen.Quitting = true
		return m, tea.Quit
	}
	return m, nil
}

func (m SearchModel) exportMeta() export.Meta {
	meta := export.Meta{Account: m.account, Generated: time.Now()}
	if sess, ok := m.driver.Current(); ok {
		meta.Type = sess.Request.Type
		meta.Query = sess.Request.Query.Describe()
	}
	return meta
}

func (m SearchModel) exportMarkdown() {
	rules := m.screen.results.Rules()
	if len(rules) == 0 {
		m.screen.Notify("Nothing to export yet", search.SeverityAlert)
		return
	}
	path, err := export.ToMarkdownFile(m.exportDir, rules, m.exportMeta())
	if err != nil {
		m.logError("Markdown export failed", err)
		m.screen.Notify(fmt.Sprintf("Export failed: %v", err), search.SeverityError)
		return
	}
	m.screen.Notify(fmt.Sprintf("Exported %d rules to %s", len(rules), path), search.SeverityNotice)
}

func (m SearchModel) exportSQLite() {
	rules := m.screen.results.Rules()
	if len(rules) == 0 {
		m.screen.Notify("Nothing to export yet", search.SeverityAlert)
		return
	}
	meta := m.exportMeta()
	snap := models.Snapshot{
		Type:    meta.Type,
		Query:   meta.Query,
		Account: meta.Account,
		Rules:   rules,
	}
	if sess, ok := m.driver.Current(); ok {
		snap.SessionID = sess.ID
	}

	id, err := export.ToSQLite(m.dbPath, snap)
	if err != nil {
		m.logError("SQLite export failed", err)
		m.screen.Notify(fmt.Sprintf("Snapshot failed: %v", err), search.SeverityError)
		return
	}
	m.screen.Notify(fmt.Sprintf("Saved snapshot %s (%d rules)", shortID(id), len(rules)), search.SeverityNotice)
}

func (m SearchModel) logError(msg string, err error) {
	if m.logger != nil {
		m.logger.Error(msg, "error", err)
	}
}

// syncTable copies the rendered rows into the bubbles table, truncated to the column widths
func (m *SearchModel) syncTable() {
	columns := RuleColumnsWithLabels(m.screen.results.HeaderLabels(), m.screen.Layout.TableWidth)

	rendered := m.screen.results.Rows()
	rows := make([]table.Row, len(rendered))
	for i, r := range rendered {
		row := make(table.Row, len(columns))
		for c := range columns {
			row[c] = truncateToWidth(r.Cell(c), columns[c].Width)
		}
		rows[i] = row
	}

	// SetRows leaves the cursor at -1 on an empty table; restore the selection
	cursor := m.table.Cursor()
	m.table.SetColumns(columns)
	m.table.SetRows(rows)
	if len(rows) == 0 {
		return
	}
	m.table.SetCursor(max(0, min(cursor, len(rows)-1)))
}

func (m SearchModel) scheduleStatusTick() tea.Cmd {
	if m.screen.ticking || m.screen.StatusExpiry.IsZero() {
		return nil
	}
	m.screen.ticking = true
	wait := time.Until(m.screen.StatusExpiry) + 50*time.Millisecond
	if wait < 0 {
		wait = 0
	}
	return tea.Tick(wait, func(t time.Time) tea.Msg { return statusTickMsg(t) })
}

// View implements tea.Model
func (m SearchModel) View() string {
	if m.screen.Quitting {
		return ""
	}
	layout := m.screen.Layout

	var b strings.Builder
	b.WriteString(ViewHeaderWithSubtitle("Rule Search", m.account, layout.InnerWidth))

	switch m.mode {
	case searchViewForm:
		b.WriteString(m.form.View())
	case searchViewResults:
		b.WriteString(m.renderResultsView())
	case searchViewDetail:
		b.WriteString(m.renderDetailView())
	}

	if m.screen.HasStatus() {
		b.WriteString("\n\n ")
		b.WriteString(m.screen.RenderStatus())
	}

	return BuildTwoBoxView(b.String(), m.helpText(), layout)
}

func (m SearchModel) renderResultsView() string {
	var b strings.Builder

	if sess, ok := m.driver.Current(); ok {
		b.WriteString(AccentStyle.Render(fmt.Sprintf(" %s  |  %s", strings.ToUpper(string(sess.Request.Type)), sess.Request.Query.Describe())))
		b.WriteString("\n")
	}

	if m.screen.searching {
		b.WriteString(" ")
		b.WriteString(m.spinner.View())
		b.WriteString(ProgressStyle.Render(fmt.Sprintf(" Fetching page %d...", m.fetchPage)))
		b.WriteString(DimStyle.Render("  Elapsed: "))
		b.WriteString(NormalStyle.Render(m.stopwatch.View()))
	} else {
		b.WriteString(DimStyle.Render(" Idle"))
	}
	b.WriteString("\n")
	b.WriteString(TitleStyle.Render(" " + m.screen.results.CountText()))
	b.WriteString("\n\n")

	if m.screen.results.Len() == 0 {
		b.WriteString(DimStyle.Render(" No matching rules yet."))
		return b.String()
	}
	b.WriteString(RenderTableWithSelection(m.table, m.screen.Layout))
	return b.String()
}

func (m SearchModel) renderDetailView() string {
	if m.detailRule == nil {
		return DimStyle.Render("No rule selected")
	}
	r := m.detailRule
	layout := m.screen.Layout

	wrapWidth := layout.InnerWidth - 6
	if wrapWidth < 40 {
		wrapWidth = 40
	}

	var lines []string
	add := func(label, value string) {
		if value == "" {
			value = "-"
		}
		for i, l := range wrapText(value, wrapWidth-len(label)) {
			if i == 0 {
				lines = append(lines, DimStyle.Render(" "+label)+NormalStyle.Render(l))
			} else {
				lines = append(lines, strings.Repeat(" ", len(label)+1)+NormalStyle.Render(l))
			}
		}
	}

	active := "No"
	if r.Active {
		active = "Yes"
	}
	add("ID: ", fmt.Sprintf("%d", r.ID))
	add("Title: ", r.Title)
	add("Active: ", active)
	add("Position: ", fmt.Sprintf("%d", r.Position))
	add("Created: ", r.CreatedAt)
	add("Updated: ", r.UpdatedAt)
	if r.Description != "" {
		add("Description: ", r.Description)
	}
	lines = append(lines, "", TitleStyle.Render(fmt.Sprintf(" Actions (%d)", len(r.Actions))))
	if len(r.Actions) == 0 {
		lines = append(lines, DimStyle.Render("   (none)"))
	}
	for _, a := range r.Actions {
		value := a.Value.String()
		switch a.Value.Kind() {
		case models.ValueNone:
			value = "(none)"
		case models.ValueList:
			value = "[" + value + "]"
		}
		add("  "+a.Field+": ", value)
	}

	// Apply scroll offset
	maxLines := layout.TableHeight + 2
	start := m.detailScroll
	if start > len(lines)-maxLines {
		start = len(lines) - maxLines
	}
	if start < 0 {
		start = 0
	}
	end := start + maxLines
	if end > len(lines) {
		end = len(lines)
	}

	var b strings.Builder
	b.WriteString(strings.Join(lines[start:end], "\n"))
	if len(lines) > maxLines {
		b.WriteString("\n")
		b.WriteString(DimStyle.Render(fmt.Sprintf("   [%d-%d of %d lines]", start+1, end, len(lines))))
	}
	return b.String()
}

func (m SearchModel) helpText() string {
	switch m.mode {
	case searchViewForm:
		return "Enter: next / search | Space/x: toggle | Tab: next field | Ctrl+C: quit"
	case searchViewResults:
		if m.screen.searching {
			return "s/Esc: stop | 1-5: sort | up/down: navigate | v: details | e: export md | x: snapshot | q: quit"
		}
		return "n/Esc: new search | 1-5: sort | up/down: navigate | v: details | e: export md | x: snapshot | q: quit"
	case searchViewDetail:
		return "j/k: scroll | Esc: close | q: quit"
	default:
		return ""
	}
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// RunSearchTUI starts the interactive search
func RunSearchTUI(opts SearchOptions) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	model := NewSearchModel(ctx, opts)
	p := tea.NewProgram(model, tea.WithAltScreen())

	if _, err := p.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return fmt.Errorf("search UI failed: %w", err)
	}
	return nil
}
