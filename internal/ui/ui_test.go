package ui

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/thesavant42/rulesearch/internal/filter"
	"github.com/thesavant42/rulesearch/internal/models"
	"github.com/thesavant42/rulesearch/internal/search"
)

func TestQueryValuesRequest(t *testing.T) {
	v := QueryValues{
		Type:         "triggers",
		Conditions:   []string{CondTag, CondCreated, CondInactive},
		Tag:          "  vip\x00 ",
		Comment:      "ignored",
		CreatedStart: "2024-01-01",
		CreatedEnd:   " 2024-02-01 ",
	}

	req := v.Request()
	assert.Equal(t, models.ResourceTriggers, req.Type)
	assert.True(t, req.Query.Enabled(filter.KindTag))
	assert.True(t, req.Query.Enabled(filter.KindCreated))
	assert.False(t, req.Query.Enabled(filter.KindComment))
	assert.True(t, req.Query.IncludeInactive())
	assert.Equal(t, "vip", req.Query.Tag())
	assert.Equal(t, 3, req.Query.Checked())

	// later edits do not leak into the captured request
	v.Tag = "changed"
	assert.Equal(t, "vip", req.Query.Tag())
}

func TestQueryValuesRequestNothingChecked(t *testing.T) {
	req := QueryValues{Tag: "vip"}.Request()
	assert.Zero(t, req.Query.Checked())
	assert.True(t, req.Query.OnlyActive())
}

func TestValidateDate(t *testing.T) {
	tests := []struct {
		in      string
		wantErr bool
	}{
		{"", false},
		{"   ", false},
		{"2024-03-01", false},
		{"2024-3-1", true},
		{"03/01/2024", true},
		{"2024-13-01", true},
		{"2024-03-01T10:00:00Z", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			err := validateDate(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestSanitizeInput(t *testing.T) {
	assert.Equal(t, "vip\ttag", sanitizeInput("v\x00ip\ttag\x07"))
}

func TestNotifyExpiryBySeverity(t *testing.T) {
	var p PageState

	p.Notify("done", search.SeverityNotice)
	require.True(t, p.HasStatus())
	assert.WithinDuration(t, time.Now().Add(noticeDuration), p.StatusExpiry, time.Second)

	p.Notify("check a box", search.SeverityAlert)
	assert.Equal(t, search.SeverityAlert, p.StatusSeverity)
	assert.WithinDuration(t, time.Now().Add(alertDuration), p.StatusExpiry, time.Second)

	p.clearExpiredAt(time.Now().Add(alertDuration + time.Second))
	assert.False(t, p.HasStatus())

	p.Notify("boom", search.SeverityError)
	assert.True(t, p.StatusExpiry.IsZero())
	p.clearExpiredAt(time.Now().Add(time.Hour))
	assert.True(t, p.HasStatus(), "errors stay until replaced")
	assert.Contains(t, p.RenderStatus(), "Error: boom")
}

func TestSortColumnForKey(t *testing.T) {
	col, ok := sortColumnForKey("1", 5)
	assert.True(t, ok)
	assert.Equal(t, 0, col)

	col, ok = sortColumnForKey("5", 5)
	assert.True(t, ok)
	assert.Equal(t, 4, col)

	for _, key := range []string{"6", "0", "a", "12", ""} {
		_, ok := sortColumnForKey(key, 5)
		assert.False(t, ok, key)
	}
}

func TestWrapText(t *testing.T) {
	assert.Equal(t, []string{"set the", "priority", "to high"}, wrapText("set the priority to high", 8))
	assert.Equal(t, []string{"abcd", "efgh", "ij"}, wrapText("abcdefghij", 4))
	assert.Equal(t, []string{"one", "", "two"}, wrapText("one\n\ntwo", 10))
	assert.Equal(t, []string{"x"}, wrapText("x", 0))
}

func TestNewLayoutClamps(t *testing.T) {
	small := NewLayout(10, 5)
	assert.Equal(t, MinViewportWidth, small.ViewportWidth)
	assert.Equal(t, MinTableHeight, small.TableHeight)

	wide := NewLayout(500, 60)
	assert.Equal(t, MaxViewportWidth, wide.ViewportWidth)
	assert.Equal(t, MaxViewportWidth-BorderOverhead, wide.InnerWidth)
}

func TestRuleColumnsFitWidth(t *testing.T) {
	layout := NewLayout(120, 40)
	cols := RuleColumnsWithLabels([]string{"ID ▲"}, layout.TableWidth)
	require.Len(t, cols, 5)
	assert.Equal(t, "ID ▲", cols[0].Title)
	assert.Equal(t, "Title", cols[1].Title)

	total := 0
	for _, c := range cols {
		total += c.Width
	}
	assert.Equal(t, layout.TableWidth, total)
}

func TestPrinterPrintsBatchesAsTheyArrive(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinter(&buf)
	d := search.NewDriver(search.Config{Renderer: p, Notifier: p, Controls: p})

	pages := []*models.Page{
		{Rules: []models.Rule{{ID: 1, Title: "Escalate", Active: true}}, NextPage: "/api/v2/macros.json?page=2"},
		{Rules: []models.Rule{{ID: 2, Title: "Close ticket", Active: true}}},
	}
	var seen []string
	fetcher := search.FetcherFunc(func(_ context.Context, _ models.ResourceType, target string) (*models.Page, error) {
		seen = append(seen, buf.String())
		return pages[len(seen)-1], nil
	})

	query := filter.NewQuery(filter.QueryInput{IncludeInactive: true})
	sum, err := d.Run(context.Background(), fetcher, search.Request{Type: models.ResourceMacros, Query: query})
	require.NoError(t, err)
	assert.Equal(t, 2, sum.Session.Rendered)

	// the first page was printed before the second was requested
	require.Len(t, seen, 2)
	assert.Contains(t, seen[1], "Escalate")
	assert.NotContains(t, seen[1], "Close ticket")

	out := buf.String()
	assert.Contains(t, out, "Searching...")
	assert.Contains(t, out, "Title")
	assert.Contains(t, out, "page 2: Displaying 2 results")
	assert.Equal(t, []int64{1, 2}, ruleIDs(p.Rules()))
	assert.Equal(t, 2, p.Count())
}

func TestPrinterNotify(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinter(&buf)
	p.Notify("Please check", search.SeverityAlert)
	p.Notify("timeout", search.SeverityError)
	assert.Contains(t, buf.String(), "Please check")
	assert.Contains(t, buf.String(), "Error: timeout")
}

func TestFormatLineTruncates(t *testing.T) {
	line := formatLine([]string{"1", strings.Repeat("t", 80), "Yes"})
	assert.Contains(t, line, "…")
	assert.LessOrEqual(t, StringWidth(line), lineWidth())
}

func ruleIDs(rules []models.Rule) []int64 {
	ids := make([]int64, len(rules))
	for i, r := range rules {
		ids[i] = r.ID
	}
	return ids
}

func newTestSearchModel(t *testing.T, values QueryValues) SearchModel {
	t.Helper()
	dir := t.TempDir()
	return NewSearchModel(context.Background(), SearchOptions{
		Fetcher: search.FetcherFunc(func(context.Context, models.ResourceType, string) (*models.Page, error) {
			return nil, errors.New("not used")
		}),
		Account:   "https://acme.zendesk.com",
		DBPath:    dir + "/rulesearch.db",
		ExportDir: dir,
		Initial:   values,
	})
}

func startedModel(t *testing.T) (SearchModel, search.Session) {
	t.Helper()
	m := newTestSearchModel(t, QueryValues{Conditions: []string{CondInactive}})
	model, _ := m.startSearch()
	m = model.(SearchModel)
	require.Equal(t, searchViewResults, m.mode)
	sess, ok := m.driver.Current()
	require.True(t, ok)
	return m, sess
}

func update(t *testing.T, m SearchModel, msg tea.Msg) SearchModel {
	t.Helper()
	model, _ := m.Update(msg)
	return model.(SearchModel)
}

func TestSearchModelStartWithoutConditions(t *testing.T) {
	m := newTestSearchModel(t, QueryValues{})
	model, _ := m.startSearch()
	m = model.(SearchModel)

	assert.Equal(t, searchViewForm, m.mode)
	assert.Equal(t, search.NoConditionsMessage, m.screen.StatusMsg)
	assert.Equal(t, search.SeverityAlert, m.screen.StatusSeverity)
	assert.False(t, m.screen.searching)
}

func TestSearchModelRendersPagesAndSorts(t *testing.T) {
	m, sess := startedModel(t)
	assert.True(t, m.screen.searching)

	m = update(t, m, pageFetchedMsg{
		step:  search.Step{Token: sess.Token, Page: 1},
		rtype: models.ResourceMacros,
		page: &models.Page{
			Rules: []models.Rule{
				{ID: 20, Title: "b", Active: true},
				{ID: 3, Title: "a", Active: false},
			},
			NextPage: "https://acme.zendesk.com/api/v2/macros.json?page=2",
		},
	})
	assert.True(t, m.screen.searching)
	assert.Equal(t, 2, m.fetchPage)
	require.Len(t, m.table.Rows(), 2)
	assert.Equal(t, "20", m.table.Rows()[0][0])

	m = update(t, m, pageFetchedMsg{
		step:  search.Step{Token: sess.Token, Page: 2},
		rtype: models.ResourceMacros,
		page:  &models.Page{Rules: []models.Rule{{ID: 7, Title: "c", Active: true}}},
	})
	assert.False(t, m.screen.searching)
	assert.Equal(t, "Displaying 3 results", m.screen.results.CountText())
	assert.Contains(t, m.screen.StatusMsg, "Search finished: 3 results from 2 pages")

	m = update(t, m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'2'}})
	assert.Equal(t, []string{"a", "b", "c"}, columnValues(m, 1))
	assert.Equal(t, "Title ▲", m.table.Columns()[1].Title)

	m = update(t, m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'2'}})
	assert.Equal(t, []string{"c", "b", "a"}, columnValues(m, 1))
}

func TestSearchModelStopKey(t *testing.T) {
	m, sess := startedModel(t)

	m = update(t, m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'s'}})
	assert.Contains(t, m.screen.StatusMsg, "Stopping")

	m = update(t, m, pageFetchedMsg{
		step:  search.Step{Token: sess.Token, Page: 1},
		rtype: models.ResourceMacros,
		page: &models.Page{
			Rules:    []models.Rule{{ID: 1, Title: "only", Active: true}},
			NextPage: "https://acme.zendesk.com/api/v2/macros.json?page=2",
		},
	})
	assert.False(t, m.screen.searching)
	assert.Len(t, m.table.Rows(), 1)
	assert.Contains(t, m.screen.StatusMsg, "Search stopped after 1 pages")
}

func TestSearchModelFetchError(t *testing.T) {
	m, sess := startedModel(t)

	m = update(t, m, pageFetchedMsg{
		step:  search.Step{Token: sess.Token, Page: 1},
		rtype: models.ResourceMacros,
		err:   errors.New("connection refused"),
	})
	assert.False(t, m.screen.searching)
	assert.Equal(t, search.SeverityError, m.screen.StatusSeverity)
	assert.Contains(t, m.screen.StatusMsg, "failed to fetch page 1")
}

func TestSearchModelIgnoresStalePages(t *testing.T) {
	m, sess := startedModel(t)

	m = update(t, m, pageFetchedMsg{
		step:  search.Step{Token: sess.Token + 10, Page: 1},
		rtype: models.ResourceMacros,
		page:  &models.Page{Rules: []models.Rule{{ID: 1, Active: true}}},
	})
	assert.True(t, m.screen.searching)
	assert.Empty(t, m.table.Rows())
}

func TestSearchModelNewSearchBlockedWhileSearching(t *testing.T) {
	m, _ := startedModel(t)

	m = update(t, m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'n'}})
	assert.Equal(t, searchViewResults, m.mode)
	assert.Equal(t, search.SeverityAlert, m.screen.StatusSeverity)
}

func TestSearchModelDetailView(t *testing.T) {
	m, sess := startedModel(t)
	m = update(t, m, pageFetchedMsg{
		step:  search.Step{Token: sess.Token, Page: 1},
		rtype: models.ResourceMacros,
		page: &models.Page{Rules: []models.Rule{{
			ID: 9, Title: "Tag VIP", Active: true,
			Actions: []models.Action{
				{Field: "set_tags", Value: models.ScalarValue("vip")},
				{Field: "notification_user", Value: models.ListValue("requester", "Hello", "Thanks")},
			},
		}}},
	})

	m = update(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	require.Equal(t, searchViewDetail, m.mode)
	view := m.renderDetailView()
	assert.Contains(t, view, "Tag VIP")
	assert.Contains(t, view, "set_tags")
	assert.Contains(t, view, "notification_user")

	m = update(t, m, tea.KeyMsg{Type: tea.KeyEsc})
	assert.Equal(t, searchViewResults, m.mode)
}

func TestSearchModelKeepsCursorAcrossPages(t *testing.T) {
	m, sess := startedModel(t)
	m = update(t, m, pageFetchedMsg{
		step:  search.Step{Token: sess.Token, Page: 1},
		rtype: models.ResourceMacros,
		page: &models.Page{
			Rules: []models.Rule{
				{ID: 1, Title: "first", Active: true},
				{ID: 2, Title: "second", Active: true},
			},
			NextPage: "https://acme.zendesk.com/api/v2/macros.json?page=2",
		},
	})
	assert.Equal(t, 0, m.table.Cursor())

	m = update(t, m, tea.KeyMsg{Type: tea.KeyDown})
	require.Equal(t, 1, m.table.Cursor())

	m = update(t, m, pageFetchedMsg{
		step:  search.Step{Token: sess.Token, Page: 2},
		rtype: models.ResourceMacros,
		page:  &models.Page{Rules: []models.Rule{{ID: 3, Title: "third", Active: true}}},
	})
	require.Len(t, m.table.Rows(), 3)
	assert.Equal(t, 1, m.table.Cursor())

	m = update(t, m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'2'}})
	assert.Equal(t, 1, m.table.Cursor())

	m = update(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	require.Equal(t, searchViewDetail, m.mode)
	require.NotNil(t, m.detailRule)
	assert.Equal(t, "second", m.detailRule.Title)
}

func TestSearchModelCursorStartsAtTopOfNewSearch(t *testing.T) {
	m, sess := startedModel(t)
	assert.Empty(t, m.table.Rows())

	m = update(t, m, pageFetchedMsg{
		step:  search.Step{Token: sess.Token, Page: 1},
		rtype: models.ResourceMacros,
		page:  &models.Page{Rules: []models.Rule{{ID: 4, Title: "only", Active: true}}},
	})
	assert.Equal(t, 0, m.table.Cursor())
	row, ok := m.screen.results.At(m.table.Cursor())
	require.True(t, ok)
	assert.Equal(t, int64(4), row.Rule.ID)
}

func TestViewHeaderWithSubtitle(t *testing.T) {
	out := ViewHeaderWithSubtitle("Rule Search", "https://acme.zendesk.com", 20)
	assert.Contains(t, out, "Rule Search")
	assert.Contains(t, out, "https://acme.zendesk.com")
	assert.Contains(t, out, FullWidthDivider(20))

	assert.NotContains(t, ViewHeaderWithSubtitle("Rule Search", "", 20), "acme")
}

func TestSearchModelExportMarkdown(t *testing.T) {
	m, sess := startedModel(t)
	m = update(t, m, pageFetchedMsg{
		step:  search.Step{Token: sess.Token, Page: 1},
		rtype: models.ResourceMacros,
		page:  &models.Page{Rules: []models.Rule{{ID: 1, Title: "Escalate", Active: true}}},
	})

	m = update(t, m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'e'}})
	assert.Equal(t, search.SeverityNotice, m.screen.StatusSeverity)
	assert.Contains(t, m.screen.StatusMsg, "Exported 1 rules to")

	m = update(t, m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'x'}})
	assert.Equal(t, search.SeverityNotice, m.screen.StatusSeverity)
	assert.Contains(t, m.screen.StatusMsg, "Saved snapshot")
}

func columnValues(m SearchModel, col int) []string {
	var out []string
	for _, r := range m.table.Rows() {
		out = append(out, r[col])
	}
	return out
}
