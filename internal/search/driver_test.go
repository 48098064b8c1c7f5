package search

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/thesavant42/rulesearch/internal/filter"
	"github.com/thesavant42/rulesearch/internal/models"
)

type recordingRenderer struct {
	resets  int
	batches [][]int64
	counts  []int
}

func (r *recordingRenderer) Reset() {
	r.resets++
	r.batches = nil
	r.counts = nil
}

func (r *recordingRenderer) Render(batch []models.Rule) {
	ids := make([]int64, 0, len(batch))
	for _, rule := range batch {
		ids = append(ids, rule.ID)
	}
	r.batches = append(r.batches, ids)
}

func (r *recordingRenderer) UpdateCount(total int) {
	r.counts = append(r.counts, total)
}

type recordingNotifier struct {
	messages   []string
	severities []Severity
}

func (n *recordingNotifier) Notify(message string, severity Severity) {
	n.messages = append(n.messages, message)
	n.severities = append(n.severities, severity)
}

type recordingControls struct {
	transitions []bool
}

func (c *recordingControls) SetSearching(searching bool) {
	c.transitions = append(c.transitions, searching)
}

// pagedFetcher serves pages in order and records the requested targets
type pagedFetcher struct {
	pages   []*models.Page
	targets []string
	failAt  int // 1-based call that fails, 0 for never
	onFetch func(call int)
}

func (f *pagedFetcher) FetchPage(_ context.Context, _ models.ResourceType, target string) (*models.Page, error) {
	f.targets = append(f.targets, target)
	call := len(f.targets)
	if f.onFetch != nil {
		f.onFetch(call)
	}
	if f.failAt == call {
		return nil, errors.New("connection reset")
	}
	if call > len(f.pages) {
		return nil, fmt.Errorf("unexpected fetch %d of %q", call, target)
	}
	return f.pages[call-1], nil
}

func threePages() []*models.Page {
	mk := func(next string, rules ...models.Rule) *models.Page {
		return &models.Page{Rules: rules, NextPage: next}
	}
	r := func(id int64, active bool) models.Rule {
		return models.Rule{ID: id, Active: active, Actions: []models.Action{
			{Field: "set_tags", Value: models.ScalarValue("vip")},
		}}
	}
	return []*models.Page{
		mk("https://acme.zendesk.com/api/v2/macros.json?page=2", r(1, true), r(2, false)),
		mk("https://acme.zendesk.com/api/v2/macros.json?page=3", r(3, true)),
		mk("", r(4, true), r(5, true)),
	}
}

func allRules() filter.Query {
	return filter.NewQuery(filter.QueryInput{IncludeInactive: true})
}

func newTestDriver() (*Driver, *recordingRenderer, *recordingNotifier, *recordingControls) {
	r := &recordingRenderer{}
	n := &recordingNotifier{}
	c := &recordingControls{}
	return NewDriver(Config{Renderer: r, Notifier: n, Controls: c}), r, n, c
}

func TestStartWithoutConditions(t *testing.T) {
	d, r, n, c := newTestDriver()
	f := &pagedFetcher{pages: threePages()}

	_, err := d.Run(context.Background(), f, Request{Type: models.ResourceMacros, Query: filter.NewQuery(filter.QueryInput{})})
	require.ErrorIs(t, err, ErrNoConditions)

	assert.Empty(t, f.targets, "no fetch should be issued")
	assert.Equal(t, []string{NoConditionsMessage}, n.messages)
	assert.Equal(t, []Severity{SeverityAlert}, n.severities)
	assert.Zero(t, r.resets)
	assert.Empty(t, c.transitions)
	assert.Equal(t, StateIdle, d.State())
}

func TestRunFetchesAllPagesInOrder(t *testing.T) {
	d, r, _, c := newTestDriver()
	f := &pagedFetcher{pages: threePages()}

	sum, err := d.Run(context.Background(), f, Request{Type: models.ResourceMacros, Query: allRules()})
	require.NoError(t, err)

	assert.Equal(t, []string{
		"/api/v2/macros.json",
		"https://acme.zendesk.com/api/v2/macros.json?page=2",
		"https://acme.zendesk.com/api/v2/macros.json?page=3",
	}, f.targets)
	assert.Equal(t, [][]int64{{1, 2}, {3}, {4, 5}}, r.batches)
	assert.Equal(t, []int{2, 3, 5}, r.counts)
	assert.Equal(t, []bool{true, false}, c.transitions)

	assert.False(t, sum.Superseded)
	assert.Equal(t, 3, sum.Session.Pages)
	assert.Equal(t, 5, sum.Session.Rendered)
	assert.False(t, sum.Session.Cancelled)
	assert.NotEmpty(t, sum.Session.ID)
	assert.Equal(t, StateIdle, d.State())
}

func TestRunActiveOnlyUsesActiveEndpoint(t *testing.T) {
	d, r, _, _ := newTestDriver()
	f := &pagedFetcher{pages: threePages()}

	q := filter.NewQuery(filter.QueryInput{Kinds: []filter.Kind{filter.KindTag}, Tag: "VIP"})
	_, err := d.Run(context.Background(), f, Request{Type: models.ResourceMacros, Query: q})
	require.NoError(t, err)

	assert.Equal(t, "/api/v2/macros/active.json", f.targets[0])
	// rule 2 is inactive and dropped client-side
	assert.Equal(t, [][]int64{{1}, {3}, {4, 5}}, r.batches)
	assert.Equal(t, []int{1, 2, 4}, r.counts)
}

func TestCancelStopsAfterCurrentPage(t *testing.T) {
	d, r, _, c := newTestDriver()
	f := &pagedFetcher{pages: threePages()}
	f.onFetch = func(call int) {
		if call == 1 {
			assert.True(t, d.Cancel())
		}
	}

	sum, err := d.Run(context.Background(), f, Request{Type: models.ResourceMacros, Query: allRules()})
	require.NoError(t, err)

	assert.Len(t, f.targets, 1)
	assert.Equal(t, [][]int64{{1, 2}}, r.batches, "the in-flight page is still rendered")
	assert.Equal(t, []int{2}, r.counts)
	assert.Equal(t, []bool{true, false}, c.transitions)
	assert.True(t, sum.Session.Stopped)
	assert.True(t, sum.Session.Cancelled)
	assert.False(t, d.Cancel(), "nothing left to cancel")
}

func TestCancelOnLastPageIsNotReportedAsCancelled(t *testing.T) {
	d, _, _, _ := newTestDriver()
	f := &pagedFetcher{pages: threePages()}
	f.onFetch = func(call int) {
		if call == 3 {
			d.Cancel()
		}
	}

	sum, err := d.Run(context.Background(), f, Request{Type: models.ResourceMacros, Query: allRules()})
	require.NoError(t, err)
	assert.Len(t, f.targets, 3)
	assert.True(t, sum.Session.Stopped)
	assert.False(t, sum.Session.Cancelled)
}

func TestFetchErrorRestoresControls(t *testing.T) {
	d, r, n, c := newTestDriver()
	f := &pagedFetcher{pages: threePages(), failAt: 2}

	sum, err := d.Run(context.Background(), f, Request{Type: models.ResourceMacros, Query: allRules()})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "page 2")
	assert.Contains(t, err.Error(), "connection reset")

	assert.Equal(t, [][]int64{{1, 2}}, r.batches, "rows already shown stay")
	assert.Equal(t, []bool{true, false}, c.transitions)
	assert.Empty(t, n.messages)
	assert.Equal(t, 1, sum.Session.Pages)
	assert.Equal(t, StateIdle, d.State())
}

func TestStaleTokensAreIgnored(t *testing.T) {
	d, r, _, c := newTestDriver()
	req := Request{Type: models.ResourceMacros, Query: allRules()}

	first, err := d.Start(req)
	require.NoError(t, err)
	second, err := d.Start(req)
	require.NoError(t, err)
	require.NotEqual(t, first.Token, second.Token)

	pages := threePages()

	// a late page from the first session does nothing
	_, more := d.Deliver(first.Token, pages[0])
	assert.False(t, more)
	assert.Empty(t, r.batches)
	assert.Nil(t, d.Fail(first.Token, errors.New("late")))
	assert.Equal(t, StateFetching, d.State())

	next, more := d.Deliver(second.Token, pages[0])
	require.True(t, more)
	assert.Equal(t, 2, next.Page)
	assert.Equal(t, pages[0].NextPage, next.Target)
	assert.Equal(t, [][]int64{{1, 2}}, r.batches)
	assert.Equal(t, 2, r.resets)
	assert.Equal(t, []bool{true, true}, c.transitions)

	cur, ok := d.Current()
	require.True(t, ok)
	assert.Equal(t, second.Token, cur.Token)
}

func TestSupersededRun(t *testing.T) {
	d, r, _, _ := newTestDriver()
	req := Request{Type: models.ResourceMacros, Query: allRules()}

	f := &pagedFetcher{pages: threePages()}
	f.onFetch = func(call int) {
		if call == 2 {
			// a new search starts while page 2 of the old one is in flight
			_, err := d.Start(req)
			require.NoError(t, err)
		}
	}

	sum, err := d.Run(context.Background(), f, req)
	require.NoError(t, err)
	assert.True(t, sum.Superseded)
	assert.Len(t, f.targets, 2)
	assert.Empty(t, r.batches, "the new session reset the table and the old page was dropped")
	assert.Equal(t, StateFetching, d.State())
}

// gatedRenderer holds the first Render until release is closed
type gatedRenderer struct {
	mu      sync.Mutex
	resets  int
	rows    []int64
	once    sync.Once
	entered chan struct{}
	release chan struct{}
}

func (r *gatedRenderer) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.resets++
	r.rows = nil
}

func (r *gatedRenderer) Render(batch []models.Rule) {
	r.once.Do(func() {
		close(r.entered)
		<-r.release
	})
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, rule := range batch {
		r.rows = append(r.rows, rule.ID)
	}
}

func (r *gatedRenderer) UpdateCount(int) {}

func TestStartWaitsForPageBeingRendered(t *testing.T) {
	r := &gatedRenderer{entered: make(chan struct{}), release: make(chan struct{})}
	d := NewDriver(Config{Renderer: r})
	req := Request{Type: models.ResourceMacros, Query: allRules()}

	first, err := d.Start(req)
	require.NoError(t, err)

	delivered := make(chan struct{})
	go func() {
		d.Deliver(first.Token, threePages()[0])
		close(delivered)
	}()
	<-r.entered

	started := make(chan Step, 1)
	go func() {
		step, _ := d.Start(req)
		started <- step
	}()

	select {
	case <-started:
		t.Fatal("Start returned while a page of the old session was being rendered")
	case <-time.After(50 * time.Millisecond):
	}

	close(r.release)
	<-delivered
	second := <-started
	assert.NotEqual(t, first.Token, second.Token)

	r.mu.Lock()
	defer r.mu.Unlock()
	assert.Equal(t, 2, r.resets)
	assert.Empty(t, r.rows, "the old page is cleared by the new session's reset")
}

func TestDeliverAfterFinishIsIgnored(t *testing.T) {
	d, r, _, _ := newTestDriver()
	step, err := d.Start(Request{Type: models.ResourceTriggers, Query: allRules()})
	require.NoError(t, err)
	assert.Equal(t, "/api/v2/triggers.json", step.Target)

	_, more := d.Deliver(step.Token, &models.Page{Rules: []models.Rule{{ID: 1}}})
	assert.False(t, more)
	_, more = d.Deliver(step.Token, &models.Page{Rules: []models.Rule{{ID: 2}}})
	assert.False(t, more)
	assert.Equal(t, [][]int64{{1}}, r.batches)
}

func TestInvalidTypeFallsBackToMacros(t *testing.T) {
	d, _, _, _ := newTestDriver()
	step, err := d.Start(Request{Type: models.ResourceType("widgets"), Query: allRules()})
	require.NoError(t, err)
	assert.Equal(t, "/api/v2/macros.json", step.Target)

	cur, _ := d.Current()
	assert.Equal(t, models.ResourceMacros, cur.Request.Type)
}

func TestSkippedRulesAccumulate(t *testing.T) {
	d, _, _, _ := newTestDriver()
	pages := threePages()
	pages[0].Skipped = 2
	pages[2].Skipped = 1

	sum, err := d.Run(context.Background(), &pagedFetcher{pages: pages}, Request{Type: models.ResourceMacros, Query: allRules()})
	require.NoError(t, err)
	assert.Equal(t, 3, sum.Session.Skipped)
}
