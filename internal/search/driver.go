package search

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"github.com/thesavant42/rulesearch/internal/api"
	"github.com/thesavant42/rulesearch/internal/filter"
	"github.com/thesavant42/rulesearch/internal/models"
)

// ErrNoConditions is returned by Start when no condition checkbox is ticked
var ErrNoConditions = errors.New("no search condition selected")

// NoConditionsMessage is shown to the user when a search is started without conditions
const NoConditionsMessage = "Please check at least one condition's checkbox."

// State of the pagination driver
type State int

const (
	StateIdle State = iota
	StateFetching
	StateRendering
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateFetching:
		return "fetching"
	case StateRendering:
		return "rendering"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Request is what the user asked for when pressing search
type Request struct {
	Type  models.ResourceType
	Query filter.Query
}

// Step is the next fetch the host must perform
type Step struct {
	Token  uint64 // session generation the fetch belongs to
	Target string // endpoint path or next_page cursor
	Page   int    // 1-based number of the page being requested
}

// Session is the state of one search from start to completion or cancellation
type Session struct {
	ID        string
	Token     uint64
	Request   Request
	Stopped   bool // cancel was requested
	Cancelled bool // ended early because of Stopped
	Rendered  int  // cumulative rendered rows
	Pages     int  // pages filtered and rendered
	Skipped   int  // undecodable rules reported by the fetcher
	StartedAt time.Time
	EndedAt   time.Time
}

// Summary describes a finished Run
type Summary struct {
	Session    Session
	Superseded bool // a newer search replaced this one
}

// Config wires the driver to its collaborators. Notifier and Controls are optional.
type Config struct {
	Renderer Renderer
	Notifier Notifier
	Controls Controls
	Logger   *log.Logger
}

// Driver runs the fetch -> filter -> render loop for one search at a time.
// Each page is requested only after the previous one has been rendered.
type Driver struct {
	renderer Renderer
	notifier Notifier
	controls Controls
	logger   *log.Logger

	// renderMu orders Reset and Render calls on the renderer; taken before mu.
	// Collaborators must not call Start or Deliver from inside Reset or Render.
	renderMu sync.Mutex

	mu         sync.Mutex
	generation uint64
	state      State
	session    *Session
}

// NewDriver creates an idle driver
func NewDriver(cfg Config) *Driver {
	d := &Driver{
		renderer: cfg.Renderer,
		notifier: cfg.Notifier,
		controls: cfg.Controls,
		logger:   cfg.Logger,
	}
	if d.notifier == nil {
		d.notifier = nopNotifier{}
	}
	if d.controls == nil {
		d.controls = nopControls{}
	}
	return d
}

// Start validates the request, replaces any previous session and returns the first fetch.
// Without any checked condition the user is notified and nothing changes.
func (d *Driver) Start(req Request) (Step, error) {
	if req.Query.Checked() == 0 {
		d.notifier.Notify(NoConditionsMessage, SeverityAlert)
		return Step{}, ErrNoConditions
	}
	if !req.Type.Valid() {
		req.Type = models.DefaultResourceType
	}

	d.renderMu.Lock()
	d.mu.Lock()
	d.generation++
	sess := &Session{
		ID:        uuid.NewString(),
		Token:     d.generation,
		Request:   req,
		StartedAt: time.Now(),
	}
	d.session = sess
	d.state = StateFetching
	d.mu.Unlock()

	d.renderer.Reset()
	d.renderMu.Unlock()
	d.controls.SetSearching(true)

	if d.logger != nil {
		d.logger.Info("Search started", "session", sess.ID, "type", req.Type, "query", req.Query.Describe())
	}

	return Step{
		Token:  sess.Token,
		Target: api.Endpoint(req.Type, req.Query.OnlyActive()),
		Page:   1,
	}, nil
}

// Deliver filters and renders a fetched page. It returns the next step and true
// when another page should be requested. Pages of superseded or finished
// sessions are discarded. A concurrent Start waits until the page is rendered
// and counted, then resets the renderer.
func (d *Driver) Deliver(token uint64, page *models.Page) (Step, bool) {
	d.renderMu.Lock()
	d.mu.Lock()
	sess := d.currentLocked(token)
	if sess == nil {
		d.mu.Unlock()
		d.renderMu.Unlock()
		return Step{}, false
	}
	d.state = StateRendering
	query := sess.Request.Query
	d.mu.Unlock()

	var rules []models.Rule
	if page != nil {
		rules = page.Rules
	}
	batch := filter.Apply(rules, query)
	d.renderer.Render(batch)

	d.mu.Lock()
	if d.currentLocked(token) == nil {
		d.mu.Unlock()
		d.renderMu.Unlock()
		return Step{}, false
	}
	sess.Pages++
	sess.Rendered += len(batch)
	if page != nil {
		sess.Skipped += page.Skipped
	}
	total := sess.Rendered
	more := page.HasMore() && !sess.Stopped

	var next Step
	if more {
		d.state = StateFetching
		next = Step{Token: token, Target: page.NextPage, Page: sess.Pages + 1}
	} else {
		sess.Cancelled = sess.Stopped && page.HasMore()
		sess.EndedAt = time.Now()
		d.state = StateIdle
	}
	snapshot := *sess
	d.mu.Unlock()

	d.renderer.UpdateCount(total)
	d.renderMu.Unlock()

	if d.logger != nil {
		d.logger.Info("Page rendered", "session", snapshot.ID, "page", snapshot.Pages,
			"pageRules", len(rules), "kept", len(batch), "rendered", total, "hasMore", page.HasMore())
	}

	if !more {
		d.controls.SetSearching(false)
		if d.logger != nil {
			d.logger.Info("Search finished", "session", snapshot.ID, "pages", snapshot.Pages,
				"rendered", snapshot.Rendered, "cancelled", snapshot.Cancelled,
				"elapsed", snapshot.EndedAt.Sub(snapshot.StartedAt))
		}
	}

	return next, more
}

// Fail aborts the session after a fetch error and restores the controls.
// The returned error is meant for the host's error display; it is nil for stale tokens.
func (d *Driver) Fail(token uint64, err error) error {
	d.mu.Lock()
	sess := d.currentLocked(token)
	if sess == nil {
		d.mu.Unlock()
		return nil
	}
	sess.EndedAt = time.Now()
	d.state = StateIdle
	id, page := sess.ID, sess.Pages+1
	d.mu.Unlock()

	d.controls.SetSearching(false)

	if d.logger != nil {
		d.logger.Error("Search aborted", "session", id, "page", page, "error", err)
	}
	return fmt.Errorf("failed to fetch page %d: %w", page, err)
}

// Cancel asks the running search to stop after the page currently in flight.
// It reports whether a running session was flagged.
func (d *Driver) Cancel() bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.session == nil || d.state == StateIdle || d.session.Stopped {
		return false
	}
	d.session.Stopped = true
	if d.logger != nil {
		d.logger.Info("Search cancel requested", "session", d.session.ID, "pagesDone", d.session.Pages)
	}
	return true
}

// State returns the driver state
func (d *Driver) State() State {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

// Searching reports whether a session is in progress
func (d *Driver) Searching() bool {
	return d.State() != StateIdle
}

// Current returns a copy of the latest session
func (d *Driver) Current() (Session, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.session == nil {
		return Session{}, false
	}
	return *d.session, true
}

// IsCurrent reports whether token belongs to the running session
func (d *Driver) IsCurrent(token uint64) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.currentLocked(token) != nil
}

func (d *Driver) currentLocked(token uint64) *Session {
	if d.session == nil || d.session.Token != token || d.state == StateIdle {
		return nil
	}
	return d.session
}

// Run performs a whole search synchronously: start, then fetch and deliver
// pages until the data is exhausted, the search is cancelled, or a fetch fails.
func (d *Driver) Run(ctx context.Context, fetcher Fetcher, req Request) (Summary, error) {
	step, err := d.Start(req)
	if err != nil {
		return Summary{}, err
	}

	for {
		page, err := fetcher.FetchPage(ctx, req.Type, step.Target)
		if err != nil {
			failErr := d.Fail(step.Token, err)
			return d.summary(step.Token), failErr
		}

		next, more := d.Deliver(step.Token, page)
		if !more {
			break
		}
		step = next
	}

	return d.summary(step.Token), nil
}

func (d *Driver) summary(token uint64) Summary {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.session == nil || d.session.Token != token {
		return Summary{Superseded: true}
	}
	return Summary{Session: *d.session}
}
