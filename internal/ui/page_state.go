package ui

import (
	"time"

	"github.com/thesavant42/rulesearch/internal/search"
)

// page_state.go provides shared state management for TUI pages.
// Embed PageState in page models to get consistent status handling.

// Status lifetimes per severity. Errors stay until replaced.
const (
	noticeDuration = 5 * time.Second
	alertDuration  = 8 * time.Second
)

// PageState contains common state that pages need.
type PageState struct {
	Layout         Layout
	StatusMsg      string
	StatusSeverity search.Severity
	StatusExpiry   time.Time
	Quitting       bool
}

// NewPageState creates a new PageState with the given layout.
func NewPageState(layout Layout) PageState {
	return PageState{
		Layout: layout,
	}
}

// SetStatus sets a status message that will expire after the given duration.
// If duration is 0, the status message will not expire.
func (p *PageState) SetStatus(msg string, duration time.Duration) {
	p.StatusMsg = msg
	p.StatusSeverity = search.SeverityNotice
	if duration > 0 {
		p.StatusExpiry = time.Now().Add(duration)
	} else {
		p.StatusExpiry = time.Time{} // Zero time = no expiry
	}
}

// Notify implements search.Notifier
func (p *PageState) Notify(message string, severity search.Severity) {
	switch severity {
	case search.SeverityAlert:
		p.SetStatus(message, alertDuration)
	case search.SeverityError:
		p.SetStatus(message, 0)
	default:
		p.SetStatus(message, noticeDuration)
	}
	p.StatusSeverity = severity
}

// ClearExpiredStatus clears the status message if it has expired.
func (p *PageState) ClearExpiredStatus() {
	p.clearExpiredAt(time.Now())
}

func (p *PageState) clearExpiredAt(now time.Time) {
	if !p.StatusExpiry.IsZero() && now.After(p.StatusExpiry) {
		p.StatusMsg = ""
		p.StatusSeverity = ""
		p.StatusExpiry = time.Time{}
	}
}

// HasStatus returns true if there is a non-empty status message.
func (p *PageState) HasStatus() bool {
	return p.StatusMsg != ""
}

// RenderStatus styles the status line by severity
func (p *PageState) RenderStatus() string {
	if p.StatusMsg == "" {
		return ""
	}
	switch p.StatusSeverity {
	case search.SeverityAlert:
		return AccentStyle.Render(p.StatusMsg)
	case search.SeverityError:
		return StatusMsgStyle.Render("Error: " + p.StatusMsg)
	default:
		return HintStyle.Render(p.StatusMsg)
	}
}

// UpdateLayout updates the layout and returns true if it changed.
func (p *PageState) UpdateLayout(width, height int) bool {
	newLayout := NewLayout(width, height)
	if newLayout != p.Layout {
		p.Layout = newLayout
		return true
	}
	return false
}
