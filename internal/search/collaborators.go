package search

import (
	"context"

	"github.com/thesavant42/rulesearch/internal/models"
)

// Severity of a user-facing notification
type Severity string

const (
	SeverityNotice Severity = "notice"
	SeverityAlert  Severity = "alert"
	SeverityError  Severity = "error"
)

// Fetcher retrieves one page of rules. target is an endpoint path or a next_page cursor.
type Fetcher interface {
	FetchPage(ctx context.Context, rt models.ResourceType, target string) (*models.Page, error)
}

// Renderer displays filtered batches and the running total
type Renderer interface {
	Reset()
	Render(batch []models.Rule)
	UpdateCount(total int)
}

// Notifier shows a message to the user
type Notifier interface {
	Notify(message string, severity Severity)
}

// Controls toggles the search inputs. While searching the start trigger and
// query fields are disabled and the cancel control and loading indicator are shown.
type Controls interface {
	SetSearching(searching bool)
}

// FetcherFunc adapts a function to Fetcher
type FetcherFunc func(ctx context.Context, rt models.ResourceType, target string) (*models.Page, error)

// FetchPage calls f
func (f FetcherFunc) FetchPage(ctx context.Context, rt models.ResourceType, target string) (*models.Page, error) {
	return f(ctx, rt, target)
}

type nopControls struct{}

func (nopControls) SetSearching(bool) {}

type nopNotifier struct{}

func (nopNotifier) Notify(string, Severity) {}
