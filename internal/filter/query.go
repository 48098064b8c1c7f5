package filter

import (
	"fmt"
	"strings"
	"time"
)

// Kind identifies one client-side filter
type Kind int

const (
	KindTag Kind = iota
	KindComment
	KindNote
	KindCreated
	KindUpdated
)

// Kinds returns every filter kind in pipeline order
func Kinds() []Kind {
	return []Kind{KindTag, KindComment, KindNote, KindCreated, KindUpdated}
}

func (k Kind) String() string {
	switch k {
	case KindTag:
		return "tag"
	case KindComment:
		return "comment"
	case KindNote:
		return "note"
	case KindCreated:
		return "created"
	case KindUpdated:
		return "updated"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// DateLayout is the format of date query fields
const DateLayout = "2006-01-02"

// DateRange is an exclusive (start, end) interval
type DateRange struct {
	Start time.Time
	End   time.Time
}

// ParseDateRange parses two date fields. Empty or invalid fields are returned as zero times.
func ParseDateRange(start, end string) DateRange {
	s, _ := ParseTimestamp(start)
	e, _ := ParseTimestamp(end)
	return DateRange{Start: s, End: e}
}

// Contains reports whether ts lies strictly between the bounds
func (r DateRange) Contains(ts time.Time) bool {
	return MatchesDateRange(ts, r.Start, r.End)
}

// Query is the criteria captured once when a search starts.
// It is never re-read from the input fields during the session.
type Query struct {
	kinds           map[Kind]bool
	tag             string
	comment         string
	note            string
	created         DateRange
	updated         DateRange
	includeInactive bool
}

// QueryInput mirrors the raw values of the search form
type QueryInput struct {
	Kinds           []Kind
	Tag             string
	Comment         string
	Note            string
	CreatedStart    string
	CreatedEnd      string
	UpdatedStart    string
	UpdatedEnd      string
	IncludeInactive bool
}

// NewQuery captures the form values. Text needles are lower-cased here.
func NewQuery(in QueryInput) Query {
	q := Query{
		kinds:           make(map[Kind]bool, len(in.Kinds)),
		tag:             strings.ToLower(in.Tag),
		comment:         strings.ToLower(in.Comment),
		note:            strings.ToLower(in.Note),
		created:         ParseDateRange(in.CreatedStart, in.CreatedEnd),
		updated:         ParseDateRange(in.UpdatedStart, in.UpdatedEnd),
		includeInactive: in.IncludeInactive,
	}
	for _, k := range in.Kinds {
		q.kinds[k] = true
	}
	return q
}

// Enabled reports whether a filter kind is checked
func (q Query) Enabled(k Kind) bool { return q.kinds[k] }

// EnabledKinds returns the checked kinds in pipeline order
func (q Query) EnabledKinds() []Kind {
	var out []Kind
	for _, k := range Kinds() {
		if q.kinds[k] {
			out = append(out, k)
		}
	}
	return out
}

// IncludeInactive reports whether inactive rules are kept
func (q Query) IncludeInactive() bool { return q.includeInactive }

// OnlyActive is the inverse of IncludeInactive, used to narrow the request endpoint
func (q Query) OnlyActive() bool { return !q.includeInactive }

// Checked counts the condition checkboxes that were ticked, including "include inactive"
func (q Query) Checked() int {
	n := len(q.EnabledKinds())
	if q.includeInactive {
		n++
	}
	return n
}

// Tag returns the lower-cased tag needle
func (q Query) Tag() string { return q.tag }

// Comment returns the lower-cased comment needle
func (q Query) Comment() string { return q.comment }

// Note returns the lower-cased notification needle
func (q Query) Note() string { return q.note }

// Created returns the creation date range
func (q Query) Created() DateRange { return q.created }

// Updated returns the update date range
func (q Query) Updated() DateRange { return q.updated }

// Describe renders the enabled criteria for status lines and logs
func (q Query) Describe() string {
	var parts []string
	for _, k := range q.EnabledKinds() {
		switch k {
		case KindTag:
			parts = append(parts, fmt.Sprintf("tag~'%s'", q.tag))
		case KindComment:
			parts = append(parts, fmt.Sprintf("comment~'%s'", q.comment))
		case KindNote:
			parts = append(parts, fmt.Sprintf("note~'%s'", q.note))
		case KindCreated:
			parts = append(parts, "created "+describeRange(q.created))
		case KindUpdated:
			parts = append(parts, "updated "+describeRange(q.updated))
		}
	}
	if q.includeInactive {
		parts = append(parts, "incl. inactive")
	} else {
		parts = append(parts, "active only")
	}
	return strings.Join(parts, ", ")
}

func describeRange(r DateRange) string {
	format := func(t time.Time) string {
		if t.IsZero() {
			return "?"
		}
		return t.Format(DateLayout)
	}
	return fmt.Sprintf("(%s..%s)", format(r.Start), format(r.End))
}
