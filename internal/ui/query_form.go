package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/thesavant42/rulesearch/internal/filter"
	"github.com/thesavant42/rulesearch/internal/models"
	"github.com/thesavant42/rulesearch/internal/search"
)

// Condition checkbox values of the query form
const (
	CondTag      = "tag"
	CondComment  = "comment"
	CondNote     = "note"
	CondCreated  = "created"
	CondUpdated  = "updated"
	CondInactive = "inactive"
)

// QueryValues holds the raw values of the search form. The form writes into
// it directly, so values survive between searches.
type QueryValues struct {
	Type         string
	Conditions   []string
	Tag          string
	Comment      string
	Note         string
	CreatedStart string
	CreatedEnd   string
	UpdatedStart string
	UpdatedEnd   string
}

// sanitizeInput removes null bytes and other invisible control characters from input
func sanitizeInput(s string) string {
	return strings.Map(func(r rune) rune {
		if r == 0 || (r < 32 && r != '\t' && r != '\n' && r != '\r') {
			return -1
		}
		return r
	}, s)
}

// Request captures the values into an immutable search request
func (v QueryValues) Request() search.Request {
	in := filter.QueryInput{
		Tag:          strings.TrimSpace(sanitizeInput(v.Tag)),
		Comment:      strings.TrimSpace(sanitizeInput(v.Comment)),
		Note:         strings.TrimSpace(sanitizeInput(v.Note)),
		CreatedStart: strings.TrimSpace(v.CreatedStart),
		CreatedEnd:   strings.TrimSpace(v.CreatedEnd),
		UpdatedStart: strings.TrimSpace(v.UpdatedStart),
		UpdatedEnd:   strings.TrimSpace(v.UpdatedEnd),
	}

	for _, c := range v.Conditions {
		switch c {
		case CondTag:
			in.Kinds = append(in.Kinds, filter.KindTag)
		case CondComment:
			in.Kinds = append(in.Kinds, filter.KindComment)
		case CondNote:
			in.Kinds = append(in.Kinds, filter.KindNote)
		case CondCreated:
			in.Kinds = append(in.Kinds, filter.KindCreated)
		case CondUpdated:
			in.Kinds = append(in.Kinds, filter.KindUpdated)
		case CondInactive:
			in.IncludeInactive = true
		}
	}

	return search.Request{
		Type:  models.ResourceType(v.Type),
		Query: filter.NewQuery(in),
	}
}

// validateDate accepts an empty field or a yyyy-mm-dd date
func validateDate(s string) error {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	if _, ok := filter.ParseTimestamp(s); !ok || len(s) != len(filter.DateLayout) {
		return fmt.Errorf("use yyyy-mm-dd")
	}
	return nil
}

// NewQueryForm builds the search form bound to v
func NewQueryForm(v *QueryValues, width int) *huh.Form {
	if v.Type == "" {
		v.Type = string(models.DefaultResourceType)
	}

	typeOptions := make([]huh.Option[string], 0, len(models.ResourceTypes()))
	for _, rt := range models.ResourceTypes() {
		label := strings.ToUpper(string(rt)[:1]) + string(rt)[1:]
		typeOptions = append(typeOptions, huh.NewOption(label, string(rt)))
	}

	dateInput := func(title string, value *string) *huh.Input {
		return huh.NewInput().
			Title(title).
			Placeholder(filter.DateLayout).
			CharLimit(len(filter.DateLayout)).
			Value(value).
			Validate(validateDate)
	}

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Search").
				Description("Collection to page through").
				Options(typeOptions...).
				Value(&v.Type),
			huh.NewMultiSelect[string]().
				Title("Conditions").
				Description("Checked conditions must all match").
				Options(
					huh.NewOption("Tag / action value contains", CondTag),
					huh.NewOption("Comment contains", CondComment),
					huh.NewOption("Notification contains", CondNote),
					huh.NewOption("Created between", CondCreated),
					huh.NewOption("Updated between", CondUpdated),
					huh.NewOption("Include inactive", CondInactive),
				).
				Value(&v.Conditions),
		),
		huh.NewGroup(
			huh.NewInput().Title("Tag").Placeholder("vip").Value(&v.Tag),
			huh.NewInput().Title("Comment").Placeholder("thank you").Value(&v.Comment),
			huh.NewInput().Title("Notification").Placeholder("agent team").Value(&v.Note),
		).Title("Text").Description("Case-insensitive substring matches"),
		huh.NewGroup(
			dateInput("Created after", &v.CreatedStart),
			dateInput("Created before", &v.CreatedEnd),
			dateInput("Updated after", &v.UpdatedStart),
			dateInput("Updated before", &v.UpdatedEnd),
		).Title("Dates").Description("Both bounds are exclusive"),
	).
		WithTheme(NewAppTheme()).
		WithShowHelp(true)

	if width > 0 {
		form = form.WithWidth(width)
	}
	return form
}
