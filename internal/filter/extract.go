package filter

import (
	"strings"

	"github.com/thesavant42/rulesearch/internal/models"
)

const (
	commentField      = "comment_value"
	notificationToken = "notification"
)

// ExtractTagValues returns every action value of the rule, lower-cased.
// Field names are not consulted, so the tag filter is a broad search over all values.
// Absent and empty scalar values are left out.
func ExtractTagValues(rule models.Rule) []string {
	var values []string
	for _, a := range rule.Actions {
		if a.Value.IsNone() || (a.Value.Kind() == models.ValueScalar && a.Value.String() == "") {
			continue
		}
		for _, s := range a.Value.Strings() {
			values = append(values, strings.ToLower(s))
		}
	}
	return values
}

// ExtractComments returns the comment bodies (second value element) of comment_value actions
func ExtractComments(rule models.Rule) []string {
	var comments []string
	for _, a := range rule.Actions {
		if a.Field != commentField {
			continue
		}
		if body, ok := a.Value.Second(); ok {
			comments = append(comments, strings.ToLower(body))
		}
	}
	return comments
}

// ExtractNotifications returns the last value element of every *notification* action
func ExtractNotifications(rule models.Rule) []string {
	var notes []string
	for _, a := range rule.Actions {
		if !strings.Contains(a.Field, notificationToken) {
			continue
		}
		if target, ok := a.Value.Last(); ok {
			notes = append(notes, strings.ToLower(target))
		}
	}
	return notes
}
