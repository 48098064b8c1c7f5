package filter

import (
	"github.com/thesavant42/rulesearch/internal/models"
)

// dateDisplayLen is the length of the date-only prefix of an ISO-8601 timestamp
const dateDisplayLen = 10

// Predicate is a named test applied to every rule of a page
type Predicate struct {
	Name  string
	Match func(models.Rule) bool
}

// Predicates builds the enabled predicates of q in the fixed order
// tag, comment, note, created, updated, active.
func Predicates(q Query) []Predicate {
	var preds []Predicate

	if q.Enabled(KindTag) {
		needle := q.Tag()
		preds = append(preds, Predicate{Name: KindTag.String(), Match: func(r models.Rule) bool {
			return MatchesSubstring(ExtractTagValues(r), needle)
		}})
	}
	if q.Enabled(KindComment) {
		needle := q.Comment()
		preds = append(preds, Predicate{Name: KindComment.String(), Match: func(r models.Rule) bool {
			return MatchesSubstring(ExtractComments(r), needle)
		}})
	}
	if q.Enabled(KindNote) {
		needle := q.Note()
		preds = append(preds, Predicate{Name: KindNote.String(), Match: func(r models.Rule) bool {
			return MatchesSubstring(ExtractNotifications(r), needle)
		}})
	}
	if q.Enabled(KindCreated) {
		rng := q.Created()
		preds = append(preds, Predicate{Name: KindCreated.String(), Match: func(r models.Rule) bool {
			ts, ok := ParseTimestamp(r.CreatedAt)
			return ok && rng.Contains(ts)
		}})
	}
	if q.Enabled(KindUpdated) {
		rng := q.Updated()
		preds = append(preds, Predicate{Name: KindUpdated.String(), Match: func(r models.Rule) bool {
			ts, ok := ParseTimestamp(r.UpdatedAt)
			return ok && rng.Contains(ts)
		}})
	}
	if !q.IncludeInactive() {
		preds = append(preds, Predicate{Name: "active", Match: func(r models.Rule) bool {
			return r.Active
		}})
	}

	return preds
}

// Keep returns the order-preserving subsequence of rules accepted by pred
func Keep(rules []models.Rule, pred Predicate) []models.Rule {
	kept := make([]models.Rule, 0, len(rules))
	for _, r := range rules {
		if pred.Match(r) {
			kept = append(kept, r)
		}
	}
	return kept
}

// Apply filters one page of rules with every enabled predicate of q and
// normalizes the timestamps of the survivors to their date-only prefix.
// The input slice is left untouched.
func Apply(rules []models.Rule, q Query) []models.Rule {
	results := rules
	for _, pred := range Predicates(q) {
		results = Keep(results, pred)
	}

	out := make([]models.Rule, len(results))
	for i, r := range results {
		r.CreatedAt = dateOnly(r.CreatedAt)
		r.UpdatedAt = dateOnly(r.UpdatedAt)
		out[i] = r
	}
	return out
}

func dateOnly(ts string) string {
	if len(ts) <= dateDisplayLen {
		return ts
	}
	return ts[:dateDisplayLen]
}
