package export

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/thesavant42/rulesearch/internal/models"
)

// Meta describes the search an export came from
type Meta struct {
	Type      models.ResourceType
	Query     string
	Account   string
	Generated time.Time
}

// Filename builds a timestamped export file name, e.g. macros-20240102-150405.md
func Filename(rt models.ResourceType, ext string, now time.Time) string {
	name := string(rt)
	if name == "" {
		name = string(models.DefaultResourceType)
	}
	return fmt.Sprintf("%s-%s.%s", name, now.Format("20060102-150405"), strings.TrimPrefix(ext, "."))
}

// WriteMarkdown renders rules as a Markdown report: a summary table followed
// by the actions of every rule.
func WriteMarkdown(w io.Writer, rules []models.Rule, meta Meta) error {
	var sb strings.Builder

	generated := meta.Generated
	if generated.IsZero() {
		generated = time.Now()
	}

	sb.WriteString(fmt.Sprintf("# %s search results\n\n", titleCase(string(meta.Type))))
	if meta.Account != "" {
		sb.WriteString(fmt.Sprintf("**Account:** %s\n", meta.Account))
	}
	if meta.Query != "" {
		sb.WriteString(fmt.Sprintf("**Query:** %s\n", escapeCell(meta.Query)))
	}
	sb.WriteString(fmt.Sprintf("**Total Results:** %d\n", len(rules)))
	sb.WriteString(fmt.Sprintf("**Generated:** %s\n\n", generated.Format("2006-01-02 15:04:05")))

	sb.WriteString("| ID | Title | Active | Created | Updated |\n")
	sb.WriteString("|----|-------|--------|---------|---------|\n")
	for _, r := range rules {
		active := "No"
		if r.Active {
			active = "Yes"
		}
		sb.WriteString(fmt.Sprintf("| %d | %s | %s | %s | %s |\n",
			r.ID, escapeCell(r.Title), active, orDash(r.CreatedAt), orDash(r.UpdatedAt)))
	}

	if len(rules) > 0 {
		sb.WriteString("\n## Actions\n")
	}
	for _, r := range rules {
		sb.WriteString(fmt.Sprintf("\n### %d: %s\n\n", r.ID, r.Title))
		if r.Description != "" {
			sb.WriteString(r.Description)
			sb.WriteString("\n\n")
		}
		if len(r.Actions) == 0 {
			sb.WriteString("_No actions_\n")
			continue
		}
		for _, a := range r.Actions {
			value := a.Value.String()
			if a.Value.IsNone() {
				value = "(none)"
			}
			sb.WriteString(fmt.Sprintf("- `%s`: %s\n", a.Field, value))
		}
	}

	if _, err := io.WriteString(w, sb.String()); err != nil {
		return fmt.Errorf("failed to write markdown: %w", err)
	}
	return nil
}

// ToMarkdownFile writes the report into dir and returns the file path
func ToMarkdownFile(dir string, rules []models.Rule, meta Meta) (string, error) {
	if meta.Generated.IsZero() {
		meta.Generated = time.Now()
	}
	if dir == "" {
		dir = "."
	}
	path := filepath.Join(dir, Filename(meta.Type, "md", meta.Generated))

	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("failed to create markdown file: %w", err)
	}
	defer f.Close()

	if err := WriteMarkdown(f, rules, meta); err != nil {
		return "", err
	}
	return path, nil
}

func escapeCell(s string) string {
	s = strings.ReplaceAll(s, "|", "\\|")
	return strings.ReplaceAll(s, "\n", " ")
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func titleCase(s string) string {
	if s == "" {
		return "Rule"
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
