package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// ResourceType is a searchable automation collection on the helpdesk API
type ResourceType string

const (
	ResourceMacros      ResourceType = "macros"
	ResourceTriggers    ResourceType = "triggers"
	ResourceAutomations ResourceType = "automations"
	ResourceViews       ResourceType = "views"
)

// DefaultResourceType is used when no type is selected
const DefaultResourceType = ResourceMacros

// ResourceTypes lists the supported collections in selector order
func ResourceTypes() []ResourceType {
	return []ResourceType{ResourceMacros, ResourceTriggers, ResourceAutomations, ResourceViews}
}

// Valid reports whether t is one of the supported collections
func (t ResourceType) Valid() bool {
	for _, rt := range ResourceTypes() {
		if rt == t {
			return true
		}
	}
	return false
}

// Rule is a macro/trigger/automation record returned by the API
type Rule struct {
	ID          int64    `json:"id"`
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Active      bool     `json:"active"`
	Position    int      `json:"position"`
	CreatedAt   string   `json:"created_at"` // ISO-8601 as received
	UpdatedAt   string   `json:"updated_at"` // ISO-8601 as received
	Actions     []Action `json:"actions"`
}

// Action is one configured effect of a rule
type Action struct {
	Field string      `json:"field"`
	Value ActionValue `json:"value"`
}

// ValueKind tags the shape of an ActionValue
type ValueKind int

const (
	ValueNone ValueKind = iota
	ValueScalar
	ValueList
)

// ActionValue is the value of an action: absent, a single string, or a list of strings.
// The zero value is ValueNone.
type ActionValue struct {
	kind   ValueKind
	scalar string
	list   []string
}

// NoValue returns an absent value
func NoValue() ActionValue { return ActionValue{} }

// ScalarValue returns a single-string value
func ScalarValue(s string) ActionValue {
	return ActionValue{kind: ValueScalar, scalar: s}
}

// ListValue returns a list value
func ListValue(items ...string) ActionValue {
	list := make([]string, len(items))
	copy(list, items)
	return ActionValue{kind: ValueList, list: list}
}

// Kind returns the shape of the value
func (v ActionValue) Kind() ValueKind { return v.kind }

// IsNone reports whether the value is absent
func (v ActionValue) IsNone() bool { return v.kind == ValueNone }

// Strings returns every element of the value. A scalar yields one element, none yields nil.
func (v ActionValue) Strings() []string {
	switch v.kind {
	case ValueScalar:
		return []string{v.scalar}
	case ValueList:
		out := make([]string, len(v.list))
		copy(out, v.list)
		return out
	default:
		return nil
	}
}

// Second returns the element at index 1 of a list value.
// Scalars and short lists have no second element.
func (v ActionValue) Second() (string, bool) {
	if v.kind != ValueList || len(v.list) < 2 {
		return "", false
	}
	return v.list[1], true
}

// Last returns the final element of the value. A scalar is its own last element.
func (v ActionValue) Last() (string, bool) {
	switch v.kind {
	case ValueScalar:
		return v.scalar, true
	case ValueList:
		if len(v.list) == 0 {
			return "", false
		}
		return v.list[len(v.list)-1], true
	default:
		return "", false
	}
}

// String renders the value for display
func (v ActionValue) String() string {
	switch v.kind {
	case ValueScalar:
		return v.scalar
	case ValueList:
		var b bytes.Buffer
		for i, s := range v.list {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString(s)
		}
		return b.String()
	default:
		return ""
	}
}

// UnmarshalJSON decodes null, a scalar, or an array of scalars.
// Non-string scalars (numbers, booleans) are kept in their JSON text form.
// Objects and nested arrays decode as no value, so the rest of the rule stays usable.
func (v *ActionValue) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*v = NoValue()
		return nil
	}

	if data[0] == '[' {
		var raw []json.RawMessage
		if err := json.Unmarshal(data, &raw); err != nil {
			return fmt.Errorf("failed to decode action value list: %w", err)
		}
		items := make([]string, 0, len(raw))
		for _, r := range raw {
			s, err := scalarText(r)
			if err != nil {
				*v = NoValue()
				return nil
			}
			items = append(items, s)
		}
		*v = ActionValue{kind: ValueList, list: items}
		return nil
	}

	s, err := scalarText(data)
	if err != nil {
		*v = NoValue()
		return nil
	}
	*v = ScalarValue(s)
	return nil
}

// MarshalJSON encodes the value back to its JSON shape
func (v ActionValue) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case ValueScalar:
		return json.Marshal(v.scalar)
	case ValueList:
		return json.Marshal(v.list)
	default:
		return []byte("null"), nil
	}
}

func scalarText(data json.RawMessage) (string, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return "", nil
	}
	switch data[0] {
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return "", fmt.Errorf("failed to decode action value: %w", err)
		}
		return s, nil
	case '{', '[':
		return "", fmt.Errorf("unsupported nested action value: %s", data)
	default:
		// numbers and booleans
		if _, err := strconv.ParseFloat(string(data), 64); err == nil {
			return string(data), nil
		}
		if b, err := strconv.ParseBool(string(data)); err == nil {
			return strconv.FormatBool(b), nil
		}
		return "", fmt.Errorf("unsupported action value: %s", data)
	}
}

// Page is one API response: a batch of rules plus the cursor for the next batch
type Page struct {
	Rules    []Rule
	NextPage string // empty when there are no more pages
	Count    int    // total reported by the server, 0 if absent
	Skipped  int    // records whose envelope failed to decode
}

// HasMore reports whether the server supplied a continuation cursor
func (p *Page) HasMore() bool {
	return p != nil && p.NextPage != ""
}
