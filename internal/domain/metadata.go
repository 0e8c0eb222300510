package domain

import (
	"encoding/json"
	"math"
	"sort"
	"strconv"
	"strings"
)

// DefaultWeight is used for any scoring field that is absent or not numeric.
const DefaultWeight = 0.5

// Metadata is the typed view of a task's open key-value metadata. Unknown keys
// are kept in Extra and written back unchanged.
type Metadata struct {
	Impact         *float64 `json:"impact,omitempty"`
	Urgency        *float64 `json:"urgency,omitempty"`
	OKRAlignment   *float64 `json:"okr_alignment,omitempty"`
	UserImportance *float64 `json:"user_importance,omitempty"`

	Team     string `json:"team,omitempty"`
	Priority string `json:"priority,omitempty"`
	DueDate  string `json:"due_date,omitempty"`
	Currency string `json:"currency,omitempty"`
	Squad    string `json:"squad,omitempty"`
	Company  string `json:"company,omitempty"`

	Dependencies []string `json:"dependencies,omitempty"`

	Extra map[string]any `json:"-"`
}

var metadataKnownKeys = map[string]struct{}{
	"impact": {}, "urgency": {}, "okr_alignment": {}, "user_importance": {},
	"team": {}, "priority": {}, "due_date": {}, "currency": {}, "squad": {}, "company": {},
	"dependencies": {}, "depends_on": {}, "requires": {},
}

func (m Metadata) ImpactOrDefault() float64         { return orDefault(m.Impact) }
func (m Metadata) UrgencyOrDefault() float64        { return orDefault(m.Urgency) }
func (m Metadata) OKRAlignmentOrDefault() float64   { return orDefault(m.OKRAlignment) }
func (m Metadata) UserImportanceOrDefault() float64 { return orDefault(m.UserImportance) }

func orDefault(v *float64) float64 {
	if v == nil {
		return DefaultWeight
	}
	return *v
}

// Keys returns every key present in the metadata, sorted.
func (m Metadata) Keys() []string {
	raw := m.Map()
	keys := make([]string, 0, len(raw))
	for k := range raw {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// IsEmpty reports whether no key is set.
func (m Metadata) IsEmpty() bool {
	return len(m.Map()) == 0
}

// MetadataFromMap builds typed metadata from an arbitrary map. Malformed values
// for known keys fall back to their defaults instead of failing.
func MetadataFromMap(raw map[string]any) Metadata {
	var m Metadata
	for k, v := range raw {
		switch k {
		case "impact":
			m.Impact = parseWeight(v)
		case "urgency":
			m.Urgency = parseWeight(v)
		case "okr_alignment":
			m.OKRAlignment = parseWeight(v)
		case "user_importance":
			m.UserImportance = parseWeight(v)
		case "team":
			m.Team = stringify(v)
		case "priority":
			m.Priority = stringify(v)
		case "due_date":
			m.DueDate = stringify(v)
		case "currency":
			m.Currency = stringify(v)
		case "squad":
			m.Squad = stringify(v)
		case "company":
			m.Company = stringify(v)
		case "dependencies", "depends_on", "requires":
			m.Dependencies = append(m.Dependencies, parseList(v)...)
		default:
			if m.Extra == nil {
				m.Extra = map[string]any{}
			}
			m.Extra[k] = v
		}
	}
	return m
}

func (m *Metadata) UnmarshalJSON(data []byte) error {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*m = MetadataFromMap(raw)
	return nil
}

func (m Metadata) MarshalJSON() ([]byte, error) {
	return json.Marshal(m.Map())
}

// Map returns the metadata as an open map, the form it is stored and served in.
func (m Metadata) Map() map[string]any {
	out := make(map[string]any, len(m.Extra)+8)
	for k, v := range m.Extra {
		if _, known := metadataKnownKeys[k]; known {
			continue
		}
		out[k] = v
	}
	setFloat := func(k string, v *float64) {
		if v != nil {
			out[k] = *v
		}
	}
	setString := func(k, v string) {
		if v != "" {
			out[k] = v
		}
	}
	setFloat("impact", m.Impact)
	setFloat("urgency", m.Urgency)
	setFloat("okr_alignment", m.OKRAlignment)
	setFloat("user_importance", m.UserImportance)
	setString("team", m.Team)
	setString("priority", m.Priority)
	setString("due_date", m.DueDate)
	setString("currency", m.Currency)
	setString("squad", m.Squad)
	setString("company", m.Company)
	if len(m.Dependencies) > 0 {
		out["dependencies"] = m.Dependencies
	}
	return out
}

func parseWeight(v any) *float64 {
	var f float64
	switch x := v.(type) {
	case float64:
		f = x
	case float32:
		f = float64(x)
	case int:
		f = float64(x)
	case int64:
		f = float64(x)
	case json.Number:
		parsed, err := x.Float64()
		if err != nil {
			return nil
		}
		f = parsed
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		if err != nil {
			return nil
		}
		f = parsed
	default:
		return nil
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil
	}
	return &f
}

func stringify(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(x)
	default:
		b, err := json.Marshal(x)
		if err != nil {
			return ""
		}
		return string(b)
	}
}

func parseList(v any) []string {
	switch x := v.(type) {
	case nil:
		return nil
	case string:
		if strings.TrimSpace(x) == "" {
			return nil
		}
		var out []string
		for _, part := range strings.Split(x, ",") {
			if p := strings.TrimSpace(part); p != "" {
				out = append(out, p)
			}
		}
		return out
	case []string:
		return x
	case []any:
		out := make([]string, 0, len(x))
		for _, item := range x {
			if s := stringify(item); s != "" {
				out = append(out, s)
			}
		}
		return out
	default:
		if s := stringify(x); s != "" {
			return []string{s}
		}
		return nil
	}
}
