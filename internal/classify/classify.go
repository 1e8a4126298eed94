// Package classify guesses which columns of a dataset hold the identifier,
// the time bucket and the metrics. Matching is by fixed name patterns in
// priority order; ties and false positives are not detected.
package classify

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/mozillazg/go-unidecode"

	"kpidash/internal/dataset"
)

// Role is the part a column plays on the dashboard.
type Role string

const (
	RoleIdentifier Role = "identifier"
	RoleTime       Role = "time"
	RoleMetric     Role = "metric"
	RoleOther      Role = "other"
)

// DefaultIdentifier is preferred over any pattern match.
const DefaultIdentifier = "Employee_ID"

// timePatterns in priority order
var timePatterns = []string{"report", "period", "week", "date", "quarter"}

// Hints name columns explicitly and override detection.
type Hints struct {
	Identifier string `json:"identifier,omitempty"`
	Time       string `json:"time,omitempty"`
}

// Roles is the classification of every column.
type Roles struct {
	Identifier string   `json:"identifier"`
	Time       string   `json:"time,omitempty"`
	Metrics    []string `json:"metrics"`
	Other      []string `json:"other"`
	Notices    []string `json:"notices,omitempty"`
}

// HasTime reports whether a time column was found.
func (r Roles) HasTime() bool { return r.Time != "" }

// RoleOf returns the role of a column.
func (r Roles) RoleOf(col string) Role {
	switch {
	case col == "":
		return RoleOther
	case col == r.Identifier:
		return RoleIdentifier
	case col == r.Time:
		return RoleTime
	}
	for _, m := range r.Metrics {
		if m == col {
			return RoleMetric
		}
	}
	return RoleOther
}

// IsMetric reports whether col is one of the metric columns.
func (r Roles) IsMetric(col string) bool {
	return r.RoleOf(col) == RoleMetric
}

// Classify assigns roles to the columns of ds.
func Classify(ds *dataset.Dataset, hints Hints) Roles {
	cols := ds.Columns()
	var roles Roles

	roles.Time = pickHint(ds, hints.Time, "time", &roles)
	if roles.Time == "" {
		roles.Time = detectTime(cols)
	}

	roles.Identifier = pickHint(ds, hints.Identifier, "identifier", &roles)
	if roles.Identifier == "" {
		roles.Identifier = detectIdentifier(cols, roles.Time)
	}

	for _, c := range cols {
		switch {
		case c == roles.Identifier || c == roles.Time:
		case ds.IsNumeric(c):
			roles.Metrics = append(roles.Metrics, c)
		default:
			roles.Other = append(roles.Other, c)
		}
	}

	return roles
}

// pickHint returns the hinted column when present and records a notice
// otherwise.
func pickHint(ds *dataset.Dataset, hint, role string, roles *Roles) string {
	if hint == "" {
		return ""
	}
	if ds.HasColumn(hint) {
		return hint
	}
	roles.Notices = append(roles.Notices,
		fmt.Sprintf("Configured %s column %q not found; detecting it from column names.", role, hint))
	return ""
}

func detectTime(cols []string) string {
	normalized := normalizeAll(cols)
	for _, pattern := range timePatterns {
		for i, n := range normalized {
			if strings.Contains(n, pattern) {
				return cols[i]
			}
		}
	}
	return ""
}

func detectIdentifier(cols []string, timeCol string) string {
	normalized := normalizeAll(cols)
	exact := Normalize(DefaultIdentifier)

	for i, n := range normalized {
		if n == exact {
			return cols[i]
		}
	}
	for i, n := range normalized {
		if cols[i] != timeCol && strings.Contains(n, "employee") {
			return cols[i]
		}
	}
	for _, c := range cols {
		if c == timeCol {
			continue
		}
		for _, tok := range Tokens(c) {
			if tok == "id" {
				return c
			}
		}
	}
	for _, c := range cols {
		if c != timeCol {
			return c
		}
	}
	return ""
}

// Normalize transliterates a column name to ASCII and lower-cases it.
func Normalize(name string) string {
	return strings.ToLower(strings.TrimSpace(unidecode.Unidecode(name)))
}

func normalizeAll(cols []string) []string {
	out := make([]string, len(cols))
	for i, c := range cols {
		out[i] = Normalize(c)
	}
	return out
}

// Tokens splits a name on separators and camel case boundaries and returns
// lower-cased ASCII words: "EmployeeID" -> [employee id].
func Tokens(name string) []string {
	runes := []rune(unidecode.Unidecode(name))
	var tokens []string
	var cur []rune

	flush := func() {
		if len(cur) > 0 {
			tokens = append(tokens, strings.ToLower(string(cur)))
			cur = cur[:0]
		}
	}

	for i, r := range runes {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) {
			flush()
			continue
		}
		if i > 0 && unicode.IsUpper(r) && len(cur) > 0 {
			prev := runes[i-1]
			nextLower := i+1 < len(runes) && unicode.IsLower(runes[i+1])
			if unicode.IsLower(prev) || unicode.IsDigit(prev) || (unicode.IsUpper(prev) && nextLower) {
				flush()
			}
		}
		cur = append(cur, r)
	}
	flush()
	return tokens
}
