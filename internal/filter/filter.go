// Package filter selects the rows of a dataset that match an identifier
// allow-list and a time range or bucket allow-list. An empty result is a
// valid outcome.
//
// A nil list leaves its constraint open, as does a list holding All. A
// non-nil empty list selects nothing.
package filter

import (
	"errors"
	"fmt"
	"time"

	"kpidash/internal/classify"
	"kpidash/internal/dataset"
)

// All selects every identifier or every bucket.
const All = "All"

// ErrInvalidRange is returned when From is after To.
var ErrInvalidRange = errors.New("invalid time range: from is after to")

// Selection is one filter request. Zero value selects everything.
type Selection struct {
	Identifiers []string   `json:"identifiers"`
	From        *time.Time `json:"from,omitempty"`
	To          *time.Time `json:"to,omitempty"`
	Buckets     []string   `json:"buckets"`
}

// Validate checks the time range.
func (s Selection) Validate() error {
	if s.From != nil && s.To != nil && s.From.After(*s.To) {
		return fmt.Errorf("%w (%s > %s)", ErrInvalidRange,
			s.From.Format(time.DateOnly), s.To.Format(time.DateOnly))
	}
	return nil
}

// AllIdentifiers reports whether the identifier constraint is open: no
// list given, or "All" among them.
func (s Selection) AllIdentifiers() bool {
	return open(s.Identifiers)
}

// AllBuckets reports whether the bucket constraint is open.
func (s Selection) AllBuckets() bool {
	return open(s.Buckets)
}

// Empty reports whether the selection explicitly chose no identifiers or
// no buckets.
func (s Selection) Empty() bool {
	return (s.Identifiers != nil && len(s.Identifiers) == 0) ||
		(s.Buckets != nil && len(s.Buckets) == 0)
}

func open(values []string) bool {
	if values == nil {
		return true
	}
	for _, v := range values {
		if v == All {
			return true
		}
	}
	return false
}

// HasRange reports whether a time range is set.
func (s Selection) HasRange() bool {
	return s.From != nil || s.To != nil
}

// Apply returns the rows of ds satisfying both constraints, in their
// original order. A constraint on a column the dataset lacks is skipped;
// Skipped lists those for display. An empty selection keeps no rows even
// when the column is missing.
func Apply(ds *dataset.Dataset, roles classify.Roles, sel Selection) (*dataset.Dataset, error) {
	if err := sel.Validate(); err != nil {
		return nil, err
	}
	if sel.Empty() {
		return ds.Subset(nil)
	}

	keep := make([]bool, ds.Len())
	for i := range keep {
		keep[i] = true
	}

	if !sel.AllIdentifiers() && ds.HasColumn(roles.Identifier) {
		allowed := toSet(sel.Identifiers)
		ids, err := ds.Strings(roles.Identifier)
		if err != nil {
			return nil, err
		}
		for i, id := range ids {
			if _, ok := allowed[id]; !ok {
				keep[i] = false
			}
		}
	}

	if (sel.HasRange() || !sel.AllBuckets()) && ds.HasColumn(roles.Time) {
		buckets, err := ds.Buckets(roles.Time)
		if err != nil {
			return nil, err
		}

		if sel.HasRange() && anyParsed(buckets) {
			for i, b := range buckets {
				if !b.Parsed || !inRange(b.Time, sel.From, sel.To) {
					keep[i] = false
				}
			}
		}

		if !sel.AllBuckets() {
			allowed := toSet(sel.Buckets)
			for i, b := range buckets {
				_, byKey := allowed[b.Key()]
				_, byLabel := allowed[b.Label]
				if !byKey && !byLabel {
					keep[i] = false
				}
			}
		}
	}

	rows := make([]int, 0, len(keep))
	for i, k := range keep {
		if k {
			rows = append(rows, i)
		}
	}
	return ds.Subset(rows)
}

// Skipped describes the parts of sel that Apply ignores for ds.
func Skipped(ds *dataset.Dataset, roles classify.Roles, sel Selection) []string {
	var notices []string
	if sel.Empty() {
		return nil
	}

	if !sel.AllIdentifiers() && !ds.HasColumn(roles.Identifier) {
		notices = append(notices, "No identifier column; the identifier filter was not applied.")
	}

	if !sel.HasRange() && sel.AllBuckets() {
		return notices
	}
	if !ds.HasColumn(roles.Time) {
		return append(notices, "No time column; the time filter was not applied.")
	}
	if sel.HasRange() {
		buckets, err := ds.Buckets(roles.Time)
		if err == nil && !anyParsed(buckets) {
			notices = append(notices, fmt.Sprintf("Column %s holds no dates; the date range was not applied.", roles.Time))
		}
	}
	return notices
}

// inRange is inclusive; a date-only To covers the whole day
func inRange(t time.Time, from, to *time.Time) bool {
	if from != nil && t.Before(*from) {
		return false
	}
	if to != nil {
		end := *to
		if end.Hour() == 0 && end.Minute() == 0 && end.Second() == 0 && end.Nanosecond() == 0 {
			end = end.AddDate(0, 0, 1)
			return t.Before(end)
		}
		return !t.After(end)
	}
	return true
}

func anyParsed(buckets []dataset.Bucket) bool {
	for _, b := range buckets {
		if b.Parsed {
			return true
		}
	}
	return false
}

func toSet(values []string) map[string]struct{} {
	set := make(map[string]struct{}, len(values))
	for _, v := range values {
		set[v] = struct{}{}
	}
	return set
}
