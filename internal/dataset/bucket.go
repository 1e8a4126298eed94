package dataset

import (
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"
)

// Bucket is one time bucket value: the raw label and, when the label could
// be read as a date, its parsed time.
type Bucket struct {
	Label  string    `json:"label"`
	Time   time.Time `json:"time,omitempty"`
	Parsed bool      `json:"parsed"`
}

// Compare orders buckets: parsed before unparsed, parsed by time, unparsed
// by label. Returns -1, 0 or 1.
func (b Bucket) Compare(o Bucket) int {
	switch {
	case b.Parsed && !o.Parsed:
		return -1
	case !b.Parsed && o.Parsed:
		return 1
	case b.Parsed:
		return b.Time.Compare(o.Time)
	}

	// plain week or period numbers sort numerically
	x, errX := strconv.ParseFloat(b.Label, 64)
	y, errY := strconv.ParseFloat(o.Label, 64)
	if errX == nil && errY == nil {
		switch {
		case x < y:
			return -1
		case x > y:
			return 1
		}
		return 0
	}
	return strings.Compare(b.Label, o.Label)
}

// Key is the canonical text of the bucket, used for allow-lists and as the
// stored cell value after coercion.
func (b Bucket) Key() string {
	if !b.Parsed {
		return b.Label
	}
	return FormatTime(b.Time)
}

// FormatTime renders dates as YYYY-MM-DD and keeps the clock only when it
// carries information.
func FormatTime(t time.Time) string {
	if t.Hour() == 0 && t.Minute() == 0 && t.Second() == 0 && t.Nanosecond() == 0 {
		return t.Format(time.DateOnly)
	}
	return t.Format(time.DateTime)
}

var layouts = []string{
	time.DateOnly,
	time.DateTime,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006/01/02",
	"01/02/2006",
	"1/2/2006",
	"01-02-06",
	"1-2-06",
	"01/02/06",
	"1/2/06",
	"2006-01",
	"Jan 2006",
	"January 2006",
	"Jan 2, 2006",
	"January 2, 2006",
	"02-Jan-2006",
	"2-Jan-06",
	"02 Jan 2006",
}

// day-first layouts, tried only when the month-first reading is impossible
var dayFirstLayouts = []string{
	"02/01/2006",
	"2/1/2006",
	"02.01.2006",
	"2.1.2006",
}

var (
	quarterYearFirst = regexp.MustCompile(`^(\d{4})\s*[-_ ]?\s*[Qq]([1-4])$`)
	quarterYearLast  = regexp.MustCompile(`^[Qq]([1-4])\s*[-_ ]?\s*(\d{4})$`)
	isoWeek          = regexp.MustCompile(`^(\d{4})\s*-?\s*[Ww](\d{1,2})$`)
)

// Excel serial numbers in this window map to 1954..2119; anything outside
// is far more likely a plain count than a date.
const (
	minExcelSerial = 20000
	maxExcelSerial = 80000
)

// ParseBucket reads a time bucket label. Unparsable labels come back with
// Parsed false and the label preserved.
func ParseBucket(label string) Bucket {
	s := strings.TrimSpace(label)
	b := Bucket{Label: s}
	if s == "" {
		return b
	}

	if t, ok := parseTime(s); ok {
		b.Time = t
		b.Parsed = true
	}
	return b
}

func parseTime(s string) (time.Time, bool) {
	for _, layout := range layouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	for _, layout := range dayFirstLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}

	if m := quarterYearFirst.FindStringSubmatch(s); m != nil {
		return quarterStart(m[1], m[2]), true
	}
	if m := quarterYearLast.FindStringSubmatch(s); m != nil {
		return quarterStart(m[2], m[1]), true
	}
	if m := isoWeek.FindStringSubmatch(s); m != nil {
		if t, ok := weekStart(m[1], m[2]); ok {
			return t, true
		}
	}

	if f, err := strconv.ParseFloat(s, 64); err == nil && !math.IsNaN(f) && f >= minExcelSerial && f <= maxExcelSerial {
		if t, err := excelize.ExcelDateToTime(f, false); err == nil {
			return t.UTC(), true
		}
	}

	return time.Time{}, false
}

func quarterStart(year, quarter string) time.Time {
	y, _ := strconv.Atoi(year)
	q, _ := strconv.Atoi(quarter)
	return time.Date(y, time.Month((q-1)*3+1), 1, 0, 0, 0, 0, time.UTC)
}

// weekStart returns the Monday of ISO week w of year y
func weekStart(year, week string) (time.Time, bool) {
	y, _ := strconv.Atoi(year)
	w, _ := strconv.Atoi(week)
	if w < 1 || w > 53 {
		return time.Time{}, false
	}

	// January 4th is always in week 1
	jan4 := time.Date(y, time.January, 4, 0, 0, 0, 0, time.UTC)
	offset := (int(jan4.Weekday()) + 6) % 7
	monday := jan4.AddDate(0, 0, -offset)
	return monday.AddDate(0, 0, (w-1)*7), true
}
