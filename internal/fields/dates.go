package fields

import (
	"strings"
	"time"

	"github.com/olebedev/when"
	"github.com/olebedev/when/rules/common"
	"github.com/olebedev/when/rules/en"
)

// Explicit layouts tried in order before falling back to natural-language
// parsing. ISO first, then day-first, then month-first, then named months.
var dateLayouts = []string{
	"2006-01-02",
	"02/01/2006",
	"01/02/2006",
	"2/1/2006",
	"1/2/2006",
	"2 January 2006",
	"January 2, 2006",
	"2 Jan 2006",
	"Jan 2, 2006",
}

var nlDates = func() *when.Parser {
	w := when.New(nil)
	w.Add(en.All...)
	w.Add(common.All...)
	return w
}()

// NormalizeDate turns a date-ish string into ISO form (YYYY-MM-DD). Explicit
// layouts win; otherwise the natural-language parser is tried against now,
// biased toward the future by date math on relative phrases. Strings that
// still don't parse are returned unchanged; an unparsed date is a soft
// failure, never an error.
func NormalizeDate(s string, now time.Time) string {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" { return s }
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, trimmed); err == nil {
			return t.Format("2006-01-02")
		}
	}
	if r, err := nlDates.Parse(trimmed, now); err == nil && r != nil {
		t := r.Time
		// Prefer future: a bare phrase resolving to earlier today or the
		// past almost always means the next occurrence.
		if t.Before(now.Truncate(24 * time.Hour)) {
			t = t.AddDate(0, 0, 1)
		}
		return t.Format("2006-01-02")
	}
	return s
}
