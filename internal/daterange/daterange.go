// Package daterange turns --from/--to/--days into the query window.
package daterange

import (
	"fmt"
	"time"

	"calexport/internal/model"
)

// DateLayout is the only accepted format for explicit dates, and the format
// the exported range is rendered in.
const DateLayout = "2006-01-02"

// DefaultDays is the window length when neither --to nor --days is given.
const DefaultDays = 7

// Date is a calendar day with no location attached.
type Date struct {
	Year  int
	Month time.Month
	Day   int
}

// ParseDate parses a YYYY-MM-DD string.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return Date{}, fmt.Errorf("requires YYYY-MM-DD format, got '%s'", s)
	}
	return Date{Year: t.Year(), Month: t.Month(), Day: t.Day()}, nil
}

// In returns midnight of d in loc.
func (d Date) In(loc *time.Location) time.Time {
	return time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, loc)
}

func (d Date) String() string {
	return fmt.Sprintf("%04d-%02d-%02d", d.Year, d.Month, d.Day)
}

// Today returns the start of the local day containing now.
func Today(now time.Time, loc *time.Location) time.Time {
	n := now.In(loc)
	return time.Date(n.Year(), n.Month(), n.Day(), 0, 0, 0, 0, loc)
}

// Options are the user-supplied range inputs. Nil dates were not given.
type Options struct {
	From *Date
	To   *Date
	Days int
}

// Resolve applies the precedence rules: From defaults to today, To overrides
// Days, and Days is added as calendar days so DST transitions keep local
// midnight. The sign of Days is not checked.
func Resolve(opts Options, today time.Time) model.Window {
	loc := today.Location()

	from := today
	if opts.From != nil {
		from = opts.From.In(loc)
	}

	var to time.Time
	if opts.To != nil {
		to = opts.To.In(loc)
	} else {
		to = from.AddDate(0, 0, opts.Days)
	}

	return model.Window{From: from, To: to}
}
