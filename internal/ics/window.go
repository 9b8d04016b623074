package ics

import (
	"math"
	"sort"
	"time"

	"github.com/teambition/rrule-go"

	appLog "calexport/internal/log"
	"calexport/internal/model"
)

// maxCandidates caps how many occurrences of one series are inspected while
// looking for the first one inside the window.
const maxCandidates = 5000

// SelectWindow returns the events that overlap [w.From, w.To), sorted by
// start. A recurring series is returned once, carrying the bounds of its
// first occurrence in the window; its rule is summarized, not expanded.
// Occurrences replaced by a RECURRENCE-ID override are skipped in favor of
// the override, which inherits the series rule when it has none of its own.
// An empty or inverted window matches nothing.
func SelectWindow(events []ParsedEvent, w model.Window) []model.Event {
	out := make([]model.Event, 0)
	if !w.From.Before(w.To) {
		return out
	}

	overridesByUID := make(map[string][]ParsedEvent)
	baseByUID := make(map[string]ParsedEvent)
	for _, pe := range events {
		if pe.RecurrenceID != nil {
			overridesByUID[pe.Event.UID] = append(overridesByUID[pe.Event.UID], pe)
		} else if _, seen := baseByUID[pe.Event.UID]; !seen {
			baseByUID[pe.Event.UID] = pe
		}
	}

	for _, pe := range events {
		if pe.RecurrenceID != nil {
			ev := pe.Event
			if len(ev.RecurrenceRules) == 0 {
				if base, ok := baseByUID[ev.UID]; ok {
					ev.RecurrenceRules = base.Event.RecurrenceRules
				}
			}
			if overlaps(ev.Start, ev.End, w) {
				out = append(out, ev)
			}
			continue
		}

		if pe.RawRRule == "" {
			if overlaps(pe.Event.Start, pe.Event.End, w) {
				out = append(out, pe.Event)
			}
			continue
		}

		if ev, ok := firstOccurrence(pe, overridesByUID[pe.Event.UID], w); ok {
			out = append(out, ev)
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Start.Before(out[j].Start)
	})
	return out
}

// firstOccurrence finds the earliest occurrence of a series that overlaps w
// and is not excluded by EXDATE or replaced by an override.
func firstOccurrence(pe ParsedEvent, overrides []ParsedEvent, w model.Window) (model.Event, bool) {
	ev := pe.Event
	startLoc := ev.Start.Location()

	opt, err := rrule.StrToROptionInLocation(pe.RawRRule, startLoc)
	if err != nil {
		appLog.Warn("ics rrule unparseable, treating as single event", "uid", ev.UID, "rrule", pe.RawRRule, "err", err)
		return ev, overlaps(ev.Start, ev.End, w)
	}
	opt.Dtstart = ev.Start
	r, err := rrule.NewRRule(*opt)
	if err != nil {
		appLog.Warn("ics rrule invalid, treating as single event", "uid", ev.UID, "rrule", pe.RawRRule, "err", err)
		return ev, overlaps(ev.Start, ev.End, w)
	}

	var set rrule.Set
	set.RRule(r)
	for _, ex := range pe.ExDates {
		set.ExDate(ex.In(startLoc))
	}
	for _, o := range overrides {
		set.ExDate(o.RecurrenceID.In(startLoc))
	}

	dur := ev.End.Sub(ev.Start)
	if dur < 0 {
		dur = 0
	}
	days := int(math.Round(dur.Hours() / 24))

	after := w.From.Add(-dur).In(startLoc)
	before := w.To.In(startLoc)
	candidates := set.Between(after, before, true)
	if len(candidates) > maxCandidates {
		appLog.Warn("ics occurrence scan truncated", "uid", ev.UID, "cap", maxCandidates)
		candidates = candidates[:maxCandidates]
	}

	for _, start := range candidates {
		var end time.Time
		if ev.AllDay {
			end = start.AddDate(0, 0, days)
		} else {
			end = start.Add(dur)
		}
		if overlaps(start, end, w) {
			ev.Start = start
			ev.End = end
			return ev, true
		}
	}
	return model.Event{}, false
}

// overlaps reports whether [start, end) intersects w. Zero-length events
// match when they start inside the window.
func overlaps(start, end time.Time, w model.Window) bool {
	if end.After(start) {
		return start.Before(w.To) && end.After(w.From)
	}
	return !start.Before(w.From) && start.Before(w.To)
}
