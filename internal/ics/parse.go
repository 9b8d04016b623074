package ics

import (
	"bytes"
	"errors"
	"strconv"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"
	goical "github.com/emersion/go-ical"
	"github.com/teambition/rrule-go"

	appLog "calexport/internal/log"
	"calexport/internal/model"
)

// ParsedEvent is a VEVENT normalized into a store event, plus the raw
// recurrence data window selection needs.
type ParsedEvent struct {
	Event model.Event

	RawRRule     string
	ExDates      []time.Time
	RecurrenceID *time.Time // set when this VEVENT overrides one occurrence
}

// ParseICS parses one ICS payload. Every event is attributed to calendar.
// loc is used for all-day dates, for floating times without TZID and for
// TZIDs the system zone database does not know.
//
//   - VEVENTs without UID are logged and skipped.
//   - All-day events are detected from VALUE=DATE or a date-only DTSTART.
//   - RRULEs are summarized but not expanded.
func ParseICS(calendar string, body []byte, loc *time.Location) ([]ParsedEvent, error) {
	if len(body) == 0 {
		return nil, errors.New("empty ICS body")
	}
	if loc == nil {
		loc = time.Local
	}

	cal, err := ical.ParseCalendar(bytes.NewReader(body))
	if err != nil {
		return nil, err
	}

	events := make([]ParsedEvent, 0)
	for _, comp := range cal.Events() {
		ev, perr := parseVEvent(calendar, comp, loc)
		if perr != nil {
			appLog.Warn("ics vevent skipped", "calendar", calendar, "err", perr)
			continue
		}
		events = append(events, ev)
	}

	appLog.Debug("ics parse completed", "calendar", calendar, "event_count", len(events))
	return events, nil
}

func parseVEvent(calendar string, ve *ical.VEvent, loc *time.Location) (ParsedEvent, error) {
	var out ParsedEvent
	ev := &out.Event
	ev.Calendar = calendar

	uidProp := ve.GetProperty(ical.ComponentPropertyUniqueId)
	if uidProp == nil || uidProp.Value == "" {
		return out, errors.New("missing UID")
	}
	ev.UID = uidProp.Value

	ev.Title = propValue(ve, ical.ComponentPropertySummary)
	ev.Notes = propValue(ve, ical.ComponentPropertyDescription)
	ev.Location = propValue(ve, ical.ComponentPropertyLocation)
	ev.URL = propValue(ve, ical.ComponentPropertyUrl)
	ev.Status = model.Status(strings.ToUpper(strings.TrimSpace(propValue(ve, ical.ComponentPropertyStatus))))

	dtStart := ve.GetProperty(ical.ComponentPropertyDtStart)
	if dtStart == nil {
		return out, errors.New("missing DTSTART")
	}
	ev.AllDay = isDateValue(dtStart)

	if ev.AllDay {
		start, err := parseDate(dtStart.Value, loc)
		if err != nil {
			return out, err
		}
		ev.Start = start
		ev.End = start.AddDate(0, 0, 1)
		if dtEnd := ve.GetProperty(ical.ComponentPropertyDtEnd); dtEnd != nil {
			if end, err := parseDate(dtEnd.Value, loc); err == nil && end.After(start) {
				ev.End = end
			}
		} else if dur, ok := eventDuration(ve); ok {
			if days := int(dur / (24 * time.Hour)); days > 0 {
				ev.End = start.AddDate(0, 0, days)
			}
		}
	} else {
		start, err := parseDateTime(dtStart, loc)
		if err != nil {
			return out, err
		}
		ev.Start = start
		ev.End = start
		if dtEnd := ve.GetProperty(ical.ComponentPropertyDtEnd); dtEnd != nil {
			if end, err := parseDateTime(dtEnd, loc); err == nil {
				ev.End = end
			}
		} else if dur, ok := eventDuration(ve); ok && dur > 0 {
			ev.End = start.Add(dur)
		}
	}

	if p := ve.GetProperty(ical.ComponentPropertyOrganizer); p != nil && p.Value != "" {
		org := parseParticipant(p)
		ev.Organizer = &org
	}
	for _, p := range ve.GetProperties(ical.ComponentPropertyAttendee) {
		if p.Value == "" {
			continue
		}
		ev.Attendees = append(ev.Attendees, parseParticipant(p))
	}

	for _, p := range ve.GetProperties(ical.ComponentPropertyRrule) {
		if p.Value == "" {
			continue
		}
		if out.RawRRule == "" {
			out.RawRRule = p.Value
		}
		ev.RecurrenceRules = append(ev.RecurrenceRules, summarizeRule(p.Value, ev.Start.Location()))
	}

	for _, p := range ve.GetProperties(ical.ComponentPropertyExdate) {
		exLoc := paramLocation(p, ev.Start.Location())
		for _, part := range strings.Split(p.Value, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			if t, err := parseICSTime(part, exLoc); err == nil {
				out.ExDates = append(out.ExDates, t)
			}
		}
	}

	if rid := ve.GetProperty("RECURRENCE-ID"); rid != nil {
		if t, err := parseICSTime(rid.Value, paramLocation(rid, ev.Start.Location())); err == nil {
			out.RecurrenceID = &t
		}
	}

	return out, nil
}

func propValue(ve *ical.VEvent, name ical.ComponentProperty) string {
	if p := ve.GetProperty(name); p != nil {
		return p.Value
	}
	return ""
}

// param looks up a property parameter case-insensitively.
func param(p *ical.IANAProperty, name string) string {
	for k, vs := range p.ICalParameters {
		if strings.EqualFold(k, name) && len(vs) > 0 {
			return strings.Trim(vs[0], `"`)
		}
	}
	return ""
}

func isDateValue(p *ical.IANAProperty) bool {
	if strings.EqualFold(param(p, "VALUE"), "DATE") {
		return true
	}
	return !strings.Contains(p.Value, "T")
}

// paramLocation resolves the TZID parameter. Unknown zone names, such as
// the Windows names Exchange sends, fall back to fallback.
func paramLocation(p *ical.IANAProperty, fallback *time.Location) *time.Location {
	tzid := param(p, "TZID")
	if tzid == "" {
		return fallback
	}
	loc, err := time.LoadLocation(tzid)
	if err != nil {
		appLog.Debug("ics unknown TZID, using default zone", "tzid", tzid, "zone", fallback.String())
		return fallback
	}
	return loc
}

// parseDateTime reads a DTSTART or DTEND value: "Z" is UTC, a TZID selects
// that zone and floating values are read in loc.
func parseDateTime(p *ical.IANAProperty, loc *time.Location) (time.Time, error) {
	return parseICSTime(p.Value, paramLocation(p, loc))
}

// eventDuration returns the DURATION of a VEVENT, if it has a valid one.
func eventDuration(ve *ical.VEvent) (time.Duration, bool) {
	p := ve.GetProperty(ical.ComponentPropertyDuration)
	if p == nil || p.Value == "" {
		return 0, false
	}
	dur, err := (&goical.Prop{Name: goical.PropDuration, Value: strings.TrimSpace(p.Value)}).Duration()
	if err != nil {
		appLog.Warn("ics duration unparseable", "duration", p.Value, "err", err)
		return 0, false
	}
	return dur, true
}

func parseParticipant(p *ical.IANAProperty) model.Participant {
	return model.Participant{
		Name:   param(p, "CN"),
		URI:    normalizeMailto(strings.TrimSpace(p.Value)),
		Status: model.ParticipantStatus(strings.ToUpper(param(p, "PARTSTAT"))),
		Role:   model.ParticipantRole(strings.ToUpper(param(p, "ROLE"))),
	}
}

// normalizeMailto lower-cases a MAILTO: scheme; schemes are case-insensitive
// but the mapper strips the canonical form only.
func normalizeMailto(uri string) string {
	if len(uri) >= 7 && strings.EqualFold(uri[:7], "mailto:") {
		return "mailto:" + uri[7:]
	}
	return uri
}

// summarizeRule turns an RRULE value into a RecurrenceRule. Unparseable rules
// still count as recurrence, with an unrecognized frequency.
func summarizeRule(raw string, loc *time.Location) model.RecurrenceRule {
	opt, err := rrule.StrToROptionInLocation(raw, loc)
	if err != nil {
		appLog.Warn("ics rrule unparseable", "rrule", raw, "err", err)
		return model.RecurrenceRule{Frequency: model.Frequency(rawFreq(raw)), Interval: 1}
	}

	r := model.RecurrenceRule{
		Frequency: frequency(opt.Freq),
		Interval:  opt.Interval,
	}
	if r.Interval <= 0 {
		r.Interval = 1
	}

	switch {
	case !opt.Until.IsZero():
		until := opt.Until
		r.End = &model.RecurrenceEnd{EndDate: &until}
	case opt.Count > 0:
		r.End = &model.RecurrenceEnd{OccurrenceCount: opt.Count}
	}
	return r
}

func frequency(f rrule.Frequency) model.Frequency {
	switch f {
	case rrule.YEARLY:
		return model.FrequencyYearly
	case rrule.MONTHLY:
		return model.FrequencyMonthly
	case rrule.WEEKLY:
		return model.FrequencyWeekly
	case rrule.DAILY:
		return model.FrequencyDaily
	case rrule.HOURLY:
		return model.FrequencyHourly
	case rrule.MINUTELY:
		return model.FrequencyMinutely
	case rrule.SECONDLY:
		return model.FrequencySecondly
	default:
		return model.Frequency("X-" + strconv.Itoa(int(f)))
	}
}

// rawFreq extracts FREQ=... from a rule rrule-go could not parse.
func rawFreq(raw string) string {
	for _, part := range strings.Split(raw, ";") {
		k, v, ok := strings.Cut(part, "=")
		if ok && strings.EqualFold(strings.TrimSpace(k), "FREQ") {
			return strings.ToUpper(strings.TrimSpace(v))
		}
	}
	return ""
}

func parseDate(v string, loc *time.Location) (time.Time, error) {
	v = strings.TrimSpace(v)
	if len(v) < 8 {
		return time.Time{}, errors.New("invalid date value " + strconv.Quote(v))
	}
	return time.ParseInLocation("20060102", v[:8], loc)
}

// parseICSTime parses a DATE or DATE-TIME value as found in EXDATE and
// RECURRENCE-ID. Values without "Z" are read in loc.
func parseICSTime(v string, loc *time.Location) (time.Time, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return time.Time{}, errors.New("empty time value")
	}
	if strings.HasSuffix(v, "Z") {
		return time.Parse("20060102T150405Z", v)
	}
	if strings.Contains(v, "T") {
		return time.ParseInLocation("20060102T150405", v, loc)
	}
	return time.ParseInLocation("20060102", v, loc)
}
