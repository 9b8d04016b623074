package export

import (
	"strings"
	"time"

	"calexport/internal/model"
)

const (
	dateLayout = "2006-01-02"
	mailto     = "mailto:"
	unknown    = "unknown"
)

// ConvertEvent maps a store event into its exported form. It has no side
// effects.
func ConvertEvent(ev model.Event) Event {
	out := Event{
		UID:       ev.UID,
		Title:     ev.Title,
		Calendar:  ev.Calendar,
		AllDay:    ev.AllDay,
		Start:     formatEventTime(ev.Start, ev.AllDay),
		End:       formatEventTime(ev.End, ev.AllDay),
		Location:  optional(ev.Location),
		Notes:     optional(ev.Notes),
		URL:       optional(ev.URL),
		Status:    ConvertStatus(ev.Status),
		Recurring: len(ev.RecurrenceRules) > 0,
	}

	if ev.Organizer != nil {
		p := ConvertParticipant(*ev.Organizer)
		out.Organizer = &p
	}
	if ev.Attendees != nil {
		out.Attendees = make([]Participant, 0, len(ev.Attendees))
		for _, a := range ev.Attendees {
			out.Attendees = append(out.Attendees, ConvertParticipant(a))
		}
	}
	if out.Recurring {
		r := ConvertRecurrence(ev.RecurrenceRules[0])
		out.RecurrenceRule = &r
	}

	return out
}

// formatEventTime renders all-day bounds as a bare date in the event's own
// location and everything else as RFC 3339 in UTC.
func formatEventTime(t time.Time, allDay bool) string {
	if allDay {
		return t.Format(dateLayout)
	}
	return formatTimestamp(t)
}

func formatTimestamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

// ConvertStatus maps an event status to its export string.
func ConvertStatus(s model.Status) string {
	switch s {
	case model.StatusNone:
		return "none"
	case model.StatusConfirmed:
		return "confirmed"
	case model.StatusTentative:
		return "tentative"
	case model.StatusCanceled:
		return "cancelled"
	default:
		return unknown
	}
}

// ConvertParticipant maps an organizer or attendee.
func ConvertParticipant(p model.Participant) Participant {
	return Participant{
		Name:   optional(p.Name),
		Email:  EmailFromURI(p.URI),
		Status: ConvertParticipantStatus(p.Status),
		Role:   ConvertParticipantRole(p.Role),
	}
}

// EmailFromURI strips the first "mailto:" from a participant URI. URIs with
// another scheme pass through unchanged.
func EmailFromURI(uri string) string {
	return strings.Replace(uri, mailto, "", 1)
}

// ConvertParticipantStatus maps PARTSTAT to its export string.
func ConvertParticipantStatus(s model.ParticipantStatus) string {
	switch s {
	case model.ParticipantStatusUnknown:
		return unknown
	case model.ParticipantStatusPending:
		return "pending"
	case model.ParticipantStatusAccepted:
		return "accepted"
	case model.ParticipantStatusDeclined:
		return "declined"
	case model.ParticipantStatusTentative:
		return "tentative"
	case model.ParticipantStatusDelegated:
		return "delegated"
	case model.ParticipantStatusCompleted:
		return "completed"
	case model.ParticipantStatusInProcess:
		return "in_process"
	default:
		return unknown
	}
}

// ConvertParticipantRole maps ROLE to its export string.
func ConvertParticipantRole(r model.ParticipantRole) string {
	switch r {
	case model.ParticipantRoleUnknown:
		return unknown
	case model.ParticipantRoleRequired:
		return "required"
	case model.ParticipantRoleOptional:
		return "optional"
	case model.ParticipantRoleChair:
		return "chair"
	case model.ParticipantRoleNonParticipant:
		return "non_participant"
	default:
		return unknown
	}
}

// ConvertRecurrence summarizes a rule. An end date wins over an occurrence
// count; a rule without End is open-ended.
func ConvertRecurrence(r model.RecurrenceRule) Recurrence {
	out := Recurrence{
		Frequency: ConvertFrequency(r.Frequency),
		Interval:  r.Interval,
	}

	if r.End != nil {
		if r.End.EndDate != nil {
			s := formatTimestamp(*r.End.EndDate)
			out.EndDate = &s
		} else {
			n := r.End.OccurrenceCount
			out.OccurrenceCount = &n
		}
	}

	return out
}

// ConvertFrequency maps FREQ; only daily through yearly are named.
func ConvertFrequency(f model.Frequency) string {
	switch f {
	case model.FrequencyDaily:
		return "daily"
	case model.FrequencyWeekly:
		return "weekly"
	case model.FrequencyMonthly:
		return "monthly"
	case model.FrequencyYearly:
		return "yearly"
	default:
		return unknown
	}
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
