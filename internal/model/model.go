package model

import "time"

// Status is the event status as carried by the calendar store (iCalendar
// STATUS value). The zero value means the store recorded no status.
type Status string

const (
	StatusNone      Status = ""
	StatusConfirmed Status = "CONFIRMED"
	StatusTentative Status = "TENTATIVE"
	StatusCanceled  Status = "CANCELLED"
)

// ParticipantStatus is an attendee's participation status (PARTSTAT).
type ParticipantStatus string

const (
	ParticipantStatusUnknown   ParticipantStatus = ""
	ParticipantStatusPending   ParticipantStatus = "NEEDS-ACTION"
	ParticipantStatusAccepted  ParticipantStatus = "ACCEPTED"
	ParticipantStatusDeclined  ParticipantStatus = "DECLINED"
	ParticipantStatusTentative ParticipantStatus = "TENTATIVE"
	ParticipantStatusDelegated ParticipantStatus = "DELEGATED"
	ParticipantStatusCompleted ParticipantStatus = "COMPLETED"
	ParticipantStatusInProcess ParticipantStatus = "IN-PROCESS"
)

// ParticipantRole is a participant's role (ROLE).
type ParticipantRole string

const (
	ParticipantRoleUnknown        ParticipantRole = ""
	ParticipantRoleRequired       ParticipantRole = "REQ-PARTICIPANT"
	ParticipantRoleOptional       ParticipantRole = "OPT-PARTICIPANT"
	ParticipantRoleChair          ParticipantRole = "CHAIR"
	ParticipantRoleNonParticipant ParticipantRole = "NON-PARTICIPANT"
)

// Frequency is the FREQ part of a recurrence rule.
type Frequency string

const (
	FrequencyDaily    Frequency = "DAILY"
	FrequencyWeekly   Frequency = "WEEKLY"
	FrequencyMonthly  Frequency = "MONTHLY"
	FrequencyYearly   Frequency = "YEARLY"
	FrequencyHourly   Frequency = "HOURLY"
	FrequencyMinutely Frequency = "MINUTELY"
	FrequencySecondly Frequency = "SECONDLY"
)

// Participant is an organizer or attendee of an event.
type Participant struct {
	// Name is the display name (CN parameter), empty if absent.
	Name string
	// URI identifies the participant, normally "mailto:address".
	URI    string
	Status ParticipantStatus
	Role   ParticipantRole
}

// RecurrenceEnd describes how a recurrence rule terminates. Exactly one of
// EndDate and OccurrenceCount is set.
type RecurrenceEnd struct {
	EndDate         *time.Time
	OccurrenceCount int
}

// RecurrenceRule is the summary of a single RRULE.
type RecurrenceRule struct {
	Frequency Frequency
	Interval  int
	// End is nil for open-ended rules.
	End *RecurrenceEnd
}

// Event is a calendar event as returned by the calendar store, before it is
// mapped into the export format.
type Event struct {
	UID      string
	Title    string
	Calendar string

	AllDay bool
	Start  time.Time
	End    time.Time

	Location string
	Notes    string
	URL      string

	Status Status

	// Organizer is nil when the store has no organizer for the event.
	Organizer *Participant
	// Attendees is nil when the store carries no attendee list.
	Attendees []Participant

	RecurrenceRules []RecurrenceRule
}

// Window is the [From, To) range events are queried over. From may be after
// To; such a window matches nothing.
type Window struct {
	From time.Time
	To   time.Time
}

// Access is the outcome of the calendar store authorization handshake.
// Platform failures are reported as errors alongside AccessDenied.
type Access int

const (
	AccessDenied Access = iota
	AccessGranted
)

func (a Access) String() string {
	if a == AccessGranted {
		return "granted"
	}
	return "denied"
}
