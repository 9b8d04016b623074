package export

// Output types. Fields are declared in lexicographic order of their JSON keys
// so encoding/json emits sorted keys at every level. Optional values are
// pointers (or nil slices) without omitempty so they render as null.

// Payload is the exported document.
type Payload struct {
	Calendars   []string  `json:"calendars"`
	EventCount  int       `json:"event_count"`
	Events      []Event   `json:"events"`
	GeneratedAt string    `json:"generated_at"`
	Range       DateRange `json:"range"`
}

// DateRange is the resolved query window as plain dates.
type DateRange struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// Event is the exported projection of one calendar event.
type Event struct {
	AllDay         bool          `json:"all_day"`
	Attendees      []Participant `json:"attendees"`
	Calendar       string        `json:"calendar"`
	End            string        `json:"end"`
	Location       *string       `json:"location"`
	Notes          *string       `json:"notes"`
	Organizer      *Participant  `json:"organizer"`
	RecurrenceRule *Recurrence   `json:"recurrence_rule"`
	Recurring      bool          `json:"recurring"`
	Start          string        `json:"start"`
	Status         string        `json:"status"`
	Title          string        `json:"title"`
	UID            string        `json:"uid"`
	URL            *string       `json:"url"`
}

// Participant is an exported organizer or attendee.
type Participant struct {
	Email  string  `json:"email"`
	Name   *string `json:"name"`
	Role   string  `json:"role"`
	Status string  `json:"status"`
}

// Recurrence summarizes the first recurrence rule of an event. At most one
// of EndDate and OccurrenceCount is non-nil.
type Recurrence struct {
	EndDate         *string `json:"end_date"`
	Frequency       string  `json:"frequency"`
	Interval        int     `json:"interval"`
	OccurrenceCount *int    `json:"occurrence_count"`
}
