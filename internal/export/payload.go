package export

import (
	"sort"
	"time"

	"calexport/internal/model"
)

// Input is everything Assemble combines into a Payload.
type Input struct {
	GeneratedAt time.Time
	Window      model.Window
	// Requested is the --calendars filter, empty for all calendars.
	Requested []string
	// Available is every calendar name the store knows about.
	Available []string
	// Events are in query order (ascending start).
	Events []model.Event
}

// Assemble builds the export document. Event order is preserved and
// EventCount always equals len(Events).
func Assemble(in Input) *Payload {
	events := make([]Event, 0, len(in.Events))
	for _, ev := range in.Events {
		events = append(events, ConvertEvent(ev))
	}

	return &Payload{
		GeneratedAt: formatTimestamp(in.GeneratedAt),
		Range: DateRange{
			From: in.Window.From.Format(dateLayout),
			To:   in.Window.To.Format(dateLayout),
		},
		Calendars:  CalendarNames(in.Requested, in.Available),
		EventCount: len(events),
		Events:     events,
	}
}

// CalendarNames is the calendar list reported in the payload: the filter as
// given, or every known calendar sorted when there is no filter.
func CalendarNames(requested, available []string) []string {
	if len(requested) > 0 {
		return append([]string(nil), requested...)
	}
	names := append([]string{}, available...)
	sort.Strings(names)
	return names
}
