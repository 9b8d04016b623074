package store

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	appLog "calexport/internal/log"
	"calexport/internal/model"
)

// Store is the calendar store the exporter reads from.
type Store interface {
	// Authorize is the access handshake. A denial is AccessDenied with a nil
	// error; a failed handshake returns an error.
	Authorize(ctx context.Context) (model.Access, error)
	// Calendars lists calendar names.
	Calendars(ctx context.Context) ([]string, error)
	// Events returns events overlapping w, sorted by start. A nil calendars
	// slice means every calendar.
	Events(ctx context.Context, w model.Window, calendars []string) ([]model.Event, error)
}

// Source is one backend of a Multi store: an ICS feed or a CalDAV account.
type Source interface {
	Authorize(ctx context.Context) (model.Access, error)
	Calendars(ctx context.Context) ([]string, error)
	// Events returns the source's events in w. calendars is nil for every
	// calendar, otherwise the set of names to include.
	Events(ctx context.Context, w model.Window, calendars map[string]bool) ([]model.Event, error)
}

// ErrNoCalendarsMatched is matched by NoMatchError.
var ErrNoCalendarsMatched = errors.New("no calendars matched")

// NoMatchError reports a calendar filter that matched nothing.
type NoMatchError struct {
	Requested []string
	Available []string
}

func (e *NoMatchError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "no calendars matched %s. Available:", quoteList(e.Requested))
	for _, name := range e.Available {
		b.WriteString("\n  ")
		b.WriteString(name)
	}
	return b.String()
}

func (e *NoMatchError) Is(target error) bool {
	return target == ErrNoCalendarsMatched
}

func quoteList(names []string) string {
	q := make([]string, len(names))
	for i, n := range names {
		q[i] = fmt.Sprintf("%q", n)
	}
	return "[" + strings.Join(q, ", ") + "]"
}

// MatchCalendars returns the available calendars named in requested, in
// available order. An empty request matches nothing and returns nil. If
// names were requested but none exist, the error is a *NoMatchError.
//
// Names that do not exist are dropped without a diagnostic as long as at
// least one name matched.
func MatchCalendars(requested, available []string) ([]string, error) {
	if len(requested) == 0 {
		return nil, nil
	}
	want := make(map[string]bool, len(requested))
	for _, name := range requested {
		want[name] = true
	}

	var matched []string
	for _, name := range available {
		if want[name] {
			matched = append(matched, name)
		}
	}
	if len(matched) == 0 {
		return nil, &NoMatchError{Requested: requested, Available: available}
	}
	return matched, nil
}

// Multi is a Store over several sources.
type Multi struct {
	sources []Source
}

// NewMulti creates a store over sources, which are asked in order.
func NewMulti(sources ...Source) *Multi {
	return &Multi{sources: sources}
}

// Authorize is granted only if every source grants access. Sources are
// asked in order and the first denial or error stops the handshake.
func (m *Multi) Authorize(ctx context.Context) (model.Access, error) {
	for i, src := range m.sources {
		access, err := src.Authorize(ctx)
		if err != nil {
			return model.AccessDenied, err
		}
		if access != model.AccessGranted {
			appLog.Debug("source denied access", "source", i)
			return model.AccessDenied, nil
		}
	}
	return model.AccessGranted, nil
}

// Calendars returns the sorted, de-duplicated names of every source.
func (m *Multi) Calendars(ctx context.Context) ([]string, error) {
	seen := make(map[string]bool)
	names := []string{}
	for _, src := range m.sources {
		list, err := src.Calendars(ctx)
		if err != nil {
			return nil, err
		}
		for _, name := range list {
			if !seen[name] {
				seen[name] = true
				names = append(names, name)
			}
		}
	}
	sort.Strings(names)
	return names, nil
}

// Events queries every source and merges the results by start time.
func (m *Multi) Events(ctx context.Context, w model.Window, calendars []string) ([]model.Event, error) {
	var filter map[string]bool
	if calendars != nil {
		filter = make(map[string]bool, len(calendars))
		for _, name := range calendars {
			filter[name] = true
		}
	}

	events := []model.Event{}
	for _, src := range m.sources {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		got, err := src.Events(ctx, w, filter)
		if err != nil {
			return nil, err
		}
		events = append(events, got...)
	}

	sort.SliceStable(events, func(i, j int) bool {
		return events[i].Start.Before(events[j].Start)
	})
	return events, nil
}
