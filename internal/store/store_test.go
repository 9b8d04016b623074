package store

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"calexport/internal/config"
	"calexport/internal/model"
)

type fakeSource struct {
	names    []string
	events   []model.Event
	access   model.Access
	authErr  error
	asked    int
	filters  []map[string]bool
	eventErr error
}

func (f *fakeSource) Authorize(context.Context) (model.Access, error) {
	f.asked++
	return f.access, f.authErr
}

func (f *fakeSource) Calendars(context.Context) ([]string, error) {
	return f.names, nil
}

func (f *fakeSource) Events(_ context.Context, _ model.Window, calendars map[string]bool) ([]model.Event, error) {
	f.filters = append(f.filters, calendars)
	if f.eventErr != nil {
		return nil, f.eventErr
	}
	var out []model.Event
	for _, ev := range f.events {
		if calendars == nil || calendars[ev.Calendar] {
			out = append(out, ev)
		}
	}
	return out, nil
}

func at(hour int) time.Time {
	return time.Date(2025, time.March, 3, hour, 0, 0, 0, time.UTC)
}

func TestMatchCalendars(t *testing.T) {
	available := []string{"Family", "Home", "Work"}

	got, err := MatchCalendars(nil, available)
	if err != nil || got != nil {
		t.Errorf("empty request = %v, %v; want nil, nil", got, err)
	}

	got, err = MatchCalendars([]string{"Work", "Home"}, available)
	if err != nil || !reflect.DeepEqual(got, []string{"Home", "Work"}) {
		t.Errorf("full match = %v, %v", got, err)
	}
}

// A filter where only some names exist proceeds with the ones that do and
// reports nothing about the rest. This asymmetry with the no-match case is
// intentional.
func TestMatchCalendarsPartialMatchIsSilent(t *testing.T) {
	got, err := MatchCalendars([]string{"Work", "Typo"}, []string{"Home", "Work"})
	if err != nil {
		t.Fatalf("partial match returned error: %v", err)
	}
	if !reflect.DeepEqual(got, []string{"Work"}) {
		t.Errorf("partial match = %v, want [Work]", got)
	}
}

func TestMatchCalendarsNoMatch(t *testing.T) {
	_, err := MatchCalendars([]string{"Nope"}, []string{"Home", "Work"})
	if !errors.Is(err, ErrNoCalendarsMatched) {
		t.Fatalf("err = %v, want ErrNoCalendarsMatched", err)
	}

	var nm *NoMatchError
	if !errors.As(err, &nm) || !reflect.DeepEqual(nm.Available, []string{"Home", "Work"}) {
		t.Fatalf("err = %#v", err)
	}
	want := "no calendars matched [\"Nope\"]. Available:\n  Home\n  Work"
	if err.Error() != want {
		t.Errorf("message = %q, want %q", err.Error(), want)
	}
}

func TestMultiAuthorize(t *testing.T) {
	ctx := context.Background()

	granted := &fakeSource{access: model.AccessGranted}
	denied := &fakeSource{access: model.AccessDenied}
	after := &fakeSource{access: model.AccessGranted}

	access, err := NewMulti(granted, denied, after).Authorize(ctx)
	if err != nil || access != model.AccessDenied {
		t.Errorf("access=%v err=%v, want denied", access, err)
	}
	if after.asked != 0 {
		t.Error("sources after a denial should not be asked")
	}

	boom := errors.New("platform failure")
	access, err = NewMulti(&fakeSource{authErr: boom}).Authorize(ctx)
	if !errors.Is(err, boom) || access != model.AccessDenied {
		t.Errorf("access=%v err=%v, want platform error", access, err)
	}

	access, err = NewMulti(granted, after).Authorize(ctx)
	if err != nil || access != model.AccessGranted {
		t.Errorf("access=%v err=%v, want granted", access, err)
	}
}

func TestMultiCalendarsSortedUnique(t *testing.T) {
	m := NewMulti(
		&fakeSource{names: []string{"Work", "Birthdays"}},
		&fakeSource{names: []string{"Home", "Work"}},
	)
	got, err := m.Calendars(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if want := []string{"Birthdays", "Home", "Work"}; !reflect.DeepEqual(got, want) {
		t.Errorf("Calendars = %v, want %v", got, want)
	}
}

func TestMultiEventsSortedAndFiltered(t *testing.T) {
	a := &fakeSource{events: []model.Event{
		{UID: "a1", Calendar: "Work", Start: at(10)},
		{UID: "a2", Calendar: "Work", Start: at(8)},
	}}
	b := &fakeSource{events: []model.Event{
		{UID: "b1", Calendar: "Home", Start: at(10)},
		{UID: "b2", Calendar: "Home", Start: at(9)},
	}}
	m := NewMulti(a, b)
	w := model.Window{From: at(0), To: at(23)}

	events, err := m.Events(context.Background(), w, nil)
	if err != nil {
		t.Fatal(err)
	}
	var uids []string
	for _, ev := range events {
		uids = append(uids, ev.UID)
	}
	// Equal starts keep query order: a1 before b1.
	if want := []string{"a2", "b2", "a1", "b1"}; !reflect.DeepEqual(uids, want) {
		t.Errorf("order = %v, want %v", uids, want)
	}
	if a.filters[0] != nil {
		t.Error("nil calendars should reach sources as a nil filter")
	}

	events, err = m.Events(context.Background(), w, []string{"Home"})
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != 2 || events[0].UID != "b2" {
		t.Errorf("filtered events = %+v", events)
	}
	if !b.filters[1]["Home"] || b.filters[1]["Work"] {
		t.Errorf("filter = %v", b.filters[1])
	}
}

func TestMultiEventsEmptyIsNonNil(t *testing.T) {
	events, err := NewMulti().Events(context.Background(), model.Window{From: at(0), To: at(1)}, nil)
	if err != nil || events == nil || len(events) != 0 {
		t.Errorf("events = %#v, err = %v", events, err)
	}
}

func TestMultiEventsError(t *testing.T) {
	boom := errors.New("fetch failed")
	_, err := NewMulti(&fakeSource{eventErr: boom}).Events(context.Background(), model.Window{}, nil)
	if !errors.Is(err, boom) {
		t.Errorf("err = %v", err)
	}
}

func TestBuild(t *testing.T) {
	ctx := context.Background()

	if _, err := Build(ctx, config.DefaultConfig()); !errors.Is(err, ErrNoSources) {
		t.Errorf("empty config: err = %v, want ErrNoSources", err)
	}

	dir := t.TempDir()
	p := filepath.Join(dir, "home.ics")
	body := strings.Join([]string{
		"BEGIN:VCALENDAR",
		"VERSION:2.0",
		"PRODID:-//test//EN",
		"BEGIN:VEVENT",
		"UID:one@example.com",
		"DTSTAMP:20250301T000000Z",
		"DTSTART:20250303T090000Z",
		"DTEND:20250303T100000Z",
		"SUMMARY:Dentist",
		"END:VEVENT",
		"END:VCALENDAR",
		"",
	}, "\r\n")
	if err := os.WriteFile(p, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg := config.DefaultConfig()
	cfg.Timezone = "UTC"
	cfg.CacheDir = filepath.Join(dir, "cache")
	cfg.ICS = []config.ICSConfig{{URL: p}}
	cfg.Normalize()

	m, err := Build(ctx, cfg)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	names, err := m.Calendars(ctx)
	if err != nil || !reflect.DeepEqual(names, []string{"home"}) {
		t.Errorf("Calendars = %v, %v", names, err)
	}
	events, err := m.Events(ctx, model.Window{From: at(0), To: at(23)}, nil)
	if err != nil || len(events) != 1 || events[0].Title != "Dentist" || events[0].Calendar != "home" {
		t.Errorf("Events = %+v, %v", events, err)
	}

	cfg.Timezone = "Not/AZone"
	if _, err := Build(ctx, cfg); err == nil {
		t.Error("expected error for invalid timezone")
	}
}
