package caldav

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/emersion/go-ical"
	"github.com/emersion/go-webdav"
	"github.com/emersion/go-webdav/caldav"

	"calexport/internal/config"
	"calexport/internal/ics"
	appLog "calexport/internal/log"
	"calexport/internal/model"
)

// calendarRef is a discovered calendar collection.
type calendarRef struct {
	Name string
	Path string
}

// Account is a CalDAV account whose calendars are discovered through the
// current-user principal and calendar home set.
type Account struct {
	id       string
	endpoint string
	loc      *time.Location

	client   *caldav.Client
	recorder *statusRecorder

	mu        sync.Mutex
	calendars []calendarRef
}

// NewAccount creates an account client. Nothing is sent until Authorize,
// Calendars or Events is called. A nil httpClient uses http.DefaultClient.
func NewAccount(cfg config.CalDAVConfig, httpClient *http.Client, loc *time.Location) (*Account, error) {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	rec := &statusRecorder{next: httpClient}

	var hc webdav.HTTPClient = rec
	if cfg.Username != "" || cfg.Password != "" {
		hc = webdav.HTTPClientWithBasicAuth(hc, cfg.Username, cfg.Password)
	}

	c, err := caldav.NewClient(hc, cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("caldav %s: creating client: %w", cfg.ID, err)
	}
	return &Account{
		id:       cfg.ID,
		endpoint: cfg.URL,
		loc:      loc,
		client:   c,
		recorder: rec,
	}, nil
}

// Authorize runs discovery. A 401 or 403 from the server denies access;
// any other failure is returned as an error.
func (a *Account) Authorize(ctx context.Context) (model.Access, error) {
	if _, err := a.discover(ctx); err != nil {
		if a.recorder.Denied() {
			appLog.Debug("caldav access denied", "id", a.id, "status", a.recorder.LastStatus())
			return model.AccessDenied, nil
		}
		return model.AccessDenied, err
	}
	return model.AccessGranted, nil
}

// Calendars returns the discovered calendar names in server order.
func (a *Account) Calendars(ctx context.Context) ([]string, error) {
	refs, err := a.discover(ctx)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(refs))
	for _, r := range refs {
		names = append(names, r.Name)
	}
	return names, nil
}

// Events queries every selected calendar of the account for events
// overlapping w.
func (a *Account) Events(ctx context.Context, w model.Window, calendars map[string]bool) ([]model.Event, error) {
	refs, err := a.discover(ctx)
	if err != nil {
		return nil, err
	}

	var events []model.Event
	for _, ref := range refs {
		if calendars != nil && !calendars[ref.Name] {
			continue
		}
		got, err := a.queryCalendar(ctx, ref, w)
		if err != nil {
			return nil, err
		}
		events = append(events, got...)
	}
	return events, nil
}

func (a *Account) queryCalendar(ctx context.Context, ref calendarRef, w model.Window) ([]model.Event, error) {
	query := &caldav.CalendarQuery{
		CompRequest: caldav.CalendarCompRequest{
			Name:     "VCALENDAR",
			AllProps: true,
			AllComps: true,
		},
		CompFilter: caldav.CompFilter{
			Name: "VCALENDAR",
			Comps: []caldav.CompFilter{{
				Name:  "VEVENT",
				Start: w.From,
				End:   w.To,
			}},
		},
	}

	objects, err := a.client.QueryCalendar(ctx, ref.Path, query)
	if err != nil {
		return nil, fmt.Errorf("caldav %s: querying %q: %w", a.id, ref.Name, err)
	}

	parsed, err := parseObjects(ref.Name, objects, a.loc)
	if err != nil {
		return nil, fmt.Errorf("caldav %s: calendar %q: %w", a.id, ref.Name, err)
	}
	events := ics.SelectWindow(parsed, w)
	appLog.Info("caldav calendar queried", "id", a.id, "calendar", ref.Name, "objects", len(objects), "matched", len(events))
	return events, nil
}

// parseObjects re-encodes each calendar object and runs it through the ICS
// parser so CalDAV and ICS events share one mapping.
func parseObjects(calendar string, objects []caldav.CalendarObject, loc *time.Location) ([]ics.ParsedEvent, error) {
	var out []ics.ParsedEvent
	for _, obj := range objects {
		if obj.Data == nil {
			continue
		}
		var buf bytes.Buffer
		if err := ical.NewEncoder(&buf).Encode(obj.Data); err != nil {
			return nil, fmt.Errorf("encoding %s: %w", obj.Path, err)
		}
		parsed, err := ics.ParseICS(calendar, buf.Bytes(), loc)
		if err != nil {
			return nil, fmt.Errorf("parsing %s: %w", obj.Path, err)
		}
		out = append(out, parsed...)
	}
	return out, nil
}

func (a *Account) discover(ctx context.Context) ([]calendarRef, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.calendars != nil {
		return a.calendars, nil
	}

	appLog.Debug("caldav discovery start", "id", a.id, "endpoint", a.endpoint)

	found, err := a.findCalendars(ctx)
	if err != nil {
		return nil, fmt.Errorf("caldav %s: discovery: %w", a.id, err)
	}

	refs := make([]calendarRef, 0, len(found))
	for _, c := range found {
		refs = append(refs, calendarRef{Name: calendarName(c), Path: c.Path})
	}
	a.calendars = refs
	appLog.Debug("caldav discovery done", "id", a.id, "calendars", len(refs))
	return refs, nil
}

func (a *Account) findCalendars(ctx context.Context) ([]caldav.Calendar, error) {
	principal, err := a.client.FindCurrentUserPrincipal(ctx)
	if err != nil {
		if a.recorder.Denied() {
			return nil, err
		}
		// Some servers serve calendars at the endpoint without a principal.
		appLog.Debug("caldav principal lookup failed, listing endpoint", "id", a.id, "err", err)
		return a.client.FindCalendars(ctx, "")
	}

	homeSet, err := a.client.FindCalendarHomeSet(ctx, principal)
	if err != nil {
		return nil, err
	}
	return a.client.FindCalendars(ctx, homeSet)
}

// calendarName is the display name, or the last path segment when the
// server reports none.
func calendarName(c caldav.Calendar) string {
	if c.Name != "" {
		return c.Name
	}
	return path.Base(strings.TrimSuffix(c.Path, "/"))
}

// statusRecorder remembers whether the server refused credentials.
type statusRecorder struct {
	next webdav.HTTPClient

	mu     sync.Mutex
	last   int
	denied bool
}

func (r *statusRecorder) Do(req *http.Request) (*http.Response, error) {
	resp, err := r.next.Do(req)
	if err != nil {
		return resp, err
	}
	r.mu.Lock()
	r.last = resp.StatusCode
	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		r.denied = true
	}
	r.mu.Unlock()
	return resp, nil
}

func (r *statusRecorder) Denied() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.denied
}

func (r *statusRecorder) LastStatus() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.last
}
