package ics

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	appLog "calexport/internal/log"
	"calexport/internal/model"
)

// Source serves one ICS feed as a single named calendar.
type Source struct {
	feed    Feed
	fetcher *Fetcher
	loc     *time.Location
}

// NewSource creates the source for feed. loc is the zone for floating times.
func NewSource(feed Feed, fetcher *Fetcher, loc *time.Location) *Source {
	return &Source{feed: feed, fetcher: fetcher, loc: loc}
}

// Authorize checks that a local feed can be opened. Permission errors deny
// access; a missing file or other failure is an error. Remote feeds are
// public and always granted.
func (s *Source) Authorize(_ context.Context) (model.Access, error) {
	if s.feed.IsRemote() {
		return model.AccessGranted, nil
	}

	p, err := s.feed.Path()
	if err != nil {
		return model.AccessDenied, err
	}
	f, err := os.Open(p)
	if err != nil {
		if errors.Is(err, fs.ErrPermission) {
			appLog.Debug("ics access denied", "id", s.feed.ID, "path", p)
			return model.AccessDenied, nil
		}
		return model.AccessDenied, fmt.Errorf("calendar %q: %w", s.feed.Name, err)
	}
	f.Close()
	return model.AccessGranted, nil
}

// Calendars returns the feed name; a feed is exactly one calendar.
func (s *Source) Calendars(_ context.Context) ([]string, error) {
	return []string{s.feed.Name}, nil
}

// Events returns the feed's events in w. calendars restricts the query;
// nil means every calendar.
func (s *Source) Events(ctx context.Context, w model.Window, calendars map[string]bool) ([]model.Event, error) {
	if calendars != nil && !calendars[s.feed.Name] {
		return nil, nil
	}

	res, err := s.fetcher.Fetch(ctx, s.feed)
	if err != nil {
		return nil, fmt.Errorf("fetching calendar %q: %w", s.feed.Name, err)
	}

	parsed, err := ParseICS(s.feed.Name, res.Body, s.loc)
	if err != nil {
		return nil, fmt.Errorf("parsing calendar %q: %w", s.feed.Name, err)
	}

	events := SelectWindow(parsed, w)
	appLog.Info("ics calendar queried", "calendar", s.feed.Name, "parsed", len(parsed), "matched", len(events), "from_cache", res.FromCache)
	return events, nil
}
