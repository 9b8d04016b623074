package store

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"calexport/internal/caldav"
	"calexport/internal/config"
	"calexport/internal/ics"
	appLog "calexport/internal/log"
)

// ErrNoSources is returned by Build when the config names no calendars.
var ErrNoSources = errors.New("no calendars configured")

// Build creates a Multi store with one source per configured ICS feed and
// CalDAV account.
func Build(_ context.Context, cfg *config.Config) (*Multi, error) {
	if len(cfg.ICS) == 0 && len(cfg.CalDAV) == 0 {
		return nil, ErrNoSources
	}

	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}
	cacheDir, err := config.ExpandHome(cfg.CacheDir)
	if err != nil {
		return nil, err
	}

	client := &http.Client{Timeout: 30 * time.Second}
	fetcher := ics.NewFetcher(cacheDir, client)

	sources := make([]Source, 0, len(cfg.ICS)+len(cfg.CalDAV))
	for _, c := range cfg.ICS {
		feed := ics.Feed{ID: c.ID, Name: c.Name, Location: c.URL}
		sources = append(sources, ics.NewSource(feed, fetcher, loc))
	}
	for _, c := range cfg.CalDAV {
		acct, err := caldav.NewAccount(c, client, loc)
		if err != nil {
			return nil, fmt.Errorf("building store: %w", err)
		}
		sources = append(sources, acct)
	}

	appLog.Debug("store built", "ics", len(cfg.ICS), "caldav", len(cfg.CalDAV), "cache_dir", cacheDir)
	return NewMulti(sources...), nil
}
