// Package ics fetches and parses iCalendar feeds and selects the events that
// overlap a query window.
package ics
