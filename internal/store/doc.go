// Package store combines ICS feeds and CalDAV accounts into one calendar
// store with an access handshake, a calendar list and a window query.
package store
