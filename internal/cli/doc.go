// Package cli implements the calexport command line.
//
// The root command resolves the date range from --from/--to/--days, loads
// the config, opens the calendar store, runs the access handshake and writes
// the JSON export to stdout or --out. Diagnostics always go to stderr.
package cli
