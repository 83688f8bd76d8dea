// Package logbuf keeps a bounded ring of recent log lines in memory.
//
// The host wraps its slog handler with NewHandler so every record is
// captured as a formatted line alongside normal output. The control
// facade serves these lines to the external web panel, most recent last.
package logbuf
