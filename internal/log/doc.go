// Package log provides logging utilities for the frontier.
//
// A crawl frontier logs URLs, and URLs arrive in batches of thousands:
// a single discovery report can carry more text than a day of ordinary
// log output. TruncateHandler wraps any slog.Handler and caps oversized
// attribute values so log volume stays proportional to events, not to
// payload size.
package log
