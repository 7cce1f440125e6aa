package log

import (
	"context"
	"fmt"
	"log/slog"
	"unicode/utf8"
)

// DefaultMaxValueLen is the attribute value length cap used when no
// explicit limit is configured. Long enough for any sane URL, short enough
// that a mis-logged batch cannot flood the log.
const DefaultMaxValueLen = 512

// TruncateHandler wraps an slog.Handler and truncates string attribute
// values longer than the configured limit.
//
// Design decision: We use a handler wrapper rather than trimming at each
// call site because:
//  1. It integrates seamlessly with standard slog APIs
//  2. It works with any underlying handler (text, JSON, etc.)
//  3. Call sites stay readable; the policy lives in one place
type TruncateHandler struct {
	handler slog.Handler
	maxLen  int
}

// NewTruncateHandler creates a TruncateHandler wrapping the given handler.
// If handler is nil, slog.Default()'s handler is used. A maxLen of zero or
// less selects DefaultMaxValueLen.
func NewTruncateHandler(handler slog.Handler, maxLen int) *TruncateHandler {
	if handler == nil {
		handler = slog.Default().Handler()
	}
	if maxLen <= 0 {
		maxLen = DefaultMaxValueLen
	}
	return &TruncateHandler{handler: handler, maxLen: maxLen}
}

// Enabled reports whether the handler handles records at the given level.
// It delegates to the underlying handler.
func (h *TruncateHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.handler.Enabled(ctx, level)
}

// Handle truncates the record's attributes and passes it on.
func (h *TruncateHandler) Handle(ctx context.Context, r slog.Record) error {
	trimmed := slog.NewRecord(r.Time, r.Level, r.Message, r.PC)
	r.Attrs(func(a slog.Attr) bool {
		trimmed.AddAttrs(h.truncateAttr(a))
		return true
	})
	return h.handler.Handle(ctx, trimmed)
}

// WithAttrs returns a new TruncateHandler whose underlying handler has the
// given (truncated) attributes.
func (h *TruncateHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	out := make([]slog.Attr, 0, len(attrs))
	for _, a := range attrs {
		out = append(out, h.truncateAttr(a))
	}
	return &TruncateHandler{handler: h.handler.WithAttrs(out), maxLen: h.maxLen}
}

// WithGroup returns a new TruncateHandler with the given group appended.
func (h *TruncateHandler) WithGroup(name string) slog.Handler {
	return &TruncateHandler{handler: h.handler.WithGroup(name), maxLen: h.maxLen}
}

// truncateAttr caps a single attribute value, recursing into groups.
func (h *TruncateHandler) truncateAttr(a slog.Attr) slog.Attr {
	switch a.Value.Kind() {
	case slog.KindString:
		a.Value = slog.StringValue(h.truncate(a.Value.String()))
	case slog.KindGroup:
		attrs := a.Value.Group()
		out := make([]slog.Attr, 0, len(attrs))
		for _, ga := range attrs {
			out = append(out, h.truncateAttr(ga))
		}
		a.Value = slog.GroupValue(out...)
	case slog.KindAny:
		// Stringify and cap unknown payloads; a slice of URLs reaches
		// this path when logged directly.
		s := fmt.Sprintf("%v", a.Value.Any())
		if len(s) > h.maxLen {
			a.Value = slog.StringValue(h.truncate(s))
		}
	}
	return a
}

func (h *TruncateHandler) truncate(s string) string {
	if len(s) <= h.maxLen {
		return s
	}
	// Back up to a rune boundary so the cut never splits a multi-byte
	// character into invalid UTF-8.
	cut := h.maxLen
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "...(truncated)"
}
