package web

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
)

// LogHandler mirrors every record into the dashboard log before passing it
// on to next. Records from the hubs are not mirrored, since a full log queue
// would otherwise feed itself.
func (s *Server) LogHandler(next slog.Handler) slog.Handler {
	return &logHandler{next: next, srv: s}
}

type logHandler struct {
	next  slog.Handler
	srv   *Server
	attrs []slog.Attr
}

func (h *logHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.next.Enabled(ctx, level)
}

func (h *logHandler) Handle(ctx context.Context, r slog.Record) error {
	var (
		b         strings.Builder
		component string
	)
	b.WriteString(r.Message)
	add := func(a slog.Attr) bool {
		if a.Key == "component" {
			component = a.Value.String()
			return true
		}
		fmt.Fprintf(&b, " %s=%v", a.Key, a.Value)
		return true
	}
	for _, a := range h.attrs {
		add(a)
	}
	r.Attrs(add)

	if component != "hub" {
		h.srv.AddLog(LogEntry{
			Time:      r.Time.Format("15:04:05"),
			Level:     strings.ToLower(r.Level.String()),
			Component: component,
			Message:   b.String(),
		})
	}
	return h.next.Handle(ctx, r)
}

func (h *logHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	merged := make([]slog.Attr, 0, len(h.attrs)+len(attrs))
	merged = append(merged, h.attrs...)
	merged = append(merged, attrs...)
	return &logHandler{next: h.next.WithAttrs(attrs), srv: h.srv, attrs: merged}
}

func (h *logHandler) WithGroup(name string) slog.Handler {
	return &logHandler{next: h.next.WithGroup(name), srv: h.srv, attrs: h.attrs}
}
