package secretstore

import (
	"context"
	"log/slog"
	"strings"
)

const redactedPlaceholder = "***redacted***"

// RedactingHandler wraps another slog.Handler and scrubs any attribute value
// or log message containing a currently loaded credential before it reaches
// the wrapped handler (spec.md §4.1: "Tokens MUST NOT appear in logs"). It
// is the last line of defense for code paths that call Credential.Reveal()
// and log the raw string directly, rather than through Credential's own
// String/GoString/LogValue.
type RedactingHandler struct {
	next   slog.Handler
	loaded func() []string
}

// NewRedactingHandler wraps next, calling loaded on every Handle/WithAttrs
// call so a credential rotated in via Store.Reload is picked up without
// reconstructing the handler.
func NewRedactingHandler(next slog.Handler, loaded func() []string) *RedactingHandler {
	return &RedactingHandler{next: next, loaded: loaded}
}

func (h *RedactingHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.next.Enabled(ctx, level)
}

func (h *RedactingHandler) Handle(ctx context.Context, r slog.Record) error {
	secrets := h.loaded()
	out := slog.NewRecord(r.Time, r.Level, redactString(r.Message, secrets), r.PC)
	r.Attrs(func(a slog.Attr) bool {
		out.AddAttrs(redactAttr(a, secrets))
		return true
	})
	return h.next.Handle(ctx, out)
}

func (h *RedactingHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	secrets := h.loaded()
	redacted := make([]slog.Attr, len(attrs))
	for i, a := range attrs {
		redacted[i] = redactAttr(a, secrets)
	}
	return &RedactingHandler{next: h.next.WithAttrs(redacted), loaded: h.loaded}
}

func (h *RedactingHandler) WithGroup(name string) slog.Handler {
	return &RedactingHandler{next: h.next.WithGroup(name), loaded: h.loaded}
}

func redactAttr(a slog.Attr, secrets []string) slog.Attr {
	a.Value = a.Value.Resolve()
	if a.Value.Kind() == slog.KindString {
		a.Value = slog.StringValue(redactString(a.Value.String(), secrets))
	}
	return a
}

// redactString replaces every occurrence of any non-empty secret in s with
// redactedPlaceholder. A secret equal to the whole string and a secret
// embedded in a larger string (e.g. "Bearer <token>") are both caught.
func redactString(s string, secrets []string) string {
	for _, secret := range secrets {
		if secret == "" {
			continue
		}
		if strings.Contains(s, secret) {
			s = strings.ReplaceAll(s, secret, redactedPlaceholder)
		}
	}
	return s
}
