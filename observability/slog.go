package observability

import (
	"context"
	"log/slog"
	"slices"
)

// Redacted replaces the value of a redacted attribute.
const Redacted = "[redacted]"

// DefaultRedactions are the Data keys whose values never reach a log line:
// recovered message text and key material.
var DefaultRedactions = []string{"plaintext", "key", "private_key", "token"}

// SlogObserver writes events to a slog.Logger. The event type is the log
// message, Source becomes the "source" attribute and Data keys follow in
// sorted order.
type SlogObserver struct {
	logger *slog.Logger
	redact map[string]bool
}

// NewSlogObserver creates a SlogObserver that redacts DefaultRedactions
// plus any extra keys.
func NewSlogObserver(logger *slog.Logger, redact ...string) *SlogObserver {
	o := &SlogObserver{logger: logger, redact: make(map[string]bool)}
	for _, k := range DefaultRedactions {
		o.redact[k] = true
	}
	for _, k := range redact {
		o.redact[k] = true
	}
	return o
}

func (o *SlogObserver) OnEvent(ctx context.Context, event Event) {
	level := event.Level.SlogLevel()
	if !o.logger.Enabled(ctx, level) {
		return
	}

	keys := make([]string, 0, len(event.Data))
	for k := range event.Data {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	attrs := make([]slog.Attr, 0, len(keys)+1)
	attrs = append(attrs, slog.String("source", event.Source))
	for _, k := range keys {
		if o.redact[k] {
			attrs = append(attrs, slog.String(k, Redacted))
			continue
		}
		attrs = append(attrs, slog.Any(k, event.Data[k]))
	}

	o.logger.LogAttrs(ctx, level, string(event.Type), attrs...)
}
