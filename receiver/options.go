package receiver

import (
	"github.com/OperatorFoundation/nahoftu4i/capture"
	"github.com/OperatorFoundation/nahoftu4i/clock"
	"github.com/OperatorFoundation/nahoftu4i/fragment"
	"github.com/OperatorFoundation/nahoftu4i/lease"
	"github.com/OperatorFoundation/nahoftu4i/observability"
	"github.com/OperatorFoundation/nahoftu4i/reconstruct"
)

// Option configures an Engine. Anything set by an option is not created from
// configuration.
type Option func(*Engine)

// WithSource overrides the default push-fed capture source.
func WithSource(s capture.Source) Option {
	return func(e *Engine) { e.source = s }
}

// WithParser overrides the default packed fragment parser.
func WithParser(p fragment.Parser) Option {
	return func(e *Engine) { e.parser = p }
}

// WithAssembler overrides the default packed fragment-sequence decoder.
func WithAssembler(a reconstruct.Assembler) Option {
	return func(e *Engine) { e.assembler = a }
}

// WithDecryptor overrides the box decryptor built from the configured key.
func WithDecryptor(d reconstruct.Decryptor) Option {
	return func(e *Engine) { e.decryptor = d }
}

// WithLock overrides the configured suspension-preventing lock.
func WithLock(l lease.Lock) Option {
	return func(e *Engine) { e.lock = l }
}

// WithClock overrides the real clock.
func WithClock(c clock.Clock) Option {
	return func(e *Engine) { e.clock = c }
}

// WithObserver overrides the observer named in configuration.
func WithObserver(o observability.Observer) Option {
	return func(e *Engine) { e.observer = o }
}
