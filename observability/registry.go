package observability

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"slices"
	"strings"
	"sync"
)

// ErrUnknownObserver is returned by GetObserver for an unregistered name.
var ErrUnknownObserver = errors.New("unknown observer")

var (
	registryMu sync.RWMutex
	registry   = map[string]Observer{
		"noop": NoOpObserver{},
		"slog": NewSlogObserver(slog.Default()),
		"json": NewSlogObserver(slog.New(slog.NewJSONHandler(os.Stderr, nil))),
	}
)

// GetObserver returns the observer registered under name. "noop", "slog"
// (the default logger) and "json" (JSON lines on stderr) are always present.
func GetObserver(name string) (Observer, error) {
	registryMu.RLock()
	defer registryMu.RUnlock()

	if obs, ok := registry[name]; ok {
		return obs, nil
	}
	return nil, fmt.Errorf("%w: %q (known: %s)", ErrUnknownObserver, name, strings.Join(names(), ", "))
}

// RegisterObserver adds or replaces a named observer. The receiver binary
// uses it to point "slog" at its configured logger before building the engine.
func RegisterObserver(name string, observer Observer) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[name] = observer
}

func names() []string {
	out := make([]string, 0, len(registry))
	for name := range registry {
		out = append(out, name)
	}
	slices.Sort(out)
	return out
}
