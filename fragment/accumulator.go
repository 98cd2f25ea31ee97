package fragment

import (
	"slices"

	"github.com/OperatorFoundation/nahoftu4i/capture"
	"github.com/OperatorFoundation/nahoftu4i/clock"
)

// Set is a consistent snapshot of the current group's fragments, ordered by
// part number. Version changes whenever the working set changes.
type Set struct {
	Group     int
	Version   uint64
	Fragments []Fragment
}

// IngestResult summarises one processed batch.
type IngestResult struct {
	Observed   int
	Added      int
	Duplicates int
}

// Accumulator holds the fragments of the current reconstruction group and
// the spot history of the session. It is not safe for concurrent use; the
// receiver engine owns it from a single goroutine.
type Accumulator struct {
	parser    Parser
	clock     clock.Clock
	group     int
	version   uint64
	fragments []Fragment
	spots     []Spot
}

// AccumulatorOption configures an Accumulator.
type AccumulatorOption func(*Accumulator)

// WithClock sets the clock that stamps spots of unstamped batches.
func WithClock(c clock.Clock) AccumulatorOption {
	return func(a *Accumulator) { a.clock = c }
}

// NewAccumulator creates an Accumulator that parses results with parser.
func NewAccumulator(parser Parser, opts ...AccumulatorOption) *Accumulator {
	a := &Accumulator{parser: parser, clock: clock.Real()}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Reset discards all fragments and spots and returns to group zero.
func (a *Accumulator) Reset() {
	a.group = 0
	a.version++
	a.fragments = nil
	a.spots = nil
}

// Ingest parses every result of the batch, storing new fragments and
// recording one spot per result.
func (a *Accumulator) Ingest(batch capture.Batch) IngestResult {
	var result IngestResult

	at := batch.ReceivedAt
	if at.IsZero() {
		at = a.clock.Now()
	}

	for _, r := range batch.Results {
		frag, err := a.parser.Parse(r.Identifier, r.Locator, r.Power)
		if err != nil {
			a.spots = append(a.spots, newSpot(r, at, Observed()))
			result.Observed++
			continue
		}

		if part := slices.Index(a.fragments, frag); part >= 0 {
			a.spots = append(a.spots, newSpot(r, at, Pending(a.group, part)))
			result.Duplicates++
			continue
		}

		part := len(a.fragments)
		a.fragments = append(a.fragments, frag)
		a.version++
		a.spots = append(a.spots, newSpot(r, at, Pending(a.group, part)))
		result.Added++
	}

	return result
}

// Current returns a snapshot of the working set.
func (a *Accumulator) Current() Set {
	return Set{
		Group:     a.group,
		Version:   a.version,
		Fragments: slices.Clone(a.fragments),
	}
}

// Len returns the number of distinct fragments in the current group.
func (a *Accumulator) Len() int {
	return len(a.fragments)
}

// Group returns the current group identifier.
func (a *Accumulator) Group() int {
	return a.group
}

// Spots returns a copy of the spot history.
func (a *Accumulator) Spots() []Spot {
	return slices.Clone(a.spots)
}

// SpotCount returns the number of recorded spots.
func (a *Accumulator) SpotCount() int {
	return len(a.spots)
}

// Resolve marks every pending spot of the current group resolved, clears
// the working set, and advances to the next group. Returns the part count of
// the resolved group.
func (a *Accumulator) Resolve() int {
	total := len(a.fragments)
	a.retag(func(s SpotStatus) SpotStatus {
		return Resolved(s.Group, s.Part, total)
	})
	a.advance()
	return total
}

// Abandon marks every pending spot of the current group failed with reason
// and advances to the next group. With no pending fragments it changes
// nothing and returns zero.
func (a *Accumulator) Abandon(reason string) int {
	pending := len(a.fragments)
	if pending == 0 {
		return 0
	}
	a.retag(func(s SpotStatus) SpotStatus {
		return Failed(s.Group, s.Part, reason)
	})
	a.advance()
	return pending
}

func (a *Accumulator) retag(fn func(SpotStatus) SpotStatus) {
	for i := range a.spots {
		s := a.spots[i].Status
		if s.Kind == StatusPending && s.Group == a.group {
			a.spots[i].Status = fn(s)
		}
	}
}

func (a *Accumulator) advance() {
	a.fragments = nil
	a.group++
	a.version++
}
