package rpc

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/OperatorFoundation/nahoftu4i/clock"
	"github.com/OperatorFoundation/nahoftu4i/session"
)

// DefaultAttachTTL is how long a remote observer lease lasts without renewal.
const DefaultAttachTTL = time.Minute

// ErrLeaseNotFound is returned when renewing or releasing a lease that has
// expired or never existed.
var ErrLeaseNotFound = errors.New("observer lease not found")

const expireDetachWait = 5 * time.Second

// AttachRequest renews the named lease, or takes a new one when Lease is
// empty.
type AttachRequest struct {
	Lease string `json:"lease,omitempty"`
}

// Lease is a remote observer reference. It holds one engine attachment until
// it is released with Detach or goes TTL without renewal.
type Lease struct {
	ID  string           `json:"lease"`
	TTL session.Duration `json:"ttl"`
}

// attachments pairs every remote Attach with exactly one engine Detach.
type attachments struct {
	engine Engine
	clock  clock.Clock
	ttl    time.Duration

	mu     sync.Mutex
	leases map[string]*attachment
}

type attachment struct {
	timer clock.Timer
	gen   uint64
}

func newAttachments(engine Engine, c clock.Clock, ttl time.Duration) *attachments {
	return &attachments{
		engine: engine,
		clock:  c,
		ttl:    ttl,
		leases: make(map[string]*attachment),
	}
}

func (a *attachments) attach(ctx context.Context, id string) (Lease, error) {
	if id != "" {
		a.mu.Lock()
		defer a.mu.Unlock()
		l, ok := a.leases[id]
		if !ok {
			return Lease{}, ErrLeaseNotFound
		}
		l.timer.Stop()
		l.gen++
		l.timer = a.clock.AfterFunc(a.ttl, a.expireFunc(id, l.gen))
		return a.lease(id), nil
	}

	if err := a.engine.Attach(ctx); err != nil {
		return Lease{}, err
	}
	id = uuid.NewString()

	a.mu.Lock()
	defer a.mu.Unlock()
	a.leases[id] = &attachment{timer: a.clock.AfterFunc(a.ttl, a.expireFunc(id, 0))}
	return a.lease(id), nil
}

func (a *attachments) detach(ctx context.Context, id string) error {
	a.mu.Lock()
	l, ok := a.leases[id]
	if ok {
		l.timer.Stop()
		delete(a.leases, id)
	}
	a.mu.Unlock()

	if !ok {
		return ErrLeaseNotFound
	}
	return a.engine.Detach(ctx)
}

func (a *attachments) expireFunc(id string, gen uint64) func() {
	return func() {
		a.mu.Lock()
		l, ok := a.leases[id]
		if !ok || l.gen != gen {
			a.mu.Unlock()
			return
		}
		delete(a.leases, id)
		a.mu.Unlock()

		ctx, cancel := context.WithTimeout(context.Background(), expireDetachWait)
		defer cancel()
		a.engine.Detach(ctx)
	}
}

func (a *attachments) lease(id string) Lease {
	return Lease{ID: id, TTL: session.Duration(a.ttl)}
}
