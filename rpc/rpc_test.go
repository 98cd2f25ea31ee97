package rpc_test

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"connectrpc.com/connect"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/OperatorFoundation/nahoftu4i/capture"
	"github.com/OperatorFoundation/nahoftu4i/clock"
	"github.com/OperatorFoundation/nahoftu4i/keys"
	"github.com/OperatorFoundation/nahoftu4i/lease"
	"github.com/OperatorFoundation/nahoftu4i/notify"
	"github.com/OperatorFoundation/nahoftu4i/receiver"
	"github.com/OperatorFoundation/nahoftu4i/rpc"
	"github.com/OperatorFoundation/nahoftu4i/session"
)

type fakeEngine struct {
	mu       sync.Mutex
	calls    []string
	identity string
	key      []byte
	batch    capture.Batch
	err      error
	snap     session.Snapshot
}

func (e *fakeEngine) record(name string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls = append(e.calls, name)
	return e.err
}

func (e *fakeEngine) Start(ctx context.Context, identity string, key []byte) error {
	e.mu.Lock()
	e.identity = identity
	e.key = key
	e.mu.Unlock()
	return e.record("start")
}

func (e *fakeEngine) Stop(context.Context) error   { return e.record("stop") }
func (e *fakeEngine) Extend(context.Context) error { return e.record("extend") }
func (e *fakeEngine) Attach(context.Context) error { return e.record("attach") }
func (e *fakeEngine) Detach(context.Context) error { return e.record("detach") }

func (e *fakeEngine) Snapshot() session.Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.snap
}

func (e *fakeEngine) Submit(ctx context.Context, batch capture.Batch) error {
	e.mu.Lock()
	e.batch = batch
	e.mu.Unlock()
	return e.record("submit")
}

func (e *fakeEngine) count(name string) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	n := 0
	for _, c := range e.calls {
		if c == name {
			n++
		}
	}
	return n
}

func newServer(t *testing.T, engine rpc.Engine, opts ...rpc.Option) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	path, handler := rpc.NewHandler(engine, opts...)
	mux.Handle(path, handler)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestClient_RoundTrip(t *testing.T) {
	remaining := 42 * time.Minute
	engine := &fakeEngine{snap: session.Snapshot{
		SessionID: "s-1",
		Identity:  "alice",
		State:     session.Running,
		Remaining: &remaining,
		SpotCount: 3,
	}}
	srv := newServer(t, engine)
	client := rpc.NewClient(srv.Client(), srv.URL)
	ctx := context.Background()

	kp, err := keys.Generate()
	if err != nil {
		t.Fatal(err)
	}
	if err := client.Start(ctx, "alice", kp.Public); err != nil {
		t.Fatalf("Start() error: %v", err)
	}
	if engine.identity != "alice" || !bytes.Equal(engine.key, kp.Public[:]) {
		t.Errorf("engine got identity %q key %x", engine.identity, engine.key)
	}

	for _, call := range []func(context.Context) error{client.Stop, client.Extend} {
		if err := call(ctx); err != nil {
			t.Fatalf("call error: %v", err)
		}
	}
	held, err := client.Attach(ctx, "")
	if err != nil {
		t.Fatalf("Attach() error: %v", err)
	}
	if held.ID == "" || time.Duration(held.TTL) != rpc.DefaultAttachTTL {
		t.Errorf("Attach() = %+v", held)
	}
	if err := client.Detach(ctx, held.ID); err != nil {
		t.Fatalf("Detach() error: %v", err)
	}

	snap, err := client.Status(ctx)
	if err != nil {
		t.Fatalf("Status() error: %v", err)
	}
	if snap.SessionID != "s-1" || snap.State != session.Running || snap.SpotCount != 3 {
		t.Errorf("Status() = %+v", snap)
	}
	if snap.Remaining == nil || *snap.Remaining != remaining {
		t.Errorf("Remaining = %v, want %v", snap.Remaining, remaining)
	}

	at := time.Date(2026, 3, 14, 9, 2, 0, 0, time.UTC)
	batch := capture.Batch{
		Results:    []capture.DecodeResult{{Identifier: "Q01", Locator: "AA00", Power: 30, SNR: -17}},
		ReceivedAt: at,
	}
	if err := client.Submit(ctx, batch); err != nil {
		t.Fatalf("Submit() error: %v", err)
	}
	if len(engine.batch.Results) != 1 || engine.batch.Results[0] != batch.Results[0] {
		t.Errorf("engine got batch %+v", engine.batch)
	}
	if !engine.batch.ReceivedAt.Equal(at) {
		t.Errorf("ReceivedAt = %v, want %v", engine.batch.ReceivedAt, at)
	}

	want := []string{"start", "stop", "extend", "attach", "detach", "submit"}
	if fmt.Sprint(engine.calls) != fmt.Sprint(want) {
		t.Errorf("calls = %v, want %v", engine.calls, want)
	}
}

func TestClient_ErrorCodes(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code connect.Code
	}{
		{"session active", fmt.Errorf("%w: receiving from bob", receiver.ErrSessionActive), connect.CodeAlreadyExists},
		{"not active", receiver.ErrNotActive, connect.CodeFailedPrecondition},
		{"no identity", receiver.ErrNoIdentity, connect.CodeInvalidArgument},
		{"capture unavailable", capture.ErrUnavailable, connect.CodeUnavailable},
		{"lock", fmt.Errorf("%w: lock: %w", lease.ErrResourceAcquisition, lease.ErrHeld), connect.CodeResourceExhausted},
		{"submit unsupported", receiver.ErrSubmitUnsupported, connect.CodeUnimplemented},
		{"closed", receiver.ErrClosed, connect.CodeUnavailable},
		{"unknown", errors.New("boom"), connect.CodeInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			engine := &fakeEngine{err: tt.err}
			srv := newServer(t, engine)
			client := rpc.NewClient(srv.Client(), srv.URL)

			err := client.Stop(context.Background())
			if got := connect.CodeOf(err); got != tt.code {
				t.Errorf("CodeOf(%v) = %v, want %v", err, got, tt.code)
			}
		})
	}
}

func TestStart_InvalidKey(t *testing.T) {
	engine := &fakeEngine{}
	srv := newServer(t, engine)

	raw := connect.NewClient[structpb.Struct, emptypb.Empty](srv.Client(), srv.URL+rpc.StartProcedure)
	msg, err := structpb.NewStruct(map[string]any{"identity": "alice", "key": "too-short"})
	if err != nil {
		t.Fatal(err)
	}

	_, err = raw.CallUnary(context.Background(), connect.NewRequest(msg))
	if connect.CodeOf(err) != connect.CodeInvalidArgument {
		t.Errorf("CodeOf(%v) = %v, want invalid argument", err, connect.CodeOf(err))
	}
	if len(engine.calls) != 0 {
		t.Errorf("engine calls = %v, want none", engine.calls)
	}
}

func TestAuthInterceptor(t *testing.T) {
	const secret = "rpc-secret"
	engine := &fakeEngine{}
	srv := newServer(t, engine, rpc.WithHandlerOptions(connect.WithInterceptors(rpc.NewAuthInterceptor(secret))))

	anonymous := rpc.NewClient(srv.Client(), srv.URL)
	if _, err := anonymous.Attach(context.Background(), ""); connect.CodeOf(err) != connect.CodeUnauthenticated {
		t.Errorf("anonymous Attach() code = %v, want unauthenticated", connect.CodeOf(err))
	}

	token, err := notify.IssueToken(secret, "cli", time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	authed := rpc.NewClient(srv.Client(), srv.URL, connect.WithInterceptors(rpc.NewTokenInterceptor(token)))
	if _, err := authed.Attach(context.Background(), ""); err != nil {
		t.Errorf("authenticated Attach() error: %v", err)
	}
	if len(engine.calls) != 1 {
		t.Errorf("engine calls = %v, want one attach", engine.calls)
	}
}

func TestAttachLease(t *testing.T) {
	const ttl = 30 * time.Second
	start := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	ctx := context.Background()

	setup := func(t *testing.T) (*fakeEngine, *clock.Fake, *rpc.Client) {
		engine := &fakeEngine{}
		clk := clock.NewFake(start)
		srv := newServer(t, engine, rpc.WithAttachTTL(ttl), rpc.WithClock(clk))
		return engine, clk, rpc.NewClient(srv.Client(), srv.URL)
	}

	t.Run("unrenewed lease detaches", func(t *testing.T) {
		engine, clk, client := setup(t)
		held, err := client.Attach(ctx, "")
		if err != nil {
			t.Fatal(err)
		}
		if time.Duration(held.TTL) != ttl {
			t.Errorf("TTL = %v, want %v", held.TTL, ttl)
		}

		clk.Advance(ttl - time.Second)
		if n := engine.count("detach"); n != 0 {
			t.Fatalf("detach before expiry: %d", n)
		}
		clk.Advance(time.Second)
		if n := engine.count("detach"); n != 1 {
			t.Fatalf("detach after expiry = %d, want 1", n)
		}

		if _, err := client.Attach(ctx, held.ID); connect.CodeOf(err) != connect.CodeNotFound {
			t.Errorf("renew expired lease code = %v, want not found", connect.CodeOf(err))
		}
		if err := client.Detach(ctx, held.ID); connect.CodeOf(err) != connect.CodeNotFound {
			t.Errorf("detach expired lease code = %v, want not found", connect.CodeOf(err))
		}
		if n := engine.count("detach"); n != 1 {
			t.Errorf("engine detaches = %d, want 1", n)
		}
	})

	t.Run("renewal keeps the lease", func(t *testing.T) {
		engine, clk, client := setup(t)
		held, err := client.Attach(ctx, "")
		if err != nil {
			t.Fatal(err)
		}

		for i := 0; i < 3; i++ {
			clk.Advance(ttl / 2)
			renewed, err := client.Attach(ctx, held.ID)
			if err != nil {
				t.Fatalf("renew error: %v", err)
			}
			if renewed.ID != held.ID {
				t.Errorf("renewed ID = %q, want %q", renewed.ID, held.ID)
			}
		}
		if n := engine.count("detach"); n != 0 {
			t.Errorf("detach while renewed = %d", n)
		}
		if n := engine.count("attach"); n != 1 {
			t.Errorf("engine attaches = %d, want 1", n)
		}

		if err := client.Detach(ctx, held.ID); err != nil {
			t.Fatal(err)
		}
		clk.Advance(2 * ttl)
		if n := engine.count("detach"); n != 1 {
			t.Errorf("engine detaches = %d, want 1", n)
		}
		if clk.Pending() != 0 {
			t.Errorf("pending timers = %d, want 0", clk.Pending())
		}
	})

	t.Run("leases are independent", func(t *testing.T) {
		engine, clk, client := setup(t)
		first, err := client.Attach(ctx, "")
		if err != nil {
			t.Fatal(err)
		}
		clk.Advance(ttl / 2)
		second, err := client.Attach(ctx, "")
		if err != nil {
			t.Fatal(err)
		}
		if first.ID == second.ID {
			t.Fatalf("lease IDs collide: %q", first.ID)
		}

		clk.Advance(ttl / 2)
		if n := engine.count("detach"); n != 1 {
			t.Errorf("detaches after first expiry = %d, want 1", n)
		}
		if err := client.Detach(ctx, second.ID); err != nil {
			t.Errorf("Detach(second) error: %v", err)
		}
		if n := engine.count("detach"); n != 2 {
			t.Errorf("detaches = %d, want 2", n)
		}
	})

	t.Run("unknown lease", func(t *testing.T) {
		engine, _, client := setup(t)
		if _, err := client.Attach(ctx, "no-such-lease"); connect.CodeOf(err) != connect.CodeNotFound {
			t.Errorf("renew code = %v, want not found", connect.CodeOf(err))
		}
		if err := client.Detach(ctx, "no-such-lease"); connect.CodeOf(err) != connect.CodeNotFound {
			t.Errorf("detach code = %v, want not found", connect.CodeOf(err))
		}
		if err := client.Detach(ctx, ""); connect.CodeOf(err) != connect.CodeInvalidArgument {
			t.Errorf("empty detach code = %v, want invalid argument", connect.CodeOf(err))
		}
		if len(engine.calls) != 0 {
			t.Errorf("engine calls = %v, want none", engine.calls)
		}
	})

	t.Run("failed attach holds no lease", func(t *testing.T) {
		engine, clk, client := setup(t)
		engine.err = receiver.ErrClosed
		if _, err := client.Attach(ctx, ""); connect.CodeOf(err) != connect.CodeUnavailable {
			t.Errorf("Attach() code = %v, want unavailable", connect.CodeOf(err))
		}
		if clk.Pending() != 0 {
			t.Errorf("pending timers = %d, want 0", clk.Pending())
		}
	})
}

func TestClient_Observe(t *testing.T) {
	engine := &fakeEngine{}
	srv := newServer(t, engine, rpc.WithAttachTTL(150*time.Millisecond))
	client := rpc.NewClient(srv.Client(), srv.URL)

	ctx, cancel := context.WithTimeout(context.Background(), 120*time.Millisecond)
	defer cancel()
	if err := client.Observe(ctx); err != nil {
		t.Fatalf("Observe() error: %v", err)
	}

	if n := engine.count("attach"); n != 1 {
		t.Errorf("engine attaches = %d, want 1", n)
	}
	if n := engine.count("detach"); n != 1 {
		t.Errorf("engine detaches = %d, want 1", n)
	}
}
