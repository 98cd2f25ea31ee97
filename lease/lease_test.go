package lease_test

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/OperatorFoundation/nahoftu4i/capture"
	"github.com/OperatorFoundation/nahoftu4i/clock"
	"github.com/OperatorFoundation/nahoftu4i/lease"
	"github.com/OperatorFoundation/nahoftu4i/observability"
	"github.com/redis/go-redis/v9"
)

var epoch0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type failingSource struct{ err error }

func (s failingSource) Discover(context.Context) (capture.Conn, error) { return nil, s.err }

type failingLock struct{ released int }

func (l *failingLock) Acquire(context.Context, time.Duration) error { return errors.New("denied") }
func (l *failingLock) Release(context.Context) error {
	l.released++
	return nil
}

func TestLocalLock(t *testing.T) {
	fc := clock.NewFake(epoch0)
	lock := lease.NewLocalLock(fc)
	ctx := context.Background()

	if err := lock.Acquire(ctx, time.Hour); err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	if err := lock.Acquire(ctx, time.Hour); !errors.Is(err, lease.ErrHeld) {
		t.Errorf("second Acquire() error = %v, want ErrHeld", err)
	}

	if err := lock.Release(ctx); err != nil {
		t.Fatalf("Release() error = %v", err)
	}
	if err := lock.Release(ctx); err != nil {
		t.Errorf("Release() of unheld lock error = %v", err)
	}
	if err := lock.Acquire(ctx, time.Hour); err != nil {
		t.Errorf("Acquire() after release error = %v", err)
	}
}

func TestLocalLock_TTLLapses(t *testing.T) {
	fc := clock.NewFake(epoch0)
	lock := lease.NewLocalLock(fc)

	if err := lock.Acquire(context.Background(), time.Minute); err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	fc.Advance(time.Minute)

	if lock.Held() {
		t.Error("lock still held after ttl")
	}
}

func TestManager_AcquireRelease(t *testing.T) {
	fc := clock.NewFake(epoch0)
	src := capture.NewChannelSource()
	lock := lease.NewLocalLock(fc)
	rec := observability.NewRecorder()
	m := lease.NewManager(lock, src, fc, 3*time.Hour, lease.WithObserver(rec))
	ctx := context.Background()

	conn, err := m.Acquire(ctx)
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	if conn == nil || !src.Connected() || !lock.Held() {
		t.Fatal("resources not held after Acquire")
	}

	if _, err := m.Acquire(ctx); !errors.Is(err, lease.ErrHeld) {
		t.Errorf("reacquire error = %v, want ErrHeld", err)
	}

	if err := m.Release(ctx); err != nil {
		t.Fatalf("Release() error = %v", err)
	}
	if src.Connected() || lock.Held() || m.Held() {
		t.Error("resources still held after Release")
	}
	if err := m.Release(ctx); err != nil {
		t.Errorf("second Release() error = %v", err)
	}

	if got := len(rec.OfType(lease.EventRelease)); got != 1 {
		t.Errorf("release events = %d, want 1", got)
	}
}

func TestManager_CaptureUnavailableReleasesLock(t *testing.T) {
	fc := clock.NewFake(epoch0)
	lock := lease.NewLocalLock(fc)
	m := lease.NewManager(lock, failingSource{err: capture.ErrUnavailable}, fc, time.Hour)

	_, err := m.Acquire(context.Background())
	if !errors.Is(err, capture.ErrUnavailable) {
		t.Fatalf("Acquire() error = %v, want ErrUnavailable", err)
	}
	if lock.Held() {
		t.Error("lock held after failed acquisition")
	}
	if m.Held() {
		t.Error("manager reports held after failed acquisition")
	}
}

func TestManager_CaptureFailureWrapsAcquisition(t *testing.T) {
	fc := clock.NewFake(epoch0)
	m := lease.NewManager(lease.NewLocalLock(fc), failingSource{err: errors.New("usb reset")}, fc, time.Hour)

	if _, err := m.Acquire(context.Background()); !errors.Is(err, lease.ErrResourceAcquisition) {
		t.Errorf("Acquire() error = %v, want ErrResourceAcquisition", err)
	}
}

func TestManager_LockFailure(t *testing.T) {
	fc := clock.NewFake(epoch0)
	lock := &failingLock{}
	src := capture.NewChannelSource()
	m := lease.NewManager(lock, src, fc, time.Hour)

	if _, err := m.Acquire(context.Background()); !errors.Is(err, lease.ErrResourceAcquisition) {
		t.Fatalf("Acquire() error = %v, want ErrResourceAcquisition", err)
	}
	if src.Connected() {
		t.Error("capture connected although the lock was denied")
	}
	if lock.released != 0 {
		t.Errorf("lock released %d times, want 0", lock.released)
	}
}

func TestManager_Backstop(t *testing.T) {
	fc := clock.NewFake(epoch0)
	var fired []uint64
	m := lease.NewManager(lease.NewLocalLock(fc), capture.NewChannelSource(), fc, 190*time.Minute,
		lease.WithExpireFunc(func(epoch uint64) { fired = append(fired, epoch) }))
	ctx := context.Background()

	if _, err := m.Acquire(ctx); err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	fc.Advance(190 * time.Minute)

	if len(fired) != 1 {
		t.Fatalf("backstop fired %d times, want 1", len(fired))
	}
	if !m.Expired(fired[0]) {
		t.Error("Expired() = false for the current hold")
	}

	m.Release(ctx)
	if m.Expired(fired[0]) {
		t.Error("Expired() = true after release")
	}

	if _, err := m.Acquire(ctx); err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	if m.Expired(fired[0]) {
		t.Error("Expired() = true for a previous hold")
	}
	m.Release(ctx)
	fc.Advance(200 * time.Minute)
	if len(fired) != 1 {
		t.Errorf("backstop fired after release")
	}
}

// RECEIVER_TEST_REDIS_URL points the Redis lock test at a live server.
func TestRedisLock(t *testing.T) {
	url := os.Getenv("RECEIVER_TEST_REDIS_URL")
	if url == "" {
		t.Skip("RECEIVER_TEST_REDIS_URL not set")
	}
	opt, err := redis.ParseURL(url)
	if err != nil {
		t.Fatalf("ParseURL() error = %v", err)
	}
	client := redis.NewClient(opt)
	defer client.Close()

	ctx := context.Background()
	key := "nahoftu4i:test:" + t.Name()
	a := lease.NewRedisLock(client, key)
	b := lease.NewRedisLock(client, key)

	if err := a.Acquire(ctx, time.Minute); err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	if err := b.Acquire(ctx, time.Minute); !errors.Is(err, lease.ErrHeld) {
		t.Errorf("competing Acquire() error = %v, want ErrHeld", err)
	}
	if err := a.Release(ctx); err != nil {
		t.Fatalf("Release() error = %v", err)
	}
	if err := b.Acquire(ctx, time.Minute); err != nil {
		t.Errorf("Acquire() after release error = %v", err)
	}
	b.Release(ctx)
}
