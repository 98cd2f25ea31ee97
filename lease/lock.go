// Package lease holds the resources a receive session keeps alive: the
// suspension-preventing lock and the capture-source connection.
package lease

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/OperatorFoundation/nahoftu4i/clock"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var (
	// ErrResourceAcquisition reports that a session's resources could not be
	// acquired. Any partially acquired resource has been released.
	ErrResourceAcquisition = errors.New("resource acquisition failed")
	// ErrHeld reports an attempt to acquire a resource that has not been
	// released yet.
	ErrHeld = errors.New("resource already held")
)

// Lock is the suspension-preventing resource. Acquire holds it for at most
// ttl; Release must tolerate a lock that is not held.
type Lock interface {
	Acquire(ctx context.Context, ttl time.Duration) error
	Release(ctx context.Context) error
}

// LocalLock is an in-process Lock. The hold lapses by itself after ttl.
type LocalLock struct {
	clock clock.Clock

	mu     sync.Mutex
	held   bool
	expiry clock.Timer
}

// NewLocalLock creates an in-process lock. A nil clock uses the real clock.
func NewLocalLock(c clock.Clock) *LocalLock {
	if c == nil {
		c = clock.Real()
	}
	return &LocalLock{clock: c}
}

func (l *LocalLock) Acquire(ctx context.Context, ttl time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.held {
		return ErrHeld
	}
	l.held = true
	if ttl > 0 {
		var self clock.Timer
		self = l.clock.AfterFunc(ttl, func() {
			l.mu.Lock()
			defer l.mu.Unlock()
			if l.expiry == self {
				l.held = false
				l.expiry = nil
			}
		})
		l.expiry = self
	}
	return nil
}

func (l *LocalLock) Release(context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.expiry != nil {
		l.expiry.Stop()
		l.expiry = nil
	}
	l.held = false
	return nil
}

// Held reports whether the lock is currently held.
func (l *LocalLock) Held() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.held
}

// DefaultRedisKey is the key RedisLock uses when none is configured.
const DefaultRedisKey = "nahoftu4i:receiver:lock"

// releaseScript deletes the key only if it still carries our token, so a
// lock that expired and was taken by another holder is left alone.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLock holds a Redis key for the lifetime of a session, keeping a single
// receiver active across processes sharing one radio.
type RedisLock struct {
	client *redis.Client
	key    string

	mu    sync.Mutex
	token string
}

// NewRedisLock creates a lock on key. An empty key uses DefaultRedisKey.
func NewRedisLock(client *redis.Client, key string) *RedisLock {
	if key == "" {
		key = DefaultRedisKey
	}
	return &RedisLock{client: client, key: key}
}

func (l *RedisLock) Acquire(ctx context.Context, ttl time.Duration) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.token != "" {
		return ErrHeld
	}

	token := uuid.NewString()
	ok, err := l.client.SetNX(ctx, l.key, token, ttl).Result()
	if err != nil {
		return fmt.Errorf("redis lock %s: %w", l.key, err)
	}
	if !ok {
		return fmt.Errorf("redis lock %s: %w", l.key, ErrHeld)
	}
	l.token = token
	return nil
}

func (l *RedisLock) Release(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.token == "" {
		return nil
	}
	token := l.token
	l.token = ""

	if err := releaseScript.Run(ctx, l.client, []string{l.key}, token).Err(); err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("redis unlock %s: %w", l.key, err)
	}
	return nil
}
