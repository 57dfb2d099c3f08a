// Package lock implements the cross-replica distributed lock from §4.3:
// keyed "schedule:<leadId>:<type>", TTL-fenced, with a fencing token that
// guarantees a release only ever deletes a key it still owns.
//
// Grounded on the teacher's internal/queue/redisclient client and on
// bravo1goingdark-mailgrid's scheduler.Scheduler.AcquireLock/ReleaseLock
// pattern, adapted from a BoltDB-local lock to a Redis cross-replica one.
package lock

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var ErrNotAcquired = errors.New("lock: not acquired")

// releaseScript deletes the key only if its value still matches the
// caller's token — the compare-and-delete fence from §4.3 and invariant 5.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
else
	return 0
end
`)

// extendScript is the compare-and-pexpire analogue used by Extend.
var extendScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
else
	return 0
end
`)

type Locker struct {
	rdb *redis.Client
}

func New(rdb *redis.Client) *Locker {
	return &Locker{rdb: rdb}
}

// Key builds the canonical schedule:<leadId>:<type> lock key (§4.3).
func Key(leadID, emailType string) string {
	return fmt.Sprintf("schedule:%s:%s", leadID, emailType)
}

// Acquire is an atomic set-if-absent with a TTL fence, returning a unique
// token the caller must present to Release/Extend.
func (l *Locker) Acquire(ctx context.Context, key string, ttl time.Duration) (string, bool, error) {
	token := uuid.NewString()
	ok, err := l.rdb.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return "", false, err
	}
	if !ok {
		return "", false, nil
	}
	return token, true, nil
}

// Release deletes key only if its value still equals token.
func (l *Locker) Release(ctx context.Context, key, token string) error {
	res, err := releaseScript.Run(ctx, l.rdb, []string{key}, token).Int64()
	if err != nil {
		return err
	}
	if res == 0 {
		return ErrNotAcquired
	}
	return nil
}

// Extend pushes the TTL out again, only if token still owns the lock.
func (l *Locker) Extend(ctx context.Context, key, token string, ttl time.Duration) error {
	res, err := extendScript.Run(ctx, l.rdb, []string{key}, token, ttl.Milliseconds()).Int64()
	if err != nil {
		return err
	}
	if res == 0 {
		return ErrNotAcquired
	}
	return nil
}

type Options struct {
	TTL         time.Duration
	MaxRetries  int
	BaseBackoff time.Duration
}

func (o Options) withDefaults() Options {
	if o.TTL <= 0 {
		o.TTL = 30 * time.Second
	}
	if o.MaxRetries <= 0 {
		o.MaxRetries = 3
	}
	if o.BaseBackoff <= 0 {
		o.BaseBackoff = 50 * time.Millisecond
	}
	return o
}

// WithLock acquires key with linearly growing backoff (baseBackoff * attempt,
// plus jitter), runs fn while held, and guarantees release even if fn
// panics or errors. Returns ErrNotAcquired if all retries are exhausted.
func WithLock(ctx context.Context, l *Locker, key string, opts Options, fn func(ctx context.Context) error) error {
	opts = opts.withDefaults()

	var token string
	var acquired bool

	for attempt := 1; attempt <= opts.MaxRetries; attempt++ {
		tok, ok, err := l.Acquire(ctx, key, opts.TTL)
		if err != nil {
			return err
		}
		if ok {
			token, acquired = tok, true
			break
		}

		delay := time.Duration(attempt) * opts.BaseBackoff
		jitter := time.Duration(rand.Intn(25)) * time.Millisecond
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay + jitter):
		}
	}

	if !acquired {
		return ErrNotAcquired
	}

	defer func() {
		releaseCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = l.Release(releaseCtx, key, token)
	}()

	return fn(ctx)
}
