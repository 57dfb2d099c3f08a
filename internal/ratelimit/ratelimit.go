// Package ratelimit implements the global per-queue dispatch limits from
// §4.4 (email-send default 10/s, followup 5/s, analytics 10/s) using
// golang.org/x/time/rate locally per replica, plus a Redis fixed-window
// counter for the cluster-wide ceiling referenced in §5's "rate-limit
// window counters" shared resource.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"
)

// Local wraps x/time/rate.Limiter so it satisfies workerpool.Limiter.
type Local struct {
	limiter *rate.Limiter
}

func NewLocal(perSecond float64) *Local {
	if perSecond <= 0 {
		perSecond = 10
	}
	burst := int(perSecond)
	if burst < 1 {
		burst = 1
	}
	return &Local{limiter: rate.NewLimiter(rate.Limit(perSecond), burst)}
}

func (l *Local) Wait(ctx context.Context) error {
	return l.limiter.Wait(ctx)
}

// WindowCounter is the cluster-wide counter backing the rate limit when
// several replicas share one ceiling: INCR a fixed window key and compare
// against the configured limit.
type WindowCounter struct {
	rdb    *redis.Client
	window time.Duration
}

func NewWindowCounter(rdb *redis.Client, window time.Duration) *WindowCounter {
	if window <= 0 {
		window = time.Second
	}
	return &WindowCounter{rdb: rdb, window: window}
}

// Allow increments the counter for the current window and reports
// whether the caller is still under limit.
func (w *WindowCounter) Allow(ctx context.Context, bucket string, limit int64) (bool, error) {
	key := fmt.Sprintf("ratelimit:%s:%d", bucket, time.Now().UnixNano()/w.window.Nanoseconds())

	count, err := w.rdb.Incr(ctx, key).Result()
	if err != nil {
		return false, err
	}
	if count == 1 {
		w.rdb.Expire(ctx, key, w.window)
	}

	return count <= limit, nil
}
