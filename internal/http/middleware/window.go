package middleware

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

// WindowCounter counts hits per key in fixed windows.
type WindowCounter interface {
	// Hit records one request for key in the window starting at start and
	// returns the count so far.
	Hit(ctx context.Context, key string, start time.Time, window time.Duration) (int64, error)
}

// RedisCounter shares windows across replicas with INCR + EXPIRE.
type RedisCounter struct {
	Client *redis.Client
}

// Hit increments rate:window:<key>:<start> and sets its expiry.
func (r *RedisCounter) Hit(ctx context.Context, key string, start time.Time, window time.Duration) (int64, error) {
	k := fmt.Sprintf("rate:window:%s:%d", key, start.Unix())
	pipe := r.Client.Pipeline()
	incr := pipe.Incr(ctx, k)
	pipe.Expire(ctx, k, window)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, err
	}
	return incr.Val(), nil
}

// MemoryCounter is the single-process WindowCounter.
type MemoryCounter struct {
	mu     sync.Mutex
	counts map[string]memWindow
}

type memWindow struct {
	start time.Time
	n     int64
}

// NewMemoryCounter returns an empty counter.
func NewMemoryCounter() *MemoryCounter {
	return &MemoryCounter{counts: make(map[string]memWindow)}
}

// Hit counts key in the window starting at start, resetting on a new window.
func (m *MemoryCounter) Hit(_ context.Context, key string, start time.Time, window time.Duration) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	w := m.counts[key]
	if !w.start.Equal(start) {
		w = memWindow{start: start}
	}
	w.n++
	m.counts[key] = w

	// Drop windows that have closed.
	if len(m.counts) > 10000 {
		for k, v := range m.counts {
			if v.start.Add(window).Before(start) {
				delete(m.counts, k)
			}
		}
	}
	return w.n, nil
}

// WindowLimiter allows Max requests per key per Window.
type WindowLimiter struct {
	Counter WindowCounter
	Window  time.Duration
	Max     int64
	Key     KeyFunc
	Now     func() time.Time
}

// Handler rejects requests beyond the window with 429 and a Retry-After of
// the seconds left in the window. Counter failures let the request through.
func (l *WindowLimiter) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if l.Max <= 0 || l.Window <= 0 {
			c.Next()
			return
		}
		now := time.Now()
		if l.Now != nil {
			now = l.Now()
		}
		start := now.Truncate(l.Window)

		n, err := l.Counter.Hit(c.Request.Context(), l.Key(c), start, l.Window)
		if err != nil {
			LoggerFrom(c).Warn().Err(err).Msg("request window counter unavailable")
			c.Next()
			return
		}
		c.Header("X-RateLimit-Limit", strconv.FormatInt(l.Max, 10))
		left := l.Max - n
		if left < 0 {
			left = 0
		}
		c.Header("X-RateLimit-Remaining", strconv.FormatInt(left, 10))
		if n <= l.Max {
			c.Next()
			return
		}

		retry := int(start.Add(l.Window).Sub(now).Seconds())
		if retry < 1 {
			retry = 1
		}
		c.Header("Retry-After", strconv.Itoa(retry))
		c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
			"request_id":  RequestIDFrom(c),
			"code":        "rate_limited",
			"message":     "too many requests, please try again later",
			"retry_after": retry,
		})
	}
}
