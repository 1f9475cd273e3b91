package middleware

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	loginThrottleProblemType  = "https://access.eclesia.example.com/errors/rate-limit-exceeded"
	loginThrottleProblemTitle = "Rate Limit Exceeded"
)

// AttemptStore persists login attempts for the sliding window. Attempts are
// scoped per identifier; the reference time always comes from the limiter's
// clock so the window stays consistent across the trim/count/record calls.
type AttemptStore interface {
	TrimWindow(ctx context.Context, identifier string, window time.Duration, reference time.Time) error
	CountAttempts(ctx context.Context, identifier string, window time.Duration, reference time.Time) (int, error)
	RecordAttempt(ctx context.Context, identifier string, at time.Time) error
	OldestAttempt(ctx context.Context, identifier string, window time.Duration, reference time.Time) (time.Time, bool, error)
}

// LoginRateLimiter throttles the login endpoint per client IP. When the
// attempt store is unreachable the request passes through: a counter outage
// must not lock the congregation out of the system.
type LoginRateLimiter struct {
	store  AttemptStore
	logger *zap.Logger
	now    func() time.Time
}

// ProblemDetails is the RFC 9457 payload returned on a throttled login.
type ProblemDetails struct {
	Type       string `json:"type"`
	Title      string `json:"title"`
	Status     int    `json:"status"`
	Detail     string `json:"detail"`
	Instance   string `json:"instance"`
	RetryAfter int    `json:"retry_after"`
	TraceID    string `json:"trace_id,omitempty"`
}

func NewLoginRateLimiter(store AttemptStore, logger *zap.Logger) *LoginRateLimiter {
	if logger == nil {
		logger = zap.NewNop()
	}

	return &LoginRateLimiter{
		store:  store,
		logger: logger,
		now:    time.Now,
	}
}

// WithClock overrides the limiter clock, used in tests.
func (rl *LoginRateLimiter) WithClock(now func() time.Time) *LoginRateLimiter {
	if now != nil {
		rl.now = now
	}
	return rl
}

// Throttle enforces at most limit attempts per window for each client IP.
// A non-positive limit or window disables the throttle entirely.
func (rl *LoginRateLimiter) Throttle(limit int, window time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		if rl.store == nil || limit <= 0 || window <= 0 {
			c.Next()
			return
		}

		ip := c.ClientIP()
		if ip == "" {
			c.Next()
			return
		}

		now := rl.now()
		verdict, err := rl.check(c.Request.Context(), "login:"+ip, limit, window, now)
		if err != nil {
			rl.logger.Warn("login throttle check failed",
				zap.String("client_ip", ip),
				zap.Error(err),
			)
			c.Next()
			return
		}

		rl.writeHeaders(c, verdict, now)
		if !verdict.allowed {
			rl.reject(c, verdict, now)
			return
		}

		c.Next()
	}
}

type throttleVerdict struct {
	allowed   bool
	limit     int
	remaining int
	reset     time.Time
}

func (v throttleVerdict) retryAfterSeconds(now time.Time) int {
	seconds := int(math.Ceil(v.reset.Sub(now).Seconds()))
	if seconds < 0 {
		return 0
	}
	return seconds
}

// check trims expired attempts, counts what remains, and records the new
// attempt when the caller is still under the limit. The window resets when
// the oldest surviving attempt falls out, not a fixed interval from now.
func (rl *LoginRateLimiter) check(ctx context.Context, key string, limit int, window time.Duration, now time.Time) (throttleVerdict, error) {
	if err := rl.store.TrimWindow(ctx, key, window, now); err != nil {
		return throttleVerdict{}, err
	}

	count, err := rl.store.CountAttempts(ctx, key, window, now)
	if err != nil {
		return throttleVerdict{}, err
	}

	verdict := throttleVerdict{limit: limit, reset: now.Add(window)}

	oldest, seen, err := rl.store.OldestAttempt(ctx, key, window, now)
	if err != nil {
		return throttleVerdict{}, err
	}
	if seen {
		verdict.reset = oldest.Add(window)
	}

	if count >= limit {
		return verdict, nil
	}

	if err := rl.store.RecordAttempt(ctx, key, now); err != nil {
		return throttleVerdict{}, err
	}

	verdict.allowed = true
	verdict.remaining = limit - count - 1
	if verdict.remaining < 0 {
		verdict.remaining = 0
	}

	return verdict, nil
}

func (rl *LoginRateLimiter) writeHeaders(c *gin.Context, verdict throttleVerdict, now time.Time) {
	headers := c.Writer.Header()
	headers.Set("X-RateLimit-Limit", strconv.Itoa(verdict.limit))
	headers.Set("X-RateLimit-Remaining", strconv.Itoa(verdict.remaining))
	headers.Set("X-RateLimit-Reset", strconv.FormatInt(verdict.reset.Unix(), 10))

	if !verdict.allowed {
		headers.Set("Retry-After", strconv.Itoa(verdict.retryAfterSeconds(now)))
	}
}

func (rl *LoginRateLimiter) reject(c *gin.Context, verdict throttleVerdict, now time.Time) {
	retry := verdict.retryAfterSeconds(now)

	instance := c.FullPath()
	if instance == "" {
		instance = c.Request.URL.Path
	}

	c.AbortWithStatusJSON(http.StatusTooManyRequests, ProblemDetails{
		Type:       loginThrottleProblemType,
		Title:      loginThrottleProblemTitle,
		Status:     http.StatusTooManyRequests,
		Detail:     fmt.Sprintf("Too many login attempts. Try again in %d seconds.", retry),
		Instance:   instance,
		RetryAfter: retry,
		TraceID:    GetTraceID(c),
	})
}
