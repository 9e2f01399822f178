package middleware

import (
	"context"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"greendrake/chat/internal/apperr"
	"greendrake/chat/internal/config"
	"greendrake/chat/internal/logging"
	"greendrake/chat/internal/utils"
)

const (
	limiterCleanupInterval = 10 * time.Minute
	limiterIdleTimeout     = 30 * time.Minute
)

type userLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// SendLimiter is a per-user token bucket for sending messages. One instance is
// shared by the REST route and the socket handler.
type SendLimiter struct {
	mu      sync.Mutex
	users   map[utils.SixID]*userLimiter
	limit   rate.Limit
	burst   int
	nowFunc func() time.Time
}

func NewSendLimiter(cfg *config.Config) *SendLimiter {
	burst := cfg.RateLimitSendBurst
	if burst <= 0 {
		burst = 1
	}
	return &SendLimiter{
		users:   make(map[utils.SixID]*userLimiter),
		limit:   rate.Limit(cfg.RateLimitSendPerSecond),
		burst:   burst,
		nowFunc: time.Now,
	}
}

// Allow consumes one token for the user.
func (l *SendLimiter) Allow(userID utils.SixID) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.nowFunc()
	u, ok := l.users[userID]
	if !ok {
		u = &userLimiter{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.users[userID] = u
	}
	u.lastSeen = now
	return u.limiter.AllowN(now, 1)
}

// Size is the number of tracked users.
func (l *SendLimiter) Size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.users)
}

// Sweep drops users idle for longer than the idle timeout and returns how many went.
func (l *SendLimiter) Sweep() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	cutoff := l.nowFunc().Add(-limiterIdleTimeout)
	removed := 0
	for id, u := range l.users {
		if u.lastSeen.Before(cutoff) {
			delete(l.users, id)
			removed++
		}
	}
	return removed
}

// Run sweeps idle users until ctx is done.
func (l *SendLimiter) Run(ctx context.Context) {
	ticker := time.NewTicker(limiterCleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := l.Sweep(); n > 0 {
				logging.Debug().Int("removed", n).Msg("send limiter cleanup")
			}
		}
	}
}

// Limit rejects with 429 once the authenticated caller runs out of tokens.
// It must run after AuthMiddleware.
func (l *SendLimiter) Limit() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := UserID(c)
		if !ok {
			AbortWithError(c, apperr.Unauthorized("authentication required"))
			return
		}
		if !l.Allow(userID) {
			logging.Warn().Str("user_id", userID.String()).Str("path", c.FullPath()).Msg("send rate limit exceeded")
			AbortWithError(c, apperr.RateLimited("rate limit exceeded"))
			return
		}
		c.Next()
	}
}
