package middleware

import (
	"fmt"
	"log"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

type visitor struct {
	count    int
	lastSeen time.Time
}

// RateLimiter is a fixed-window limiter keyed by client IP. With a Redis
// client the window is shared by every server instance; without one it is
// kept in process.
type RateLimiter struct {
	redis  *redis.Client
	prefix string
	limit  int
	window time.Duration

	mu       sync.Mutex
	visitors map[string]*visitor
}

func NewRateLimiter(redisClient *redis.Client, prefix string, limit int, window time.Duration) *RateLimiter {
	rl := &RateLimiter{
		redis:    redisClient,
		prefix:   prefix,
		limit:    limit,
		window:   window,
		visitors: make(map[string]*visitor),
	}

	if redisClient == nil {
		go func() {
			for {
				time.Sleep(window)
				rl.mu.Lock()
				for ip, v := range rl.visitors {
					if time.Since(v.lastSeen) > window {
						delete(rl.visitors, ip)
					}
				}
				rl.mu.Unlock()
			}
		}()
	}

	return rl
}

func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		allowed, retryAfter := rl.allow(r)
		if !allowed {
			w.Header().Set("Retry-After", strconv.Itoa(int(retryAfter.Seconds())+1))
			writeError(w, http.StatusTooManyRequests, "RATE_LIMITED", "Too many requests. Please try again later.", r)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (rl *RateLimiter) allow(r *http.Request) (bool, time.Duration) {
	ip := clientIP(r)
	if rl.redis == nil {
		return rl.allowLocal(ip, time.Now())
	}

	ctx := r.Context()
	slot := time.Now().UnixNano() / int64(rl.window)
	key := fmt.Sprintf("ratelimit:%s:%s:%d", rl.prefix, ip, slot)

	pipe := rl.redis.TxPipeline()
	incr := pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, rl.window)
	if _, err := pipe.Exec(ctx); err != nil {
		// Fail open while Redis is down.
		log.Printf("ratelimit: redis unavailable: %v", err)
		return true, 0
	}

	if incr.Val() > int64(rl.limit) {
		next := time.Unix(0, (slot+1)*int64(rl.window))
		return false, time.Until(next)
	}
	return true, 0
}

func (rl *RateLimiter) allowLocal(ip string, now time.Time) (bool, time.Duration) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	v, exists := rl.visitors[ip]
	if !exists || now.Sub(v.lastSeen) > rl.window {
		rl.visitors[ip] = &visitor{count: 1, lastSeen: now}
		return true, 0
	}

	v.count++
	v.lastSeen = now
	if v.count > rl.limit {
		return false, rl.window
	}
	return true, 0
}

// clientIP strips the port from RemoteAddr; chi's RealIP runs first and
// already rewrote it from X-Forwarded-For when present.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
