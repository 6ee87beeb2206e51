// Package middleware contains shared Gin middleware used by the ops HTTP
// server.
//
// This file adapts the per-key token-bucket limiter from internal/ratelimit
// to Gin. Keys default to the client IP, or to the API key when the request
// was authenticated.
package middleware

import (
	"math"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-gif-bot/internal/ratelimit"
)

// keyFunc selects the identity used to key a rate-limit bucket.
type keyFunc func(*gin.Context) string

// KeyByAPIKeyOrIP prefers the authenticated API key identity (set by
// APIKey under ctxKeyClient) and falls back to the client IP address.
// Keys are prefixed to avoid collisions between namespaces.
func KeyByAPIKeyOrIP() keyFunc {
	return func(c *gin.Context) string {
		if v, ok := c.Get(ctxKeyClient); ok {
			if s, ok := v.(string); ok && s != "" {
				return "key:" + s
			}
		}
		return "ip:" + c.ClientIP()
	}
}

// RateLimiter enforces a ratelimit.Limiter on Gin requests.
type RateLimiter struct {
	lim   *ratelimit.Limiter
	keyFn keyFunc
}

// NewRateLimiter constructs a RateLimiter with the given tokens-per-second
// and burst size, keyed by keyFn.
func NewRateLimiter(rps float64, burst int, keyFn keyFunc) *RateLimiter {
	if keyFn == nil {
		keyFn = KeyByAPIKeyOrIP()
	}
	return &RateLimiter{lim: ratelimit.New(rps, burst), keyFn: keyFn}
}

// Handler returns a Gin middleware that rejects requests over the limit with
// 429 and a Retry-After header:
//
//	{
//	  "request_id": "<uuid>",
//	  "code":       "rate_limited",
//	  "message":    "rate limit exceeded"
//	}
func (rl *RateLimiter) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		key := rl.keyFn(c)
		if rl.lim.Allow(key) {
			c.Next()
			return
		}

		retry := int(math.Ceil(rl.lim.Reserve(key).Seconds()))
		if retry < 1 {
			retry = 1
		}
		c.Header("Retry-After", strconv.Itoa(retry))
		abortJSON(c, http.StatusTooManyRequests, "rate_limited", "rate limit exceeded")
	}
}
