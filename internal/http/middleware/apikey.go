package middleware

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"net/http"

	"github.com/gin-gonic/gin"
)

const (
	// HeaderAPIKey carries the shared ops API key.
	HeaderAPIKey = "X-API-Key"

	// ctxKeyClient stores a short, non-reversible client identity derived
	// from the accepted key. Logs and rate-limit keys use it instead of the
	// key itself.
	ctxKeyClient = "client"
)

// APIKey guards a route group with a shared key sent in X-API-Key. An empty
// key disables the check. Missing or wrong keys get 401 in the standard
// error envelope.
func APIKey(key string) gin.HandlerFunc {
	if key == "" {
		return func(c *gin.Context) { c.Next() }
	}
	want := []byte(key)
	id := clientID(key)
	return func(c *gin.Context) {
		got := c.GetHeader(HeaderAPIKey)
		if got == "" || subtle.ConstantTimeCompare([]byte(got), want) != 1 {
			abortJSON(c, http.StatusUnauthorized, "unauthorized", "missing or invalid API key")
			return
		}
		c.Set(ctxKeyClient, id)
		c.Next()
	}
}

// clientID is the first 8 bytes of the key's SHA-256, hex encoded.
func clientID(key string) string {
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:8])
}
