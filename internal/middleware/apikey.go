package middleware

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"net/http"
)

const apiKeyHeader = "X-API-Key"

// DeriveAPIKey computes the wire API key from the shared secret: the first
// 32 hex characters of its SHA-256. The bot and the launcher derive the
// same value from the same secret, so the secret itself never crosses the
// wire.
func DeriveAPIKey(secret string) string {
	sum := sha256.Sum256([]byte(secret))
	return hex.EncodeToString(sum[:])[:32]
}

// RequireAPIKey rejects any request whose X-API-Key header does not match
// the derived key. Every operation except the health check sits behind
// this; the rejection is uniform so a probing caller learns nothing about
// which routes exist.
func RequireAPIKey(secret string) func(http.Handler) http.Handler {
	expected := []byte(DeriveAPIKey(secret))
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got := r.Header.Get(apiKeyHeader)
			if got == "" {
				unauthorized(w, "API key required")
				return
			}
			if subtle.ConstantTimeCompare([]byte(got), expected) != 1 {
				unauthorized(w, "Invalid API key")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func unauthorized(w http.ResponseWriter, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	json.NewEncoder(w).Encode(map[string]any{"success": false, "error": msg})
}
