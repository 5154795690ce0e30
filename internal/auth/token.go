// Package auth guards the operator endpoints with signed monitor tokens and
// the provider callbacks with request signatures.
package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"
)

var (
	ErrTokenMissing = errors.New("missing token")
	ErrTokenFormat  = errors.New("invalid token format")
	ErrTokenSig     = errors.New("invalid token signature")
	ErrTokenExp     = errors.New("token expired")
)

// GenerateMonitorToken builds an operator token for subject valid until expUnix.
// Format: base64url(subject + "." + exp_unix + "." + hex(hmac_sha256(secret, subject+"."+exp)))
func GenerateMonitorToken(secret, subject string, expUnix int64) (string, error) {
	if secret == "" {
		return "", fmt.Errorf("monitor token: empty secret")
	}
	if subject == "" || strings.Contains(subject, ".") {
		return "", fmt.Errorf("monitor token: subject %q: %w", subject, ErrTokenFormat)
	}
	msg := subject + "." + strconv.FormatInt(expUnix, 10)
	raw := msg + "." + sign(secret, msg)
	return base64.RawURLEncoding.EncodeToString([]byte(raw)), nil
}

// ValidateMonitorToken checks signature and expiry, allowing skewSeconds past
// exp. It returns the embedded subject and expiry.
func ValidateMonitorToken(secret, token string, now time.Time, skewSeconds int) (string, int64, error) {
	if token == "" {
		return "", 0, ErrTokenMissing
	}
	b, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return "", 0, ErrTokenFormat
	}
	parts := strings.Split(string(b), ".")
	if len(parts) != 3 {
		return "", 0, ErrTokenFormat
	}
	subject, expStr, sigHex := parts[0], parts[1], parts[2]
	exp, err := strconv.ParseInt(expStr, 10, 64)
	if err != nil {
		return "", 0, ErrTokenFormat
	}
	got, err := hex.DecodeString(sigHex)
	if err != nil {
		return "", 0, ErrTokenFormat
	}
	want, _ := hex.DecodeString(sign(secret, subject+"."+expStr))
	if !hmac.Equal(want, got) {
		return "", 0, ErrTokenSig
	}
	if now.Unix() > exp+int64(skewSeconds) {
		return "", 0, ErrTokenExp
	}
	return subject, exp, nil
}

func sign(secret, msg string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(msg))
	return hex.EncodeToString(mac.Sum(nil))
}

// BearerToken reads the token from the Authorization header, falling back to
// the token query parameter for websocket clients.
func BearerToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); len(h) > 7 && strings.EqualFold(h[:7], "bearer ") {
		return strings.TrimSpace(h[7:])
	}
	return r.URL.Query().Get("token")
}

// RequireMonitor rejects requests without a valid monitor token.
func RequireMonitor(secret string, skewSeconds int) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if secret == "" {
				http.Error(w, "monitor disabled", http.StatusNotFound)
				return
			}
			if _, _, err := ValidateMonitorToken(secret, BearerToken(r), time.Now(), skewSeconds); err != nil {
				http.Error(w, err.Error(), http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
