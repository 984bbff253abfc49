package middleware

import (
	"context"
	"encoding/json"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/aryan0dhankhar/tenantauth/internal/security/audit"
	"github.com/aryan0dhankhar/tenantauth/internal/security/auth"
	"github.com/aryan0dhankhar/tenantauth/internal/security/ratelimit"
)

// APIKeyHeader carries the tenant API key on user routes
const APIKeyHeader = "X-API-Key"

type ClaimsContextKey struct{}

// AccessVerifier checks an access token and returns its claims
type AccessVerifier interface {
	Authenticate(accessToken string) (*auth.AccessClaims, error)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

// BearerAuth rejects requests without a valid access token and stores the
// claims in the request context.
func BearerAuth(verifier AccessVerifier, log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				writeError(w, http.StatusUnauthorized, "missing auth")
				return
			}

			tokenString, err := auth.ExtractToken(authHeader)
			if err != nil {
				writeError(w, http.StatusUnauthorized, "invalid auth")
				return
			}

			claims, err := verifier.Authenticate(tokenString)
			if err != nil {
				log.Debug("access token rejected",
					slog.String("path", r.URL.Path),
					slog.String("error", err.Error()),
				)
				writeError(w, http.StatusUnauthorized, "invalid token")
				return
			}

			ctx := context.WithValue(r.Context(), ClaimsContextKey{}, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// Password-checking endpoints get an extra per-IP budget on top of the
// general limit.
var credentialPaths = map[string]bool{
	"/user/signin":   true,
	"/company/login": true,
}

const (
	credentialAttempts = 20
	credentialWindow   = time.Minute
)

// RateLimit charges every request to the client IP. A presented API key is
// charged as well, but only once the IP has budget left, so unverified
// keys cannot open fresh buckets.
func RateLimit(limiter *ratelimit.Limiter, log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := clientIP(r)
			allowed := limiter.Allow("ip:" + ip)
			if apiKey := r.Header.Get(APIKeyHeader); allowed && apiKey != "" {
				allowed = limiter.Allow("key:" + apiKey)
			}
			if allowed && credentialPaths[r.URL.Path] {
				allowed = limiter.AllowStrict(ip, credentialAttempts, credentialWindow)
			}
			if !allowed {
				log.Warn("rate limit exceeded",
					slog.String("path", r.URL.Path),
					slog.String("remote", ip),
				)
				writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// RequestID tags each request with an ID, echoes it in X-Request-ID and
// hands it to audit records. A well-formed incoming ID is kept.
func RequestID(log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			reqID := r.Header.Get("X-Request-ID")
			if _, err := uuid.Parse(reqID); err != nil {
				reqID = uuid.NewString()
			}
			w.Header().Set("X-Request-ID", reqID)

			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			start := time.Now()
			next.ServeHTTP(rec, r.WithContext(audit.WithRequestID(r.Context(), reqID)))

			log.Info("request completed",
				slog.String("request_id", reqID),
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", rec.status),
				slog.Duration("duration", time.Since(start)),
			)
		})
	}
}

// CORS allows credentialed requests from the configured origins only.
func CORS(allowed []string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			if originAllowed(allowed, origin) {
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Set("Access-Control-Allow-Credentials", "true")
			}
			w.Header().Add("Vary", "Origin")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Accept, Authorization, X-API-Key, X-Request-ID")

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func GetClaimsFromContext(ctx context.Context) *auth.AccessClaims {
	if c, ok := ctx.Value(ClaimsContextKey{}).(*auth.AccessClaims); ok {
		return c
	}
	return nil
}

// originAllowed never matches "*" against a credentialed request origin.
func originAllowed(allowed []string, origin string) bool {
	if origin == "" {
		return false
	}
	for _, a := range allowed {
		if a == origin {
			return true
		}
	}
	return false
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return strings.TrimSpace(r.RemoteAddr)
	}
	return host
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}
