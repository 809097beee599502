package api

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/vantagecrm/hookd/internal/metrics"
	"github.com/vantagecrm/hookd/internal/models"
	"github.com/vantagecrm/hookd/internal/ratelimit"
	"github.com/vantagecrm/hookd/internal/storage"
)

type contextKey string

const accountContextKey contextKey = "account"

func AccountFromContext(ctx context.Context) *models.Account {
	acc, _ := ctx.Value(accountContextKey).(*models.Account)
	return acc
}

func AuthMiddleware(store storage.Storage) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			auth := r.Header.Get("Authorization")
			if auth == "" {
				writeError(w, http.StatusUnauthorized, "missing authorization header")
				return
			}

			apiKey := strings.TrimPrefix(auth, "Bearer ")
			if apiKey == auth {
				writeError(w, http.StatusUnauthorized, "invalid authorization format, use: Bearer <api_key>")
				return
			}

			acc, err := store.GetAccountByAPIKey(r.Context(), apiKey)
			if err != nil {
				writeError(w, http.StatusInternalServerError, "internal error")
				return
			}
			if acc == nil {
				writeError(w, http.StatusUnauthorized, "invalid api key")
				return
			}

			ctx := context.WithValue(r.Context(), accountContextKey, acc)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RateLimitMiddleware gates every authenticated request through the
// limiter and records a usage row for it, allowed or not. Limiter errors
// fail open: a broken counter store must not take the API down.
func RateLimitMiddleware(limiter *ratelimit.Limiter, log zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			acc := AccountFromContext(r.Context())
			if acc == nil {
				next.ServeHTTP(w, r)
				return
			}

			scope := acc.ID
			endpoint := r.URL.Path

			res, err := limiter.Check(r.Context(), scope, endpoint)
			if err != nil {
				log.Error().Err(err).Str("scope", scope).Msg("rate limit check failed")
				next.ServeHTTP(w, r)
				return
			}

			w.Header().Set("X-RateLimit-Limit", strconv.FormatInt(res.Limit, 10))
			w.Header().Set("X-RateLimit-Remaining", strconv.FormatInt(res.Remaining, 10))
			w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(res.ResetAt.Unix(), 10))

			if !res.Allowed {
				metrics.RateLimitRejections.WithLabelValues(endpoint).Inc()
				if err := limiter.Record(r.Context(), scope, endpoint, ratelimit.Outcome{
					Method:      r.Method,
					StatusCode:  http.StatusTooManyRequests,
					RateLimited: true,
				}); err != nil {
					log.Error().Err(err).Str("scope", scope).Msg("failed to record rejected request")
				}
				writeError(w, http.StatusTooManyRequests,
					fmt.Sprintf("rate limit exceeded, resets at %s", res.ResetAt.UTC().Format(time.RFC3339)))
				return
			}

			start := time.Now()
			ww := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
			next.ServeHTTP(ww, r)

			if err := limiter.Record(r.Context(), scope, endpoint, ratelimit.Outcome{
				Method:     r.Method,
				StatusCode: ww.statusCode,
				LatencyMs:  time.Since(start).Milliseconds(),
			}); err != nil {
				log.Error().Err(err).Str("scope", scope).Msg("failed to record request usage")
			}
		})
	}
}

func LoggingMiddleware(log zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
			next.ServeHTTP(ww, r)

			log.Info().
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", ww.statusCode).
				Dur("duration", time.Since(start)).
				Msg("request")
		})
	}
}

type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}
