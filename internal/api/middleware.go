// Punchd - Biometric Attendance Capture with Offline-First CRM Mirroring
// Copyright 2026 Punchd contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/punchd-io/punchd

package api

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"

	"github.com/punchd-io/punchd/internal/auth"
	"github.com/punchd-io/punchd/internal/logging"
	"github.com/punchd-io/punchd/internal/metrics"
)

// MiddlewareConfig holds the knobs for the shared middleware stack.
type MiddlewareConfig struct {
	CORSAllowedOrigins []string
	RateLimitRequests  int
	RateLimitWindow    time.Duration
}

// Middleware builds the chi-compatible middleware used on every route
// group.
type Middleware struct {
	config *MiddlewareConfig
	cors   func(http.Handler) http.Handler
	jwt    *auth.JWTManager
}

// NewMiddleware creates the middleware factory. jwtManager may be nil;
// Authenticate then passes every request through (auth disabled).
func NewMiddleware(cfg *MiddlewareConfig, jwtManager *auth.JWTManager) *Middleware {
	if cfg.RateLimitRequests <= 0 {
		cfg.RateLimitRequests = 100
	}
	if cfg.RateLimitWindow <= 0 {
		cfg.RateLimitWindow = time.Minute
	}

	corsHandler := cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSAllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		AllowCredentials: false,
		MaxAge:           86400,
	})

	return &Middleware{
		config: cfg,
		cors:   corsHandler,
		jwt:    jwtManager,
	}
}

// CORS returns the go-chi/cors handler for the configured origins.
func (m *Middleware) CORS() func(http.Handler) http.Handler {
	return m.cors
}

// RateLimit applies the configured per-IP limit.
func (m *Middleware) RateLimit() func(http.Handler) http.Handler {
	return httprate.Limit(
		m.config.RateLimitRequests,
		m.config.RateLimitWindow,
		httprate.WithKeyFuncs(httprate.KeyByIP),
	)
}

// RateLimitLogin is the strict limit on the login endpoint: 5 attempts
// per 5 minutes per IP.
func (m *Middleware) RateLimitLogin() func(http.Handler) http.Handler {
	return httprate.Limit(5, 5*time.Minute, httprate.WithKeyFuncs(httprate.KeyByIP))
}

// RateLimitIntake is the permissive limit on the biometric intake path;
// a kiosk retriggers frequently and must not be starved.
func (m *Middleware) RateLimitIntake() func(http.Handler) http.Handler {
	return httprate.Limit(1000, time.Minute, httprate.WithKeyFuncs(httprate.KeyByIP))
}

// Authenticate requires a valid Bearer token on admin mutations. With no
// JWT manager configured every request passes; the deployment then relies
// on network-level isolation.
func (m *Middleware) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m.jwt == nil {
			next.ServeHTTP(w, r)
			return
		}

		header := r.Header.Get("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token == "" {
			respondError(w, http.StatusUnauthorized, "UNAUTHORIZED", "missing bearer token", nil)
			return
		}

		claims, err := m.jwt.ValidateToken(token)
		if err != nil {
			respondError(w, http.StatusUnauthorized, "UNAUTHORIZED", "invalid or expired token", err)
			return
		}

		ctx := context.WithValue(r.Context(), userContextKey{}, claims.Username)
		ctx = logging.With().Str("user", claims.Username).Logger().WithContext(ctx)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

type userContextKey struct{}

// UserFromContext returns the authenticated username, or "system" when
// auth is disabled.
func UserFromContext(ctx context.Context) string {
	if user, ok := ctx.Value(userContextKey{}).(string); ok && user != "" {
		return user
	}
	return "system"
}

// RequestLogger logs each completed request with method, path, status,
// and latency at debug level. The request ID set by chi's RequestID
// middleware is included when present.
func RequestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapper := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(wrapper, r)

		logging.Debug().
			Str("method", r.Method).
			Str("path", sanitizeLogValue(r.URL.Path)).
			Str("request_id", chimiddleware.GetReqID(r.Context())).
			Int("status", wrapper.status).
			Dur("duration", time.Since(start)).
			Msg("http request")
	})
}

// PrometheusMetrics records request counts and latency per method and
// path. Mounted after routing so r.URL.Path is the matched route.
func PrometheusMetrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapper := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(wrapper, r)

		duration := time.Since(start)
		metrics.APIRequestDuration.WithLabelValues(r.Method, r.URL.Path).Observe(duration.Seconds())
		metrics.APIRequestsTotal.WithLabelValues(r.Method, r.URL.Path, strconv.Itoa(wrapper.status)).Inc()
	})
}

// statusRecorder captures the response status for metrics.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (rw *statusRecorder) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}
