package gateway

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/time/rate"
)

// RouterConfig assembles the public HTTP surface in front of the RPC server.
type RouterConfig struct {
	RPC           http.Handler
	Auth          *Authenticator
	Idempotency   *IdempotencyStore
	Logger        *slog.Logger
	RatePerSecond float64
	RateBurst     int
}

// NewRouter mounts health, metrics and the authenticated RPC endpoint. The
// middleware order is deliberate: request id and logging first, then the
// global rate limit, then auth, then idempotency, so replays never consume
// rate budget twice for the engine.
func NewRouter(cfg RouterConfig) http.Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r := chi.NewRouter()
	r.Use(requestID)
	r.Use(requestLogger(logger))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Handle("/metrics", promhttp.Handler())

	if cfg.RPC != nil {
		rpcHandler := otelhttp.NewHandler(cfg.RPC, "rpc")
		var handler http.Handler = rpcHandler
		if cfg.Idempotency != nil {
			handler = cfg.Idempotency.Middleware(handler)
		}
		if cfg.Auth != nil {
			handler = cfg.Auth.Middleware(handler)
		}
		if cfg.RatePerSecond > 0 {
			handler = rateLimit(rate.NewLimiter(rate.Limit(cfg.RatePerSecond), max(cfg.RateBurst, 1)), handler)
		}
		r.Handle("/rpc", handler)
	}
	return r
}

// requestID tags every request with an X-Request-ID, keeping a caller
// provided one when present.
func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
			r.Header.Set("X-Request-ID", id)
		}
		w.Header().Set("X-Request-ID", id)
		next.ServeHTTP(w, r)
	})
}

func requestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			next.ServeHTTP(w, r)
			logger.Debug("gateway request",
				"method", r.Method,
				"path", r.URL.Path,
				"requestId", r.Header.Get("X-Request-ID"),
				"duration", time.Since(start),
			)
		})
	}
}

func rateLimit(limiter *rate.Limiter, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !limiter.Allow() {
			writeJSONError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}
		next.ServeHTTP(w, r)
	})
}
