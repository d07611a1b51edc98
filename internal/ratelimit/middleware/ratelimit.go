package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"mintledger/internal/ratelimit/metrics"
	"mintledger/internal/ratelimit/models"
	audit "mintledger/pkg/platform/audit"
	"mintledger/pkg/platform/httputil"
	"mintledger/pkg/requestcontext"
)

type RateLimiter interface {
	Check(key string, class models.EndpointClass, now time.Time) models.RateLimitResult
}

type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

type Middleware struct {
	limiter  RateLimiter
	logger   *slog.Logger
	audit    AuditPublisher
	metrics  *metrics.Metrics
	disabled bool
}

type Option func(*Middleware)

// WithDisabled disables rate limiting entirely (for testing/demo mode).
func WithDisabled(disabled bool) Option {
	return func(m *Middleware) {
		m.disabled = disabled
	}
}

func WithAuditPublisher(p AuditPublisher) Option {
	return func(m *Middleware) {
		m.audit = p
	}
}

func WithMetrics(mt *metrics.Metrics) Option {
	return func(m *Middleware) {
		m.metrics = mt
	}
}

func New(limiter RateLimiter, logger *slog.Logger, opts ...Option) *Middleware {
	m := &Middleware{
		limiter: limiter,
		logger:  logger,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.disabled {
		logger.Info("rate limiting disabled")
	}
	return m
}

// RateLimit throttles by authenticated sender, or by client IP for
// anonymous requests.
func (m *Middleware) RateLimit(class models.EndpointClass) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if m.disabled {
				next.ServeHTTP(w, r)
				return
			}

			ctx := r.Context()
			key := callerKey(ctx)
			result := m.limiter.Check(key, class, requestcontext.Now(ctx))
			m.metrics.ObserveCheck(string(class), result.Allowed)

			//Add headers regardless of outcome
			addRateLimitHeaders(w, &result)

			if !result.Allowed {
				m.logger.WarnContext(ctx, "rate limit exceeded",
					"class", class,
					"caller", key,
					"retry_after", result.RetryAfter,
					"request_id", requestcontext.RequestID(ctx),
				)
				if m.audit != nil {
					_ = m.audit.Emit(ctx, audit.Event{
						Action:    string(audit.EventRateLimitExceeded),
						Subject:   key,
						Decision:  "denied",
						Reason:    string(class),
						RequestID: requestcontext.RequestID(ctx),
						ClientIP:  requestcontext.ClientIP(ctx),
						Client:    requestcontext.Client(ctx),
					})
				}
				writeRateLimitExceeded(w, &result)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func callerKey(ctx context.Context) string {
	if sender := requestcontext.Sender(ctx); !sender.IsZero() {
		return sender.String()
	}
	return requestcontext.ClientIP(ctx)
}

func addRateLimitHeaders(w http.ResponseWriter, result *models.RateLimitResult) {
	if result == nil || result.Limit == 0 {
		return
	}
	w.Header().Set("X-RateLimit-Limit", strconv.Itoa(result.Limit))
	w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
	w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(result.ResetAt.Unix(), 10))
}

func writeRateLimitExceeded(w http.ResponseWriter, result *models.RateLimitResult) {
	w.Header().Set("Retry-After", strconv.Itoa(result.RetryAfter))
	httputil.WriteJSON(w, http.StatusTooManyRequests, &models.RateLimitExceededResponse{
		Error:      "rate_limit_exceeded",
		Message:    "Too many requests. Please try again later.",
		RetryAfter: result.RetryAfter,
	})
}
