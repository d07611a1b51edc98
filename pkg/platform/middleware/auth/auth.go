package auth

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"mintledger/pkg/domain"
	audit "mintledger/pkg/platform/audit"
	"mintledger/pkg/requestcontext"
)

// JWTValidator defines the interface for validating JWT tokens
type JWTValidator interface {
	ValidateToken(tokenString string) (*JWTClaims, error)
}

// AuditPublisher records rejected credentials.
type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

// JWTClaims represents the claims we expect from the JWT validator
type JWTClaims struct {
	Sender     domain.Address
	JTI        string
	APIVersion domain.APIVersion
}

type options struct {
	audit AuditPublisher
}

type Option func(*options)

// WithAuditPublisher emits an auth_failed event for every rejected request.
func WithAuditPublisher(p AuditPublisher) Option {
	return func(o *options) {
		o.audit = p
	}
}

// writeJSONError writes a JSON error response with the given status code and error details.
func writeJSONError(w http.ResponseWriter, status int, errCode, errDesc string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(fmt.Appendf(nil, `{"error":"%s","error_description":"%s"}`, errCode, errDesc))
}

// RequireAuth authenticates the bearer token and stores the sender address
// and token API version in the request context.
func RequireAuth(validator JWTValidator, logger *slog.Logger, opts ...Option) func(http.Handler) http.Handler {
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}
	reject := func(w http.ResponseWriter, r *http.Request, reason, desc string, err error) {
		ctx := r.Context()
		logger.WarnContext(ctx, "unauthorized access - "+reason,
			"error", err,
			"request_id", requestcontext.RequestID(ctx),
		)
		if o.audit != nil {
			_ = o.audit.Emit(ctx, audit.Event{
				Action:    string(audit.EventAuthFailed),
				Subject:   r.URL.Path,
				Decision:  "denied",
				Reason:    reason,
				RequestID: requestcontext.RequestID(ctx),
				ClientIP:  requestcontext.ClientIP(ctx),
				Client:    requestcontext.Client(ctx),
			})
		}
		writeJSONError(w, http.StatusUnauthorized, "unauthorized", desc)
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			const bearerPrefix = "Bearer "
			token, ok := strings.CutPrefix(authHeader, bearerPrefix)
			if !ok || token == "" {
				reject(w, r, "missing token", "Missing or invalid Authorization header", nil)
				return
			}

			claims, err := validator.ValidateToken(token)
			if err != nil {
				reject(w, r, "invalid token", "Invalid or expired token", err)
				return
			}
			if claims.Sender.IsZero() {
				reject(w, r, "token without sender", "Invalid or expired token", nil)
				return
			}

			ctx := requestcontext.WithSender(r.Context(), claims.Sender)
			if !claims.APIVersion.IsNil() {
				ctx = requestcontext.WithAPIVersion(ctx, claims.APIVersion)
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
