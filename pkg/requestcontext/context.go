// Package requestcontext provides HTTP-independent context accessors for request-scoped values.
//
// This package defines context keys and getter/setter functions for values that are
// typically set by middleware but consumed by services. By keeping this package free
// of net/http dependencies, services can import only what they need without pulling
// in HTTP-related code.
//
// Usage in services (read values):
//
//	sender := requestcontext.Sender(ctx)
//	requestID := requestcontext.RequestID(ctx)
//	now := requestcontext.Now(ctx)
//
// Usage in middleware (set values):
//
//	ctx = requestcontext.WithSender(ctx, sender)
//	ctx = requestcontext.WithRequestID(ctx, requestID)
//
// Usage in tests (inject values):
//
//	ctx = requestcontext.WithTime(ctx, fixedTime)
//	ctx = requestcontext.WithClientMetadata(ctx, "127.0.0.1", "mintctl/1.0")
package requestcontext

import (
	"context"
	"time"

	"mintledger/pkg/domain"
)

// Context key types (unexported for encapsulation).
type (
	senderKey       struct{}
	apiVersionKey   struct{}
	routeVersionKey struct{}
	clientIPKey     struct{}
	userAgentKey    struct{}
	clientKey       struct{}
	requestIDKey    struct{}
	requestTimeKey  struct{}
)

// Exported context keys for direct use in tests that need context.WithValue.
var (
	ContextKeySender       = senderKey{}
	ContextKeyAPIVersion   = apiVersionKey{}
	ContextKeyRouteVersion = routeVersionKey{}
	ContextKeyClientIP     = clientIPKey{}
	ContextKeyUserAgent    = userAgentKey{}
	ContextKeyClient       = clientKey{}
	ContextKeyRequestID    = requestIDKey{}
	ContextKeyRequestTime  = requestTimeKey{}
)

// -----------------------------------------------------------------------------
// Auth context (sender address, token API version)
// -----------------------------------------------------------------------------

// Sender retrieves the authenticated sender address from the context.
// Returns the zero address if not set.
func Sender(ctx context.Context) domain.Address {
	if sender, ok := ctx.Value(ContextKeySender).(domain.Address); ok {
		return sender
	}
	return domain.Address{}
}

// WithSender injects the authenticated sender address into the context.
func WithSender(ctx context.Context, sender domain.Address) context.Context {
	return context.WithValue(ctx, ContextKeySender, sender)
}

// APIVersion retrieves the API version the caller's token was issued for.
// Falls back to domain.DefaultVersion() when absent.
func APIVersion(ctx context.Context) domain.APIVersion {
	if v, ok := ctx.Value(ContextKeyAPIVersion).(domain.APIVersion); ok {
		return v
	}
	return domain.DefaultVersion()
}

// WithAPIVersion injects the token API version into the context.
func WithAPIVersion(ctx context.Context, v domain.APIVersion) context.Context {
	return context.WithValue(ctx, ContextKeyAPIVersion, v)
}

// RouteVersion retrieves the API version of the matched route tree.
// Returns the empty version if not set.
func RouteVersion(ctx context.Context) domain.APIVersion {
	if v, ok := ctx.Value(ContextKeyRouteVersion).(domain.APIVersion); ok {
		return v
	}
	return ""
}

// WithRouteVersion injects the route API version into the context.
func WithRouteVersion(ctx context.Context, v domain.APIVersion) context.Context {
	return context.WithValue(ctx, ContextKeyRouteVersion, v)
}

// -----------------------------------------------------------------------------
// Client metadata (IP, User-Agent)
// -----------------------------------------------------------------------------

// ClientIP retrieves the client IP address from the context.
func ClientIP(ctx context.Context) string {
	if ip, ok := ctx.Value(ContextKeyClientIP).(string); ok {
		return ip
	}
	return ""
}

// UserAgent retrieves the raw User-Agent from the context.
func UserAgent(ctx context.Context) string {
	if ua, ok := ctx.Value(ContextKeyUserAgent).(string); ok {
		return ua
	}
	return ""
}

// Client retrieves the parsed client name (browser or tool) from the context.
func Client(ctx context.Context) string {
	if c, ok := ctx.Value(ContextKeyClient).(string); ok {
		return c
	}
	return ""
}

// WithClientMetadata injects client IP and User-Agent into a context.
// Useful for service unit tests that don't run the full HTTP middleware chain.
func WithClientMetadata(ctx context.Context, clientIP, userAgent string) context.Context {
	ctx = context.WithValue(ctx, ContextKeyClientIP, clientIP)
	ctx = context.WithValue(ctx, ContextKeyUserAgent, userAgent)
	return ctx
}

// WithClient injects the parsed client name.
func WithClient(ctx context.Context, client string) context.Context {
	return context.WithValue(ctx, ContextKeyClient, client)
}

// -----------------------------------------------------------------------------
// Request metadata
// -----------------------------------------------------------------------------

// RequestID retrieves the request ID from the context.
func RequestID(ctx context.Context) string {
	if reqID, ok := ctx.Value(ContextKeyRequestID).(string); ok {
		return reqID
	}
	return ""
}

// WithRequestID injects a request ID into the context.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, ContextKeyRequestID, requestID)
}

// -----------------------------------------------------------------------------
// Request time
// -----------------------------------------------------------------------------

// Now retrieves the request-scoped time from context.
// Falls back to time.Now() if not set (for non-HTTP contexts like workers, CLI, tests).
func Now(ctx context.Context) time.Time {
	if t, ok := ctx.Value(ContextKeyRequestTime).(time.Time); ok {
		return t
	}
	return time.Now()
}

// WithTime injects a specific time into a context.
// Useful for:
//   - Service unit tests that don't run the full HTTP middleware chain
//   - Workers that need consistent time within a batch operation
//   - CLI commands
func WithTime(ctx context.Context, t time.Time) context.Context {
	return context.WithValue(ctx, ContextKeyRequestTime, t)
}
