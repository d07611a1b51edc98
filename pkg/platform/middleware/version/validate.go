package version

import (
	"log/slog"
	"net/http"

	dErrors "mintledger/pkg/domain-errors"
	"mintledger/pkg/platform/httputil"
	"mintledger/pkg/requestcontext"
)

// ValidateTokenVersion rejects tokens minted for a newer API than the route
// serves. Older tokens stay valid on newer routes. It must run after
// ExtractVersion and the auth middleware; tokens without a version claim
// count as the default version.
func ValidateTokenVersion(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			route := requestcontext.RouteVersion(ctx)
			if route.IsNil() {
				logger.ErrorContext(ctx, "route version not set",
					"path", r.URL.Path,
					"request_id", requestcontext.RequestID(ctx),
				)
				httputil.WriteError(w, dErrors.New(dErrors.CodeInternal, "route version not configured"))
				return
			}

			token := requestcontext.APIVersion(ctx)
			if !route.IsAtLeast(token) {
				logger.WarnContext(ctx, "token version rejected",
					"token_version", token.String(),
					"route_version", route.String(),
					"sender", requestcontext.Sender(ctx).String(),
					"request_id", requestcontext.RequestID(ctx),
				)
				httputil.WriteError(w, dErrors.New(dErrors.CodeForbidden,
					"token was issued for API "+token.String()+" and cannot be used on "+route.String()))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
