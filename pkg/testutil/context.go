package testutil

import (
	"net/http"

	"mintledger/pkg/domain"
	"mintledger/pkg/requestcontext"
)

// WithSender authenticates the request as sender, the way the auth
// middleware would after validating a token.
func WithSender(req *http.Request, sender domain.Address) *http.Request {
	return req.WithContext(requestcontext.WithSender(req.Context(), sender))
}

// WithVersions sets both the route version and the token version.
func WithVersions(req *http.Request, route, token domain.APIVersion) *http.Request {
	ctx := requestcontext.WithRouteVersion(req.Context(), route)
	ctx = requestcontext.WithAPIVersion(ctx, token)
	return req.WithContext(ctx)
}
