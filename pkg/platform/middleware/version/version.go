// Package version records the API version a route is served under and checks
// that access tokens were issued for a compatible version.
package version

import (
	"net/http"

	"mintledger/pkg/domain"
	"mintledger/pkg/requestcontext"
)

// ExtractVersion tags every request under a versioned subrouter with v.
//
//	r.Route("/v1", func(v1 chi.Router) {
//	    v1.Use(version.ExtractVersion(domain.APIVersionV1))
//	})
func ExtractVersion(v domain.APIVersion) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, r.WithContext(requestcontext.WithRouteVersion(r.Context(), v)))
		})
	}
}
