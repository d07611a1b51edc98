// Package httptransport assembles the public HTTP API.
package httptransport

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	minthandler "mintledger/internal/mint/handler"
	ratelimitmw "mintledger/internal/ratelimit/middleware"
	"mintledger/internal/ratelimit/models"
	"mintledger/pkg/domain"
	"mintledger/pkg/platform/httputil"
	adminmw "mintledger/pkg/platform/middleware/admin"
	authmw "mintledger/pkg/platform/middleware/auth"
	"mintledger/pkg/platform/middleware/metadata"
	"mintledger/pkg/platform/middleware/request"
	"mintledger/pkg/platform/middleware/requesttime"
	"mintledger/pkg/platform/middleware/version"
)

const healthTimeout = 2 * time.Second

// HealthCheck reports whether a backing dependency is reachable.
type HealthCheck func(ctx context.Context) error

// Dependencies are the collaborators the router mounts.
type Dependencies struct {
	Logger    *slog.Logger
	Mint      *minthandler.Handler
	Validator authmw.JWTValidator
	RateLimit *ratelimitmw.Middleware
	Audit     authmw.AuditPublisher

	// AdminToken guards the faucet; the faucet routes are mounted only when
	// FaucetEnabled is set and the token is not empty.
	AdminToken    string
	FaucetEnabled bool

	Gatherer prometheus.Gatherer
	Health   map[string]HealthCheck
}

// NewRouter wires middleware and every public endpoint.
func NewRouter(d Dependencies) http.Handler {
	r := chi.NewRouter()
	r.Use(request.RequestID)
	r.Use(requesttime.Middleware)
	r.Use(metadata.ClientMetadata)
	r.Use(request.Logger(d.Logger))
	r.Use(request.Recovery(d.Logger))

	r.Get("/healthz", healthHandler(d.Health))
	gatherer := d.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	var authOpts []authmw.Option
	if d.Audit != nil {
		authOpts = append(authOpts, authmw.WithAuditPublisher(d.Audit))
	}

	r.Route("/v1", func(v1 chi.Router) {
		v1.Use(version.ExtractVersion(domain.APIVersionV1))

		v1.Group(func(pub chi.Router) {
			if d.RateLimit != nil {
				pub.Use(d.RateLimit.RateLimit(models.ClassRead))
			}
			d.Mint.RegisterQueries(pub)
		})

		v1.Group(func(priv chi.Router) {
			priv.Use(authmw.RequireAuth(d.Validator, d.Logger, authOpts...))
			priv.Use(version.ValidateTokenVersion(d.Logger))
			if d.RateLimit != nil {
				priv.Use(d.RateLimit.RateLimit(models.ClassWrite))
			}
			d.Mint.RegisterCommands(priv)
		})

		if d.FaucetEnabled && d.AdminToken != "" {
			v1.Group(func(op chi.Router) {
				op.Use(adminmw.RequireAdminToken(d.AdminToken, d.Logger))
				if d.RateLimit != nil {
					op.Use(d.RateLimit.RateLimit(models.ClassFaucet))
				}
				d.Mint.RegisterFaucet(op)
			})
		}
	})
	return r
}

type healthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

func healthHandler(checks map[string]HealthCheck) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
		defer cancel()

		resp := healthResponse{Status: "ok"}
		status := http.StatusOK
		if len(checks) > 0 {
			resp.Checks = make(map[string]string, len(checks))
		}
		for name, check := range checks {
			if err := check(ctx); err != nil {
				resp.Checks[name] = err.Error()
				resp.Status = "degraded"
				status = http.StatusServiceUnavailable
				continue
			}
			resp.Checks[name] = "ok"
		}
		httputil.WriteJSON(w, status, resp)
	}
}
