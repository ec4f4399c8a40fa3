// Package httpapi assembles the public and internal HTTP routes.
package httpapi

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	platformmetrics "talentflow/internal/platform/metrics"
	"talentflow/internal/platform/middleware"
	dErrors "talentflow/pkg/domain-errors"
	"talentflow/pkg/platform/httputil"
	"talentflow/pkg/platform/middleware/admin"
	authmw "talentflow/pkg/platform/middleware/auth"
	"talentflow/pkg/platform/middleware/metadata"
	"talentflow/pkg/platform/middleware/requesttime"
)

// Registrar is implemented by every feature handler.
type Registrar interface {
	Register(r chi.Router)
}

// HealthCheck reports whether a dependency is usable.
type HealthCheck func(ctx context.Context) error

// Deps are the collaborators of the router. Realtime and Ingest may be nil.
type Deps struct {
	Logger         *slog.Logger
	Authenticator  authmw.Authenticator
	InternalToken  string
	RequestTimeout time.Duration
	Metrics        *platformmetrics.Metrics
	Gatherer       prometheus.Gatherer
	Health         map[string]HealthCheck

	Candidates    Registrar
	Notifications Registrar
	Realtime      Registrar
	Ingest        Registrar
}

func NewRouter(d Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recovery(d.Logger))
	r.Use(middleware.Logger(d.Logger))
	r.Use(requesttime.Middleware)
	r.Use(metadata.ClientMetadata)
	if d.Metrics != nil {
		r.Use(d.Metrics.Middleware)
	}

	r.NotFound(NotFound)
	r.Get("/healthz", healthHandler(d.Health))
	if d.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(d.Gatherer, promhttp.HandlerOpts{}))
	}

	// the handshake authenticates before upgrading and must outlive the
	// request deadline
	if d.Realtime != nil {
		d.Realtime.Register(r)
	}

	r.Group(func(r chi.Router) {
		r.Use(middleware.Deadline(d.RequestTimeout))
		r.Use(authmw.RequireAuth(d.Authenticator, d.Logger))
		d.Candidates.Register(r)
		d.Notifications.Register(r)
	})

	if d.Ingest != nil {
		r.Group(func(r chi.Router) {
			r.Use(middleware.Deadline(d.RequestTimeout))
			r.Use(admin.RequireServiceToken(d.InternalToken, d.Logger))
			d.Ingest.Register(r)
		})
	}
	return r
}

func healthHandler(checks map[string]HealthCheck) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		code, overall := http.StatusOK, "ok"
		components := make(map[string]string, len(checks))
		for name, check := range checks {
			if err := check(ctx); err != nil {
				components[name] = "unavailable"
				code, overall = http.StatusServiceUnavailable, "degraded"
				continue
			}
			components[name] = "ok"
		}
		httputil.WriteJSON(w, code, map[string]any{"status": overall, "components": components})
	}
}

// NotFound keeps unknown routes in the standard error envelope.
func NotFound(w http.ResponseWriter, _ *http.Request) {
	httputil.WriteError(w, dErrors.New(dErrors.CodeNotFound, "route not found"))
}
