package httptransport

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"flock/pkg/platform/httputil"
	"flock/pkg/platform/middleware/admin"
	"flock/pkg/platform/middleware/auth"
	"flock/pkg/platform/middleware/metadata"
	"flock/pkg/platform/middleware/request"
	"flock/pkg/platform/middleware/requesttime"
)

// RouterConfig carries the transport level knobs.
type RouterConfig struct {
	Validator      auth.JWTValidator
	AdminToken     string
	AllowedOrigins []string
	RequestTimeout time.Duration
	// Metrics serves /metrics when set.
	Metrics http.Handler
}

// NewRouter wires every endpoint. Handlers stay thin: decode, call a service,
// encode.
func NewRouter(h *Handler, cfg RouterConfig, logger *slog.Logger) http.Handler {
	if cfg.RequestTimeout == 0 {
		cfg.RequestTimeout = 30 * time.Second
	}
	if len(cfg.AllowedOrigins) == 0 {
		cfg.AllowedOrigins = []string{"*"}
	}

	r := chi.NewRouter()
	r.Use(request.Recovery(logger))
	r.Use(request.RequestID)
	r.Use(request.Logger(logger))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: cfg.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", auth.OperatorHeader, admin.HeaderAdminToken, request.HeaderRequestID},
		ExposedHeaders: []string{request.HeaderRequestID},
		MaxAge:         300,
	}))
	r.Use(chimw.Timeout(cfg.RequestTimeout))
	r.Use(requesttime.Middleware)
	r.Use(metadata.ClientMetadata)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if cfg.Metrics != nil {
		r.Handle("/metrics", cfg.Metrics)
	}

	r.Group(func(r chi.Router) {
		r.Use(auth.Operator(cfg.Validator, logger))

		r.Route("/people", func(r chi.Router) {
			r.Post("/", h.handleRegisterPerson)
			r.Get("/", h.handleListPeople)
			r.With(admin.RequireAdminToken(cfg.AdminToken, logger)).Post("/recompute", h.handleRecomputeAll)
			r.Route("/{personID}", func(r chi.Router) {
				r.Get("/", h.handleGetPerson)
				r.Patch("/", h.handleUpdatePersonalData)
				r.Put("/do-not-contact", h.handleSetDoNotContact)
				r.Post("/evolution", h.handleApplyEvolution)
				r.Post("/promote", h.handlePromote)
				r.Get("/attendance", h.handleListPersonAttendance)
				r.Get("/follow-ups", h.handleListFollowUps)
				r.Post("/follow-ups/{followUpID}/complete", h.handleCompleteFollowUp)
			})
		})

		r.Route("/programs", func(r chi.Router) {
			r.Post("/", h.handleCreateProgram)
			r.Get("/", h.handleListPrograms)
			r.Route("/{programID}", func(r chi.Router) {
				r.Get("/", h.handleGetProgram)
				r.Put("/status", h.handleUpdateProgramStatus)

				r.Post("/attendance", h.handleMarkAttendance)
				r.Get("/attendance", h.handleListProgramAttendance)
				r.Get("/attendance/summary", h.handleAttendanceSummary)
				r.Get("/attendance/buckets", h.handleArrivalBuckets)

				r.Post("/tallies/generate", h.handleGenerateTallies)
				r.Post("/tallies/issue", h.handleIssueTally)
				r.Get("/tallies", h.handleListTallies)
				r.Get("/tallies/summary", h.handleTallySummary)
				r.Get("/tallies/{code}", h.handleGetTally)
				r.Post("/tallies/{code}/map", h.handleMapTally)
				r.Post("/tallies/{code}/void", h.handleVoidTally)
			})
		})

		r.Get("/settings", h.handleGetSettings)
		r.Group(func(r chi.Router) {
			r.Use(admin.RequireAdminToken(cfg.AdminToken, logger))
			r.Patch("/settings", h.handlePatchSettings)
			r.Post("/automations/absentee/run", h.handleRunAbsentee)
			r.Post("/automations/birthday/run", h.handleRunBirthday)
		})
	})
	return r
}

// MetricsHandler exposes the default Prometheus registry.
func MetricsHandler() http.Handler {
	return promhttp.Handler()
}
