package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/nicec2o-sso/sh-dashboard-sub001/internal/domain"
	apimw "github.com/nicec2o-sso/sh-dashboard-sub001/internal/httpapi/middleware"
	"github.com/nicec2o-sso/sh-dashboard-sub001/internal/repo"
)

// Executor runs one synthetic test cycle.
type Executor interface {
	Execute(ctx context.Context, testID int64, override domain.Parameters) (*domain.ExecutionReport, error)
}

// HealthChecker probes nodes and serves cached results.
type HealthChecker interface {
	Check(ctx context.Context, nodeID int64) (domain.NodeHealth, error)
	Latest(ctx context.Context, nodeID int64) (*domain.NodeHealth, error)
}

// AlertLister evaluates alerts over a named window.
type AlertLister interface {
	Evaluate(ctx context.Context, window string) ([]domain.Alert, error)
}

type Server struct {
	Logger   *zap.Logger
	Catalog  repo.Catalog
	History  repo.HistoryStore
	Executor Executor
	Health   HealthChecker
	Alerts   AlertLister

	// OnTestsChanged runs after a test is registered, e.g. to resync schedules.
	OnTestsChanged func(ctx context.Context)
}

func NewServer(l *zap.Logger, catalog repo.Catalog, history repo.HistoryStore, exec Executor, health HealthChecker, alerts AlertLister) *Server {
	return &Server{Logger: l, Catalog: catalog, History: history, Executor: exec, Health: health, Alerts: alerts}
}

func (s *Server) Router(keys apimw.Keys, allowedOrigins []string, pubRPM, pubBurst, admRPM, admBurst int) http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.Recoverer)
	if len(allowedOrigins) == 0 {
		r.Use(cors.AllowAll().Handler)
	} else {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: allowedOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowedHeaders: []string{"Authorization", "Content-Type", "X-API-Key"},
			MaxAge:         300,
		}))
	}

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	r.Route("/api", func(r chi.Router) {
		// read endpoints: any key
		r.Group(func(r chi.Router) {
			r.Use(apimw.RequireAny(keys))
			r.Use(apimw.RateLimit(pubRPM, pubBurst))

			r.Get("/nodes", s.handleListNodes)
			r.Get("/nodes/{id}", s.handleGetNode)
			r.Get("/nodes/{id}/health", s.handleLatestHealth)
			r.Get("/groups", s.handleListGroups)
			r.Get("/apis", s.handleListAPIs)
			r.Get("/tests", s.handleListTests)
			r.Get("/history", s.handleHistory)
			r.Get("/alerts", s.handleAlerts)
		})

		// mutating and probing endpoints: admin key
		r.Group(func(r chi.Router) {
			r.Use(apimw.RequireAdmin(keys))
			r.Use(apimw.RateLimit(admRPM, admBurst))

			r.Post("/nodes", s.handleAddNode)
			r.Post("/nodes/{id}/check", s.handleCheckNode)
			r.Post("/groups", s.handleAddGroup)
			r.Post("/apis", s.handleAddAPI)
			r.Post("/tests", s.handleAddTest)
			r.Post("/tests/{id}/execute", s.handleExecute)
		})
	})

	return r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case domain.IsValidation(err):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrNoTargets):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// writeError maps domain errors to status codes. Internal errors are logged
// and hidden from the client.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		s.Logger.Error("request_failed",
			zap.String("request_id", chimw.GetReqID(r.Context())),
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
		msg = "internal error"
	}
	writeJSON(w, status, map[string]string{"error": msg})
}

func pathID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, &domain.ValidationError{Field: "id", Reason: "must be a positive integer"}
	}
	return id, nil
}

func decode(r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, 1<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return &domain.ValidationError{Field: "body", Reason: err.Error()}
	}
	return nil
}
