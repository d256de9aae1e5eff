// Package chi exposes the index runtime and the reindex trigger over HTTP.
package chi

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/kailas-cloud/ragdex/internal/domain"
	logpkg "github.com/kailas-cloud/ragdex/internal/logger"
	"github.com/kailas-cloud/ragdex/internal/metrics"
	"github.com/kailas-cloud/ragdex/internal/runtime"
	healthuc "github.com/kailas-cloud/ragdex/internal/usecase/health"
)

const (
	defaultK = 5
	maxK     = 50
)

// Searcher is the serving side of the index.
type Searcher interface {
	MaybeReload() error
	Search(ctx context.Context, query string, k int) ([]domain.Hit, error)
	Status() runtime.Status
}

// Reindexer triggers a coordinated rebuild.
type Reindexer interface {
	Trigger(ctx context.Context) (string, error)
}

// LogSource exposes the rolling build log.
type LogSource interface {
	String() string
}

// SearchResponse is the GET /search body.
type SearchResponse struct {
	Query string       `json:"query"`
	K     int          `json:"k"`
	Hits  []domain.Hit `json:"hits"`
}

// Server holds the HTTP handlers.
type Server struct {
	searcher Searcher
	reindex  Reindexer
	logs     LogSource
	health   *healthuc.Service
	logger   *zap.Logger
}

// NewServer creates a Server.
func NewServer(searcher Searcher, reindexer Reindexer, logs LogSource, health *healthuc.Service, logger *zap.Logger) *Server {
	return &Server{searcher: searcher, reindex: reindexer, logs: logs, health: health, logger: logger}
}

// Router mounts the routes with the standard middleware stack.
func (s *Server) Router(reindexTokens []string) http.Handler {
	r := chi.NewRouter()
	r.Use(JSONRecoverer(s.logger))
	r.Use(chiMiddleware.RequestID)
	r.Use(WideEventMiddleware(s.logger))
	r.Use(metrics.Middleware())

	r.Get("/health", s.Health)
	r.Get("/logs", s.Logs)
	r.Get("/status", s.Status)
	r.Get("/search", s.Search)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())
	r.With(ReindexAuthMiddleware(reindexTokens)).Post("/reindex", s.Reindex)
	return r
}

// Reindex handles POST /reindex. The build runs to completion even if the
// caller disconnects.
func (s *Server) Reindex(w http.ResponseWriter, r *http.Request) {
	// Builds outlive the server's write timeout.
	_ = http.NewResponseController(w).SetWriteDeadline(time.Time{})

	out, err := s.reindex.Trigger(context.WithoutCancel(r.Context()))
	switch {
	case errors.Is(err, domain.ErrAlreadyRunning):
		writeText(w, http.StatusConflict, out)
	case err != nil:
		logpkg.FromContext(r.Context()).Error("reindex failed", zap.Error(err))
		writeText(w, http.StatusInternalServerError, "reindex failed: "+err.Error())
	default:
		writeText(w, http.StatusOK, out)
	}
}

// Logs handles GET /logs.
func (s *Server) Logs(w http.ResponseWriter, _ *http.Request) {
	text := s.logs.String()
	if text == "" {
		text = "no logs yet"
	}
	writeText(w, http.StatusOK, text)
}

// Search handles GET /search?q=&k=.
func (s *Server) Search(w http.ResponseWriter, r *http.Request) {
	q := strings.TrimSpace(r.URL.Query().Get("q"))
	if q == "" {
		writeError(w, http.StatusBadRequest, CodeBadRequest, "query parameter q is required")
		return
	}
	k := defaultK
	if raw := r.URL.Query().Get("k"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > maxK {
			writeError(w, http.StatusBadRequest, CodeBadRequest, "k must be between 1 and "+strconv.Itoa(maxK))
			return
		}
		k = n
	}

	log := logpkg.FromContext(r.Context())
	if err := s.searcher.MaybeReload(); err != nil {
		log.Warn("index reload failed, serving previous generation", zap.Error(err))
	}

	hits, err := s.searcher.Search(r.Context(), q, k)
	if err != nil {
		s.handleDomainError(w, log, err)
		return
	}
	writeJSON(w, http.StatusOK, SearchResponse{Query: q, K: k, Hits: hits})
}

// Status handles GET /status.
func (s *Server) Status(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.searcher.Status())
}

// Health handles GET /health.
func (s *Server) Health(w http.ResponseWriter, r *http.Request) {
	report := s.health.Check(r.Context())
	httpStatus := http.StatusOK
	if report.Status != healthuc.Healthy {
		httpStatus = http.StatusServiceUnavailable
	}
	writeJSON(w, httpStatus, report)
}

func (s *Server) handleDomainError(w http.ResponseWriter, log *zap.Logger, err error) {
	log.Warn("domain error", zap.Error(err))
	for _, h := range errorHandlers {
		if h(w, err) {
			return
		}
	}
	log.Error("internal error", zap.Error(err))
	writeError(w, http.StatusInternalServerError, CodeInternalError, "internal error")
}
