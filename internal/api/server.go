// Package api exposes consolidation sessions over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/sells-group/shiftscan/internal/model"
	"github.com/sells-group/shiftscan/internal/pipeline"
	"github.com/sells-group/shiftscan/internal/resilience"
	"github.com/sells-group/shiftscan/internal/session"
	"github.com/sells-group/shiftscan/internal/store"
)

// Header names carrying the caller identity.
const (
	HeaderUserID   = "X-User-ID"
	HeaderUserName = "X-User-Name"
)

// Submitter runs one consolidation session.
type Submitter interface {
	Submit(ctx context.Context, req pipeline.SubmitRequest) (*model.SubmitResult, error)
}

// Sessions looks up and disposes sessions on behalf of their owner.
type Sessions interface {
	Get(ctx context.Context, id, userID string) (*model.ProcessingSession, error)
	Dispose(ctx context.Context, id, userID string) error
}

// Providers describes the configured extraction backends.
type Providers interface {
	List() []model.ProviderID
	Breakers() *resilience.Breakers
}

// Options wires a Server.
type Options struct {
	Submitter Submitter
	Sessions  Sessions
	Providers Providers
	// Runs is optional; run history routes answer 404 without it.
	Runs store.Store

	// DefaultProviders is used when a submission names none.
	DefaultProviders []model.ProviderID
	MaxImageBytes    int64
	AllowedOrigins   []string
}

// Server handles the HTTP API.
type Server struct {
	opts Options
}

// NewServer creates a Server.
func NewServer(opts Options) *Server {
	if opts.MaxImageBytes <= 0 {
		opts.MaxImageBytes = pipeline.DefaultMaxImageBytes
	}
	if len(opts.AllowedOrigins) == 0 {
		opts.AllowedOrigins = []string{"*"}
	}
	return &Server{opts: opts}
}

// Handler returns the routed HTTP handler.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.opts.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", HeaderUserID, HeaderUserName},
		MaxAge:         300,
	}))

	r.Get("/health", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Get("/providers", s.handleProviders)

		r.Group(func(r chi.Router) {
			r.Use(requireUser)
			r.Post("/extractions", s.handleSubmit)
			r.Get("/sessions/{id}", s.handleGetSession)
			r.Delete("/sessions/{id}", s.handleDeleteSession)
			r.Get("/runs", s.handleListRuns)
			r.Get("/runs/{id}", s.handleGetRun)
		})
	})
	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleProviders(w http.ResponseWriter, _ *http.Request) {
	resp := struct {
		Providers []model.ProviderID  `json:"providers"`
		Breakers  []resilience.Status `json:"breakers"`
	}{Providers: []model.ProviderID{}, Breakers: []resilience.Status{}}

	if s.opts.Providers != nil {
		resp.Providers = s.opts.Providers.List()
		if b := s.opts.Providers.Breakers(); b != nil {
			resp.Breakers = b.Snapshot()
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.opts.MaxImageBytes+1<<20)
	if err := r.ParseMultipartForm(1 << 20); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}
	defer r.MultipartForm.RemoveAll() //nolint:errcheck

	file, header, err := r.FormFile("image")
	if err != nil {
		writeError(w, http.StatusBadRequest, "image is required")
		return
	}
	defer file.Close() //nolint:errcheck

	img, err := pipeline.ReadImage(file, header.Filename, s.opts.MaxImageBytes)
	if err != nil {
		writeError(w, http.StatusBadRequest, "could not read image")
		return
	}

	req := pipeline.SubmitRequest{
		UserID:    userID(r.Context()),
		UserName:  r.Header.Get(HeaderUserName),
		Image:     img,
		Providers: parseProviders(r.MultipartForm.Value["providers"]),
	}
	if len(req.Providers) == 0 {
		req.Providers = s.opts.DefaultProviders
	}
	if v := r.FormValue("compare"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "compare must be a boolean")
			return
		}
		req.CompareAcrossProviders = b
	}
	if v := r.FormValue("threshold"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "threshold must be a number")
			return
		}
		req.ConfidenceThreshold = &f
	}
	if v := r.FormValue("reference_year"); v != "" {
		y, err := strconv.Atoi(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "reference_year must be an integer")
			return
		}
		req.ReferenceYear = y
	}

	res, err := s.opts.Submitter.Submit(r.Context(), req)
	if err != nil {
		s.writeSubmitError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) writeSubmitError(w http.ResponseWriter, err error) {
	body := map[string]string{"error": err.Error()}
	var failed *pipeline.FailedError
	if errors.As(err, &failed) {
		body["session_id"] = failed.SessionID
		body["error"] = failed.Err.Error()
	}

	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, pipeline.ErrInvalid):
		status = http.StatusBadRequest
	case errors.Is(err, pipeline.ErrNoProviders):
		status = http.StatusServiceUnavailable
	default:
		zap.L().Error("api: submission failed", zap.Error(err))
	}
	writeJSON(w, status, body)
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	sess, err := s.opts.Sessions.Get(r.Context(), chi.URLParam(r, "id"), userID(r.Context()))
	if err != nil {
		writeSessionError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sess.View())
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	if err := s.opts.Sessions.Dispose(r.Context(), chi.URLParam(r, "id"), userID(r.Context())); err != nil {
		writeSessionError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func writeSessionError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, session.ErrNotFound):
		writeError(w, http.StatusNotFound, "session not found")
	case errors.Is(err, session.ErrForbidden):
		writeError(w, http.StatusForbidden, "session belongs to another user")
	default:
		zap.L().Error("api: session lookup failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	if s.opts.Runs == nil {
		writeError(w, http.StatusNotFound, "run history is disabled")
		return
	}

	q := r.URL.Query()
	filter := store.RunFilter{
		UserID: userID(r.Context()),
		Status: model.SessionStatus(q.Get("status")),
	}
	if v := q.Get("needs_review"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "needs_review must be a boolean")
			return
		}
		filter.NeedsReview = &b
	}
	var err error
	if filter.Limit, err = intParam(q.Get("limit")); err != nil {
		writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
		return
	}
	if filter.Offset, err = intParam(q.Get("offset")); err != nil {
		writeError(w, http.StatusBadRequest, "offset must be a non-negative integer")
		return
	}

	runs, err := s.opts.Runs.ListRuns(r.Context(), filter)
	if err != nil {
		zap.L().Error("api: list runs", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if runs == nil {
		runs = []model.Run{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"runs": runs})
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	if s.opts.Runs == nil {
		writeError(w, http.StatusNotFound, "run history is disabled")
		return
	}
	run, err := s.opts.Runs.GetRun(r.Context(), chi.URLParam(r, "id"))
	switch {
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, "run not found")
		return
	case err != nil:
		zap.L().Error("api: get run", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if run.UserID != userID(r.Context()) {
		writeError(w, http.StatusForbidden, "run belongs to another user")
		return
	}
	writeJSON(w, http.StatusOK, run)
}

// parseProviders accepts repeated fields and comma-separated lists.
func parseProviders(values []string) []model.ProviderID {
	var out []model.ProviderID
	for _, v := range values {
		for _, p := range strings.Split(v, ",") {
			if p = strings.TrimSpace(strings.ToLower(p)); p != "" {
				out = append(out, model.ProviderID(p))
			}
		}
	}
	return out
}

func intParam(v string) (int, error) {
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, errors.New("invalid")
	}
	return n, nil
}

type ctxKey struct{}

func userID(ctx context.Context) string {
	id, _ := ctx.Value(ctxKey{}).(string)
	return id
}

func requireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(r.Header.Get(HeaderUserID))
		if id == "" {
			writeError(w, http.StatusUnauthorized, HeaderUserID+" header is required")
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ctxKey{}, id)))
	})
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		zap.L().Debug("api: request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("duration", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Warn("api: encode response", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
