package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/lazypower/chrysalis/internal/engine"
	"github.com/lazypower/chrysalis/internal/identity"
)

const maxBodyBytes = 1 << 20

// Options configures the HTTP surface.
type Options struct {
	Version     string
	CORSOrigins []string
}

// Server is the chrysalis HTTP API server.
type Server struct {
	engine  *engine.Engine
	log     *zap.Logger
	router  chi.Router
	version string
	origins []string
	started time.Time
}

// New creates a Server in front of the given engine.
func New(eng *engine.Engine, opts Options) *Server {
	s := &Server{
		engine:  eng,
		log:     eng.Log.Named("http"),
		version: opts.Version,
		origins: opts.CORSOrigins,
		started: time.Now(),
	}
	if len(s.origins) == 0 {
		s.origins = []string{"http://localhost:*", "http://127.0.0.1:*"}
	}
	s.routes()
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) routes() {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(s.observe)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.origins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-ID"},
		ExposedHeaders: []string{"X-Request-ID"},
		MaxAge:         300,
	}))

	r.Handle("/metrics", s.engine.Metrics.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", s.handleHealth)

		r.Route("/owners/{owner}", func(r chi.Router) {
			r.Post("/context", s.handleLoadContext)
			r.Post("/turns", s.handleAfterResponse)
			r.Post("/confirm", s.handleConfirm)
			r.Post("/messages", s.handleRecordMessage)
			r.Get("/messages/pending", s.handlePendingMessages)
			r.Post("/nodes", s.handleSeedNode)
			r.Get("/chain", s.handleChain)
			r.Get("/continuity", s.handleContinuity)
			r.Get("/echoes", s.handleEchoes)
			r.Get("/events", s.handleEvents)
			r.Post("/events/{id}/confirm", s.handleConfirmEvent)
			r.Post("/reinterpretations", s.handleReinterpret)
			r.Post("/transitions/{id}/complete", s.handleCompleteRitual)
		})
	})

	s.router = r
}

// observe logs every request and feeds the HTTP metrics.
func (s *Server) observe(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := r.URL.Path
		if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
			route = rc.RoutePattern()
		}
		elapsed := time.Since(start)
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		s.engine.Metrics.HTTPRequests.WithLabelValues(r.Method, route, fmt.Sprint(status)).Inc()
		s.engine.Metrics.HTTPDuration.WithLabelValues(r.Method, route).Observe(elapsed.Seconds())

		fields := []zap.Field{
			zap.String("method", r.Method),
			zap.String("route", route),
			zap.Int("status", status),
			zap.Duration("duration", elapsed),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		}
		switch {
		case status >= 500:
			s.log.Error("request failed", fields...)
		case status >= 400:
			s.log.Warn("request rejected", fields...)
		default:
			s.log.Debug("request completed", fields...)
		}
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError maps domain errors onto HTTP statuses.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var verr *identity.ValidationError
	switch {
	case errors.As(err, &verr):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": verr.Error(), "field": verr.Field})
	case errors.Is(err, identity.ErrNotFound):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
	case errors.Is(err, identity.ErrConflict),
		errors.Is(err, identity.ErrAlreadyDelivered),
		errors.Is(err, identity.ErrAlreadyCompleted),
		errors.Is(err, identity.ErrAlreadyConfirmed):
		writeJSON(w, http.StatusConflict, map[string]string{"error": err.Error()})
	case errors.Is(err, engine.ErrNoEmbedder):
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": err.Error()})
	default:
		s.log.Error("handler error", zap.String("path", r.URL.Path), zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
	}
}

// decode reads a JSON body into v. An empty body leaves v untouched.
func decode(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return &identity.ValidationError{Field: "body", Reason: "invalid json: " + err.Error()}
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	dbOK := s.engine.DB.PingContext(r.Context()) == nil
	embedder := s.engine.EmbedderModel()
	if embedder == "" {
		embedder = "none"
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":   "ok",
		"version":  s.version,
		"uptime":   time.Since(s.started).Seconds(),
		"db":       dbOK,
		"db_path":  s.engine.DB.Path,
		"embedder": embedder,
	})
}
