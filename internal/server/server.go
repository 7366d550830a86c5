package server

import (
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"document-processor/internal/config"
	"document-processor/internal/helper"
	"document-processor/internal/jobs"
	"document-processor/internal/pricing"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"
)

// Server is the HTTP front end over a job manager.
type Server struct {
	cfg     *config.Config
	manager *jobs.Manager
	pricing *pricing.Table
	router  *chi.Mux
}

func New(cfg *config.Config, manager *jobs.Manager, table *pricing.Table) (*Server, error) {
	if err := helper.CreateFolder(cfg.UploadDir); err != nil {
		return nil, err
	}
	s := &Server{
		cfg:     cfg,
		manager: manager,
		pricing: table,
		router:  chi.NewRouter(),
	}
	s.routes()
	return s, nil
}

func (s *Server) routes() {
	r := s.router
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealth)
	r.Get("/models", s.handleModels)
	r.Get("/jobs", s.handleJobs)
	r.Post("/upload", s.handleUpload)
	r.Get("/status/{jobID}", s.handleStatus)
	r.Get("/download/{jobID}", s.handleDownload)
	r.Post("/cancel/{jobID}", s.handleCancel)
	r.Post("/pause/{jobID}", s.handlePause)
	r.Post("/resume/{jobID}", s.handleResume)
}

func (s *Server) Handler() http.Handler {
	return s.router
}

// HTTPServer returns an http.Server bound to the configured address.
func (s *Server) HTTPServer() *http.Server {
	return &http.Server{
		Addr:              net.JoinHostPort(s.cfg.Server.Host, strconv.Itoa(s.cfg.Server.Port)),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		log.Info().
			Str("request_id", middleware.GetReqID(r.Context())).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Int("bytes", ww.BytesWritten()).
			Dur("duration", time.Since(start)).
			Msg("HTTP request")
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("Failed to write response")
	}
}

func writeError(w http.ResponseWriter, status int, format string, args ...any) {
	writeJSON(w, status, map[string]string{"error": fmt.Sprintf(format, args...)})
}
