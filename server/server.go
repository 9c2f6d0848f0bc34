package server

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"leadcaller/config"
	"leadcaller/correlation"
	"leadcaller/models"
	"leadcaller/services"
	"leadcaller/utils"
)

// Searcher runs one search cycle.
type Searcher interface {
	Run(ctx context.Context, req services.SearchRequest) (*services.SearchResult, error)
}

// EventHandler correlates one webhook event.
type EventHandler interface {
	Handle(ctx context.Context, ev *models.WebhookEvent) (*correlation.Result, error)
}

// QualifiedReader serves the current qualified-lead snapshot.
type QualifiedReader interface {
	Current(ctx context.Context) (*models.QualifiedSnapshot, error)
}

// TelephonyConfigurer accepts outbound credentials at runtime.
type TelephonyConfigurer interface {
	SetTelephony(t config.TelephonyConfig) error
}

// Server exposes the search trigger, webhook receiver and qualified-lead
// endpoint.
type Server struct {
	searcher  Searcher
	events    EventHandler
	qualified QualifiedReader
	telephony TelephonyConfigurer
	origins   []string
	logger    *utils.Logger
}

func New(searcher Searcher, events EventHandler, qualified QualifiedReader, telephony TelephonyConfigurer, origins []string, logger *utils.Logger) *Server {
	return &Server{
		searcher:  searcher,
		events:    events,
		qualified: qualified,
		telephony: telephony,
		origins:   origins,
		logger:    logger,
	}
}

// Routes builds the HTTP handler.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", "Authorization"},
		MaxAge:         300,
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Post("/search", s.search)
	r.Post("/webhook", s.webhook)
	r.Get("/qualified-leads", s.qualifiedLeads)
	r.Put("/telephony", s.setTelephony)
	return r
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Z().Info("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("duration", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}

func respondJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func respondError(w http.ResponseWriter, status int, msg string) {
	respondJSON(w, status, map[string]string{"error": msg})
}
