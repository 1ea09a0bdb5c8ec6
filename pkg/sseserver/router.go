package sseserver

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/forge/internal/config"
	"github.com/ternarybob/forge/pkg/llmclient"
	"github.com/ternarybob/forge/pkg/snapshot"
	"github.com/ternarybob/forge/pkg/toolproc"
)

// Server is the HTTP/SSE surface described in spec.md §6: POST /message and
// GET /health, grounded on the teacher's own internal/api/router.go.
type Server struct {
	cfg      *config.Config
	router   chi.Router
	registry *toolproc.Registry
	client   *llmclient.Client
	proc     *toolproc.Processor
	snap     *snapshot.Store
	logger   arbor.ILogger
}

// NewServer builds the chi router: request-id/real-ip/logger/recoverer
// middleware, CORS from cfg.API.AllowedOrigins, and optional bearer-token
// auth when cfg.API.AuthToken is set (spec.md §6: "Missing auth token
// disables authentication").
func NewServer(cfg *config.Config, registry *toolproc.Registry, proc *toolproc.Processor, client *llmclient.Client, snap *snapshot.Store, logger arbor.ILogger) *Server {
	s := &Server{cfg: cfg, registry: registry, proc: proc, client: client, snap: snap, logger: logger}
	s.setupRouter()
	return s
}

func (s *Server) setupRouter() {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	timeout := time.Duration(s.cfg.API.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 600 * time.Second
	}
	r.Use(middleware.Timeout(timeout))

	if s.cfg.Security.CORSEnabled {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   s.cfg.API.AllowedOrigins,
			AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
			AllowCredentials: true,
			MaxAge:           300,
		}))
	}

	if s.cfg.API.AuthToken != "" {
		r.Use(s.authMiddleware)
	}

	r.Get("/health", s.handleHealth)
	r.Post("/message", s.handleMessage)

	s.router = r
}

// Handler returns the HTTP handler serving the configured routes.
func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			next.ServeHTTP(w, r)
			return
		}

		token := bearerToken(r)
		if token == "" || token != s.cfg.API.AuthToken {
			writeJSONError(w, http.StatusUnauthorized, "missing or invalid authorization token")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func bearerToken(r *http.Request) string {
	const prefix = "Bearer "
	h := r.Header.Get("Authorization")
	if len(h) > len(prefix) && h[:len(prefix)] == prefix {
		return h[len(prefix):]
	}
	return ""
}

type healthResponse struct {
	Status string `json:"status"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{Status: "healthy"})
}
