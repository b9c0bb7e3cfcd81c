// Package web serves the blog over HTTP.
package web

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"

	"github.com/dgallion1/spacetraveling/internal/cms"
	"github.com/dgallion1/spacetraveling/internal/config"
	"github.com/dgallion1/spacetraveling/internal/content"
	"github.com/dgallion1/spacetraveling/internal/pagecache"
	"github.com/dgallion1/spacetraveling/internal/session"
	"github.com/dgallion1/spacetraveling/internal/site"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Uploader stores new content files.
type Uploader interface {
	Save(filename string, r io.Reader, maxBytes int64) (*content.Post, error)
}

// Deps are the collaborators a Server needs. Stats and Uploader are optional.
type Deps struct {
	Builder  *site.Builder
	Cache    *pagecache.Cache
	Sessions *session.Store
	Stats    *cms.Stats
	Uploader Uploader
}

// Server is the HTTP front end of the blog.
type Server struct {
	router   chi.Router
	builder  *site.Builder
	cache    *pagecache.Cache
	sessions *session.Store
	stats    *cms.Stats
	uploader Uploader
	render   *Renderer
	log      *slog.Logger
	cfg      config.Config
}

// NewServer creates and configures the HTTP server.
func NewServer(deps Deps, log *slog.Logger, cfg config.Config) *Server {
	s := &Server{
		builder:  deps.Builder,
		cache:    deps.Cache,
		sessions: deps.Sessions,
		stats:    deps.Stats,
		uploader: deps.Uploader,
		render:   NewRenderer(cfg),
		log:      log,
		cfg:      cfg,
	}
	s.setupRoutes()
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) setupRoutes() {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(RequestLogger(s.log))

	r.Get("/health", s.handleHealth)

	r.Get("/", s.handleHome)
	r.Get("/post/{slug}", s.handlePost)
	r.Post("/posts/more", s.handleLoadMore)

	r.Get("/api/posts", s.handleListPosts)
	r.Get("/api/stats/cms", s.handleCMSStats)

	if s.uploader != nil {
		r.Group(func(r chi.Router) {
			r.Use(AuthMiddleware(s.cfg.ContentAPIKey, s.log))
			r.Post("/api/content", s.handleUpload)
		})
	}

	r.NotFound(s.handleNotFound)
	s.router = r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}

func (s *Server) handleCMSStats(w http.ResponseWriter, r *http.Request) {
	if s.stats == nil {
		jsonError(w, "cms stats unavailable", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"stats": s.stats.Snapshot(),
	})
}

func jsonError(w http.ResponseWriter, msg string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}
