package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"threadboard/internal/cache"
	"threadboard/internal/middleware"
	"threadboard/internal/threads"
	"threadboard/internal/utils"
	"threadboard/internal/websocket"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	log "github.com/sirupsen/logrus"
)

// Server holds all server dependencies
type Server struct {
	Threads        *threads.Repository
	Pages          *cache.PageCache
	Hub            *websocket.Hub
	Metrics        *utils.MetricsCollector
	Validate       *validator.Validate
	RequestTimeout time.Duration
	MetricsEnabled bool

	allowedOrigins []string
}

// NewServer creates a new Server instance with the given components
func NewServer(repo *threads.Repository, pages *cache.PageCache, metrics *utils.MetricsCollector) *Server {
	return &Server{
		Threads:        repo,
		Pages:          pages,
		Metrics:        metrics,
		Validate:       validator.New(validator.WithRequiredStructEnabled()),
		RequestTimeout: 5 * time.Second, // Default timeout for store calls
		MetricsEnabled: true,
	}
}

// Routes builds the router for the thread API.
func (s *Server) Routes(allowedOrigins []string) http.Handler {
	s.allowedOrigins = allowedOrigins
	r := chi.NewRouter()

	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(middleware.RequestLogger(s.Metrics))
	r.Use(chiMiddleware.Recoverer)
	r.Use(middleware.CORSMiddleware(middleware.DefaultCORSConfig(allowedOrigins)))

	r.Get("/health", s.HandleHealth())

	r.Route("/threads", func(r chi.Router) {
		r.Get("/", s.HandleFetchPosts())
		r.Get("/live", s.HandleLive())
		r.Post("/", s.HandleCreateThread())
		r.Get("/{threadID}", s.HandleFetchThread())
		r.Post("/{threadID}/comments", s.HandleAddComment())
	})

	return r
}

// HandleHealth reports operation metrics and page cache counters.
func (s *Server) HandleHealth() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		response := map[string]interface{}{
			"status": "ok",
		}
		if s.Hub != nil {
			response["liveClients"] = s.Hub.ClientCount()
		}
		if s.MetricsEnabled {
			response["metrics"] = s.Metrics.Snapshot()
		}

		if stats, err := s.Pages.Stats(); err == nil {
			response["pageCache"] = stats
		} else {
			log.WithError(err).Warn("Failed to read page cache stats")
		}

		writeJSON(w, http.StatusOK, response)
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.WithError(err).Error("Error encoding response")
	}
}

// writeError maps err to a status and writes its message.
func writeError(w http.ResponseWriter, err error) {
	status := utils.HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		log.WithError(err).Error("Request failed")
	}
	http.Error(w, err.Error(), status)
}
