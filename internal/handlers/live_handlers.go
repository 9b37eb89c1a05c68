package handlers

import (
	"net/http"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

// HandleLive upgrades to a websocket that streams thread events. With
// ?thread=<id> only events for that thread and its replies are sent.
func (s *Server) HandleLive() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.Hub == nil {
			http.Error(w, "Live updates are disabled", http.StatusNotFound)
			return
		}

		topic := uuid.Nil
		if raw := r.URL.Query().Get("thread"); raw != "" {
			id, err := uuid.Parse(raw)
			if err != nil {
				http.Error(w, "Invalid thread ID", http.StatusBadRequest)
				return
			}
			topic = id
		}

		// Upgrade writes its own error response on failure.
		if err := s.Hub.Serve(w, r, topic, s.checkOrigin); err != nil {
			log.WithError(err).Debug("WebSocket upgrade failed")
		}
	}
}

func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" || len(s.allowedOrigins) == 0 {
		return true
	}
	for _, allowed := range s.allowedOrigins {
		if allowed == "*" || allowed == origin {
			return true
		}
	}
	return false
}
