package http

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"symptom-triage/internal/auth"
)

// handleSessionEvents streams the session as a server-sent event each time
// it is saved, on this replica or any other sharing the database.
func (s *Server) handleSessionEvents(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID, id := auth.UserID(ctx), chi.URLParam(r, "id")

	if _, err := s.chat.Load(ctx, userID, id); err != nil {
		s.fail(w, r, err)
		return
	}
	if s.events == nil {
		writeError(w, http.StatusServiceUnavailable, "events not configured")
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	ch, cancel := s.events.Subscribe(id)
	defer cancel()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ticker := time.NewTicker(s.keepAlive)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			fmt.Fprint(w, ": keep-alive\n\n")
			flusher.Flush()
		case _, ok := <-ch:
			if !ok {
				return
			}
			sess, err := s.chat.Snapshot(ctx, userID, id)
			if err != nil {
				s.log.Warn("reload session for event", zap.String("session", id), zap.Error(err))
				continue
			}
			data, err := json.Marshal(sess)
			if err != nil {
				continue
			}
			fmt.Fprintf(w, "event: saved\ndata: %s\n\n", data)
			flusher.Flush()
		}
	}
}
