package api

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"fortean/domain/core"
	"fortean/ports"
)

const pingInterval = 30 * time.Second

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	sessions, err := s.sessions.ListSessions(r.Context(), queryLimit(r, 20))
	if err != nil {
		s.respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"sessions": sessions})
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	id := core.SessionID(chi.URLParam(r, "id"))
	session, err := s.sessions.GetSession(r.Context(), id)
	if err != nil {
		s.respondError(w, err)
		return
	}

	entries, err := s.log.Log(r.Context(), id)
	if err != nil {
		// narration is best-effort; the summary still answers
		s.logger.Warn("session log unavailable", zap.String("session_id", id.String()), zap.Error(err))
		entries = nil
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"session": session, "log": entries})
}

func (s *Server) handleSessionFindings(w http.ResponseWriter, r *http.Request) {
	id := core.SessionID(chi.URLParam(r, "id"))
	if _, err := s.sessions.GetSession(r.Context(), id); err != nil {
		s.respondError(w, err)
		return
	}
	findings, err := s.findings.ListFindings(r.Context(), id)
	if err != nil {
		s.respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"findings": findings})
}

func (s *Server) handleSessionReport(w http.ResponseWriter, r *http.Request) {
	id := core.SessionID(chi.URLParam(r, "id"))
	session, err := s.sessions.GetSession(r.Context(), id)
	if err != nil {
		s.respondError(w, err)
		return
	}
	findings, err := s.findings.ListFindings(r.Context(), id)
	if err != nil {
		s.respondError(w, err)
		return
	}

	if r.URL.Query().Get("format") == "html" {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write(s.renderer.HTML(session, findings))
		return
	}
	w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
	io.WriteString(w, s.renderer.Markdown(session, findings))
}

func (s *Server) handleRecentFindings(w http.ResponseWriter, r *http.Request) {
	findings, err := s.findings.ListRecentFindings(r.Context(), queryLimit(r, 20))
	if err != nil {
		s.respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"findings": findings})
}

func (s *Server) handleGetFinding(w http.ResponseWriter, r *http.Request) {
	finding, err := s.findings.GetFinding(r.Context(), core.FindingID(chi.URLParam(r, "id")))
	if err != nil {
		s.respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, finding)
}

// handleSessionEvents streams the session narration as SSE: the persisted
// log replays first, then live entries arrive through the hub.
func (s *Server) handleSessionEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	id := core.SessionID(chi.URLParam(r, "id"))
	if _, err := s.sessions.GetSession(r.Context(), id); err != nil {
		s.respondError(w, err)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	entries, err := s.log.Log(r.Context(), id)
	if err != nil {
		s.logger.Warn("session log unavailable", zap.String("session_id", id.String()), zap.Error(err))
	}
	for _, entry := range entries {
		writeEvent(w, entry)
	}
	flusher.Flush()

	ch := s.hub.Subscribe(id)
	defer s.hub.Unsubscribe(id, ch)

	ping := time.NewTicker(pingInterval)
	defer ping.Stop()
	for {
		select {
		case entry, open := <-ch:
			if !open {
				return
			}
			writeEvent(w, entry)
			flusher.Flush()
		case <-ping.C:
			fmt.Fprint(w, ": ping\n\n")
			flusher.Flush()
		case <-r.Context().Done():
			return
		}
	}
}

func writeEvent(w io.Writer, entry ports.SessionEntry) {
	data, err := json.Marshal(entry)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "event: entry\ndata: %s\n\n", data)
}

func (s *Server) respondError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	if core.IsNotFoundError(err) {
		status = http.StatusNotFound
	}
	if status >= 500 {
		s.logger.Error("request failed", zap.Error(err))
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func queryLimit(r *http.Request, fallback int) int {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return fallback
	}
	if n > 200 {
		n = 200
	}
	return n
}
