package dashboard

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/agentsight/agentsight/internal/flow"
	"github.com/agentsight/agentsight/internal/metrics"
	"github.com/agentsight/agentsight/internal/session"
	"github.com/agentsight/agentsight/internal/timeline"
)

// maxImportBytes caps the request body on POST /api/import, matching the
// limit applied to snapshot files on disk.
const maxImportBytes = 32 << 20

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Warn("failed to encode response", "error", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	ip := clientIP(r)

	allowed, retryAfter := s.auth.CheckRateLimit(ip)
	if !allowed {
		s.logger.Warn("login rate-limited",
			"ip", ip,
			"retry_after", retryAfter.Round(time.Second).String(),
		)
		w.Header().Set("Retry-After", strconv.Itoa(int(retryAfter.Seconds())+1))
		s.writeError(w, http.StatusTooManyRequests, "too many failed attempts")
		return
	}

	var req struct {
		Code string `json:"code"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if !s.auth.ValidateCode(req.Code) {
		if lockout := s.auth.RecordFailure(ip); lockout > 0 {
			s.logger.Warn("login lockout triggered",
				"ip", ip,
				"lockout_duration", lockout.String(),
			)
		} else {
			s.logger.Info("login failed", "ip", ip)
		}
		s.writeError(w, http.StatusUnauthorized, "invalid access code")
		return
	}

	s.auth.RecordSuccess(ip)
	s.logger.Info("login success", "ip", ip)

	token := s.auth.CreateSession()
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
		Secure:   false, // localhost only
	})
	s.writeJSON(w, http.StatusOK, map[string]string{"token": token})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if c, err := r.Cookie(sessionCookieName); err == nil {
		s.auth.InvalidateSession(c.Value)
	} else if tok := requestToken(r); tok != "" {
		s.auth.InvalidateSession(tok)
	}

	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
		MaxAge:   -1,
	})
	s.logger.Info("logout", "ip", clientIP(r))
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"version": s.version,
	})
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	opts := session.QueryOpts{
		Severity: q.Get("severity"),
		Source:   q.Get("source"),
		Since:    q.Get("since"),
	}
	if q.Get("with_detections") == "true" {
		opts.WithDetections = true
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			s.writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		opts.Limit = n
	}

	records, err := s.store.List(opts)
	if err != nil {
		s.logger.Error("session list failed", "error", err)
		s.writeError(w, http.StatusInternalServerError, "query failed")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"sessions": records,
		"count":    len(records),
	})
}

func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	rec, err := s.store.Session(r.PathValue("id"))
	if err != nil {
		s.notFoundOr500(w, err, "session lookup failed")
		return
	}
	s.writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := s.store.Delete(id); err != nil {
		s.notFoundOr500(w, err, "session delete failed")
		return
	}
	s.logger.Info("session deleted", "session_id", id)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleTranscript(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	t, err := s.store.Transcript(id)
	if err != nil {
		s.notFoundOr500(w, err, "transcript lookup failed")
		return
	}
	s.store.Touch(id)
	s.writeJSON(w, http.StatusOK, t)
}

func (s *Server) handleTimeline(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	t, err := s.store.Transcript(id)
	if err != nil {
		s.notFoundOr500(w, err, "transcript lookup failed")
		return
	}

	events := s.correlate(t)
	metrics.TimelineBuilds.Inc()
	s.store.Touch(id)

	s.writeJSON(w, http.StatusOK, map[string]any{
		"session_id": id,
		"events":     events,
		"count":      len(events),
	})
}

func (s *Server) handleFlow(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	t, err := s.store.Transcript(id)
	if err != nil {
		s.notFoundOr500(w, err, "transcript lookup failed")
		return
	}

	events := s.correlate(t)
	f := s.reconstruct(events)
	metrics.FlowBuilds.Inc()

	s.writeJSON(w, http.StatusOK, map[string]any{
		"session_id":         id,
		"participants":       f.SortedParticipants(),
		"edges":              f.Edges,
		"primary_agent":      f.PrimaryAgent,
		"total_participants": f.TotalParticipants,
		"total_edges":        f.TotalEdges,
	})
}

func (s *Server) handleActiveEdges(w http.ResponseWriter, r *http.Request) {
	idx, err := strconv.Atoi(r.URL.Query().Get("index"))
	if err != nil || idx < 0 {
		s.writeError(w, http.StatusBadRequest, "invalid index")
		return
	}

	id := r.PathValue("id")
	t, err := s.store.Transcript(id)
	if err != nil {
		s.notFoundOr500(w, err, "transcript lookup failed")
		return
	}

	events := s.correlate(t)
	f := s.reconstruct(events)

	active := f.ActiveEdges(events, idx)
	keys := make([]flow.EdgeKey, 0, len(active))
	for k := range active {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].A != keys[j].A {
			return keys[i].A < keys[j].A
		}
		return keys[i].B < keys[j].B
	})

	s.writeJSON(w, http.StatusOK, map[string]any{
		"session_id":   id,
		"index":        idx,
		"active_edges": keys,
		"count":        len(keys),
	})
}

func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxImportBytes+1))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "reading body failed")
		return
	}
	if len(body) > maxImportBytes {
		s.writeError(w, http.StatusRequestEntityTooLarge, "snapshot too large")
		return
	}

	var t timeline.Transcript
	if err := json.Unmarshal(body, &t); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid snapshot")
		return
	}

	rec, err := s.importer.Import(r.Context(), &t, "api", r.URL.Query().Get("label"))
	if err != nil {
		s.logger.Error("api import failed", "error", err)
		s.writeError(w, http.StatusInternalServerError, "import failed")
		return
	}
	s.writeJSON(w, http.StatusCreated, rec)
}

func (s *Server) handleAgents(w http.ResponseWriter, r *http.Request) {
	names, err := s.store.AgentNames()
	if err != nil {
		s.logger.Error("agent registry lookup failed", "error", err)
		s.writeError(w, http.StatusInternalServerError, "query failed")
		return
	}

	type agentEntry struct {
		ID          string `json:"id"`
		DisplayName string `json:"display_name"`
	}
	entries := make([]agentEntry, 0, len(names))
	for id, dn := range names {
		entries = append(entries, agentEntry{ID: id, DisplayName: dn})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].ID < entries[j].ID })

	s.writeJSON(w, http.StatusOK, map[string]any{
		"agents": entries,
		"count":  len(entries),
	})
}

func (s *Server) handleAgentAvatar(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	name := id
	if names, err := s.store.AgentNames(); err == nil {
		if dn, ok := names[id]; ok && dn != "" {
			name = dn
		}
	}

	size := 40
	if v := r.URL.Query().Get("size"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 8 && n <= 400 {
			size = n
		}
	}

	w.Header().Set("Content-Type", "image/svg+xml")
	w.Header().Set("Cache-Control", "max-age=86400")
	_, _ = w.Write([]byte(agentAvatar(name, size)))
}

func (s *Server) handleRules(w http.ResponseWriter, r *http.Request) {
	rules := s.scanner.ListRules()
	s.writeJSON(w, http.StatusOK, map[string]any{
		"rules": rules,
		"count": len(rules),
	})
}

func (s *Server) handleRuleDetail(w http.ResponseWriter, r *http.Request) {
	detail, err := s.scanner.ExplainRule(r.PathValue("id"))
	if err != nil {
		s.writeError(w, http.StatusNotFound, "rule not found")
		return
	}
	s.writeJSON(w, http.StatusOK, detail)
}

func (s *Server) handleScan(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Content string `json:"content"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Content == "" {
		s.writeError(w, http.StatusBadRequest, "content is required")
		return
	}

	outcome, err := s.scanner.ScanContent(r.Context(), req.Content)
	if err != nil {
		s.logger.Error("content scan failed", "error", err)
		s.writeError(w, http.StatusInternalServerError, "scan failed")
		return
	}
	s.writeJSON(w, http.StatusOK, outcome)
}

// correlate computes the timeline for a stored transcript, applying the
// registry-backed name resolver when one is configured.
func (s *Server) correlate(t *timeline.Transcript) []timeline.Event {
	var opts []timeline.Option
	if s.resolver != nil {
		opts = append(opts, timeline.WithNameResolver(s.resolver))
	}
	return timeline.Correlate(t, opts...)
}

func (s *Server) reconstruct(events []timeline.Event) *flow.Flow {
	opts := []flow.Option{flow.WithLogger(s.logger)}
	if s.resolver != nil {
		opts = append(opts, flow.WithNameResolver(s.resolver))
	}
	return flow.Reconstruct(events, opts...)
}

func (s *Server) notFoundOr500(w http.ResponseWriter, err error, logMsg string) {
	if errors.Is(err, session.ErrNotFound) {
		s.writeError(w, http.StatusNotFound, "session not found")
		return
	}
	s.logger.Error(logMsg, "error", err)
	s.writeError(w, http.StatusInternalServerError, "query failed")
}
