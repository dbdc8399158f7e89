// Package api provides the REST handlers for speccy. Authentication and
// request framing are assumed to be handled upstream (reverse proxy or
// embedding application); handlers only validate payload shape.
package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/speccyhq/speccy/internal/channel"
	"github.com/speccyhq/speccy/internal/handoff"
	"github.com/speccyhq/speccy/internal/models"
	"github.com/speccyhq/speccy/internal/orchestrator"
	"github.com/speccyhq/speccy/internal/store"
)

// Server provides the REST API handlers.
type Server struct {
	store    store.Store
	orch     *orchestrator.Orchestrator
	handoffs *handoff.Service
	logger   *slog.Logger
}

// NewServer creates a new API server.
func NewServer(s store.Store, orch *orchestrator.Orchestrator, hs *handoff.Service, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{store: s, orch: orch, handoffs: hs, logger: logger}
}

// Router returns an http.Handler for the API routes.
func (s *Server) Router() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/v1/sessions", s.createSession)
	mux.HandleFunc("GET /api/v1/sessions", s.listSessions)
	mux.HandleFunc("GET /api/v1/sessions/{id}", s.getSession)
	mux.HandleFunc("POST /api/v1/sessions/{id}/turns", s.processTurn)
	mux.HandleFunc("GET /api/v1/sessions/{id}/messages", s.listMessages)
	mux.HandleFunc("GET /api/v1/sessions/{id}/cards", s.listCards)
	mux.HandleFunc("POST /api/v1/sessions/{id}/archive", s.archiveSession)
	mux.HandleFunc("POST /api/v1/sessions/{id}/fork", s.forkSession)

	mux.HandleFunc("POST /api/v1/handoffs/{token}/accept", s.acceptHandoff)
	mux.HandleFunc("POST /api/v1/guest/{token}/turns", s.guestTurn)

	mux.HandleFunc("GET /api/v1/notifications", s.listNotifications)

	return mux
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// --- Sessions ---

type createSessionRequest struct {
	ProjectID   string            `json:"project_id"`
	TenantID    string            `json:"tenant_id"`
	Channel     string            `json:"channel"`
	ChannelMeta map[string]string `json:"channel_meta"`
	TurnBudget  int               `json:"turn_budget"`
	Model       string            `json:"model"`
}

func (s *Server) createSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.ProjectID == "" {
		writeError(w, http.StatusBadRequest, "project_id is required")
		return
	}
	if req.TurnBudget <= 0 {
		writeError(w, http.StatusBadRequest, "turn_budget must be positive")
		return
	}

	ctx := r.Context()
	version, err := s.store.NextSessionVersion(ctx, req.ProjectID)
	if err != nil {
		s.logger.Error("next session version", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to create session")
		return
	}

	sess := &models.Session{
		ProjectID:   req.ProjectID,
		TenantID:    req.TenantID,
		Phase:       models.PhaseExplore,
		Status:      models.SessionStatusActive,
		Version:     version,
		TurnBudget:  req.TurnBudget,
		Channel:     models.Channel(req.Channel),
		ChannelMeta: req.ChannelMeta,
		Model:       req.Model,
	}
	if sess.Channel == "" {
		sess.Channel = models.ChannelWeb
	}

	if err := s.store.CreateSession(ctx, sess); err != nil {
		s.logger.Error("create session", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to create session")
		return
	}
	writeJSON(w, http.StatusCreated, sess)
}

func (s *Server) listSessions(w http.ResponseWriter, r *http.Request) {
	filter := store.SessionListFilter{
		ProjectID: r.URL.Query().Get("project_id"),
		Status:    models.SessionStatus(r.URL.Query().Get("status")),
	}
	sessions, err := s.store.ListSessions(r.Context(), filter)
	if err != nil {
		s.logger.Error("list sessions", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list sessions")
		return
	}
	if sessions == nil {
		sessions = []*models.Session{}
	}
	writeJSON(w, http.StatusOK, sessions)
}

func (s *Server) getSession(w http.ResponseWriter, r *http.Request) {
	sess, err := s.store.GetSession(r.Context(), r.PathValue("id"))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "session not found")
			return
		}
		s.logger.Error("get session", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to get session")
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

func (s *Server) archiveSession(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sess, err := s.store.GetSession(ctx, r.PathValue("id"))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "session not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to get session")
		return
	}

	sess.Status = models.SessionStatusArchived
	if err := s.store.UpdateSession(ctx, sess); err != nil {
		s.logger.Error("archive session", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to archive session")
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

// forkSession starts a fresh interview for the same project at the next
// version, carrying over budget, channel, and model tier.
func (s *Server) forkSession(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	src, err := s.store.GetSession(ctx, r.PathValue("id"))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "session not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to get session")
		return
	}

	version, err := s.store.NextSessionVersion(ctx, src.ProjectID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to fork session")
		return
	}

	fork := &models.Session{
		ProjectID:   src.ProjectID,
		TenantID:    src.TenantID,
		Phase:       models.PhaseExplore,
		Status:      models.SessionStatusActive,
		Version:     version,
		TurnBudget:  src.TurnBudget,
		Channel:     src.Channel,
		ChannelMeta: src.ChannelMeta,
		Model:       src.Model,
	}
	if err := s.store.CreateSession(ctx, fork); err != nil {
		s.logger.Error("fork session", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to fork session")
		return
	}
	writeJSON(w, http.StatusCreated, fork)
}

// --- Turns ---

type turnRequest struct {
	Text  string `json:"text"`
	Actor struct {
		ID   string `json:"id"`
		Name string `json:"name"`
		Role string `json:"role"`
	} `json:"actor"`
	Image *struct {
		MediaType string `json:"media_type"`
		Data      string `json:"data"`
	} `json:"image"`
	// IncludeTeamSpec requests the internal spec in the response. Ignored
	// for client-role actors and non-web channels.
	IncludeTeamSpec bool `json:"include_team_spec"`
}

func (s *Server) processTurn(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sess, err := s.store.GetSession(ctx, r.PathValue("id"))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "session not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to get session")
		return
	}

	var req turnRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	in := orchestrator.TurnInput{
		SessionID: sess.ID,
		Text:      req.Text,
		Actor: orchestrator.Actor{
			ID:   req.Actor.ID,
			Name: req.Actor.Name,
			Role: orchestrator.ActorRole(req.Actor.Role),
		},
	}
	if req.Image != nil {
		in.Image = &orchestrator.ImageAttachment{
			MediaType: req.Image.MediaType,
			Data:      req.Image.Data,
		}
	}

	result, err := s.orch.ProcessTurn(ctx, in)
	if err != nil {
		s.logger.Error("process turn", "session", sess.ID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to process turn")
		return
	}

	adapter := s.adapterFor(sess, in.Actor, req.IncludeTeamSpec)
	payload := adapter.FormatResult(result)

	status := http.StatusOK
	if result.Err != nil && result.Err.Kind == orchestrator.KindInvalidInput {
		status = http.StatusUnprocessableEntity
	}
	writeJSON(w, status, payload)
}

// adapterFor picks the channel adapter. The internal team spec is stripped
// unless an internal actor on the web channel explicitly asked for it.
func (s *Server) adapterFor(sess *models.Session, actor orchestrator.Actor, includeTeamSpec bool) channel.Adapter {
	if sess.Channel == models.ChannelWeb {
		strip := !includeTeamSpec || actor.Role == orchestrator.RoleClient
		return channel.NewWebAdapter(strip)
	}
	return channel.ForChannel(sess.Channel)
}

// guestTurn processes a turn through an accepted handoff invite. The actor
// is a restricted descriptor: supplied name, forced client role.
func (s *Server) guestTurn(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	h, err := s.store.GetHandoffByToken(ctx, r.PathValue("token"))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "invite not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to look up invite")
		return
	}
	if h.AcceptedAt != nil {
		writeError(w, http.StatusConflict, "invite already accepted")
		return
	}
	if h.Expired(time.Now().UTC()) {
		writeError(w, http.StatusGone, "invite expired")
		return
	}

	var req turnRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	in := orchestrator.TurnInput{
		SessionID: h.SessionID,
		Text:      req.Text,
		Actor: orchestrator.Actor{
			Name: req.Actor.Name,
			Role: orchestrator.RoleClient,
		},
	}
	if req.Image != nil {
		in.Image = &orchestrator.ImageAttachment{
			MediaType: req.Image.MediaType,
			Data:      req.Image.Data,
		}
	}

	result, err := s.orch.ProcessTurn(ctx, in)
	if err != nil {
		s.logger.Error("guest turn", "session", h.SessionID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to process turn")
		return
	}

	payload := channel.NewWebAdapter(true).FormatResult(result)
	writeJSON(w, http.StatusOK, payload)
}

// --- Messages / cards ---

func (s *Server) listMessages(w http.ResponseWriter, r *http.Request) {
	messages, err := s.store.ListMessages(r.Context(), r.PathValue("id"))
	if err != nil {
		s.logger.Error("list messages", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list messages")
		return
	}
	if messages == nil {
		messages = []*models.Message{}
	}
	writeJSON(w, http.StatusOK, messages)
}

func (s *Server) listCards(w http.ResponseWriter, r *http.Request) {
	cards, err := s.store.ListCards(r.Context(), r.PathValue("id"))
	if err != nil {
		s.logger.Error("list cards", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list cards")
		return
	}
	if cards == nil {
		cards = []*models.Card{}
	}
	writeJSON(w, http.StatusOK, cards)
}

// --- Handoffs ---

func (s *Server) acceptHandoff(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UserID string `json:"user_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.UserID == "" {
		writeError(w, http.StatusBadRequest, "user_id is required")
		return
	}

	h, err := s.handoffs.Accept(r.Context(), r.PathValue("token"), req.UserID)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, h)
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, "invite not found")
	case errors.Is(err, handoff.ErrExpired):
		writeError(w, http.StatusGone, "invite expired")
	case errors.Is(err, handoff.ErrAlreadyAccepted):
		writeError(w, http.StatusConflict, "invite already accepted")
	default:
		s.logger.Error("accept handoff", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to accept handoff")
	}
}

// --- Notifications ---

func (s *Server) listNotifications(w http.ResponseWriter, r *http.Request) {
	limit := 100
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}

	notifications, err := s.store.ListNotifications(r.Context(), limit)
	if err != nil {
		s.logger.Error("list notifications", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list notifications")
		return
	}
	if notifications == nil {
		notifications = []*models.Notification{}
	}
	writeJSON(w, http.StatusOK, notifications)
}
