package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/speccyhq/speccy/internal/channel"
	"github.com/speccyhq/speccy/internal/gateway"
	"github.com/speccyhq/speccy/internal/handoff"
	"github.com/speccyhq/speccy/internal/models"
	"github.com/speccyhq/speccy/internal/notify"
	"github.com/speccyhq/speccy/internal/orchestrator"
	"github.com/speccyhq/speccy/internal/store"
)

type fakeGateway struct {
	resp    *gateway.Response
	err     error
	lastReq gateway.Request
}

func (f *fakeGateway) Send(_ context.Context, req gateway.Request) (*gateway.Response, error) {
	f.lastReq = req
	if f.err != nil {
		return nil, f.err
	}
	return f.resp, nil
}

func setupTestServer(t *testing.T, gw *fakeGateway) (*Server, *store.SQLiteStore) {
	t.Helper()

	s, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	require.NoError(t, s.Migrate(context.Background()))
	t.Cleanup(func() { s.Close() })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	hs := handoff.NewService(s, 0)
	orch := orchestrator.New(s, gw, hs, notify.NewOutboxNotifier(s), "claude-sonnet-4-5-20250929", logger)
	return NewServer(s, orch, hs, logger), s
}

func doRequest(t *testing.T, srv *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}

	req := httptest.NewRequest(method, path, reader)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	return rec
}

func decodeJSON[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v))
	return v
}

func createTestSession(t *testing.T, srv *Server) *models.Session {
	t.Helper()
	rec := doRequest(t, srv, http.MethodPost, "/api/v1/sessions", map[string]any{
		"project_id":  "proj-1",
		"tenant_id":   "tenant-1",
		"turn_budget": 10,
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	sess := decodeJSON[*models.Session](t, rec)
	return sess
}

func TestCreateSession(t *testing.T) {
	srv, _ := setupTestServer(t, &fakeGateway{})

	sess := createTestSession(t, srv)
	assert.NotEmpty(t, sess.ID)
	assert.Equal(t, 1, sess.Version)
	assert.Equal(t, models.PhaseExplore, sess.Phase)
	assert.Equal(t, models.ChannelWeb, sess.Channel, "channel defaults to web")

	// Second session for the same project takes the next version.
	second := createTestSession(t, srv)
	assert.Equal(t, 2, second.Version)
}

func TestCreateSession_Validation(t *testing.T) {
	srv, _ := setupTestServer(t, &fakeGateway{})

	rec := doRequest(t, srv, http.MethodPost, "/api/v1/sessions", map[string]any{"turn_budget": 10})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doRequest(t, srv, http.MethodPost, "/api/v1/sessions", map[string]any{"project_id": "p"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetSession_NotFound(t *testing.T) {
	srv, _ := setupTestServer(t, &fakeGateway{})

	rec := doRequest(t, srv, http.MethodGet, "/api/v1/sessions/missing", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListSessions_Empty(t *testing.T) {
	srv, _ := setupTestServer(t, &fakeGateway{})

	rec := doRequest(t, srv, http.MethodGet, "/api/v1/sessions", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "[]", string(bytes.TrimSpace(rec.Body.Bytes())))
}

func TestProcessTurn(t *testing.T) {
	gw := &fakeGateway{resp: &gateway.Response{Content: "Tell me more.", StopReason: "end_turn"}}
	srv, _ := setupTestServer(t, gw)
	sess := createTestSession(t, srv)

	rec := doRequest(t, srv, http.MethodPost, "/api/v1/sessions/"+sess.ID+"/turns", map[string]any{
		"text":  "We want a portal.",
		"actor": map[string]any{"id": "u1", "name": "Ada", "role": "member"},
	})
	require.Equal(t, http.StatusOK, rec.Code)

	payload := decodeJSON[*channel.Payload](t, rec)
	assert.Equal(t, "Tell me more.", payload.Content)
	assert.Equal(t, 1, payload.TurnsUsed)
	assert.Nil(t, payload.Error)
}

func TestProcessTurn_InvalidInput422(t *testing.T) {
	srv, _ := setupTestServer(t, &fakeGateway{})
	sess := createTestSession(t, srv)

	rec := doRequest(t, srv, http.MethodPost, "/api/v1/sessions/"+sess.ID+"/turns", map[string]any{
		"text": "   ",
	})
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	payload := decodeJSON[*channel.Payload](t, rec)
	require.NotNil(t, payload.Error)
	assert.Equal(t, orchestrator.KindInvalidInput, payload.Error.Kind)
}

func TestProcessTurn_TeamSpecStripping(t *testing.T) {
	specInput := `{"title":"Portal","goal":"G","approach":"A","chunks":[]}`
	newGW := func() *fakeGateway {
		return &fakeGateway{resp: &gateway.Response{
			StopReason: "tool_use",
			ToolCall:   &gateway.ToolCall{ID: "tu_1", Name: "generate_team_spec", Input: []byte(specInput)},
		}}
	}

	turn := func(t *testing.T, srv *Server, sessID string, body map[string]any) *channel.Payload {
		rec := doRequest(t, srv, http.MethodPost, "/api/v1/sessions/"+sessID+"/turns", body)
		require.Equal(t, http.StatusOK, rec.Code)
		return decodeJSON[*channel.Payload](t, rec)
	}

	t.Run("stripped by default", func(t *testing.T) {
		srv, _ := setupTestServer(t, newGW())
		sess := createTestSession(t, srv)
		payload := turn(t, srv, sess.ID, map[string]any{
			"text":  "finish it",
			"actor": map[string]any{"role": "owner"},
		})
		assert.Nil(t, payload.TeamSpec)
	})

	t.Run("included for internal actor on request", func(t *testing.T) {
		srv, _ := setupTestServer(t, newGW())
		sess := createTestSession(t, srv)
		payload := turn(t, srv, sess.ID, map[string]any{
			"text":              "finish it",
			"actor":             map[string]any{"role": "owner"},
			"include_team_spec": true,
		})
		require.NotNil(t, payload.TeamSpec)
		assert.Equal(t, "Portal", payload.TeamSpec.Title)
	})

	t.Run("never included for client actor", func(t *testing.T) {
		srv, s := setupTestServer(t, newGW())
		sess := createTestSession(t, srv)

		// Force the completed spec onto the session so the client turn has
		// one to leak; the client tool registry cannot produce it.
		stored, err := s.GetSession(context.Background(), sess.ID)
		require.NoError(t, err)
		stored.TeamSpec = &models.TeamSpec{Title: "Portal"}
		require.NoError(t, s.UpdateSession(context.Background(), stored))

		payload := turn(t, srv, sess.ID, map[string]any{
			"text":              "finish it",
			"actor":             map[string]any{"role": "client"},
			"include_team_spec": true,
		})
		assert.Nil(t, payload.TeamSpec)
	})
}

func TestForkSession(t *testing.T) {
	srv, _ := setupTestServer(t, &fakeGateway{})
	sess := createTestSession(t, srv)

	rec := doRequest(t, srv, http.MethodPost, "/api/v1/sessions/"+sess.ID+"/fork", nil)
	require.Equal(t, http.StatusCreated, rec.Code)

	fork := decodeJSON[*models.Session](t, rec)
	assert.NotEqual(t, sess.ID, fork.ID)
	assert.Equal(t, sess.ProjectID, fork.ProjectID)
	assert.Equal(t, 2, fork.Version)
	assert.Equal(t, sess.TurnBudget, fork.TurnBudget)
	assert.Equal(t, models.PhaseExplore, fork.Phase)
	assert.Equal(t, 0, fork.TurnsUsed)
}

func TestArchiveSession(t *testing.T) {
	srv, _ := setupTestServer(t, &fakeGateway{})
	sess := createTestSession(t, srv)

	rec := doRequest(t, srv, http.MethodPost, "/api/v1/sessions/"+sess.ID+"/archive", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	got := decodeJSON[*models.Session](t, rec)
	assert.Equal(t, models.SessionStatusArchived, got.Status)
}

func TestAcceptHandoff(t *testing.T) {
	srv, s := setupTestServer(t, &fakeGateway{})
	sess := createTestSession(t, srv)

	hs := handoff.NewService(s, 0)
	h, err := hs.Create(context.Background(), handoff.CreateInput{
		SessionID:  sess.ID,
		Reason:     "needs the owner",
		TargetRole: models.HandoffRoleOwner,
	})
	require.NoError(t, err)

	rec := doRequest(t, srv, http.MethodPost, "/api/v1/handoffs/"+h.Token+"/accept", map[string]any{
		"user_id": "user-9",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	accepted := decodeJSON[*models.Handoff](t, rec)
	assert.Equal(t, "user-9", accepted.TargetUserID)

	// Double accept conflicts.
	rec = doRequest(t, srv, http.MethodPost, "/api/v1/handoffs/"+h.Token+"/accept", map[string]any{
		"user_id": "user-10",
	})
	assert.Equal(t, http.StatusConflict, rec.Code)

	// Unknown token.
	rec = doRequest(t, srv, http.MethodPost, "/api/v1/handoffs/nope/accept", map[string]any{
		"user_id": "user-9",
	})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGuestTurn(t *testing.T) {
	gw := &fakeGateway{resp: &gateway.Response{Content: "Welcome!", StopReason: "end_turn"}}
	srv, s := setupTestServer(t, gw)
	sess := createTestSession(t, srv)

	hs := handoff.NewService(s, 0)
	h, err := hs.Create(context.Background(), handoff.CreateInput{
		SessionID:  sess.ID,
		Reason:     "client input needed",
		TargetRole: models.HandoffRoleClient,
	})
	require.NoError(t, err)

	rec := doRequest(t, srv, http.MethodPost, "/api/v1/guest/"+h.Token+"/turns", map[string]any{
		"text":  "Hi, I'm the client.",
		"actor": map[string]any{"name": "Sam", "role": "owner"},
	})
	require.Equal(t, http.StatusOK, rec.Code)

	payload := decodeJSON[*channel.Payload](t, rec)
	assert.Equal(t, "Welcome!", payload.Content)
	assert.Nil(t, payload.TeamSpec)

	// The requested role is ignored: guests are always client-audience, so
	// the model never saw the team spec tool.
	assert.Len(t, gw.lastReq.Tools, 3)

	rec = doRequest(t, srv, http.MethodPost, "/api/v1/guest/unknown/turns", map[string]any{"text": "hi"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGuestTurn_ExpiredInvite(t *testing.T) {
	gw := &fakeGateway{resp: &gateway.Response{Content: "hi", StopReason: "end_turn"}}
	srv, s := setupTestServer(t, gw)
	sess := createTestSession(t, srv)

	past := time.Now().UTC().Add(-48 * time.Hour)
	h := &models.Handoff{
		SessionID:  sess.ID,
		Reason:     "client input needed",
		TargetRole: models.HandoffRoleClient,
		Token:      "expired-tok",
		ExpiresAt:  &past,
	}
	require.NoError(t, s.CreateHandoff(context.Background(), h))

	rec := doRequest(t, srv, http.MethodPost, "/api/v1/guest/expired-tok/turns", map[string]any{
		"text": "still here?",
	})
	assert.Equal(t, http.StatusGone, rec.Code)
	assert.Nil(t, gw.lastReq.Messages, "expired invites never reach the orchestrator")
}

func TestGuestTurn_AcceptedInvite(t *testing.T) {
	gw := &fakeGateway{resp: &gateway.Response{Content: "hi", StopReason: "end_turn"}}
	srv, s := setupTestServer(t, gw)
	sess := createTestSession(t, srv)

	hs := handoff.NewService(s, 0)
	h, err := hs.Create(context.Background(), handoff.CreateInput{
		SessionID:  sess.ID,
		Reason:     "client input needed",
		TargetRole: models.HandoffRoleClient,
	})
	require.NoError(t, err)
	_, err = hs.Accept(context.Background(), h.Token, "user-9")
	require.NoError(t, err)

	rec := doRequest(t, srv, http.MethodPost, "/api/v1/guest/"+h.Token+"/turns", map[string]any{
		"text": "me again",
	})
	assert.Equal(t, http.StatusConflict, rec.Code)

	messages, err := s.ListMessages(context.Background(), sess.ID)
	require.NoError(t, err)
	assert.Empty(t, messages, "redeemed invites grant no further access")
}

func TestListMessagesAndCards_Empty(t *testing.T) {
	srv, _ := setupTestServer(t, &fakeGateway{})
	sess := createTestSession(t, srv)

	rec := doRequest(t, srv, http.MethodGet, "/api/v1/sessions/"+sess.ID+"/messages", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "[]", string(bytes.TrimSpace(rec.Body.Bytes())))

	rec = doRequest(t, srv, http.MethodGet, "/api/v1/sessions/"+sess.ID+"/cards", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "[]", string(bytes.TrimSpace(rec.Body.Bytes())))
}

func TestListNotifications(t *testing.T) {
	srv, s := setupTestServer(t, &fakeGateway{})

	require.NoError(t, notify.NewOutboxNotifier(s).Publish(context.Background(), notify.Event{
		Action:         models.ActionHandoffRequested,
		NotifiableType: "handoff",
		NotifiableID:   "h-1",
	}))

	rec := doRequest(t, srv, http.MethodGet, "/api/v1/notifications", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	notifications := decodeJSON[[]*models.Notification](t, rec)
	require.Len(t, notifications, 1)
	assert.Equal(t, models.ActionHandoffRequested, notifications[0].Action)
}

func TestListNotifications_Limit(t *testing.T) {
	srv, s := setupTestServer(t, &fakeGateway{})
	outbox := notify.NewOutboxNotifier(s)

	for _, id := range []string{"h-1", "h-2", "h-3"} {
		require.NoError(t, outbox.Publish(context.Background(), notify.Event{
			Action:         models.ActionHandoffRequested,
			NotifiableType: "handoff",
			NotifiableID:   id,
		}))
	}

	rec := doRequest(t, srv, http.MethodGet, "/api/v1/notifications?limit=2", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	notifications := decodeJSON[[]*models.Notification](t, rec)
	assert.Len(t, notifications, 2)

	rec = doRequest(t, srv, http.MethodGet, "/api/v1/notifications?limit=0", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doRequest(t, srv, http.MethodGet, "/api/v1/notifications?limit=nope", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
