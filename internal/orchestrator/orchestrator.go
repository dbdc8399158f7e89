// Package orchestrator drives the turn-based spec interview: it owns the
// phase state machine, turn-budget accounting, message-history assembly,
// tool-call dispatch, and notification fan-out. Each turn is one
// synchronous unit of work under a per-session lock.
package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/speccyhq/speccy/internal/cards"
	"github.com/speccyhq/speccy/internal/gateway"
	"github.com/speccyhq/speccy/internal/handoff"
	"github.com/speccyhq/speccy/internal/models"
	"github.com/speccyhq/speccy/internal/notify"
	"github.com/speccyhq/speccy/internal/store"
	"github.com/speccyhq/speccy/internal/toolschema"
)

// budgetWarnThreshold is the turns_used/turn_budget ratio that triggers the
// one-time budget warning.
const budgetWarnThreshold = 0.8

// Gateway is the synchronous model client the orchestrator calls once per
// turn.
type Gateway interface {
	Send(ctx context.Context, req gateway.Request) (*gateway.Response, error)
}

// ActorRole is the role of the human driving the turn.
type ActorRole string

const (
	RoleOwner  ActorRole = "owner"
	RoleMember ActorRole = "member"
	RoleClient ActorRole = "client"
)

// Actor describes who is speaking. Guest links supply a name with a forced
// client role instead of an authenticated identity.
type Actor struct {
	ID   string
	Name string
	Role ActorRole
}

// ImageAttachment is an optional single image on a user turn.
type ImageAttachment struct {
	MediaType string
	Data      string // base64-encoded
}

// TurnInput is one inbound user turn.
type TurnInput struct {
	SessionID string
	Text      string
	Actor     Actor
	Image     *ImageAttachment
}

// Question is a parsed ask_question tool input.
type Question struct {
	Question string                  `json:"question"`
	Options  []models.QuestionOption `json:"options"`
	Phase    models.Phase            `json:"phase,omitempty"`
}

// Error kinds surfaced on a TurnResult, beyond the gateway taxonomy.
const KindInvalidInput = "invalid_input"

// TurnError is a per-turn failure reported back to the caller instead of
// an unhandled crash.
type TurnError struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// Retryable reports whether the caller may reasonably retry the same turn.
func (e *TurnError) Retryable() bool {
	switch e.Kind {
	case string(gateway.KindRateLimit), string(gateway.KindOverloaded), string(gateway.KindAPI):
		return true
	}
	return false
}

// TurnResult is the generic outcome of one turn, before channel-specific
// formatting.
type TurnResult struct {
	SessionID   string               `json:"session_id"`
	Content     string               `json:"content"`
	ToolName    string               `json:"tool_name,omitempty"`
	ToolInput   json.RawMessage      `json:"tool_input,omitempty"`
	Question    *Question            `json:"question,omitempty"`
	ClientBrief *models.ClientBrief  `json:"client_brief,omitempty"`
	TeamSpec    *models.TeamSpec     `json:"team_spec,omitempty"`
	Handoff     *models.Handoff      `json:"handoff,omitempty"`
	Phase       models.Phase         `json:"phase"`
	Status      models.SessionStatus `json:"status"`
	TurnsUsed   int                  `json:"turns_used"`
	TurnBudget  int                  `json:"turn_budget"`
	Err         *TurnError           `json:"error,omitempty"`
}

// Orchestrator processes turns for all sessions. It is safe for concurrent
// use; turns on the same session are serialized, turns on different
// sessions proceed independently.
type Orchestrator struct {
	store        store.Store
	gw           Gateway
	cards        *cards.Generator
	handoffs     *handoff.Service
	notifier     notify.Notifier
	logger       *slog.Logger
	defaultModel string

	locks sync.Map // session id -> *sync.Mutex
}

// New creates an orchestrator.
func New(s store.Store, gw Gateway, hs *handoff.Service, n notify.Notifier, defaultModel string, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		store:        s,
		gw:           gw,
		cards:        cards.NewGenerator(s),
		handoffs:     hs,
		notifier:     n,
		logger:       logger,
		defaultModel: defaultModel,
	}
}

// sessionLock returns the mutex serializing turns for one session.
func (o *Orchestrator) sessionLock(sessionID string) *sync.Mutex {
	mu, _ := o.locks.LoadOrStore(sessionID, &sync.Mutex{})
	return mu.(*sync.Mutex)
}

// ProcessTurn runs one full turn: persist the user message, call the model,
// dispatch at most one tool call, persist the reply, and advance the turn
// counter. Gateway and validation failures are reported on the result;
// only infrastructure faults (store errors, missing session) return an
// error.
func (o *Orchestrator) ProcessTurn(ctx context.Context, in TurnInput) (*TurnResult, error) {
	text := strings.TrimSpace(in.Text)
	if text == "" {
		return &TurnResult{
			SessionID: in.SessionID,
			Err:       &TurnError{Kind: KindInvalidInput, Message: "message text is required"},
		}, nil
	}
	if in.Image != nil {
		if !models.AllowedImageMediaTypes[in.Image.MediaType] {
			return &TurnResult{
				SessionID: in.SessionID,
				Err:       &TurnError{Kind: KindInvalidInput, Message: fmt.Sprintf("unsupported image type %q", in.Image.MediaType)},
			}, nil
		}
		// base64 inflates by 4/3; compare against the encoded bound.
		if len(in.Image.Data) > models.MaxImageBytes*4/3 {
			return &TurnResult{
				SessionID: in.SessionID,
				Err:       &TurnError{Kind: KindInvalidInput, Message: "image exceeds size limit"},
			}, nil
		}
	}

	mu := o.sessionLock(in.SessionID)
	mu.Lock()
	defer mu.Unlock()

	sess, err := o.store.GetSession(ctx, in.SessionID)
	if err != nil {
		return nil, err
	}

	turnNumber := sess.TurnsUsed + 1
	userMsg := &models.Message{
		SessionID:  sess.ID,
		Role:       models.RoleUser,
		TurnNumber: turnNumber,
		Content:    text,
	}
	if in.Image != nil {
		userMsg.ImageMediaType = in.Image.MediaType
		userMsg.ImageData = in.Image.Data
	}
	if err := o.store.CreateMessage(ctx, userMsg); err != nil {
		return nil, fmt.Errorf("persist user message: %w", err)
	}

	history, err := o.store.ListMessages(ctx, sess.ID)
	if err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}

	resp, err := o.gw.Send(ctx, gateway.Request{
		System:   buildSystemPrompt(sess, in.Actor),
		Messages: assembleHistory(history),
		Model:    o.modelFor(sess),
		Tools:    toolschema.Tools(audienceFor(in.Actor)),
	})
	if err != nil {
		// Roll back the step-1 user message so a retried turn re-reads a
		// clean history and turn numbers stay gapless.
		if delErr := o.store.DeleteMessage(ctx, userMsg.ID); delErr != nil {
			o.logger.Error("rollback user message", "session", sess.ID, "error", delErr)
		}
		kind := gateway.Classify(err)
		o.logger.Warn("gateway call failed", "session", sess.ID, "kind", kind, "error", err)
		return &TurnResult{
			SessionID:  sess.ID,
			Phase:      sess.Phase,
			Status:     sess.Status,
			TurnsUsed:  sess.TurnsUsed,
			TurnBudget: sess.TurnBudget,
			Err:        &TurnError{Kind: string(kind), Message: err.Error()},
		}, nil
	}

	result := &TurnResult{
		SessionID: sess.ID,
		Content:   resp.Content,
	}

	assistantMsg := &models.Message{
		SessionID:    sess.ID,
		Role:         models.RoleAssistant,
		TurnNumber:   turnNumber,
		Content:      resp.Content,
		InputTokens:  resp.InputTokens,
		OutputTokens: resp.OutputTokens,
		ModelID:      resp.ModelID,
	}

	if resp.ToolCall != nil {
		assistantMsg.ToolName = resp.ToolCall.Name
		assistantMsg.ToolInput = resp.ToolCall.Input
		o.dispatchTool(ctx, sess, in.Actor, resp.ToolCall, result)
	}

	if err := o.store.CreateMessage(ctx, assistantMsg); err != nil {
		return nil, fmt.Errorf("persist assistant message: %w", err)
	}

	preRatio := sess.BudgetRatio()
	sess.TurnsUsed++
	if preRatio < budgetWarnThreshold && sess.BudgetRatio() >= budgetWarnThreshold {
		o.publish(ctx, sess, notify.Event{
			Action:         models.ActionTurnLimitApproaching,
			NotifiableType: "session",
			NotifiableID:   sess.ID,
			Data: map[string]any{
				"project_id":  sess.ProjectID,
				"turns_used":  sess.TurnsUsed,
				"turn_budget": sess.TurnBudget,
			},
		})
	}

	if err := o.store.UpdateSession(ctx, sess); err != nil {
		return nil, fmt.Errorf("update session: %w", err)
	}

	result.Phase = sess.Phase
	result.Status = sess.Status
	result.TurnsUsed = sess.TurnsUsed
	result.TurnBudget = sess.TurnBudget
	return result, nil
}

// modelFor returns the session's model tier, falling back to the default.
func (o *Orchestrator) modelFor(sess *models.Session) string {
	if sess.Model != "" {
		return sess.Model
	}
	return o.defaultModel
}

// audienceFor selects the tool schema variant: client-role actors never see
// internal-only tools.
func audienceFor(actor Actor) toolschema.Audience {
	if actor.Role == RoleClient {
		return toolschema.AudienceClient
	}
	return toolschema.AudienceInternal
}

// publish fires a notification, logging rather than failing the turn on
// error.
func (o *Orchestrator) publish(ctx context.Context, sess *models.Session, e notify.Event) {
	e.TenantID = sess.TenantID
	if err := o.notifier.Publish(ctx, e); err != nil {
		o.logger.Error("publish notification", "session", sess.ID, "action", e.Action, "error", err)
	}
}

// assembleHistory converts persisted messages into the gateway wire form.
// Assistant tool-only turns are replayed as bracketed text so the model
// sees its own prior actions without requiring tool_result pairing.
func assembleHistory(messages []*models.Message) []gateway.TextMessage {
	out := make([]gateway.TextMessage, 0, len(messages))
	for _, m := range messages {
		tm := gateway.TextMessage{
			Role:    string(m.Role),
			Content: m.Content,
		}
		if m.Role == models.RoleUser {
			tm.ImageMediaType = m.ImageMediaType
			tm.ImageData = m.ImageData
		}
		if m.Role == models.RoleAssistant && m.ToolName != "" {
			note := fmt.Sprintf("[called %s: %s]", m.ToolName, string(m.ToolInput))
			if tm.Content != "" {
				tm.Content += "\n" + note
			} else {
				tm.Content = note
			}
		}
		out = append(out, tm)
	}
	return out
}

// --- Tool dispatch ---

// dispatchTool routes a model-issued tool call. The model is an untrusted
// producer of structured data: unknown names and malformed inputs degrade
// to content-only passthrough, never an aborted turn.
func (o *Orchestrator) dispatchTool(ctx context.Context, sess *models.Session, actor Actor, call *gateway.ToolCall, result *TurnResult) {
	switch call.Name {
	case toolschema.ToolAskQuestion:
		o.dispatchAskQuestion(sess, call, result)
	case toolschema.ToolGenerateClientBrief:
		o.dispatchClientBrief(sess, call, result)
	case toolschema.ToolGenerateTeamSpec:
		o.dispatchTeamSpec(ctx, sess, actor, call, result)
	case toolschema.ToolRequestHandoff:
		o.dispatchHandoff(ctx, sess, actor, call, result)
	default:
		o.logger.Warn("unrecognized tool call", "session", sess.ID, "tool", call.Name)
	}
}

func (o *Orchestrator) dispatchAskQuestion(sess *models.Session, call *gateway.ToolCall, result *TurnResult) {
	var q Question
	if err := json.Unmarshal(call.Input, &q); err != nil || q.Question == "" {
		o.logger.Warn("malformed ask_question input", "session", sess.ID, "error", err)
		return
	}
	o.applyPhase(sess, q.Phase)
	result.ToolName = call.Name
	result.ToolInput = call.Input
	result.Question = &q
}

func (o *Orchestrator) dispatchClientBrief(sess *models.Session, call *gateway.ToolCall, result *TurnResult) {
	var input struct {
		models.ClientBrief
		Phase models.Phase `json:"phase"`
	}
	if err := json.Unmarshal(call.Input, &input); err != nil || input.Title == "" {
		o.logger.Warn("malformed generate_client_brief input", "session", sess.ID, "error", err)
		return
	}
	o.applyPhase(sess, input.Phase)
	brief := input.ClientBrief
	sess.LatestBrief = &brief
	result.ToolName = call.Name
	result.ToolInput = call.Input
	result.ClientBrief = &brief
}

// dispatchTeamSpec handles the terminal deliverable: the session completes,
// followers are notified, and one card per chunk is materialized.
func (o *Orchestrator) dispatchTeamSpec(ctx context.Context, sess *models.Session, actor Actor, call *gateway.ToolCall, result *TurnResult) {
	var spec models.TeamSpec
	if err := json.Unmarshal(call.Input, &spec); err != nil || spec.Title == "" {
		o.logger.Warn("malformed generate_team_spec input", "session", sess.ID, "error", err)
		return
	}

	sess.TeamSpec = &spec
	sess.Status = models.SessionStatusCompleted
	sess.Phase = models.PhaseGenerate

	result.ToolName = call.Name
	result.ToolInput = call.Input
	result.TeamSpec = &spec

	o.publish(ctx, sess, notify.Event{
		Action:          models.ActionSpecCompleted,
		NotifiableType:  "session",
		NotifiableID:    sess.ID,
		ExcludedActorID: actor.ID,
		Data: map[string]any{
			"project_id": sess.ProjectID,
			"title":      spec.Title,
			"chunks":     len(spec.Chunks),
		},
	})

	if _, err := o.cards.Materialize(ctx, sess.ID, spec.Chunks); err != nil {
		o.logger.Error("materialize cards", "session", sess.ID, "error", err)
	}
}

func (o *Orchestrator) dispatchHandoff(ctx context.Context, sess *models.Session, actor Actor, call *gateway.ToolCall, result *TurnResult) {
	var input struct {
		Reason             string             `json:"reason"`
		Summary            string             `json:"summary"`
		SuggestedQuestions []string           `json:"suggested_questions"`
		TargetRole         models.HandoffRole `json:"target_role"`
		TargetUserID       string             `json:"target_user_id"`
		Phase              models.Phase       `json:"phase"`
	}
	if err := json.Unmarshal(call.Input, &input); err != nil || input.Reason == "" {
		o.logger.Warn("malformed request_handoff input", "session", sess.ID, "error", err)
		return
	}

	h, err := o.handoffs.Create(ctx, handoff.CreateInput{
		SessionID:          sess.ID,
		InitiatorID:        actor.ID,
		InitiatorName:      actor.Name,
		Reason:             input.Reason,
		Summary:            input.Summary,
		SuggestedQuestions: input.SuggestedQuestions,
		TargetRole:         input.TargetRole,
		TargetUserID:       input.TargetUserID,
	})
	if err != nil {
		o.logger.Warn("handoff not created", "session", sess.ID, "error", err)
		return
	}

	o.applyPhase(sess, input.Phase)
	result.ToolName = call.Name
	result.ToolInput = call.Input
	result.Handoff = h

	o.publish(ctx, sess, notify.Event{
		Action:          models.ActionHandoffRequested,
		NotifiableType:  "handoff",
		NotifiableID:    h.ID,
		ExcludedActorID: actor.ID,
		Data: map[string]any{
			"session_id":  sess.ID,
			"target_role": string(input.TargetRole),
		},
	})
}

// applyPhase advances the session phase when the model reported one. Phase
// ordering is model judgment; the orchestrator only validates the value.
func (o *Orchestrator) applyPhase(sess *models.Session, phase models.Phase) {
	switch phase {
	case models.PhaseExplore, models.PhaseNarrow, models.PhaseConverge, models.PhaseGenerate:
		sess.Phase = phase
	case "":
	default:
		o.logger.Warn("ignoring unknown phase from model", "session", sess.ID, "phase", phase)
	}
}
