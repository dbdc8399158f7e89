// Package mcp exposes speccy sessions as MCP tools so agent tooling can
// list interviews and drive turns over stdio.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/speccyhq/speccy/internal/channel"
	"github.com/speccyhq/speccy/internal/models"
	"github.com/speccyhq/speccy/internal/orchestrator"
	"github.com/speccyhq/speccy/internal/store"
)

// Server wraps the speccy data layer and exposes it as MCP tools.
type Server struct {
	store store.Store
	orch  *orchestrator.Orchestrator
}

// NewServer creates the MCP server wrapper.
func NewServer(s store.Store, orch *orchestrator.Orchestrator) *Server {
	return &Server{store: s, orch: orch}
}

// MCPServer returns a configured mcp-go server with all tools registered.
func (s *Server) MCPServer() *server.MCPServer {
	srv := server.NewMCPServer("speccy", "1.0.0", server.WithToolCapabilities(true))

	srv.AddTool(s.listSessionsTool())
	srv.AddTool(s.showSessionTool())
	srv.AddTool(s.sendTurnTool())

	return srv
}

// ServeStdio starts the stdio transport, blocking until ctx is cancelled.
func (s *Server) ServeStdio(ctx context.Context) error {
	srv := s.MCPServer()
	stdioServer := server.NewStdioServer(srv)
	return stdioServer.Listen(ctx, os.Stdin, os.Stdout)
}

// ---------------------------------------------------------------------------
// Tool definitions and handlers
// ---------------------------------------------------------------------------

// speccy_list_sessions
func (s *Server) listSessionsTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("speccy_list_sessions",
		mcp.WithDescription("List spec interview sessions. Returns a JSON array with id, project, version, phase, status, and turn usage."),
		mcp.WithString("project_id", mcp.Description("Filter by project id")),
		mcp.WithString("status", mcp.Description("Filter by status: active, completed, archived")),
	)
	return tool, s.handleListSessions
}

func (s *Server) handleListSessions(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	filter := store.SessionListFilter{
		ProjectID: request.GetString("project_id", ""),
		Status:    models.SessionStatus(request.GetString("status", "")),
	}
	sessions, err := s.store.ListSessions(ctx, filter)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to list sessions: %v", err)), nil
	}

	type sessionOut struct {
		ID         string `json:"id"`
		ProjectID  string `json:"project_id"`
		Version    int    `json:"version"`
		Phase      string `json:"phase"`
		Status     string `json:"status"`
		Channel    string `json:"channel"`
		TurnsUsed  int    `json:"turns_used"`
		TurnBudget int    `json:"turn_budget"`
	}

	out := make([]sessionOut, len(sessions))
	for i, sess := range sessions {
		out[i] = sessionOut{
			ID:         sess.ID,
			ProjectID:  sess.ProjectID,
			Version:    sess.Version,
			Phase:      string(sess.Phase),
			Status:     string(sess.Status),
			Channel:    string(sess.Channel),
			TurnsUsed:  sess.TurnsUsed,
			TurnBudget: sess.TurnBudget,
		}
	}

	data, err := json.Marshal(out)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal sessions: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

// speccy_show_session
func (s *Server) showSessionTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("speccy_show_session",
		mcp.WithDescription("Show one session including its message history and any cards produced."),
		mcp.WithString("session_id", mcp.Required(), mcp.Description("Session id")),
	)
	return tool, s.handleShowSession
}

func (s *Server) handleShowSession(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id := request.GetString("session_id", "")
	sess, err := s.store.GetSession(ctx, id)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to get session: %v", err)), nil
	}
	messages, err := s.store.ListMessages(ctx, id)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to list messages: %v", err)), nil
	}
	cards, err := s.store.ListCards(ctx, id)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to list cards: %v", err)), nil
	}

	out := map[string]any{
		"session":  sess,
		"messages": messages,
		"cards":    cards,
	}
	data, err := json.Marshal(out)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal session: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

// speccy_send_turn
func (s *Server) sendTurnTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("speccy_send_turn",
		mcp.WithDescription("Send a user message into a session and return the assistant's turn result."),
		mcp.WithString("session_id", mcp.Required(), mcp.Description("Session id")),
		mcp.WithString("text", mcp.Required(), mcp.Description("User message text")),
		mcp.WithString("actor_name", mcp.Description("Display name of the actor")),
		mcp.WithString("actor_role", mcp.Description("Actor role: owner, member, or client (default member)")),
	)
	return tool, s.handleSendTurn
}

func (s *Server) handleSendTurn(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sessionID := request.GetString("session_id", "")
	sess, err := s.store.GetSession(ctx, sessionID)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to get session: %v", err)), nil
	}

	role := orchestrator.ActorRole(request.GetString("actor_role", string(orchestrator.RoleMember)))
	result, err := s.orch.ProcessTurn(ctx, orchestrator.TurnInput{
		SessionID: sessionID,
		Text:      request.GetString("text", ""),
		Actor: orchestrator.Actor{
			Name: request.GetString("actor_name", ""),
			Role: role,
		},
	})
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to process turn: %v", err)), nil
	}

	payload := channel.ForChannel(sess.Channel).FormatResult(result)
	data, err := json.Marshal(payload)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal result: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}
