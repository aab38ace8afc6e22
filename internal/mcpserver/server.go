// Package mcpserver exposes the orchestrator as MCP tools over stdio so
// other assistants can drive turns, pick decision options and undo.
package mcpserver

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"opsdesk/internal/models"
	"opsdesk/internal/orchestrator"
	"opsdesk/internal/tools"
	"opsdesk/internal/undo"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"
)

const defaultSessionPage = 20

type Server struct {
	orch   *orchestrator.Orchestrator
	logger *zap.Logger
}

func New(orch *orchestrator.Orchestrator, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{orch: orch, logger: logger.Named("mcp")}
}

// MCP builds the tool server.
func (s *Server) MCP(version string) *server.MCPServer {
	m := server.NewMCPServer("opsdesk", version)

	m.AddTool(mcp.NewTool("send_utterance",
		mcp.WithDescription("Send one natural-language request to the operations assistant. Agent mode may create, change or delete tasks and projects."),
		mcp.WithString("text", mcp.Required(), mcp.Description("What the user said")),
		mcp.WithString("session_id", mcp.Description("Continue this session; omit to start a new one")),
		mcp.WithString("mode", mcp.Description("agent (default) or chat"), mcp.Enum("agent", "chat")),
	), s.sendUtterance)

	m.AddTool(mcp.NewTool("choose_option",
		mcp.WithDescription("Pick one option of a pending decision. Each decision runs at most once."),
		mcp.WithString("message_id", mcp.Required(), mcp.Description("Id of the assistant message that offered the options")),
		mcp.WithNumber("option", mcp.Required(), mcp.Description("1-based option number")),
	), s.chooseOption)

	m.AddTool(mcp.NewTool("undo_message",
		mcp.WithDescription("Reverse the changes reported by an assistant message."),
		mcp.WithString("message_id", mcp.Required(), mcp.Description("Id of the assistant message")),
	), s.undoMessage)

	m.AddTool(mcp.NewTool("list_sessions",
		mcp.WithDescription("List conversation sessions, most recently active first."),
		mcp.WithNumber("limit", mcp.Description("Page size, default 20")),
		mcp.WithNumber("offset", mcp.Description("Sessions to skip")),
	), s.listSessions)

	m.AddTool(mcp.NewTool("session_messages",
		mcp.WithDescription("Return the message timeline of one session."),
		mcp.WithString("session_id", mcp.Required()),
	), s.sessionMessages)

	return m
}

// Serve blocks serving the tools on stdin/stdout.
func (s *Server) Serve() error {
	return server.ServeStdio(s.MCP(tools.Version))
}

func arguments(req mcp.CallToolRequest) map[string]any {
	args, _ := req.Params.Arguments.(map[string]any)
	if args == nil {
		return map[string]any{}
	}
	return args
}

func stringArg(args map[string]any, key string) string {
	v, _ := args[key].(string)
	return strings.TrimSpace(v)
}

func intArg(args map[string]any, key string, fallback int) int {
	switch v := args[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	}
	return fallback
}

func (s *Server) sendUtterance(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := arguments(req)
	text := stringArg(args, "text")
	if text == "" {
		return mcp.NewToolResultError("text cannot be empty"), nil
	}
	mode := models.ModeAgent
	if stringArg(args, "mode") == "chat" {
		mode = models.ModeChat
	}

	res, err := s.orch.HandleTurn(ctx, orchestrator.Turn{
		SessionID: stringArg(args, "session_id"),
		Text:      text,
		Mode:      mode,
	})
	if err != nil {
		s.logger.Error("turn failed", zap.Error(err))
		return mcp.NewToolResultError(fmt.Sprintf("Turn failed: %v", err)), nil
	}
	return s.turnResult(res), nil
}

func (s *Server) chooseOption(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := arguments(req)
	id := stringArg(args, "message_id")
	if id == "" {
		return mcp.NewToolResultError("message_id is required"), nil
	}
	option := intArg(args, "option", 0)
	if option < 1 {
		return mcp.NewToolResultError("option must be a positive number"), nil
	}

	res, err := s.orch.ChooseOption(ctx, id, option-1, nil)
	switch {
	case errors.Is(err, orchestrator.ErrDecisionResolved):
		return mcp.NewToolResultError("That decision was already made."), nil
	case err != nil:
		return mcp.NewToolResultError(fmt.Sprintf("Could not choose option: %v", err)), nil
	}
	return s.turnResult(res), nil
}

func (s *Server) undoMessage(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id := stringArg(arguments(req), "message_id")
	if id == "" {
		return mcp.NewToolResultError("message_id is required"), nil
	}
	msg, err := s.orch.Undo(ctx, id)
	switch {
	case errors.Is(err, undo.ErrAlreadyUndone):
		return mcp.NewToolResultError("That message was already undone."), nil
	case errors.Is(err, undo.ErrNotUndoable):
		return mcp.NewToolResultError("That message has nothing to undo."), nil
	case err != nil:
		return mcp.NewToolResultError(fmt.Sprintf("Undo failed: %v", err)), nil
	}
	return mcp.NewToolResultText(msg.Content), nil
}

func (s *Server) listSessions(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := arguments(req)
	limit := intArg(args, "limit", defaultSessionPage)
	if limit <= 0 {
		limit = defaultSessionPage
	}
	total, sessions, err := s.orch.Sessions(ctx, limit, intArg(args, "offset", 0))
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Could not list sessions: %v", err)), nil
	}
	if total == 0 {
		return mcp.NewToolResultText("No sessions yet."), nil
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "%d sessions:\n", total)
	for _, sess := range sessions {
		fmt.Fprintf(&sb, "- %s  %s  (%s)\n", sess.ID, sess.Title, sess.UpdatedAt.Format("2006-01-02 15:04"))
	}
	return mcp.NewToolResultText(sb.String()), nil
}

func (s *Server) sessionMessages(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id := stringArg(arguments(req), "session_id")
	if id == "" {
		return mcp.NewToolResultError("session_id is required"), nil
	}
	msgs, err := s.orch.Messages(ctx, id)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Could not load session: %v", err)), nil
	}
	var sb strings.Builder
	for _, m := range msgs {
		fmt.Fprintf(&sb, "[%s] %s", m.ID, m.Role)
		if m.IsUndone {
			sb.WriteString(" (undone)")
		}
		sb.WriteString(": " + m.Content + "\n")
	}
	return mcp.NewToolResultText(sb.String()), nil
}

// turnResult renders the reply followed by the ids a caller needs for
// follow-up tools.
func (s *Server) turnResult(res orchestrator.TurnResult) *mcp.CallToolResult {
	var sb strings.Builder
	sb.WriteString(res.Reply.Content)
	sb.WriteString("\n\n")
	fmt.Fprintf(&sb, "session_id: %s\nmessage_id: %s", res.Session.ID, res.Reply.ID)
	if res.Reply.Undoable() {
		sb.WriteString("\nundoable: yes")
	}
	if res.Kind == orchestrator.KindDecision {
		sb.WriteString("\nawaiting choice: call choose_option with this message_id")
	}
	if res.Navigate != "" {
		sb.WriteString("\nnavigate: " + res.Navigate)
	}

	out := mcp.NewToolResultText(sb.String())
	out.IsError = res.Failed
	return out
}
