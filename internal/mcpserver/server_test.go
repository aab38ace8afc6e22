package mcpserver

import (
	"context"
	"strings"
	"testing"

	"opsdesk/internal/assembler"
	"opsdesk/internal/executor"
	"opsdesk/internal/models"
	"opsdesk/internal/orchestrator"
	"opsdesk/internal/testutil"
	"opsdesk/internal/tools"
	"opsdesk/internal/undo"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func newServer(t *testing.T, steps ...testutil.Step) *Server {
	t.Helper()
	store := testutil.NewStore(t)
	logger := zaptest.NewLogger(t)
	contract := tools.Default()
	orch := orchestrator.New(
		&testutil.ScriptedEngine{Steps: steps},
		store,
		assembler.New(store, nil, assembler.Config{}, logger),
		executor.New(store, contract, logger),
		undo.New(store, store, logger),
		contract,
		orchestrator.Config{},
		logger,
	)
	return New(orch, logger)
}

func call(t *testing.T, handler func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error), args map[string]any) (string, bool) {
	t.Helper()
	req := mcp.CallToolRequest{}
	req.Params.Arguments = args
	res, err := handler(context.Background(), req)
	require.NoError(t, err)
	require.NotEmpty(t, res.Content)
	return res.Content[0].(mcp.TextContent).Text, res.IsError
}

func field(text, key string) string {
	for _, line := range strings.Split(text, "\n") {
		if v, ok := strings.CutPrefix(line, key+": "); ok {
			return v
		}
	}
	return ""
}

func TestSendUtteranceThenUndo(t *testing.T) {
	s := newServer(t, testutil.Step{Response: testutil.Call(tools.PerformAction,
		testutil.ActionArgs(models.KindCreateTask, map[string]any{"title": "Ship order"}, "Added it."))})

	text, isErr := call(t, s.sendUtterance, map[string]any{"text": "add ship order"})
	assert.False(t, isErr)
	assert.True(t, strings.HasPrefix(text, "Added it."))
	assert.Equal(t, "yes", field(text, "undoable"))

	msgID := field(text, "message_id")
	require.NotEmpty(t, msgID)

	text, isErr = call(t, s.undoMessage, map[string]any{"message_id": msgID})
	assert.False(t, isErr)
	assert.True(t, strings.HasPrefix(text, "Undid: "))

	text, isErr = call(t, s.undoMessage, map[string]any{"message_id": msgID})
	assert.True(t, isErr)
	assert.Equal(t, "That message was already undone.", text)
}

func TestChooseOption(t *testing.T) {
	s := newServer(t, testutil.Step{Response: testutil.Call(tools.OfferChoices, map[string]any{
		"message": "Which one?",
		"options": []any{
			map[string]any{"label": "Alpha", "action": "CREATE_PROJECT", "payload": map[string]any{"name": "Alpha"}},
			map[string]any{"label": "Beta", "action": "CREATE_PROJECT", "payload": map[string]any{"name": "Beta"}},
		},
	})})

	text, _ := call(t, s.sendUtterance, map[string]any{"text": "start the project"})
	assert.Contains(t, text, "awaiting choice")
	msgID := field(text, "message_id")

	_, isErr := call(t, s.chooseOption, map[string]any{"message_id": msgID, "option": float64(0)})
	assert.True(t, isErr)

	text, isErr = call(t, s.chooseOption, map[string]any{"message_id": msgID, "option": float64(2)})
	assert.False(t, isErr)
	assert.Contains(t, text, "Beta")

	text, isErr = call(t, s.chooseOption, map[string]any{"message_id": msgID, "option": float64(1)})
	assert.True(t, isErr)
	assert.Equal(t, "That decision was already made.", text)
}

func TestListSessionsAndMessages(t *testing.T) {
	s := newServer(t, testutil.Step{Response: testutil.Text("Hello there.")})

	text, _ := call(t, s.listSessions, nil)
	assert.Equal(t, "No sessions yet.", text)

	reply, _ := call(t, s.sendUtterance, map[string]any{"text": "hi", "mode": "chat"})
	sessionID := field(reply, "session_id")

	text, _ = call(t, s.listSessions, map[string]any{"limit": float64(5)})
	assert.Contains(t, text, sessionID)

	text, isErr := call(t, s.sessionMessages, map[string]any{"session_id": sessionID})
	assert.False(t, isErr)
	assert.Contains(t, text, "user: hi")
	assert.Contains(t, text, "assistant: Hello there.")
}

func TestValidation(t *testing.T) {
	s := newServer(t)
	_, isErr := call(t, s.sendUtterance, map[string]any{"text": "  "})
	assert.True(t, isErr)
	_, isErr = call(t, s.undoMessage, map[string]any{})
	assert.True(t, isErr)
	_, isErr = call(t, s.sessionMessages, map[string]any{})
	assert.True(t, isErr)
}
