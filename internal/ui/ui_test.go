package ui

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"opsdesk/internal/models"
	"opsdesk/internal/orchestrator"
	"opsdesk/internal/react"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeTurns struct {
	mu     sync.Mutex
	turns  []orchestrator.Turn
	chosen []int
	undone []string
}

func (f *fakeTurns) HandleTurn(_ context.Context, t orchestrator.Turn) (orchestrator.TurnResult, error) {
	f.mu.Lock()
	f.turns = append(f.turns, t)
	f.mu.Unlock()
	return orchestrator.TurnResult{
		Session: models.ChatSession{ID: "s1"},
		Reply: models.ChatMessage{
			ID:      "m1",
			Role:    models.RoleAssistant,
			Content: "Added the task.",
			Payload: &models.MessagePayload{Undo: &models.UndoDescriptor{
				Kind:        models.UndoDeleteCreated,
				Entity:      models.EntityTask,
				EntityID:    "t1",
				Description: "create task t1",
			}},
		},
		Kind: orchestrator.KindAction,
	}, nil
}

func (f *fakeTurns) ChooseOption(_ context.Context, messageID string, index int, _ orchestrator.Sink) (orchestrator.TurnResult, error) {
	f.mu.Lock()
	f.chosen = append(f.chosen, index)
	f.mu.Unlock()
	return orchestrator.TurnResult{
		Session: models.ChatSession{ID: "s1"},
		Reply:   models.ChatMessage{ID: "m3", Role: models.RoleAssistant, Content: "Created Beta."},
	}, nil
}

func (f *fakeTurns) Undo(_ context.Context, messageID string) (models.ChatMessage, error) {
	f.mu.Lock()
	f.undone = append(f.undone, messageID)
	f.mu.Unlock()
	return models.ChatMessage{ID: "m2", Role: models.RoleAssistant, Content: "Undid: create task t1"}, nil
}

func (f *fakeTurns) Cancel(string) bool { return false }

func (f *fakeTurns) Sessions(context.Context, int, int) (int, []models.ChatSession, error) {
	return 1, []models.ChatSession{{ID: "s1", Title: "Add task", UpdatedAt: time.Now()}}, nil
}

func (f *fakeTurns) Messages(context.Context, string) ([]models.ChatMessage, error) {
	return []models.ChatMessage{
		{ID: "u1", Role: models.RoleUser, Content: "start the project"},
		{ID: "d1", Role: models.RoleAssistant, Content: "Which one?", Payload: &models.MessagePayload{
			Decision: &models.Decision{Message: "Which one?", Options: []models.DecisionOption{{Label: "Alpha"}, {Label: "Beta"}}},
		}},
	}, nil
}

func newModel(t *testing.T) (*Model, *fakeTurns) {
	t.Helper()
	f := &fakeTurns{}
	m := InitialModel(context.Background(), f, Options{Provider: "openrouter", Model: "test-model"})
	return &m, f
}

// run executes cmd and everything it batches, returning the produced
// messages other than spinner ticks.
func run(cmd tea.Cmd) []tea.Msg {
	if cmd == nil {
		return nil
	}
	msg := cmd()
	if batch, ok := msg.(tea.BatchMsg); ok {
		var out []tea.Msg
		for _, c := range batch {
			out = append(out, run(c)...)
		}
		return out
	}
	switch msg.(type) {
	case nil:
		return nil
	case TurnDoneMsg, UndoDoneMsg, SessionLoadedMsg, ClearProgressMsg:
		return []tea.Msg{msg}
	}
	return nil
}

func send(m *Model, msg tea.Msg) []tea.Msg {
	_, cmd := m.Update(msg)
	return run(cmd)
}

func TestWrappedLineCount(t *testing.T) {
	assert.Equal(t, 1, WrappedLineCount("", 10))
	assert.Equal(t, 2, WrappedLineCount("a\nb", 10))
	assert.Equal(t, 3, WrappedLineCount(strings.Repeat("x", 25), 10))
	assert.Equal(t, 1, WrappedLineCount("anything", 0))
}

func TestTruncateRunes(t *testing.T) {
	assert.Equal(t, "short", TruncateRunes("short", 10))
	assert.Equal(t, "abcd…", TruncateRunes("abcdefgh", 5))
	assert.Equal(t, "…", TruncateRunes("abc", 1))
	assert.Equal(t, "", TruncateRunes("abc", 0))
}

func TestRelativeTime(t *testing.T) {
	assert.Equal(t, "just now", relativeTime(10*time.Second))
	assert.Equal(t, "5 mins ago", relativeTime(5*time.Minute))
	assert.Equal(t, "1 hr ago", relativeTime(90*time.Minute))
	assert.Equal(t, "3 days ago", relativeTime(72*time.Hour))
	assert.Equal(t, "3 weeks ago", relativeTime(21*24*time.Hour))
}

func TestStepLine(t *testing.T) {
	action := &models.ActionRequest{Kind: models.KindCreateTask}
	assert.Equal(t, action.Describe(), StepLine(react.Iteration{Action: action, Result: &models.ActionResult{Success: true}}))
	assert.Contains(t, StepLine(react.Iteration{Action: action, Result: &models.ActionResult{}}), "(failed)")
	assert.Equal(t, "look up the team", StepLine(react.Iteration{Thought: "look up\nthe team"}))
	assert.Equal(t, "step 3", StepLine(react.Iteration{Index: 2}))
}

func TestProgressLine(t *testing.T) {
	line := ProgressLine(models.Progress{Total: 4, Current: 2, Status: models.StatusExecuting, CurrentAction: "create task"}, 8)
	assert.Contains(t, line, "████░░░░")
	assert.Contains(t, line, "2/4 executing: create task")

	line = ProgressLine(models.Progress{Total: 4, Current: 4, Status: models.StatusComplete}, 8)
	assert.Contains(t, line, "4/4 complete")
}

func TestToggleMode(t *testing.T) {
	m, _ := newModel(t)
	require.Equal(t, models.ModeAgent, m.AppMode)
	send(m, tea.KeyMsg{Type: tea.KeyCtrlA})
	assert.Equal(t, models.ModeChat, m.AppMode)
	assert.Contains(t, m.RenderBottomBar(), "CHAT")
	send(m, tea.KeyMsg{Type: tea.KeyCtrlA})
	assert.Equal(t, models.ModeAgent, m.AppMode)
}

func TestSendTurnThenUndo(t *testing.T) {
	m, f := newModel(t)
	m.AppMode = models.ModeChat
	m.TextInput.SetValue("add a task")

	msgs := send(m, tea.KeyMsg{Type: tea.KeyEnter})
	assert.True(t, m.Loading)
	require.Len(t, msgs, 1)
	require.Len(t, f.turns, 1)
	assert.Equal(t, "add a task", f.turns[0].Text)
	assert.Equal(t, models.ModeChat, f.turns[0].Mode)
	assert.Empty(t, f.turns[0].SessionID)

	send(m, msgs[0])
	assert.False(t, m.Loading)
	assert.Equal(t, "s1", m.SessionID)
	require.Len(t, m.Entries, 2)
	assert.True(t, m.Entries[1].Undoable)

	msgs = send(m, tea.KeyMsg{Type: tea.KeyCtrlZ})
	require.Len(t, msgs, 1)
	send(m, msgs[0])
	assert.Equal(t, []string{"m1"}, f.undone)
	assert.True(t, m.Entries[1].Undone)
	assert.False(t, m.Entries[1].Undoable)
	require.Len(t, m.Entries, 3)
	assert.Equal(t, "Undid: create task t1", m.Entries[2].Content)

	assert.Nil(t, send(m, tea.KeyMsg{Type: tea.KeyCtrlZ}))
}

func TestProgressClearsOnlyForLatestBatch(t *testing.T) {
	m, _ := newModel(t)
	m.Options.ProgressClearDelay = time.Millisecond

	msgs := send(m, EventMsg{Event: orchestrator.ProgressEvent{Progress: models.Progress{Total: 2, Current: 2, Status: models.StatusComplete}}})
	require.Len(t, msgs, 1)
	stale := msgs[0].(ClearProgressMsg)

	send(m, EventMsg{Event: orchestrator.ProgressEvent{Progress: models.Progress{Total: 3, Current: 1, Status: models.StatusExecuting}}})
	send(m, stale)
	require.NotNil(t, m.Progress)
	assert.Equal(t, 3, m.Progress.Total)

	msgs = send(m, EventMsg{Event: orchestrator.ProgressEvent{Progress: models.Progress{Total: 3, Current: 3, Status: models.StatusComplete}}})
	require.Len(t, msgs, 1)
	send(m, msgs[0])
	assert.Nil(t, m.Progress)
}

func TestDecisionEventOpensModal(t *testing.T) {
	m, f := newModel(t)
	send(m, EventMsg{Event: orchestrator.DecisionEvent{
		SessionID: "s1",
		MessageID: "d1",
		Decision:  models.Decision{Message: "Which one?", Options: []models.DecisionOption{{Label: "Alpha"}, {Label: "Beta"}}},
	}})
	require.True(t, m.DecisionOpen)
	assert.Contains(t, m.View(), "2. Beta")

	send(m, tea.KeyMsg{Type: tea.KeyEsc})
	assert.False(t, m.DecisionOpen)
	send(m, tea.KeyMsg{Type: tea.KeyCtrlD})
	require.True(t, m.DecisionOpen)

	msgs := send(m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'2'}})
	assert.False(t, m.DecisionOpen)
	assert.Empty(t, m.DecisionMsgID)
	require.Len(t, msgs, 1)
	assert.Equal(t, []int{1}, f.chosen)
	assert.Equal(t, "Chose: Beta", m.Entries[len(m.Entries)-1].Content)

	send(m, msgs[0])
	assert.Equal(t, "Created Beta.", m.Entries[len(m.Entries)-1].Content)

	send(m, tea.KeyMsg{Type: tea.KeyCtrlD})
	assert.False(t, m.DecisionOpen)
}

func TestNewSessionDropsStaleTurn(t *testing.T) {
	m, _ := newModel(t)
	m.TextInput.SetValue("add a task")
	msgs := send(m, tea.KeyMsg{Type: tea.KeyEnter})
	require.Len(t, msgs, 1)

	send(m, tea.KeyMsg{Type: tea.KeyCtrlN})
	assert.False(t, m.Loading)
	send(m, msgs[0])
	assert.Empty(t, m.Entries)
	assert.Empty(t, m.SessionID)
}

func TestLoadSessionRestoresPendingDecision(t *testing.T) {
	m, _ := newModel(t)
	send(m, tea.KeyMsg{Type: tea.KeyCtrlH})
	require.True(t, m.SessionsOpen)
	assert.Contains(t, m.View(), "Add task")

	msgs := send(m, tea.KeyMsg{Type: tea.KeyEnter})
	require.Len(t, msgs, 1)
	send(m, msgs[0])
	assert.False(t, m.SessionsOpen)
	assert.Equal(t, "s1", m.SessionID)
	assert.Len(t, m.Entries, 2)
	assert.Equal(t, "d1", m.DecisionMsgID)
	assert.Contains(t, m.RenderBottomBar(), "choice pending")
}
