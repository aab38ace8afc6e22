package ui

import (
	"context"
	"time"

	"opsdesk/internal/models"
	"opsdesk/internal/orchestrator"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"
)

const (
	SessionPageSize = 10

	DefaultProgressClearDelay = 1500 * time.Millisecond
)

var ModalWidth = 60

// Turns is the part of the orchestrator the UI drives.
type Turns interface {
	HandleTurn(ctx context.Context, t orchestrator.Turn) (orchestrator.TurnResult, error)
	ChooseOption(ctx context.Context, messageID string, index int, sink orchestrator.Sink) (orchestrator.TurnResult, error)
	Undo(ctx context.Context, messageID string) (models.ChatMessage, error)
	Cancel(sessionID string) bool
	Sessions(ctx context.Context, limit, offset int) (int, []models.ChatSession, error)
	Messages(ctx context.Context, sessionID string) ([]models.ChatMessage, error)
}

type ErrMsg error

// EventMsg forwards an orchestrator event into the update loop.
// Epoch ties messages to the session view that started the turn; anything
// from an older epoch is dropped after the user switches sessions.
type EventMsg struct {
	Event orchestrator.Event
	Epoch int
}

type TurnDoneMsg struct {
	Result orchestrator.TurnResult
	Err    error
	Epoch  int
}

type UndoDoneMsg struct {
	TargetID string
	Message  models.ChatMessage
	Err      error
}

// ClearProgressMsg drops the progress line unless a newer batch started.
type ClearProgressMsg struct {
	Seq int
}

type SessionLoadedMsg struct {
	SessionID string
	Messages  []models.ChatMessage
	Err       error
}

// Entry is one rendered timeline item.
type Entry struct {
	MessageID string
	Role      string
	Content   string
	Failed    bool
	Undoable  bool
	Undone    bool

	rendered string
}

type Options struct {
	Provider           string
	Model              string
	ProgressClearDelay time.Duration
}

type Model struct {
	Viewport  viewport.Model
	TextInput textarea.Model
	Spinner   spinner.Model
	Renderer  *glamour.TermRenderer
	Program   *tea.Program

	Orch    Turns
	Ctx     context.Context
	Options Options

	Entries   []Entry
	SessionID string
	AppMode   models.AppMode
	Loading   bool
	Inflight  int
	Epoch     int
	Err       error

	// Current turn state.
	Steps       []string
	Progress    *models.Progress
	ProgressSeq int
	Navigate    string

	WindowWidth  int
	WindowHeight int

	SessionsOpen  bool
	SessionIdx    int
	SessionCount  int
	Sessions      []models.ChatSession
	SessionErr    error
	SessionPage   int
	ShortcutsOpen bool

	DecisionOpen  bool
	Decision      models.Decision
	DecisionMsgID string
	DecisionIdx   int
}
