package ui

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"opsdesk/internal/models"
	"opsdesk/internal/orchestrator"
	"opsdesk/internal/styles"
	"opsdesk/internal/undo"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
)

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var (
		tiCmd tea.Cmd
		vpCmd tea.Cmd
		spCmd tea.Cmd
	)

	switch msg := msg.(type) {
	case spinner.TickMsg:
		m.Spinner, spCmd = m.Spinner.Update(msg)
		if m.Loading {
			m.UpdateViewport()
		}
		return m, spCmd

	case tea.KeyMsg:
		if m.SessionsOpen {
			return m.updateSessions(msg)
		}
		if m.DecisionOpen {
			return m.updateDecision(msg)
		}
		if m.ShortcutsOpen {
			switch msg.String() {
			case "ctrl+c":
				return m, tea.Quit
			case "esc", "enter", "?", "ctrl+s":
				m.ShortcutsOpen = false
			}
			return m, nil
		}

		if isNewlineShortcut(msg) {
			m.TextInput.InsertString("\n")
			m.updateInputLayout()
			return m, nil
		}

		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			return m, tea.Quit

		case tea.KeyCtrlN:
			m.ResetSession()
			return m, nil

		case tea.KeyCtrlA:
			if m.AppMode == models.ModeChat {
				m.AppMode = models.ModeAgent
			} else {
				m.AppMode = models.ModeChat
			}
			return m, nil

		case tea.KeyCtrlS:
			m.ShortcutsOpen = true
			m.SessionsOpen = false
			return m, nil

		case tea.KeyCtrlH:
			m.ShortcutsOpen = false
			m.SessionsOpen = true
			m.SessionPage = 0
			m.RefreshSessions()
			return m, nil

		case tea.KeyCtrlD:
			if m.DecisionMsgID != "" && !m.Decision.Resolved {
				m.DecisionOpen = true
			}
			return m, nil

		case tea.KeyCtrlX:
			if m.SessionID != "" && m.Orch.Cancel(m.SessionID) {
				m.Steps = append(m.Steps, "cancel requested")
				m.UpdateViewport()
			}
			return m, nil

		case tea.KeyCtrlZ:
			return m, m.undoLast()

		case tea.KeyEnter:
			input := strings.TrimSpace(m.TextInput.Value())
			if input == "" {
				return m, nil
			}
			// A running first turn has no session yet, so a second send
			// could not supersede it.
			if m.Loading && m.SessionID == "" {
				return m, nil
			}
			if input == "/clear" || input == "/new" {
				m.ResetSession()
				return m, nil
			}

			m.appendEntry(Entry{Role: models.RoleUser, Content: input})
			m.TextInput.Reset()
			m.updateInputLayout()
			m.startTurn()
			m.UpdateViewport()
			return m, tea.Batch(m.SendTurn(input), m.Spinner.Tick)
		}

	case EventMsg:
		if msg.Epoch != m.Epoch {
			return m, nil
		}
		return m, m.handleEvent(msg.Event)

	case ClearProgressMsg:
		if msg.Seq == m.ProgressSeq {
			m.Progress = nil
		}
		return m, nil

	case TurnDoneMsg:
		if msg.Epoch != m.Epoch {
			return m, nil
		}
		m.finishTurn()
		if msg.Err != nil {
			m.appendError(msg.Err)
			m.UpdateViewport()
			return m, nil
		}
		res := msg.Result
		if m.SessionID == "" {
			m.SessionID = res.Session.ID
		}
		if res.Reply.ID != "" {
			e := EntryFromMessage(res.Reply)
			e.Failed = res.Failed
			m.appendEntry(e)
		}
		if res.Navigate != "" {
			m.Navigate = res.Navigate
		}
		m.UpdateViewport()
		return m, nil

	case UndoDoneMsg:
		if msg.Err != nil {
			m.appendError(undoError(msg.Err))
			m.UpdateViewport()
			return m, nil
		}
		for i := range m.Entries {
			if m.Entries[i].MessageID == msg.TargetID {
				m.Entries[i].Undone = true
				m.Entries[i].Undoable = false
				m.Entries[i].rendered = ""
			}
		}
		if msg.Message.ID != "" {
			m.appendEntry(EntryFromMessage(msg.Message))
		}
		m.UpdateViewport()
		return m, nil

	case SessionLoadedMsg:
		if msg.Err != nil {
			m.SessionErr = msg.Err
			return m, nil
		}
		m.Epoch++
		m.SessionsOpen = false
		m.SessionErr = nil
		m.SessionID = msg.SessionID
		m.clearTurnState()
		m.Entries = nil
		for _, cm := range msg.Messages {
			m.Entries = append(m.Entries, EntryFromMessage(cm))
			if p := cm.Payload; p != nil && p.Decision != nil && !p.Decision.Resolved {
				m.Decision = *p.Decision
				m.DecisionMsgID = cm.ID
			}
		}
		m.UpdateViewport()
		return m, nil

	case ErrMsg:
		m.Err = msg
		m.appendError(msg)
		m.UpdateViewport()
		return m, nil

	case tea.WindowSizeMsg:
		m.WindowWidth = msg.Width
		m.WindowHeight = msg.Height

		ModalWidth = msg.Width - 10
		if ModalWidth > 60 {
			ModalWidth = 60
		}
		if ModalWidth < 30 {
			ModalWidth = 30
		}
		styles.ContentWidth = ModalWidth - 6

		chatWidth := msg.Width - 2
		m.Viewport.Width = chatWidth - 2

		m.updateInputLayout()
		glamourStyle := "dark"
		if !lipgloss.HasDarkBackground() {
			glamourStyle = "light"
		}
		m.Renderer, _ = glamour.NewTermRenderer(
			glamour.WithStylePath(glamourStyle),
			glamour.WithWordWrap(chatWidth-6),
		)
		for i := range m.Entries {
			m.Entries[i].rendered = ""
		}
		m.UpdateViewport()
		return m, nil
	}

	m.TextInput, tiCmd = m.TextInput.Update(msg)
	m.updateInputLayout()

	// Terminal background queries sometimes leak into the input.
	val := m.TextInput.Value()
	if strings.Contains(val, "]11;rgb:") || strings.Contains(val, "1;rgb:") || strings.Contains(val, "[1;1R") {
		m.TextInput.Reset()
	}

	m.Viewport, vpCmd = m.Viewport.Update(msg)

	return m, tea.Batch(tiCmd, vpCmd)
}

func (m *Model) updateSessions(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c":
		return m, tea.Quit
	case "esc", "ctrl+h":
		m.SessionsOpen = false
		m.SessionErr = nil
	case "up", "k":
		if len(m.Sessions) == 0 {
			return m, nil
		}
		m.SessionIdx--
		if m.SessionIdx < 0 {
			m.SessionIdx = len(m.Sessions) - 1
		}
	case "down", "j":
		if len(m.Sessions) == 0 {
			return m, nil
		}
		m.SessionIdx++
		if m.SessionIdx >= len(m.Sessions) {
			m.SessionIdx = 0
		}
	case "enter":
		if len(m.Sessions) == 0 {
			return m, nil
		}
		return m, m.LoadSession(m.Sessions[m.SessionIdx].ID)
	case "left", "h":
		if m.SessionPage > 0 {
			m.SessionPage--
			m.RefreshSessions()
		}
	case "right", "l":
		if m.SessionPage < m.sessionPages()-1 {
			m.SessionPage++
			m.RefreshSessions()
		}
	}
	return m, nil
}

func (m *Model) updateDecision(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	n := len(m.Decision.Options)
	key := msg.String()
	switch key {
	case "ctrl+c":
		return m, tea.Quit
	case "esc":
		m.DecisionOpen = false
	case "up", "k":
		if n > 0 {
			m.DecisionIdx = (m.DecisionIdx - 1 + n) % n
		}
	case "down", "j":
		if n > 0 {
			m.DecisionIdx = (m.DecisionIdx + 1) % n
		}
	case "enter":
		return m, m.Choose(m.DecisionIdx)
	default:
		if len(key) == 1 && key[0] >= '1' && key[0] <= '9' {
			if i := int(key[0] - '1'); i < n {
				return m, m.Choose(i)
			}
		}
	}
	return m, nil
}

func (m *Model) handleEvent(e orchestrator.Event) tea.Cmd {
	var cmd tea.Cmd
	switch e := e.(type) {
	case orchestrator.ProgressEvent:
		p := e.Progress
		m.Progress = &p
		m.ProgressSeq++
		if p.Status == models.StatusComplete {
			seq, delay := m.ProgressSeq, m.Options.ProgressClearDelay
			cmd = tea.Tick(delay, func(time.Time) tea.Msg {
				return ClearProgressMsg{Seq: seq}
			})
		}
	case orchestrator.StepEvent:
		m.Steps = append(m.Steps, StepLine(e.Iteration))
	case orchestrator.NavigateEvent:
		m.Navigate = e.Path
	case orchestrator.DecisionEvent:
		if m.SessionID == "" {
			m.SessionID = e.SessionID
		}
		m.Decision = e.Decision
		m.DecisionMsgID = e.MessageID
		m.DecisionIdx = 0
		m.DecisionOpen = true
	}
	m.UpdateViewport()
	return cmd
}

// Choose resolves the pending decision with the option at index.
func (m *Model) Choose(index int) tea.Cmd {
	if m.DecisionMsgID == "" || index < 0 || index >= len(m.Decision.Options) {
		return nil
	}
	msgID := m.DecisionMsgID
	label := m.Decision.Options[index].Label

	m.DecisionOpen = false
	m.DecisionMsgID = ""
	m.Decision.Resolved = true
	m.appendEntry(Entry{Role: models.RoleUser, Content: "Chose: " + label})
	m.startTurn()
	m.UpdateViewport()

	orch, ctx, sink, epoch := m.Orch, m.Ctx, m.sink(), m.Epoch
	return tea.Batch(func() tea.Msg {
		res, err := orch.ChooseOption(ctx, msgID, index, sink)
		return TurnDoneMsg{Result: res, Err: err, Epoch: epoch}
	}, m.Spinner.Tick)
}

func (m *Model) SendTurn(input string) tea.Cmd {
	orch, ctx, epoch := m.Orch, m.Ctx, m.Epoch
	turn := orchestrator.Turn{
		SessionID: m.SessionID,
		Text:      input,
		Mode:      m.AppMode,
		Sink:      m.sink(),
	}
	return func() tea.Msg {
		res, err := orch.HandleTurn(ctx, turn)
		return TurnDoneMsg{Result: res, Err: err, Epoch: epoch}
	}
}

func (m *Model) undoLast() tea.Cmd {
	for i := len(m.Entries) - 1; i >= 0; i-- {
		e := m.Entries[i]
		if !e.Undoable || e.Undone {
			continue
		}
		orch, ctx, id := m.Orch, m.Ctx, e.MessageID
		return func() tea.Msg {
			msg, err := orch.Undo(ctx, id)
			return UndoDoneMsg{TargetID: id, Message: msg, Err: err}
		}
	}
	return nil
}

func undoError(err error) error {
	switch {
	case errors.Is(err, undo.ErrAlreadyUndone):
		return errors.New("that change was already undone")
	case errors.Is(err, undo.ErrNotUndoable):
		return errors.New("nothing to undo for that message")
	}
	return err
}

func (m *Model) LoadSession(id string) tea.Cmd {
	orch, ctx := m.Orch, m.Ctx
	return func() tea.Msg {
		msgs, err := orch.Messages(ctx, id)
		return SessionLoadedMsg{SessionID: id, Messages: msgs, Err: err}
	}
}

func (m *Model) RefreshSessions() {
	m.SessionErr = nil
	m.Sessions = nil
	m.SessionIdx = 0

	count, sessions, err := m.Orch.Sessions(m.Ctx, SessionPageSize, m.SessionPage*SessionPageSize)
	if err != nil {
		m.SessionErr = err
		return
	}
	m.SessionCount = count
	m.Sessions = sessions
}

func (m *Model) sessionPages() int {
	pages := (m.SessionCount + SessionPageSize - 1) / SessionPageSize
	if pages < 1 {
		pages = 1
	}
	return pages
}

func (m *Model) startTurn() {
	m.Inflight++
	m.Loading = true
	m.Steps = nil
	m.Navigate = ""
}

func (m *Model) finishTurn() {
	if m.Inflight > 0 {
		m.Inflight--
	}
	if m.Inflight == 0 {
		m.Loading = false
		m.Steps = nil
	}
}

func (m *Model) clearTurnState() {
	m.Inflight = 0
	m.Loading = false
	m.Steps = nil
	m.Progress = nil
	m.ProgressSeq++
	m.Navigate = ""
	m.Decision = models.Decision{}
	m.DecisionMsgID = ""
	m.DecisionOpen = false
}

func (m *Model) appendEntry(e Entry) {
	m.Entries = append(m.Entries, e)
}

func (m *Model) appendError(err error) {
	m.appendEntry(Entry{Role: models.RoleSystem, Content: fmt.Sprintf("Error: %v", err), Failed: true})
}

func isNewlineShortcut(msg tea.KeyMsg) bool {
	switch msg.String() {
	case "shift+enter", "shift+return", "ctrl+j", "ctrl+enter", "alt+enter":
		return true
	default:
		return false
	}
}

func (m *Model) updateInputLayout() {
	if m.WindowWidth == 0 || m.WindowHeight == 0 {
		return
	}

	inputWidth := m.WindowWidth - 6
	if inputWidth < 20 {
		inputWidth = 20
	}
	contentWidth := inputWidth - 2
	if contentWidth < 1 {
		contentWidth = 1
	}

	maxInputHeight := 6
	lineCount := WrappedLineCount(m.TextInput.Value(), contentWidth)
	if lineCount < 1 {
		lineCount = 1
	}
	if lineCount > maxInputHeight {
		lineCount = maxInputHeight
	}

	m.TextInput.MaxHeight = maxInputHeight
	m.TextInput.SetWidth(inputWidth)
	m.TextInput.SetHeight(lineCount)

	inputBoxHeight := m.TextInput.Height() + 2
	// title, spacers, progress line and bottom bar
	reserved := inputBoxHeight + 6
	viewportHeight := m.WindowHeight - reserved
	if viewportHeight < 5 {
		viewportHeight = 5
	}
	m.Viewport.Height = viewportHeight
}

// ResetSession starts a fresh session view. Turns still running for the
// previous session keep going and stay persisted.
func (m *Model) ResetSession() {
	m.Epoch++
	m.Entries = nil
	m.SessionID = ""
	m.clearTurnState()
	m.SessionsOpen = false
	m.SessionErr = nil
	m.Viewport.SetContent(GetWelcomeScreen(m.Viewport.Width, m.Viewport.Height))
	m.Viewport.GotoTop()
	m.TextInput.Reset()
	m.updateInputLayout()
}
