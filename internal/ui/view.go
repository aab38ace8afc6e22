package ui

import (
	"fmt"
	"strings"

	"opsdesk/internal/models"
	"opsdesk/internal/styles"

	"github.com/charmbracelet/lipgloss"
)

func (m *Model) RenderSessionSelector() string {
	title := styles.ModalTitleStyle.Render(fmt.Sprintf("Sessions (%d) - Page %d/%d", m.SessionCount, m.SessionPage+1, m.sessionPages()))

	var body string
	if m.SessionErr != nil {
		body = lipgloss.NewStyle().Width(styles.ContentWidth).Render(styles.ErrorStyle.Render(fmt.Sprintf("Error: %v", m.SessionErr)))
	} else if len(m.Sessions) == 0 {
		body = styles.ModalItemStyle.Render(lipgloss.NewStyle().Foreground(styles.HintColor).Render("No sessions yet"))
	} else {
		items := make([]string, 0, len(m.Sessions))
		for i, s := range m.Sessions {
			isSelected := i == m.SessionIdx
			cursor := "  "
			if isSelected {
				cursor = "> "
			}
			timeStr := RelativeTime(s.UpdatedAt)
			name := PromptPreview(s.Title)
			if name == "" {
				name = "(untitled)"
			}
			if s.ID == m.SessionID {
				name = "● " + name
			}
			availableWidth := styles.ContentWidth - 2 - len(cursor) - 1 - len(timeStr)
			name = TruncateRunes(name, availableWidth)

			item := fmt.Sprintf("%s%s %s", cursor, name, lipgloss.NewStyle().Foreground(styles.HintColor).Render(timeStr))
			if isSelected {
				items = append(items, styles.ModalSelectedStyle.Render(item))
			} else {
				items = append(items, styles.ModalItemStyle.Render(item))
			}
		}
		body = lipgloss.JoinVertical(lipgloss.Left, items...)
	}

	content := lipgloss.JoinVertical(lipgloss.Left, title, body)
	hint := lipgloss.NewStyle().
		Foreground(styles.HintColor).
		Width(styles.ContentWidth).
		PaddingTop(1).
		Render("↑/↓: navigate • ←/→: page • Enter: open • Esc: close")

	return lipgloss.JoinVertical(lipgloss.Left, content, hint)
}

func (m *Model) RenderDecisionModal() string {
	msg := m.Decision.Message
	if msg == "" {
		msg = "Choose an option"
	}
	title := styles.ModalTitleStyle.Render(msg)

	items := make([]string, 0, len(m.Decision.Options))
	for i, opt := range m.Decision.Options {
		line := TruncateRunes(fmt.Sprintf("%d. %s", i+1, opt.Label), styles.ContentWidth-2)
		if i == m.DecisionIdx {
			items = append(items, styles.ModalSelectedStyle.Render(line))
		} else {
			items = append(items, styles.ModalItemStyle.Render(line))
		}
	}

	content := lipgloss.JoinVertical(lipgloss.Left, title, lipgloss.JoinVertical(lipgloss.Left, items...))
	hint := lipgloss.NewStyle().
		Foreground(styles.HintColor).
		Width(styles.ContentWidth).
		PaddingTop(1).
		Render("↑/↓ or 1-9: pick • Enter: confirm • Esc: later (^D)")

	return lipgloss.JoinVertical(lipgloss.Left, content, hint)
}

func (m *Model) RenderShortcutsModal() string {
	title := styles.ModalTitleStyle.Render("Keyboard Shortcuts")

	shortcuts := []struct {
		key  string
		desc string
	}{
		{"Ctrl+C", "Quit Application"},
		{"Ctrl+N", "New Session"},
		{"Ctrl+A", "Toggle Agent/Chat Mode"},
		{"Ctrl+Z", "Undo Last Change"},
		{"Ctrl+X", "Cancel Running Turn"},
		{"Ctrl+D", "Reopen Pending Decision"},
		{"Ctrl+H", "View Sessions"},
		{"Ctrl+S", "View Shortcuts (this menu)"},
	}

	var items []string
	keyStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("#FFCC80")).
		Bold(true).
		Width(12)

	descStyle := lipgloss.NewStyle().
		Foreground(styles.FgText)

	for _, s := range shortcuts {
		line := fmt.Sprintf("%s %s", keyStyle.Render(s.key), descStyle.Render(s.desc))
		items = append(items, styles.ModalItemStyle.Render(line))
	}

	content := lipgloss.JoinVertical(lipgloss.Left, title, lipgloss.JoinVertical(lipgloss.Left, items...))

	hint := lipgloss.NewStyle().
		Foreground(styles.HintColor).
		Width(styles.ContentWidth).
		PaddingTop(1).
		Render("Esc/Enter: close")

	return lipgloss.JoinVertical(lipgloss.Left, content, hint)
}

func (m *Model) RenderBottomBar() string {
	agent := m.AppMode == models.ModeAgent
	mode := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("#FFFFFF")).
		Background(styles.ModeColor(agent)).
		Padding(0, 1).
		Render(strings.ToUpper(m.AppMode.String()))

	modelName := m.Options.Model
	if m.Options.Provider != "" {
		modelName = m.Options.Provider + "/" + modelName
	}
	model := lipgloss.NewStyle().
		Foreground(lipgloss.Color("#B39DDB")).
		Render(TruncateRunes(modelName, 40))

	leftParts := []string{mode, "  ", model}
	if m.Navigate != "" {
		nav := lipgloss.NewStyle().
			Foreground(styles.FgSecondary).
			Render("→ " + TruncateRunes(m.Navigate, 30))
		leftParts = append(leftParts, "  ", nav)
	}
	leftSide := lipgloss.JoinHorizontal(lipgloss.Center, leftParts...)

	session := "new session"
	if m.SessionID != "" {
		session = "session " + TruncateRunes(m.SessionID, 9)
	}
	sess := lipgloss.NewStyle().
		Foreground(lipgloss.Color("#666666")).
		Render(session)

	var rightParts []string
	if m.DecisionMsgID != "" && !m.DecisionOpen {
		rightParts = append(rightParts, lipgloss.NewStyle().Foreground(styles.FgWarning).Render("choice pending ^D"), "  ")
	}
	help := lipgloss.NewStyle().
		Foreground(lipgloss.Color("#555555")).
		Render("Help: ^S")
	rightParts = append(rightParts, sess, "  ", help)
	rightSide := lipgloss.JoinHorizontal(lipgloss.Center, rightParts...)

	availableWidth := m.WindowWidth - lipgloss.Width(leftSide) - lipgloss.Width(rightSide) - 2
	if availableWidth < 0 {
		availableWidth = 0
	}
	spacer := strings.Repeat(" ", availableWidth)

	bar := lipgloss.JoinHorizontal(lipgloss.Center, leftSide, spacer, rightSide)

	return lipgloss.NewStyle().
		Width(m.WindowWidth).
		BorderTop(true).
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(styles.BorderColor).
		Padding(0, 1).
		Render(bar)
}

func GetWelcomeScreen(width, height int) string {
	art := `
 ╭────────────────────────────────────────────────────╮
 │                                                    │
 │    ___  ____  ____  ____  _____ ____  _  __        │
 │   / _ \|  _ \/ ___||  _ \| ____/ ___|| |/ /        │
 │  | | | | |_) \___ \| | | |  _| \___ \| ' /         │
 │  | |_| |  __/ ___) | |_| | |___ ___) | . \         │
 │   \___/|_|   |____/|____/|_____|____/|_|\_\        │
 │                                                    │
 ╰────────────────────────────────────────────────────╯
`
	subtitle := "Tell me what needs doing. Ctrl+Z takes it back."

	styledArt := styles.WelcomeArtStyle.Render(art)
	styledSubtitle := styles.WelcomeSubtitleStyle.Render(subtitle)

	content := lipgloss.JoinVertical(lipgloss.Center, styledArt, "", styledSubtitle)

	return lipgloss.Place(width, height, lipgloss.Center, lipgloss.Center, content)
}

func (m *Model) renderEntry(i int) string {
	e := &m.Entries[i]
	if e.rendered != "" {
		return e.rendered
	}
	switch e.Role {
	case models.RoleUser:
		e.rendered = FormatUserMessage(e.Content, m.Viewport.Width, i == 0)
	case models.RoleAssistant:
		content := e.Content
		if m.Renderer != nil {
			if rendered, err := m.Renderer.Render(e.Content); err == nil {
				content = strings.TrimSpace(rendered)
			}
		}
		e.rendered = FormatAIMessage(content, *e)
	default:
		e.rendered = styles.ErrorStyle.Render(e.Content)
	}
	return e.rendered
}

func (m *Model) UpdateViewport() {
	if len(m.Entries) == 0 && !m.Loading {
		m.Viewport.SetContent(GetWelcomeScreen(m.Viewport.Width, m.Viewport.Height))
		return
	}

	parts := make([]string, 0, len(m.Entries)+1)
	for i := range m.Entries {
		parts = append(parts, m.renderEntry(i))
	}

	if m.Loading {
		status := " Thinking..."
		if m.Progress != nil && m.Progress.Status != models.StatusComplete {
			status = " Working..."
		}
		loading := []string{styles.AiLabelStyle.Render("OPSDESK")}
		if len(m.Steps) > 0 {
			loading = append(loading, FormatSteps(m.Steps))
		}
		loading = append(loading, m.Spinner.View()+status)
		parts = append(parts, strings.Join(loading, "\n"))
	}

	m.Viewport.SetContent(strings.Join(parts, "\n\n"))
	m.Viewport.GotoBottom()
}

func (m *Model) overlay(modal string) string {
	modal = styles.ModalStyle.Width(ModalWidth).Render(modal)
	return lipgloss.Place(
		m.WindowWidth,
		m.WindowHeight,
		lipgloss.Center,
		lipgloss.Center,
		modal,
	)
}

func (m *Model) View() string {
	switch {
	case m.SessionsOpen:
		return m.overlay(m.RenderSessionSelector())
	case m.DecisionOpen:
		return m.overlay(m.RenderDecisionModal())
	case m.ShortcutsOpen:
		return m.overlay(m.RenderShortcutsModal())
	}

	inputWidth := m.WindowWidth - 4
	inputBox := styles.InputBoxStyle.Width(inputWidth).Render(m.TextInput.View())

	progress := ""
	if m.Progress != nil {
		progress = ProgressLine(*m.Progress, 20)
	}

	chatContent := lipgloss.JoinVertical(lipgloss.Center,
		styles.TitleStyle.Render("OPSDESK"),
		"",
		m.Viewport.View(),
		progress,
		inputBox,
	)
	chatArea := lipgloss.PlaceHorizontal(m.WindowWidth, lipgloss.Center, chatContent)

	return lipgloss.JoinVertical(lipgloss.Left, chatArea, m.RenderBottomBar())
}
