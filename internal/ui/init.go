package ui

import (
	"context"

	"opsdesk/internal/models"
	"opsdesk/internal/orchestrator"
	"opsdesk/internal/styles"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

func InitialModel(ctx context.Context, orch Turns, opts Options) Model {
	if opts.ProgressClearDelay <= 0 {
		opts.ProgressClearDelay = DefaultProgressClearDelay
	}

	ti := textarea.New()
	ti.Placeholder = "Ask opsdesk to plan, schedule or look something up..."
	ti.Prompt = "❯ "
	ti.ShowLineNumbers = false
	ti.CharLimit = 0
	ti.MaxHeight = 6
	ti.SetHeight(2)
	ti.SetWidth(80)
	ti.FocusedStyle.Prompt = lipgloss.NewStyle().Foreground(styles.FgPrimary).Bold(true)
	ti.BlurredStyle.Prompt = lipgloss.NewStyle().Foreground(styles.FgPrimary).Bold(true)
	ti.FocusedStyle.Placeholder = lipgloss.NewStyle().Foreground(lipgloss.Color("#545454"))
	ti.BlurredStyle.Placeholder = lipgloss.NewStyle().Foreground(lipgloss.Color("#545454"))
	ti.FocusedStyle.CursorLine = lipgloss.NewStyle()
	ti.BlurredStyle.CursorLine = lipgloss.NewStyle()
	ti.Focus()

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(styles.FgPrimary)

	return Model{
		TextInput: ti,
		Viewport:  viewport.New(60, 15),
		Spinner:   sp,
		Orch:      orch,
		Ctx:       ctx,
		Options:   opts,
		AppMode:   models.ModeAgent,
	}
}

func (m *Model) Init() tea.Cmd {
	return tea.Batch(
		m.TextInput.Cursor.BlinkCmd(),
		m.Spinner.Tick,
	)
}

// sink forwards orchestrator events to the running program. Send is safe
// from the turn goroutine.
func (m *Model) sink() orchestrator.Sink {
	p, epoch := m.Program, m.Epoch
	return func(e orchestrator.Event) {
		if p != nil {
			p.Send(EventMsg{Event: e, Epoch: epoch})
		}
	}
}

func NewProgram(ctx context.Context, orch Turns, opts Options) *tea.Program {
	styles.InitTheme()
	m := InitialModel(ctx, orch, opts)
	p := tea.NewProgram(&m, tea.WithAltScreen(), tea.WithContext(ctx))
	m.Program = p
	return p
}
