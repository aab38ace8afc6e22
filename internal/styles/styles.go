package styles

import "github.com/charmbracelet/lipgloss"

var (
	ContentWidth = 54
)

var (
	TitleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(FgPrimary).
			Padding(0, 1)

	UserLabelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFFFFF")).
			Background(FgSecondary).
			Bold(true).
			Padding(0, 1).
			MarginRight(1)

	UserMsgStyle = lipgloss.NewStyle().
			Foreground(FgText).
			PaddingLeft(2).
			BorderLeft(true).
			BorderStyle(lipgloss.ThickBorder()).
			BorderForeground(FgSecondary)

	AiLabelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFFFFF")).
			Background(FgPrimary).
			Bold(true).
			Padding(0, 1).
			MarginRight(1)

	AiMsgStyle = lipgloss.NewStyle().
			Foreground(FgText).
			PaddingTop(1).
			BorderLeft(true).
			BorderStyle(lipgloss.ThickBorder()).
			BorderForeground(FgPrimary)

	FailedMsgStyle = AiMsgStyle.
			BorderForeground(FgError)

	ErrorStyle = lipgloss.NewStyle().
			Foreground(FgError).
			Bold(true)

	// Badges shown after the AI label.
	FailedBadgeStyle = lipgloss.NewStyle().
				Foreground(FgError).
				Bold(true)

	UndoableBadgeStyle = lipgloss.NewStyle().
				Foreground(FgMuted).
				Italic(true)

	UndoneBadgeStyle = lipgloss.NewStyle().
				Foreground(FgWarning).
				Italic(true)

	StepStyle = lipgloss.NewStyle().
			Foreground(FgMuted).
			PaddingLeft(2)

	StepIconStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#CE93D8")).
			Bold(true)

	StepTextStyle = lipgloss.NewStyle().
			Foreground(FgWarning)

	ProgressBarStyle = lipgloss.NewStyle().
				Foreground(FgSuccess)

	ProgressTextStyle = lipgloss.NewStyle().
				Foreground(FgMuted)

	InputBoxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(FgPrimary).
			Padding(0, 1)

	WelcomeArtStyle = lipgloss.NewStyle().
			Foreground(FgPrimary).
			Bold(true)

	WelcomeSubtitleStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("#545454")).
				Italic(true)

	ModalStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(FgPrimary).
			Padding(1, 2)

	ModalTitleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(FgPrimary).
			Width(ContentWidth).
			MarginBottom(1)

	ModalItemStyle = lipgloss.NewStyle().
			Padding(0, 1).
			Width(ContentWidth)

	ModalSelectedStyle = lipgloss.NewStyle().
				Padding(0, 1).
				Width(ContentWidth).
				Background(lipgloss.Color("#5C5C7A")).
				Foreground(lipgloss.Color("#FFFFFF"))

	HintColor = lipgloss.Color("#545454")
)
