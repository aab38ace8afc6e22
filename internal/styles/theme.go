package styles

import "github.com/charmbracelet/lipgloss"

// Theme defines a complete color scheme for the application
type Theme struct {
	Primary   lipgloss.Color
	Secondary lipgloss.Color

	TextPrimary lipgloss.Color
	TextMuted   lipgloss.Color

	Success lipgloss.Color
	Warning lipgloss.Color
	Error   lipgloss.Color

	Border lipgloss.Color

	ModeChat  lipgloss.Color
	ModeAgent lipgloss.Color
}

var DarkTheme = Theme{
	Primary:     lipgloss.Color("#80CBC4"), // Teal 200
	Secondary:   lipgloss.Color("#90CAF9"), // Blue 200
	TextPrimary: lipgloss.Color("#E0E0E0"),
	TextMuted:   lipgloss.Color("#64748B"), // Slate 500
	Success:     lipgloss.Color("#34D399"), // Emerald 400
	Warning:     lipgloss.Color("#FBBF24"), // Amber 400
	Error:       lipgloss.Color("#FB7185"), // Rose 400
	Border:      lipgloss.Color("#333333"),
	ModeChat:    lipgloss.Color("#81D4FA"),
	ModeAgent:   lipgloss.Color("#CE93D8"),
}

var LightTheme = Theme{
	Primary:     lipgloss.Color("#00897B"), // Teal 600
	Secondary:   lipgloss.Color("#1E88E5"), // Blue 600
	TextPrimary: lipgloss.Color("#18181B"),
	TextMuted:   lipgloss.Color("#A1A1AA"),
	Success:     lipgloss.Color("#10B981"),
	Warning:     lipgloss.Color("#F59E0B"),
	Error:       lipgloss.Color("#EF4444"),
	Border:      lipgloss.Color("#E4E4E7"),
	ModeChat:    lipgloss.Color("#0288D1"),
	ModeAgent:   lipgloss.Color("#7B1FA2"),
}

// CurrentTheme holds the active theme (set at runtime based on terminal)
var CurrentTheme = DarkTheme

type Adaptive = lipgloss.AdaptiveColor

var (
	FgPrimary   = Adaptive{Light: string(LightTheme.Primary), Dark: string(DarkTheme.Primary)}
	FgSecondary = Adaptive{Light: string(LightTheme.Secondary), Dark: string(DarkTheme.Secondary)}
	FgText      = Adaptive{Light: string(LightTheme.TextPrimary), Dark: string(DarkTheme.TextPrimary)}
	FgMuted     = Adaptive{Light: string(LightTheme.TextMuted), Dark: string(DarkTheme.TextMuted)}
	FgError     = Adaptive{Light: string(LightTheme.Error), Dark: string(DarkTheme.Error)}
	FgSuccess   = Adaptive{Light: string(LightTheme.Success), Dark: string(DarkTheme.Success)}
	FgWarning   = Adaptive{Light: string(LightTheme.Warning), Dark: string(DarkTheme.Warning)}
	BorderColor = Adaptive{Light: string(LightTheme.Border), Dark: string(DarkTheme.Border)}
)

// ModeColor returns the badge color for agent or chat mode.
func ModeColor(agent bool) lipgloss.Color {
	if agent {
		return CurrentTheme.ModeAgent
	}
	return CurrentTheme.ModeChat
}

// InitTheme sets the current theme based on terminal background
func InitTheme() {
	if lipgloss.HasDarkBackground() {
		CurrentTheme = DarkTheme
	} else {
		CurrentTheme = LightTheme
	}
}
