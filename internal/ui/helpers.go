package ui

import (
	"fmt"
	"strings"
	"time"

	"opsdesk/internal/models"
	"opsdesk/internal/react"
	"opsdesk/internal/styles"

	"github.com/mattn/go-runewidth"
)

func WrappedLineCount(value string, width int) int {
	if width <= 0 {
		return 1
	}
	lines := strings.Split(value, "\n")
	if len(lines) == 0 {
		return 1
	}
	count := 0
	for _, line := range lines {
		w := runewidth.StringWidth(line)
		if w == 0 {
			count++
			continue
		}
		count += (w-1)/width + 1
	}
	return count
}

func PromptPreview(s string) string {
	s = strings.TrimSpace(s)
	s = strings.ReplaceAll(s, "\r", " ")
	s = strings.ReplaceAll(s, "\n", " ")
	s = strings.Join(strings.Fields(s), " ")
	const maxRunes = 500
	r := []rune(s)
	if len(r) > maxRunes {
		return string(r[:maxRunes])
	}
	return s
}

func TruncateRunes(s string, max int) string {
	if max <= 0 {
		return ""
	}
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	if max <= 1 {
		return "…"
	}
	return string(r[:max-1]) + "…"
}

func RelativeTime(t time.Time) string {
	return relativeTime(time.Since(t))
}

func relativeTime(d time.Duration) string {
	if d < 0 {
		d = -d
	}
	if d < time.Minute {
		return "just now"
	}
	if d < time.Hour {
		mins := int(d.Minutes())
		if mins == 1 {
			return "1 min ago"
		}
		return fmt.Sprintf("%d mins ago", mins)
	}
	if d < 24*time.Hour {
		hrs := int(d.Hours())
		if hrs == 1 {
			return "1 hr ago"
		}
		return fmt.Sprintf("%d hrs ago", hrs)
	}
	days := int(d.Hours() / 24)
	if days < 14 {
		if days == 1 {
			return "1 day ago"
		}
		return fmt.Sprintf("%d days ago", days)
	}
	weeks := days / 7
	if weeks == 1 {
		return "1 week ago"
	}
	return fmt.Sprintf("%d weeks ago", weeks)
}

// StepLine summarises one reasoning iteration for the live step list.
func StepLine(it react.Iteration) string {
	switch {
	case it.Action != nil && it.Result != nil && !it.Result.Success:
		return fmt.Sprintf("%s (failed)", it.Action.Describe())
	case it.Action != nil:
		return it.Action.Describe()
	case it.Thought != "":
		return PromptPreview(it.Thought)
	}
	return fmt.Sprintf("step %d", it.Index+1)
}

// ProgressLine renders "[███░░░] 2/5 executing: create task".
func ProgressLine(p models.Progress, barWidth int) string {
	if barWidth < 4 {
		barWidth = 4
	}
	filled := 0
	if p.Total > 0 {
		filled = p.Current * barWidth / p.Total
	}
	if filled > barWidth {
		filled = barWidth
	}
	bar := strings.Repeat("█", filled) + strings.Repeat("░", barWidth-filled)

	text := fmt.Sprintf("%d/%d %s", p.Current, p.Total, p.Status)
	if p.CurrentAction != "" && p.Status == models.StatusExecuting {
		text += ": " + p.CurrentAction
	}
	return styles.ProgressBarStyle.Render("["+bar+"]") + " " + styles.ProgressTextStyle.Render(text)
}

// EntryFromMessage converts a persisted chat message into a timeline entry.
func EntryFromMessage(msg models.ChatMessage) Entry {
	return Entry{
		MessageID: msg.ID,
		Role:      msg.Role,
		Content:   msg.Content,
		Undoable:  msg.Undoable(),
		Undone:    msg.IsUndone,
	}
}

func FormatUserMessage(content string, width int, isFirst bool) string {
	label := styles.UserLabelStyle.Render("YOU")
	msg := styles.UserMsgStyle.Width(width - 4).Render(content)
	if isFirst {
		return fmt.Sprintf("\n%s\n%s", label, msg)
	}
	return fmt.Sprintf("%s\n%s", label, msg)
}

func FormatAIMessage(content string, e Entry) string {
	label := styles.AiLabelStyle.Render("OPSDESK")
	switch {
	case e.Failed:
		label += styles.FailedBadgeStyle.Render("failed")
	case e.Undone:
		label += styles.UndoneBadgeStyle.Render("undone")
	case e.Undoable:
		label += styles.UndoableBadgeStyle.Render("^Z to undo")
	}
	style := styles.AiMsgStyle
	if e.Failed {
		style = styles.FailedMsgStyle
	}
	return fmt.Sprintf("%s\n%s", label, style.Render(content))
}

func FormatSteps(steps []string) string {
	var lines []string
	for _, s := range steps {
		icon := styles.StepIconStyle.Render("→")
		text := styles.StepTextStyle.Render(s)
		lines = append(lines, styles.StepStyle.Render(fmt.Sprintf("%s %s", icon, text)))
	}
	return strings.Join(lines, "\n")
}
