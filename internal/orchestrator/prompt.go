package orchestrator

import (
	"strings"

	"opsdesk/internal/assembler"
	"opsdesk/internal/models"
	"opsdesk/internal/tools"
)

const persona = `You are opsdesk, the operations assistant of a small business. You help manage scheduling items (tasks and calendar blocks), client and project records, the team roster and internal documents.`

const agentRules = `Act through the capabilities you are given:
- perform_action for a single change, perform_batch for several independent changes. A weekday range such as "Monday to Friday" means one item per day.
- offer_choices when the request matches several concrete options and the user must pick one.
- ask_question when information required to act is missing.
- think_step when you need to look something up (QUERY) before you can act; you will receive the observation.
- Plain text only for conversation.
Never invent ids: use ids from the context below or look them up. Dates are YYYY-MM-DD and times HH:MM in 24h.`

const chatRules = `You are in chat mode and cannot change any data. If the user asks for a change, explain that agent mode is needed.`

func systemPrompt(mode models.AppMode, snap assembler.Snapshot, contract *tools.Contract) string {
	var b strings.Builder
	b.WriteString(persona)
	b.WriteString("\n\n")
	if mode == models.ModeAgent {
		b.WriteString(agentRules)
		b.WriteString("\n\n")
		b.WriteString(contract.PromptReference())
	} else {
		b.WriteString(chatRules)
	}
	b.WriteString("\n\n# Context\n")
	b.WriteString(snap.Render())
	return b.String()
}
