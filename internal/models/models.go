package models

import "time"

// AppMode represents the current operating mode of a turn
type AppMode int

const (
	ModeChat  AppMode = iota // Plain conversation, no capabilities offered
	ModeAgent                // Full tool contract with multi-step reasoning
)

func (m AppMode) String() string {
	if m == ModeAgent {
		return "agent"
	}
	return "chat"
}

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

// ChatSession groups an ordered sequence of messages. Only Title and
// UpdatedAt change after creation.
type ChatSession struct {
	ID        string
	Title     string
	CreatedAt time.Time
	UpdatedAt time.Time
}

type ChatMessage struct {
	ID        string
	SessionID string
	Role      string
	Content   string
	Payload   *MessagePayload
	IsUndone  bool
	CreatedAt time.Time
}

// Undoable reports whether the message still carries a reversible mutation.
func (m ChatMessage) Undoable() bool {
	return m.Role == RoleAssistant && !m.IsUndone && m.Payload != nil && m.Payload.Undo != nil
}

// MessagePayload is persisted as the message's action_payload JSON column.
type MessagePayload struct {
	Undo     *UndoDescriptor `json:"undo,omitempty"`
	Decision *Decision       `json:"decision,omitempty"`
}

// Decision is an engine outcome awaiting a human choice. Nothing executes
// until one option is selected.
type Decision struct {
	Message  string           `json:"message"`
	Options  []DecisionOption `json:"options"`
	Resolved bool             `json:"resolved,omitempty"`
	Chosen   int              `json:"chosen,omitempty"`
}

type DecisionOption struct {
	Label  string        `json:"label"`
	Action ActionRequest `json:"action"`
}

// Progress is emitted by the execution engine while a batch runs.
type Progress struct {
	Total         int
	Current       int
	Status        ProgressStatus
	CurrentAction string
}

type ProgressStatus string

const (
	StatusExecuting   ProgressStatus = "executing"
	StatusSummarizing ProgressStatus = "summarizing"
	StatusComplete    ProgressStatus = "complete"
)
