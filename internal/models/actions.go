package models

import (
	"fmt"
	"strings"
)

type ActionKind string

const (
	KindCreateTask    ActionKind = "CREATE_TASK"
	KindUpdateTask    ActionKind = "UPDATE_TASK"
	KindDeleteTask    ActionKind = "DELETE_TASK"
	KindCreateProject ActionKind = "CREATE_PROJECT"
	KindUpdateProject ActionKind = "UPDATE_PROJECT"
	KindDeleteProject ActionKind = "DELETE_PROJECT"
	KindQuery         ActionKind = "QUERY"
	KindSendMessage   ActionKind = "SEND_MESSAGE"
)

// Mutating reports whether the kind changes a scheduling item or project record.
func (k ActionKind) Mutating() bool {
	switch k {
	case KindCreateTask, KindUpdateTask, KindDeleteTask,
		KindCreateProject, KindUpdateProject, KindDeleteProject:
		return true
	}
	return false
}

// Creates reports whether the kind creates a new record.
func (k ActionKind) Creates() bool {
	return k == KindCreateTask || k == KindCreateProject
}

// Dependent kinds produce results a later action in the same batch may rely on.
func (k ActionKind) Dependent() bool {
	return k == KindQuery || k == KindSendMessage
}

// Entity returns the entity kind a mutating action targets.
func (k ActionKind) Entity() EntityKind {
	switch k {
	case KindCreateTask, KindUpdateTask, KindDeleteTask:
		return EntityTask
	case KindCreateProject, KindUpdateProject, KindDeleteProject:
		return EntityProject
	case KindSendMessage:
		return EntityMessage
	}
	return ""
}

type ActionRequest struct {
	Kind    ActionKind     `json:"action"`
	Payload map[string]any `json:"payload,omitempty"`
}

// RefID is the reference id carried in the payload, required for updates
// and deletes.
func (r ActionRequest) RefID() string {
	return r.String("id")
}

func (r ActionRequest) String(key string) string {
	if r.Payload == nil {
		return ""
	}
	switch v := r.Payload[key].(type) {
	case string:
		return strings.TrimSpace(v)
	case nil:
		return ""
	default:
		return fmt.Sprint(v)
	}
}

// Clone returns a copy whose payload can be modified independently.
func (r ActionRequest) Clone() ActionRequest {
	payload := make(map[string]any, len(r.Payload))
	for k, v := range r.Payload {
		payload[k] = v
	}
	return ActionRequest{Kind: r.Kind, Payload: payload}
}

// Describe renders a short human label, e.g. `create task "Standup"`.
func (r ActionRequest) Describe() string {
	verb := ""
	switch r.Kind {
	case KindCreateTask, KindCreateProject:
		verb = "create"
	case KindUpdateTask, KindUpdateProject:
		verb = "update"
	case KindDeleteTask, KindDeleteProject:
		verb = "delete"
	case KindQuery:
		entity := r.String("entity")
		if entity == "" {
			entity = "records"
		}
		return "look up " + entity
	case KindSendMessage:
		if to := r.String("recipient_id"); to != "" {
			return "send a message to " + to
		}
		return "send a message"
	default:
		return strings.ToLower(string(r.Kind))
	}

	entity := string(r.Kind.Entity())
	name := r.String("title")
	if name == "" {
		name = r.String("name")
	}
	if name != "" {
		label := fmt.Sprintf("%s %s %q", verb, entity, name)
		if date := r.String("due_date"); date != "" {
			label += " on " + date
		}
		return label
	}
	if id := r.RefID(); id != "" {
		return fmt.Sprintf("%s %s %s", verb, entity, id)
	}
	return verb + " " + entity
}

type ActionResult struct {
	Success  bool            `json:"success"`
	Data     any             `json:"data,omitempty"`
	Error    string          `json:"error,omitempty"`
	Undo     *UndoDescriptor `json:"undo,omitempty"`
	Navigate string          `json:"navigate,omitempty"`
	// Skipped marks an action that never ran because of cancellation or a
	// failed predecessor in a sequential batch.
	Skipped bool `json:"skipped,omitempty"`
}

type UndoKind string

const (
	UndoDeleteCreated   UndoKind = "delete_created"
	UndoRestoreUpdated  UndoKind = "restore_updated"
	UndoRecreateDeleted UndoKind = "recreate_deleted"
	UndoBatch           UndoKind = "batch"
)

// UndoDescriptor holds the minimal data needed to invert one mutation, or
// a batch of them.
type UndoDescriptor struct {
	Kind        UndoKind         `json:"kind"`
	Entity      EntityKind       `json:"entity,omitempty"`
	EntityID    string           `json:"entity_id,omitempty"`
	Fields      map[string]any   `json:"fields,omitempty"`
	Description string           `json:"description"`
	Children    []UndoDescriptor `json:"children,omitempty"`
}
