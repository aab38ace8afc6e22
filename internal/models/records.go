package models

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var ErrNotFound = errors.New("not found")

type EntityKind string

const (
	EntityTask       EntityKind = "task"
	EntityProject    EntityKind = "project"
	EntityTeamMember EntityKind = "team_member"
	EntityDocument   EntityKind = "document"
	EntityMessage    EntityKind = "message"
)

// Record is one row of the domain store. Fields never contains "id".
type Record struct {
	ID        string         `json:"id"`
	Kind      EntityKind     `json:"kind"`
	Fields    map[string]any `json:"fields"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

func (r Record) String(key string) string {
	switch v := r.Fields[key].(type) {
	case string:
		return v
	case nil:
		return ""
	default:
		return fmt.Sprint(v)
	}
}

// Filter narrows List results. Equals compares the string form of a field.
type Filter struct {
	Equals map[string]string
	Limit  int
}

func (f Filter) Match(r Record) bool {
	for k, want := range f.Equals {
		if k == "id" {
			if r.ID != want {
				return false
			}
			continue
		}
		if r.String(k) != want {
			return false
		}
	}
	return true
}

// DomainStore is the CRUD contract the orchestrator relies on. Each call is
// assumed atomic. Create honours a preset "id" field; Update merges fields
// and removes keys set to nil.
type DomainStore interface {
	Create(ctx context.Context, kind EntityKind, fields map[string]any) (Record, error)
	Get(ctx context.Context, kind EntityKind, id string) (Record, error)
	Update(ctx context.Context, kind EntityKind, id string, fields map[string]any) error
	Delete(ctx context.Context, kind EntityKind, id string) error
	List(ctx context.Context, kind EntityKind, filter Filter) ([]Record, error)
}

// ChatStore persists sessions and their messages.
type ChatStore interface {
	CreateSession(ctx context.Context, title string) (ChatSession, error)
	GetSession(ctx context.Context, id string) (ChatSession, error)
	TouchSession(ctx context.Context, id string) error
	ListSessions(ctx context.Context, limit, offset int) (int, []ChatSession, error)
	DeleteSession(ctx context.Context, id string) error

	AppendMessage(ctx context.Context, msg ChatMessage) (ChatMessage, error)
	GetMessage(ctx context.Context, id string) (ChatMessage, error)
	ListMessages(ctx context.Context, sessionID string) ([]ChatMessage, error)
	UpdatePayload(ctx context.Context, id string, payload *MessagePayload) error
	// MarkUndone flips is_undone false→true and reports whether this call
	// performed the flip.
	MarkUndone(ctx context.Context, id string) (bool, error)
}
