// Package testutil holds fakes shared by package tests: a sqlite store in a
// temp dir, a store wrapper that injects faults, and a scripted reasoning
// engine.
package testutil

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"

	"opsdesk/internal/db"
	"opsdesk/internal/engine"
	"opsdesk/internal/models"

	"github.com/stretchr/testify/require"
)

// NewStore opens a fresh sqlite database under t.TempDir.
func NewStore(t testing.TB) *db.Store {
	t.Helper()
	conn, err := db.Open(filepath.Join(t.TempDir(), "opsdesk.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return db.NewStore(conn)
}

type Op string

const (
	OpCreate Op = "create"
	OpGet    Op = "get"
	OpUpdate Op = "update"
	OpDelete Op = "delete"
	OpList   Op = "list"
)

var ErrInjected = errors.New("injected failure")

// FaultStore wraps a DomainStore. Fault runs before every call and a non-nil
// result is returned in place of the real call; After runs after every
// successful call. Both may be called concurrently.
type FaultStore struct {
	models.DomainStore
	Fault func(op Op, kind models.EntityKind, fields map[string]any) error
	After func(op Op, kind models.EntityKind)

	mu  sync.Mutex
	ops []Op
}

func (s *FaultStore) Ops() []Op {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Op(nil), s.ops...)
}

// Count returns how many calls of op reached the wrapped store.
func (s *FaultStore) Count(op Op) int {
	n := 0
	for _, o := range s.Ops() {
		if o == op {
			n++
		}
	}
	return n
}

func (s *FaultStore) before(op Op, kind models.EntityKind, fields map[string]any) error {
	if s.Fault != nil {
		if err := s.Fault(op, kind, fields); err != nil {
			return err
		}
	}
	s.mu.Lock()
	s.ops = append(s.ops, op)
	s.mu.Unlock()
	return nil
}

func (s *FaultStore) after(op Op, kind models.EntityKind, err error) {
	if err == nil && s.After != nil {
		s.After(op, kind)
	}
}

func (s *FaultStore) Create(ctx context.Context, kind models.EntityKind, fields map[string]any) (models.Record, error) {
	if err := s.before(OpCreate, kind, fields); err != nil {
		return models.Record{}, err
	}
	rec, err := s.DomainStore.Create(ctx, kind, fields)
	s.after(OpCreate, kind, err)
	return rec, err
}

func (s *FaultStore) Get(ctx context.Context, kind models.EntityKind, id string) (models.Record, error) {
	if err := s.before(OpGet, kind, map[string]any{"id": id}); err != nil {
		return models.Record{}, err
	}
	rec, err := s.DomainStore.Get(ctx, kind, id)
	s.after(OpGet, kind, err)
	return rec, err
}

func (s *FaultStore) Update(ctx context.Context, kind models.EntityKind, id string, fields map[string]any) error {
	if err := s.before(OpUpdate, kind, fields); err != nil {
		return err
	}
	err := s.DomainStore.Update(ctx, kind, id, fields)
	s.after(OpUpdate, kind, err)
	return err
}

func (s *FaultStore) Delete(ctx context.Context, kind models.EntityKind, id string) error {
	if err := s.before(OpDelete, kind, map[string]any{"id": id}); err != nil {
		return err
	}
	err := s.DomainStore.Delete(ctx, kind, id)
	s.after(OpDelete, kind, err)
	return err
}

func (s *FaultStore) List(ctx context.Context, kind models.EntityKind, filter models.Filter) ([]models.Record, error) {
	if err := s.before(OpList, kind, nil); err != nil {
		return nil, err
	}
	recs, err := s.DomainStore.List(ctx, kind, filter)
	s.after(OpList, kind, err)
	return recs, err
}

// Step is one scripted engine reply. With WaitForCancel set the call blocks
// until its context is done.
type Step struct {
	Response      *engine.Response
	Err           error
	WaitForCancel bool
}

// ScriptedEngine replays Steps in order. Once they run out it answers with
// Repeat, or a plain text reply when Repeat is nil.
type ScriptedEngine struct {
	Steps  []Step
	Repeat *engine.Response

	mu       sync.Mutex
	requests []*engine.Request
}

func (s *ScriptedEngine) Generate(ctx context.Context, req *engine.Request) (*engine.Response, error) {
	s.mu.Lock()
	n := len(s.requests)
	s.requests = append(s.requests, req)
	var step *Step
	if n < len(s.Steps) {
		step = &s.Steps[n]
	}
	s.mu.Unlock()

	if step == nil {
		if s.Repeat != nil {
			return s.Repeat, nil
		}
		return &engine.Response{Text: "Nothing more to do."}, nil
	}
	if step.WaitForCancel {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return step.Response, step.Err
}

// Calls is the number of Generate calls made so far.
func (s *ScriptedEngine) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.requests)
}

func (s *ScriptedEngine) Requests() []*engine.Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*engine.Request(nil), s.requests...)
}

// Call builds a structured capability call response.
func Call(name string, args map[string]any) *engine.Response {
	return &engine.Response{Call: &engine.FunctionCall{Name: name, Args: args}}
}

func Text(s string) *engine.Response {
	return &engine.Response{Text: s}
}

// ActionArgs builds perform_action arguments.
func ActionArgs(kind models.ActionKind, payload map[string]any, message string) map[string]any {
	return map[string]any{"action": string(kind), "payload": payload, "message": message}
}
