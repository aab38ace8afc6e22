package assembler

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"opsdesk/internal/knowledge"
	"opsdesk/internal/models"
	"opsdesk/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

var now = time.Date(2026, time.October, 21, 10, 0, 0, 0, time.UTC)

func seed(t *testing.T, store models.DomainStore, kind models.EntityKind, fields map[string]any) models.Record {
	t.Helper()
	rec, err := store.Create(context.Background(), kind, fields)
	require.NoError(t, err)
	return rec
}

func TestAssembleBoundsAndOrder(t *testing.T) {
	store := testutil.NewStore(t)
	for i := 0; i < 60; i++ {
		seed(t, store, models.EntityTask, map[string]any{"title": fmt.Sprintf("task %d", i), "status": "todo", "due_date": fmt.Sprintf("2026-11-%02d", i%28+1)})
	}
	seed(t, store, models.EntityTask, map[string]any{"title": "finished", "status": "done"})
	seed(t, store, models.EntityProject, map[string]any{"name": "Acme", "status": "active"})
	seed(t, store, models.EntityTeamMember, map[string]any{"name": "Ann", "role": "designer"})

	var history []models.ChatMessage
	for i := 0; i < 6; i++ {
		history = append(history, models.ChatMessage{Role: models.RoleUser, Content: fmt.Sprintf("m%d", i)})
	}

	a := New(store, nil, Config{}, zaptest.NewLogger(t))
	s := a.Assemble(context.Background(), "hello", history, now)

	assert.Len(t, s.Tasks, DefaultMaxTasks)
	for _, task := range s.Tasks {
		assert.NotEqual(t, "done", task.String("status"))
	}
	assert.Equal(t, "2026-11-01", s.Tasks[0].String("due_date"))
	assert.Len(t, s.Projects, 1)
	assert.Len(t, s.Team, 1)
	require.Len(t, s.History, DefaultHistoryTurns)
	assert.Equal(t, "m2", s.History[0].Content)
	assert.Empty(t, s.Degraded)

	out := s.Render()
	assert.True(t, strings.HasPrefix(out, "Current time: 2026-10-21T10:00:00Z (Wednesday, 21 October 2026)"))
	assert.Contains(t, out, "Today's date: 2026-10-21.")
	assert.Contains(t, out, "| designer")
	assert.Contains(t, out, "## Relevant documents\n(none)")
}

func TestAssembleDegradesPerCategory(t *testing.T) {
	base := testutil.NewStore(t)
	seed(t, base, models.EntityProject, map[string]any{"name": "Acme", "status": "active"})
	store := &testutil.FaultStore{
		DomainStore: base,
		Fault: func(op testutil.Op, kind models.EntityKind, _ map[string]any) error {
			if op == testutil.OpList && kind == models.EntityTask {
				return testutil.ErrInjected
			}
			return nil
		},
	}

	s := New(store, nil, Config{}, zaptest.NewLogger(t)).Assemble(context.Background(), "x", nil, now)
	assert.Equal(t, []Category{CategoryTasks}, s.Degraded)
	assert.Empty(t, s.Tasks)
	assert.Len(t, s.Projects, 1)
	assert.Contains(t, s.Render(), "## Open tasks\n(unavailable right now)")
}

func TestRelevantDocuments(t *testing.T) {
	store := testutil.NewStore(t)
	seed(t, store, models.EntityDocument, map[string]any{"title": "Holidays", "content": "office closed over christmas"})
	seed(t, store, models.EntityDocument, map[string]any{"title": "Invoicing", "content": "send invoices to clients at month end"})
	seed(t, store, models.EntityDocument, map[string]any{"title": "Laptops", "content": "new laptops are ordered by IT"})

	ix, err := knowledge.NewIndex(knowledge.HashEmbedder(256), nil)
	require.NoError(t, err)

	a := New(store, ix, Config{MaxDocuments: 1}, zaptest.NewLogger(t))
	s := a.Assemble(context.Background(), "when do we send invoices to clients", nil, now)
	require.Len(t, s.Documents, 1)
	assert.Equal(t, "Invoicing", s.Documents[0].String("title"))

	// Without an utterance (audio turns) the first documents are used.
	s = a.Assemble(context.Background(), "", nil, now)
	require.Len(t, s.Documents, 1)
	assert.Equal(t, "Holidays", s.Documents[0].String("title"))
}

func TestDocumentSnippetKeepsRunesWhole(t *testing.T) {
	s := Snapshot{Now: now, Documents: []models.Record{{
		ID:     "d1",
		Kind:   models.EntityDocument,
		Fields: map[string]any{"title": "Café", "content": strings.Repeat("é", snippetLen+50)},
	}}}
	out := s.Render()
	assert.True(t, utf8.ValidString(out))
	assert.Contains(t, out, "[d1] Café: "+strings.Repeat("é", snippetLen)+"…")
}

func TestTurns(t *testing.T) {
	s := Snapshot{History: []models.ChatMessage{
		{Role: models.RoleUser, Content: "hi"},
		{Role: models.RoleAssistant, Content: "hello"},
	}}
	turns := s.Turns()
	require.Len(t, turns, 2)
	assert.Equal(t, models.RoleAssistant, turns[1].Role)
}
