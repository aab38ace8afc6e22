package db

import (
	"context"
	"path/filepath"
	"testing"

	"opsdesk/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	conn, err := Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return NewStore(conn)
}

func TestRecordLifecycle(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	rec, err := s.Create(ctx, models.EntityTask, map[string]any{"title": "Standup", "priority": "high"})
	require.NoError(t, err)
	require.NotEmpty(t, rec.ID)

	got, err := s.Get(ctx, models.EntityTask, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, "Standup", got.String("title"))

	require.NoError(t, s.Update(ctx, models.EntityTask, rec.ID, map[string]any{"status": "done", "priority": nil}))
	got, err = s.Get(ctx, models.EntityTask, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, "done", got.String("status"))
	_, hasPriority := got.Fields["priority"]
	assert.False(t, hasPriority, "nil value removes the field")

	require.NoError(t, s.Delete(ctx, models.EntityTask, rec.ID))
	_, err = s.Get(ctx, models.EntityTask, rec.ID)
	assert.ErrorIs(t, err, models.ErrNotFound)
	assert.ErrorIs(t, s.Delete(ctx, models.EntityTask, rec.ID), models.ErrNotFound)
	assert.ErrorIs(t, s.Update(ctx, models.EntityTask, rec.ID, map[string]any{"x": 1}), models.ErrNotFound)
}

func TestCreateHonoursPresetID(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	rec, err := s.Create(ctx, models.EntityProject, map[string]any{"id": "p-1", "name": "Acme"})
	require.NoError(t, err)
	assert.Equal(t, "p-1", rec.ID)
	_, hasID := rec.Fields["id"]
	assert.False(t, hasID)
}

func TestListFilterAndLimit(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	for _, status := range []string{"todo", "done", "todo", "todo"} {
		_, err := s.Create(ctx, models.EntityTask, map[string]any{"title": "t", "status": status})
		require.NoError(t, err)
	}

	todo, err := s.List(ctx, models.EntityTask, models.Filter{Equals: map[string]string{"status": "todo"}})
	require.NoError(t, err)
	assert.Len(t, todo, 3)

	limited, err := s.List(ctx, models.EntityTask, models.Filter{Limit: 2})
	require.NoError(t, err)
	assert.Len(t, limited, 2)

	none, err := s.List(ctx, models.EntityProject, models.Filter{})
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestChatMessagesAndUndoFlag(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	sess, err := s.CreateSession(ctx, "Plan the week")
	require.NoError(t, err)

	_, err = s.AppendMessage(ctx, models.ChatMessage{SessionID: sess.ID, Role: models.RoleUser, Content: "hi"})
	require.NoError(t, err)
	msg, err := s.AppendMessage(ctx, models.ChatMessage{
		SessionID: sess.ID,
		Role:      models.RoleAssistant,
		Content:   "Created task",
		Payload: &models.MessagePayload{Undo: &models.UndoDescriptor{
			Kind: models.UndoDeleteCreated, Entity: models.EntityTask, EntityID: "t1", Description: "Delete task",
		}},
	})
	require.NoError(t, err)

	msgs, err := s.ListMessages(ctx, sess.ID)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, models.RoleUser, msgs[0].Role)
	require.NotNil(t, msgs[1].Payload)
	assert.Equal(t, "t1", msgs[1].Payload.Undo.EntityID)

	flipped, err := s.MarkUndone(ctx, msg.ID)
	require.NoError(t, err)
	assert.True(t, flipped)
	flipped, err = s.MarkUndone(ctx, msg.ID)
	require.NoError(t, err)
	assert.False(t, flipped, "second flip must not happen")

	got, err := s.GetMessage(ctx, msg.ID)
	require.NoError(t, err)
	assert.True(t, got.IsUndone)
}

func TestDeleteSessionCascades(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	sess, err := s.CreateSession(ctx, "temp")
	require.NoError(t, err)
	msg, err := s.AppendMessage(ctx, models.ChatMessage{SessionID: sess.ID, Role: models.RoleUser, Content: "x"})
	require.NoError(t, err)

	require.NoError(t, s.DeleteSession(ctx, sess.ID))
	_, err = s.GetMessage(ctx, msg.ID)
	assert.ErrorIs(t, err, models.ErrNotFound)

	count, sessions, err := s.ListSessions(ctx, 10, 0)
	require.NoError(t, err)
	assert.Zero(t, count)
	assert.Empty(t, sessions)
}
