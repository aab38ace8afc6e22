package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"opsdesk/internal/models"

	"github.com/google/uuid"
)

func (s *Store) CreateSession(ctx context.Context, title string) (models.ChatSession, error) {
	now := time.Now()
	sess := models.ChatSession{ID: uuid.NewString(), Title: title, CreatedAt: now, UpdatedAt: now}
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO chat_sessions(id, title, created_at, updated_at) VALUES(?, ?, ?, ?)",
		sess.ID,
		sess.Title,
		now.UnixNano(),
		now.UnixNano(),
	)
	if err != nil {
		return models.ChatSession{}, err
	}
	return sess, nil
}

func (s *Store) GetSession(ctx context.Context, id string) (models.ChatSession, error) {
	var (
		sess                 models.ChatSession
		createdAt, updatedAt int64
	)
	err := s.db.QueryRowContext(ctx,
		"SELECT id, title, created_at, updated_at FROM chat_sessions WHERE id = ?",
		id,
	).Scan(&sess.ID, &sess.Title, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return models.ChatSession{}, fmt.Errorf("session %s: %w", id, models.ErrNotFound)
	}
	if err != nil {
		return models.ChatSession{}, err
	}
	sess.CreatedAt = time.Unix(0, createdAt)
	sess.UpdatedAt = time.Unix(0, updatedAt)
	return sess, nil
}

func (s *Store) TouchSession(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE chat_sessions SET updated_at = ? WHERE id = ?",
		time.Now().UnixNano(),
		id,
	)
	return err
}

func (s *Store) ListSessions(ctx context.Context, limit, offset int) (int, []models.ChatSession, error) {
	var count int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM chat_sessions").Scan(&count); err != nil {
		return 0, nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		"SELECT id, title, created_at, updated_at FROM chat_sessions ORDER BY updated_at DESC LIMIT ? OFFSET ?",
		limit,
		offset,
	)
	if err != nil {
		return 0, nil, err
	}
	defer rows.Close()

	items := make([]models.ChatSession, 0, limit)
	for rows.Next() {
		var (
			it                   models.ChatSession
			createdAt, updatedAt int64
		)
		if err := rows.Scan(&it.ID, &it.Title, &createdAt, &updatedAt); err != nil {
			return 0, nil, err
		}
		it.CreatedAt = time.Unix(0, createdAt)
		it.UpdatedAt = time.Unix(0, updatedAt)
		items = append(items, it)
	}
	if err := rows.Err(); err != nil {
		return 0, nil, err
	}

	return count, items, nil
}

func (s *Store) DeleteSession(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM chat_sessions WHERE id = ?", id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("session %s: %w", id, models.ErrNotFound)
	}
	return nil
}

func (s *Store) AppendMessage(ctx context.Context, msg models.ChatMessage) (models.ChatMessage, error) {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now()
	}
	payload, err := encodePayload(msg.Payload)
	if err != nil {
		return models.ChatMessage{}, err
	}

	_, err = s.db.ExecContext(ctx,
		"INSERT INTO chat_messages(id, session_id, role, content, action_payload, is_undone, created_at) VALUES(?, ?, ?, ?, ?, ?, ?)",
		msg.ID,
		msg.SessionID,
		msg.Role,
		msg.Content,
		payload,
		boolInt(msg.IsUndone),
		msg.CreatedAt.UnixNano(),
	)
	if err != nil {
		return models.ChatMessage{}, err
	}
	return msg, nil
}

func (s *Store) GetMessage(ctx context.Context, id string) (models.ChatMessage, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT id, session_id, role, content, action_payload, is_undone, created_at FROM chat_messages WHERE id = ?",
		id,
	)
	msg, err := scanMessage(row)
	if errors.Is(err, sql.ErrNoRows) {
		return models.ChatMessage{}, fmt.Errorf("message %s: %w", id, models.ErrNotFound)
	}
	return msg, err
}

func (s *Store) ListMessages(ctx context.Context, sessionID string) ([]models.ChatMessage, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, session_id, role, content, action_payload, is_undone, created_at FROM chat_messages WHERE session_id = ? ORDER BY seq ASC",
		sessionID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	msgs := []models.ChatMessage{}
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		msgs = append(msgs, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return msgs, nil
}

func (s *Store) UpdatePayload(ctx context.Context, id string, payload *models.MessagePayload) error {
	data, err := encodePayload(payload)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, "UPDATE chat_messages SET action_payload = ? WHERE id = ?", data, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("message %s: %w", id, models.ErrNotFound)
	}
	return nil
}

func (s *Store) MarkUndone(ctx context.Context, id string) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		"UPDATE chat_messages SET is_undone = 1 WHERE id = ? AND is_undone = 0",
		id,
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func scanMessage(row scanner) (models.ChatMessage, error) {
	var (
		m         models.ChatMessage
		payload   sql.NullString
		undone    int
		createdAt int64
	)
	if err := row.Scan(&m.ID, &m.SessionID, &m.Role, &m.Content, &payload, &undone, &createdAt); err != nil {
		return models.ChatMessage{}, err
	}
	m.IsUndone = undone == 1
	m.CreatedAt = time.Unix(0, createdAt)
	if payload.Valid && payload.String != "" {
		var p models.MessagePayload
		if err := json.Unmarshal([]byte(payload.String), &p); err != nil {
			return models.ChatMessage{}, fmt.Errorf("decode payload of message %s: %w", m.ID, err)
		}
		m.Payload = &p
	}
	return m, nil
}

func encodePayload(p *models.MessagePayload) (any, error) {
	if p == nil {
		return nil, nil
	}
	data, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("encode message payload: %w", err)
	}
	return string(data), nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
