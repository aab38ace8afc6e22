// Package undo keeps per-message undo descriptors and applies them at most
// once.
package undo

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"opsdesk/internal/models"

	"go.uber.org/zap"
)

var (
	ErrAlreadyUndone = errors.New("message already undone")
	ErrNotUndoable   = errors.New("message has nothing to undo")
)

type Ledger struct {
	chats  models.ChatStore
	store  models.DomainStore
	logger *zap.Logger

	mu    sync.Mutex
	locks map[string]*messageLock
}

type messageLock struct {
	sync.Mutex
	waiters int
}

func New(chats models.ChatStore, store models.DomainStore, logger *zap.Logger) *Ledger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Ledger{
		chats:  chats,
		store:  store,
		logger: logger.Named("undo"),
		locks:  make(map[string]*messageLock),
	}
}

// lock serializes undo attempts on one message and returns the release func.
func (l *Ledger) lock(messageID string) func() {
	l.mu.Lock()
	ml, ok := l.locks[messageID]
	if !ok {
		ml = &messageLock{}
		l.locks[messageID] = ml
	}
	ml.waiters++
	l.mu.Unlock()

	ml.Lock()
	return func() {
		ml.Unlock()
		l.mu.Lock()
		if ml.waiters--; ml.waiters == 0 {
			delete(l.locks, messageID)
		}
		l.mu.Unlock()
	}
}

// RecordUndo attaches the descriptor to the assistant message that reported
// the mutation.
func (l *Ledger) RecordUndo(ctx context.Context, messageID string, d *models.UndoDescriptor) error {
	if d == nil {
		return nil
	}
	msg, err := l.chats.GetMessage(ctx, messageID)
	if err != nil {
		return fmt.Errorf("loading message %s: %w", messageID, err)
	}
	if msg.Role != models.RoleAssistant {
		return fmt.Errorf("message %s is not an assistant message", messageID)
	}
	payload := msg.Payload
	if payload == nil {
		payload = &models.MessagePayload{}
	}
	payload.Undo = d
	if err := l.chats.UpdatePayload(ctx, messageID, payload); err != nil {
		return fmt.Errorf("recording undo for %s: %w", messageID, err)
	}
	return nil
}

// Undo reverses the mutation recorded on messageID and appends an assistant
// message describing the reversal, which it returns. Attempts on the same
// message are serialized and the undone flag is only set once something was
// actually reverted, so it never goes back to false.
func (l *Ledger) Undo(ctx context.Context, messageID string) (models.ChatMessage, error) {
	release := l.lock(messageID)
	defer release()

	msg, err := l.chats.GetMessage(ctx, messageID)
	if err != nil {
		return models.ChatMessage{}, fmt.Errorf("loading message %s: %w", messageID, err)
	}
	if msg.IsUndone {
		return models.ChatMessage{}, ErrAlreadyUndone
	}
	if !msg.Undoable() {
		return models.ChatMessage{}, ErrNotUndoable
	}

	d := *msg.Payload.Undo
	applied, failures := l.revert(ctx, d)
	if applied == 0 && len(failures) > 0 {
		return models.ChatMessage{}, fmt.Errorf("undo failed: %s", strings.Join(failures, "; "))
	}

	marked, err := l.chats.MarkUndone(ctx, messageID)
	if err != nil {
		return models.ChatMessage{}, fmt.Errorf("marking %s undone: %w", messageID, err)
	}
	if !marked {
		// Another process sharing the database got there first.
		l.logger.Warn("message undone concurrently", zap.String("message_id", messageID))
		return models.ChatMessage{}, ErrAlreadyUndone
	}

	reply, err := l.chats.AppendMessage(ctx, models.ChatMessage{
		SessionID: msg.SessionID,
		Role:      models.RoleAssistant,
		Content:   describe(d, failures),
	})
	if err != nil {
		return models.ChatMessage{}, fmt.Errorf("recording reversal: %w", err)
	}
	if err := l.chats.TouchSession(ctx, msg.SessionID); err != nil {
		l.logger.Warn("touching session", zap.String("session_id", msg.SessionID), zap.Error(err))
	}

	l.logger.Info("undid message",
		zap.String("message_id", messageID),
		zap.String("kind", string(d.Kind)),
		zap.Int("applied", applied),
		zap.Int("failed", len(failures)))
	return reply, nil
}

// revert applies the inverse of d. Batch children are reverted newest first
// and a failing child does not stop its siblings.
func (l *Ledger) revert(ctx context.Context, d models.UndoDescriptor) (applied int, failures []string) {
	if d.Kind == models.UndoBatch {
		for i := len(d.Children) - 1; i >= 0; i-- {
			n, f := l.revert(ctx, d.Children[i])
			applied += n
			failures = append(failures, f...)
		}
		return applied, failures
	}
	if err := l.apply(ctx, d); err != nil {
		l.logger.Warn("reverting change failed", zap.String("description", d.Description), zap.Error(err))
		return 0, []string{fmt.Sprintf("%s: %v", d.Description, err)}
	}
	return 1, nil
}

func (l *Ledger) apply(ctx context.Context, d models.UndoDescriptor) error {
	switch d.Kind {
	case models.UndoDeleteCreated:
		err := l.store.Delete(ctx, d.Entity, d.EntityID)
		if errors.Is(err, models.ErrNotFound) {
			return nil
		}
		return err

	case models.UndoRestoreUpdated:
		fields := make(map[string]any, len(d.Fields))
		for k, v := range d.Fields {
			fields[k] = v
		}
		return l.store.Update(ctx, d.Entity, d.EntityID, fields)

	case models.UndoRecreateDeleted:
		fields := make(map[string]any, len(d.Fields)+1)
		for k, v := range d.Fields {
			fields[k] = v
		}
		fields["id"] = d.EntityID
		_, err := l.store.Create(ctx, d.Entity, fields)
		return err
	}
	return fmt.Errorf("unsupported undo kind %q", d.Kind)
}

func describe(d models.UndoDescriptor, failures []string) string {
	var b strings.Builder
	if d.Kind == models.UndoBatch {
		fmt.Fprintf(&b, "Undid %s:", d.Description)
		for _, c := range d.Children {
			b.WriteString("\n- " + c.Description)
		}
	} else {
		b.WriteString("Undid: " + d.Description)
	}
	if len(failures) > 0 {
		b.WriteString("\n\nSome changes could not be reverted:")
		for _, f := range failures {
			b.WriteString("\n- " + f)
		}
	}
	return b.String()
}
