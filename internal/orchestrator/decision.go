package orchestrator

import (
	"context"
	"fmt"

	"opsdesk/internal/models"

	"go.uber.org/zap"
)

// ChooseOption executes option index of the decision stored on messageID.
// The decision is marked resolved before anything runs, so each decision
// executes at most once.
func (o *Orchestrator) ChooseOption(ctx context.Context, messageID string, index int, sink Sink) (TurnResult, error) {
	persist := context.WithoutCancel(ctx)

	option, sessionID, err := o.claimOption(persist, messageID, index)
	if err != nil {
		return TurnResult{}, err
	}
	session, err := o.chats.GetSession(persist, sessionID)
	if err != nil {
		return TurnResult{}, fmt.Errorf("loading session %s: %w", sessionID, err)
	}
	res := TurnResult{Session: session}

	ctx, done := o.begin(ctx, sessionID)
	defer done()

	res.User, err = o.chats.AppendMessage(persist, models.ChatMessage{
		SessionID: sessionID,
		Role:      models.RoleUser,
		Content:   "Chose: " + option.Label,
	})
	if err != nil {
		return res, fmt.Errorf("saving choice: %w", err)
	}

	o.logger.Info("decision resolved",
		zap.String("session_id", sessionID),
		zap.String("message_id", messageID),
		zap.Int("option", index))

	res.Kind = KindAction
	reply, undo := o.execute(ctx, sessionID, []models.ActionRequest{option.Action}, "", &res, sink)
	return o.finish(persist, res, reply, nil, []*models.UndoDescriptor{undo}, sink)
}

func (o *Orchestrator) claimOption(ctx context.Context, messageID string, index int) (models.DecisionOption, string, error) {
	o.decisionMu.Lock()
	defer o.decisionMu.Unlock()

	msg, err := o.chats.GetMessage(ctx, messageID)
	if err != nil {
		return models.DecisionOption{}, "", fmt.Errorf("loading message %s: %w", messageID, err)
	}
	if msg.Payload == nil || msg.Payload.Decision == nil {
		return models.DecisionOption{}, "", ErrNoDecision
	}
	d := msg.Payload.Decision
	if d.Resolved {
		return models.DecisionOption{}, "", ErrDecisionResolved
	}
	if index < 0 || index >= len(d.Options) {
		return models.DecisionOption{}, "", fmt.Errorf("%w: %d of %d", ErrInvalidOption, index+1, len(d.Options))
	}

	d.Resolved = true
	d.Chosen = index
	if err := o.chats.UpdatePayload(ctx, messageID, msg.Payload); err != nil {
		return models.DecisionOption{}, "", fmt.Errorf("resolving decision: %w", err)
	}
	return d.Options[index], msg.SessionID, nil
}
