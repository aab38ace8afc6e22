package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"opsdesk/internal/engine"
	"opsdesk/internal/executor"
	"opsdesk/internal/expand"
	"opsdesk/internal/interpret"
	"opsdesk/internal/models"
	"opsdesk/internal/react"

	"go.uber.org/zap"
)

// Turn is one user utterance. An empty SessionID starts a new session.
// Audio, when present, is passed to the engine as-is.
type Turn struct {
	SessionID string
	Text      string
	MimeType  string
	Audio     []byte
	Mode      models.AppMode
	Sink      Sink
}

type OutcomeKind string

const (
	KindReply       OutcomeKind = "reply"
	KindQuestion    OutcomeKind = "question"
	KindDecision    OutcomeKind = "decision"
	KindAction      OutcomeKind = "action"
	KindBatch       OutcomeKind = "batch"
	KindIncomplete  OutcomeKind = "incomplete"
	KindEngineError OutcomeKind = "engine_error"
	KindCanceled    OutcomeKind = "canceled"
)

// TurnResult describes what a turn did. Failed is set whenever the user
// should see an explicit failure indicator next to Reply.
type TurnResult struct {
	Session    models.ChatSession
	User       models.ChatMessage
	Reply      models.ChatMessage
	Kind       OutcomeKind
	Report     *executor.Report
	Iterations []react.Iteration
	Navigate   string
	Failed     bool
	Canceled   bool
}

// HandleTurn runs one turn end to end. Engine, execution and interpretation
// failures become a reply with Failed set; only chat persistence failures
// are returned as errors. Starting a turn cancels the session's previous
// turn if it is still running.
func (o *Orchestrator) HandleTurn(ctx context.Context, t Turn) (TurnResult, error) {
	if strings.TrimSpace(t.Text) == "" && len(t.Audio) == 0 {
		return TurnResult{}, ErrEmptyTurn
	}
	persist := context.WithoutCancel(ctx)

	session, err := o.openSession(persist, t)
	if err != nil {
		return TurnResult{}, err
	}
	res := TurnResult{Session: session}

	ctx, done := o.begin(ctx, session.ID)
	defer done()
	logger := o.logger.With(zap.String("session_id", session.ID), zap.Stringer("mode", t.Mode))

	history, err := o.chats.ListMessages(persist, session.ID)
	if err != nil {
		return res, fmt.Errorf("loading history: %w", err)
	}
	content := t.Text
	if strings.TrimSpace(content) == "" {
		content = "[voice message]"
	}
	res.User, err = o.chats.AppendMessage(persist, models.ChatMessage{SessionID: session.ID, Role: models.RoleUser, Content: content})
	if err != nil {
		return res, fmt.Errorf("saving utterance: %w", err)
	}

	anchor := o.now()
	snap := o.assembler.Assemble(ctx, t.Text, history, anchor)
	input := engine.Input{Text: t.Text, MimeType: t.MimeType, Data: t.Audio}

	var (
		out       interpret.Outcome
		engineErr error
		reply     string
		undos     []*models.UndoDescriptor
	)
	if t.Mode == models.ModeAgent {
		ctrl := react.New(o.engine, o.contract, o.stepAct(session.ID, t.Sink), o.cfg.MaxIterations, o.logger)
		rr, err := ctrl.Run(ctx, react.Request{
			SystemInstruction: systemPrompt(t.Mode, snap, o.contract),
			History:           snap.Turns(),
			Input:             input,
			OnStep: func(it react.Iteration) {
				t.Sink.emit(StepEvent{SessionID: session.ID, Iteration: it})
			},
		})
		res.Iterations = rr.Iterations
		for _, it := range rr.Iterations {
			if it.Result != nil && it.Result.Success {
				undos = append(undos, it.Result.Undo)
			}
			if res.Navigate == "" && it.Result != nil {
				res.Navigate = it.Result.Navigate
			}
		}
		switch {
		case err != nil:
			engineErr = err
		case rr.Incomplete:
			res.Kind, res.Failed = KindIncomplete, true
			reply = rr.Message
			logger.Warn("reasoning loop did not converge", zap.Int("calls", rr.Calls), zap.String("trace", react.Trace(rr.Iterations)))
		default:
			out = rr.Outcome
		}
	} else {
		resp, err := o.engine.Generate(ctx, &engine.Request{
			SystemInstruction: systemPrompt(t.Mode, snap, o.contract),
			History:           snap.Turns(),
			Input:             input,
		})
		if err != nil {
			engineErr = err
		} else {
			out = interpret.Interpret(resp, nil)
		}
	}

	var payload *models.MessagePayload
	switch {
	case engineErr != nil:
		reply = o.engineFailure(ctx, engineErr, &res, logger)
	case out != nil:
		out = expand.Apply(out, t.Text, anchor)
		var u *models.UndoDescriptor
		reply, payload, u = o.resolve(ctx, session.ID, out, &res, t.Sink)
		undos = append(undos, u)
	}

	return o.finish(persist, res, reply, payload, undos, t.Sink)
}

func (o *Orchestrator) openSession(ctx context.Context, t Turn) (models.ChatSession, error) {
	if t.SessionID != "" {
		s, err := o.chats.GetSession(ctx, t.SessionID)
		if err != nil {
			return models.ChatSession{}, fmt.Errorf("loading session %s: %w", t.SessionID, err)
		}
		return s, nil
	}
	s, err := o.chats.CreateSession(ctx, sessionTitle(t.Text))
	if err != nil {
		return models.ChatSession{}, fmt.Errorf("creating session: %w", err)
	}
	return s, nil
}

func (o *Orchestrator) engineFailure(ctx context.Context, err error, res *TurnResult, logger *zap.Logger) string {
	switch {
	case ctx.Err() != nil:
		res.Kind, res.Canceled = KindCanceled, true
		logger.Info("turn canceled")
		return CanceledMessage
	case errors.Is(err, engine.ErrAudioUnsupported):
		res.Kind, res.Failed = KindEngineError, true
		return AudioUnsupported
	default:
		res.Kind, res.Failed = KindEngineError, true
		logger.Error("reasoning engine failed", zap.Error(err))
		return EngineFailureMessage
	}
}

// resolve turns a terminal outcome into reply text, executing actions when
// the outcome carries any.
func (o *Orchestrator) resolve(ctx context.Context, sessionID string, out interpret.Outcome, res *TurnResult, sink Sink) (string, *models.MessagePayload, *models.UndoDescriptor) {
	switch v := out.(type) {
	case interpret.Reply:
		res.Kind = KindReply
		return v.Message, nil, nil

	case interpret.Question:
		res.Kind = KindQuestion
		return v.Message, nil, nil

	case interpret.Decision:
		res.Kind = KindDecision
		d := &models.Decision{Message: v.Message, Options: v.Options}
		return decisionText(d), &models.MessagePayload{Decision: d}, nil

	case interpret.Action:
		res.Kind = KindAction
		reply, undo := o.execute(ctx, sessionID, []models.ActionRequest{v.Request}, v.Message, res, sink)
		return reply, nil, undo

	case interpret.Batch:
		res.Kind = KindBatch
		reply, undo := o.execute(ctx, sessionID, v.Actions, v.Summary, res, sink)
		return reply, nil, undo
	}
	res.Kind = KindReply
	return interpret.FallbackReply, nil, nil
}

func (o *Orchestrator) execute(ctx context.Context, sessionID string, actions []models.ActionRequest, message string, res *TurnResult, sink Sink) (string, *models.UndoDescriptor) {
	report := o.executor.Run(ctx, actions, func(p models.Progress) {
		sink.emit(ProgressEvent{SessionID: sessionID, Progress: p})
	})
	res.Report = &report
	res.Failed = res.Failed || report.Failed()
	res.Canceled = res.Canceled || report.Canceled
	if res.Navigate == "" && report.Navigate != "" {
		res.Navigate = report.Navigate
	}

	var reply string
	switch {
	case len(actions) == 1 && !report.Results[0].Success:
		reply = fmt.Sprintf("I couldn't %s: %s", actions[0].Describe(), report.Results[0].Error)
	case report.Failed() || message == "":
		reply = report.Summary
	case len(actions) == 1:
		reply = message
	default:
		reply = message + "\n\n" + report.Summary
	}
	if report.Canceled {
		reply += "\n\n" + CanceledMessage
	}
	return reply, report.Undo()
}

// finish persists the assistant reply, attaches the turn's undo descriptor
// and emits the closing events.
func (o *Orchestrator) finish(ctx context.Context, res TurnResult, content string, payload *models.MessagePayload, undos []*models.UndoDescriptor, sink Sink) (TurnResult, error) {
	sessionID := res.Session.ID
	msg, err := o.chats.AppendMessage(ctx, models.ChatMessage{
		SessionID: sessionID,
		Role:      models.RoleAssistant,
		Content:   content,
		Payload:   payload,
	})
	if err != nil {
		return res, fmt.Errorf("saving reply: %w", err)
	}

	if undo := combineUndo(undos); undo != nil {
		if err := o.ledger.RecordUndo(ctx, msg.ID, undo); err != nil {
			return res, err
		}
		if msg.Payload == nil {
			msg.Payload = &models.MessagePayload{}
		}
		msg.Payload.Undo = undo
	}
	if err := o.chats.TouchSession(ctx, sessionID); err != nil {
		o.logger.Warn("touching session", zap.String("session_id", sessionID), zap.Error(err))
	}
	res.Reply = msg

	if res.Navigate != "" {
		sink.emit(NavigateEvent{SessionID: sessionID, Path: res.Navigate})
	}
	if payload != nil && payload.Decision != nil {
		sink.emit(DecisionEvent{SessionID: sessionID, MessageID: msg.ID, Decision: *payload.Decision})
	}
	sink.emit(SummaryEvent{SessionID: sessionID, Message: msg, Failed: res.Failed})

	o.logger.Info("turn finished",
		zap.String("session_id", sessionID),
		zap.String("kind", string(res.Kind)),
		zap.Bool("failed", res.Failed),
		zap.Bool("canceled", res.Canceled))
	return res, nil
}

func (o *Orchestrator) stepAct(sessionID string, sink Sink) react.ActFunc {
	return func(ctx context.Context, a models.ActionRequest) models.ActionResult {
		sink.emit(ProgressEvent{SessionID: sessionID, Progress: models.Progress{
			Total: 1, Current: 1, Status: models.StatusExecuting, CurrentAction: a.Describe(),
		}})
		return o.executor.Execute(ctx, a)
	}
}

func combineUndo(list []*models.UndoDescriptor) *models.UndoDescriptor {
	var children []models.UndoDescriptor
	for _, u := range list {
		if u != nil {
			children = append(children, *u)
		}
	}
	switch len(children) {
	case 0:
		return nil
	case 1:
		return &children[0]
	}
	return &models.UndoDescriptor{
		Kind:        models.UndoBatch,
		Description: fmt.Sprintf("%d changes", len(children)),
		Children:    children,
	}
}

func decisionText(d *models.Decision) string {
	var b strings.Builder
	b.WriteString(d.Message)
	for i, opt := range d.Options {
		fmt.Fprintf(&b, "\n%d. %s", i+1, opt.Label)
	}
	return b.String()
}
