// Package orchestrator runs conversational turns: it assembles context,
// calls the reasoning engine, interprets and refines its output, executes
// the resulting actions and records undo information on the reply.
package orchestrator

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"opsdesk/internal/assembler"
	"opsdesk/internal/engine"
	"opsdesk/internal/executor"
	"opsdesk/internal/models"
	"opsdesk/internal/tools"
	"opsdesk/internal/undo"

	"go.uber.org/zap"
)

var (
	ErrNoDecision       = errors.New("message has no pending decision")
	ErrDecisionResolved = errors.New("decision already resolved")
	ErrInvalidOption    = errors.New("no such option")
	ErrEmptyTurn        = errors.New("turn has neither text nor audio")
)

const (
	EngineFailureMessage = "I couldn't reach the assistant service just now, so nothing was changed. Please try again in a moment."
	AudioUnsupported     = "The configured assistant can't listen to voice messages. Please type your request instead."
	CanceledMessage      = "Stopped. Anything already completed in this turn stays applied."

	maxTitleLen = 48
)

type Config struct {
	MaxIterations int
}

type Orchestrator struct {
	engine    engine.Engine
	chats     models.ChatStore
	assembler *assembler.Assembler
	executor  *executor.Executor
	ledger    *undo.Ledger
	contract  *tools.Contract
	cfg       Config
	logger    *zap.Logger
	now       func() time.Time

	mu      sync.Mutex
	running map[string]*inflight

	decisionMu sync.Mutex
}

type inflight struct {
	cancel context.CancelFunc
}

type Option func(*Orchestrator)

// WithClock fixes the instant relative dates resolve against.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

func New(
	eng engine.Engine,
	chats models.ChatStore,
	asm *assembler.Assembler,
	exec *executor.Executor,
	ledger *undo.Ledger,
	contract *tools.Contract,
	cfg Config,
	logger *zap.Logger,
	opts ...Option,
) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	if contract == nil {
		contract = tools.Default()
	}
	o := &Orchestrator{
		engine:    eng,
		chats:     chats,
		assembler: asm,
		executor:  exec,
		ledger:    ledger,
		contract:  contract,
		cfg:       cfg,
		logger:    logger.Named("orchestrator"),
		now:       time.Now,
		running:   map[string]*inflight{},
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// begin registers a new cancellation token for the session, cancelling the
// token of any turn still in flight there.
func (o *Orchestrator) begin(parent context.Context, sessionID string) (context.Context, func()) {
	ctx, cancel := context.WithCancel(parent)
	tok := &inflight{cancel: cancel}

	o.mu.Lock()
	if prev := o.running[sessionID]; prev != nil {
		o.logger.Debug("superseding in-flight turn", zap.String("session_id", sessionID))
		prev.cancel()
	}
	o.running[sessionID] = tok
	o.mu.Unlock()

	return ctx, func() {
		o.mu.Lock()
		if o.running[sessionID] == tok {
			delete(o.running, sessionID)
		}
		o.mu.Unlock()
		cancel()
	}
}

// Cancel stops the session's in-flight turn, if any. Work already applied
// stays applied.
func (o *Orchestrator) Cancel(sessionID string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	tok := o.running[sessionID]
	if tok == nil {
		return false
	}
	tok.cancel()
	return true
}

// Busy reports whether a turn is running for the session.
func (o *Orchestrator) Busy(sessionID string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.running[sessionID] != nil
}

// Undo reverses the mutation reported by an assistant message.
func (o *Orchestrator) Undo(ctx context.Context, messageID string) (models.ChatMessage, error) {
	return o.ledger.Undo(ctx, messageID)
}

func (o *Orchestrator) Sessions(ctx context.Context, limit, offset int) (int, []models.ChatSession, error) {
	return o.chats.ListSessions(ctx, limit, offset)
}

func (o *Orchestrator) Messages(ctx context.Context, sessionID string) ([]models.ChatMessage, error) {
	return o.chats.ListMessages(ctx, sessionID)
}

func (o *Orchestrator) DeleteSession(ctx context.Context, sessionID string) error {
	o.Cancel(sessionID)
	return o.chats.DeleteSession(ctx, sessionID)
}

// sessionTitle derives a title from the first utterance.
func sessionTitle(text string) string {
	text = strings.TrimSpace(text)
	if i := strings.IndexByte(text, '\n'); i >= 0 {
		text = text[:i]
	}
	if text == "" {
		return "Voice message"
	}
	if utf8.RuneCountInString(text) <= maxTitleLen {
		return text
	}
	runes := []rune(text)
	return strings.TrimSpace(string(runes[:maxTitleLen])) + "…"
}
