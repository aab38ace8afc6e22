// Package engine adapts external completion services to one request/response
// shape: a system instruction, prior turns, the tool contract and the current
// input go in; a structured call or free text comes out.
package engine

import (
	"context"
	"errors"
	"time"

	"opsdesk/internal/tools"
)

var (
	// ErrUnavailable wraps transport, auth and quota failures.
	ErrUnavailable      = errors.New("reasoning engine unavailable")
	ErrAudioUnsupported = errors.New("audio input not supported by this engine")
)

type Turn struct {
	Role    string
	Content string
}

// Input is either text or raw audio handed to the engine as-is.
type Input struct {
	Text     string
	MimeType string
	Data     []byte
}

func (in Input) IsAudio() bool {
	return len(in.Data) > 0
}

type Request struct {
	SystemInstruction string
	History           []Turn
	// Tools may be nil for plain conversation.
	Tools *tools.Contract
	Input Input
}

type FunctionCall struct {
	Name string
	Args map[string]any
}

type Response struct {
	Call *FunctionCall
	Text string
	// Usage counters when the provider reports them.
	PromptTokens     int64
	CompletionTokens int64
}

type Engine interface {
	Generate(ctx context.Context, req *Request) (*Response, error)
}

type timeoutEngine struct {
	next    Engine
	timeout time.Duration
}

// WithTimeout bounds every Generate call on e. A non-positive timeout
// returns e unchanged.
func WithTimeout(e Engine, timeout time.Duration) Engine {
	if timeout <= 0 {
		return e
	}
	return &timeoutEngine{next: e, timeout: timeout}
}

func (t *timeoutEngine) Generate(ctx context.Context, req *Request) (*Response, error) {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()
	return t.next.Generate(ctx, req)
}
