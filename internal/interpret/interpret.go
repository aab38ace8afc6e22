// Package interpret maps raw engine output onto a closed set of outcomes.
// Calls are checked against the contract's capabilities and envelope shape;
// action payloads are validated at execution, except decision options,
// which must validate before they are offered. Anything unparseable becomes
// a Reply carrying the raw text.
package interpret

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"opsdesk/internal/engine"
	"opsdesk/internal/models"
	"opsdesk/internal/tools"
)

// Outcome is one of Reply, Action, Batch, Decision, Question or Reasoning.
type Outcome interface {
	outcome()
}

type Reply struct {
	Message string
}

type Action struct {
	Request models.ActionRequest
	Message string
}

type Batch struct {
	Actions []models.ActionRequest
	Summary string
}

type Decision struct {
	Message string
	Options []models.DecisionOption
}

type Question struct {
	Message string
	Context string
}

// Reasoning is an intermediate ReAct step; Next is nil when the engine only
// recorded a thought.
type Reasoning struct {
	Thought string
	Next    *models.ActionRequest
}

func (Reply) outcome()     {}
func (Action) outcome()    {}
func (Batch) outcome()     {}
func (Decision) outcome()  {}
func (Question) outcome()  {}
func (Reasoning) outcome() {}

// FallbackReply is used when the engine produced neither a usable call nor text.
const FallbackReply = "Sorry, I couldn't work out what to do with that. Could you rephrase it?"

var (
	inlineCallRE = regexp.MustCompile(`(?s)^\s*([a-zA-Z][a-zA-Z0-9_]*)\s*(\{.*\})\s*$`)
	fencedRE     = regexp.MustCompile("(?s)```(?:json)?\\s*(\\{.*\\})\\s*```")
)

var errMalformed = errors.New("malformed call")

// Interpret never fails: malformed structure degrades to a Reply.
func Interpret(resp *engine.Response, contract *tools.Contract) Outcome {
	if resp == nil {
		return Reply{Message: FallbackReply}
	}
	text := strings.TrimSpace(resp.Text)

	call := resp.Call
	if call == nil {
		call = recoverInline(text, contract)
	}
	if call != nil {
		if out, err := fromCall(call, contract); err == nil {
			return out
		}
	}
	if text == "" {
		return Reply{Message: FallbackReply}
	}
	return Reply{Message: text}
}

// recoverInline handles models that write `perform_action {...}` or a fenced
// JSON object naming the capability instead of emitting a structured call.
func recoverInline(text string, contract *tools.Contract) *engine.FunctionCall {
	if text == "" || contract == nil {
		return nil
	}
	if m := inlineCallRE.FindStringSubmatch(text); len(m) == 3 {
		if _, ok := contract.Capability(m[1]); ok {
			args := map[string]any{}
			if err := json.Unmarshal([]byte(m[2]), &args); err == nil {
				return &engine.FunctionCall{Name: m[1], Args: args}
			}
		}
	}
	if m := fencedRE.FindStringSubmatch(text); len(m) == 2 {
		var wrapped struct {
			Tool      string         `json:"tool"`
			Arguments map[string]any `json:"arguments"`
		}
		if err := json.Unmarshal([]byte(m[1]), &wrapped); err == nil && wrapped.Tool != "" {
			if _, ok := contract.Capability(wrapped.Tool); ok {
				return &engine.FunctionCall{Name: wrapped.Tool, Args: wrapped.Arguments}
			}
		}
	}
	return nil
}

func fromCall(call *engine.FunctionCall, contract *tools.Contract) (Outcome, error) {
	if contract == nil {
		return nil, fmt.Errorf("%w: no capabilities were offered", errMalformed)
	}
	if _, ok := contract.Capability(call.Name); !ok {
		return nil, fmt.Errorf("%w: unknown capability %q", errMalformed, call.Name)
	}
	args := call.Args

	switch call.Name {
	case tools.PerformAction:
		req, err := actionFrom(args, contract)
		if err != nil {
			return nil, err
		}
		return Action{Request: req, Message: str(args, "message")}, nil

	case tools.PerformBatch:
		items, ok := args["actions"].([]any)
		if !ok || len(items) == 0 {
			return nil, fmt.Errorf("%w: actions must be a non-empty array", errMalformed)
		}
		actions := make([]models.ActionRequest, 0, len(items))
		for i, it := range items {
			obj, ok := it.(map[string]any)
			if !ok {
				return nil, fmt.Errorf("%w: actions[%d] is not an object", errMalformed, i)
			}
			req, err := actionFrom(obj, contract)
			if err != nil {
				return nil, err
			}
			actions = append(actions, req)
		}
		summary := str(args, "summary")
		if len(actions) == 1 {
			return Action{Request: actions[0], Message: summary}, nil
		}
		return Batch{Actions: actions, Summary: summary}, nil

	case tools.OfferChoices:
		items, ok := args["options"].([]any)
		if !ok || len(items) == 0 {
			return nil, fmt.Errorf("%w: options must be a non-empty array", errMalformed)
		}
		d := Decision{Message: str(args, "message")}
		var dropped []string
		for i, it := range items {
			obj, ok := it.(map[string]any)
			if !ok {
				return nil, fmt.Errorf("%w: options[%d] is not an object", errMalformed, i)
			}
			req, err := actionFrom(obj, contract)
			if err != nil {
				return nil, err
			}
			if err := contract.Validate(req); err != nil {
				dropped = append(dropped, err.Error())
				continue
			}
			label := str(obj, "label")
			if label == "" {
				label = req.Describe()
			}
			d.Options = append(d.Options, models.DecisionOption{Label: label, Action: req})
		}
		if len(d.Options) == 0 {
			return nil, fmt.Errorf("%w: no valid options: %s", errMalformed, strings.Join(dropped, "; "))
		}
		if d.Message == "" {
			d.Message = "Which of these did you mean?"
		}
		return d, nil

	case tools.AskQuestion:
		msg := str(args, "message")
		if msg == "" {
			return nil, fmt.Errorf("%w: question without message", errMalformed)
		}
		return Question{Message: msg, Context: str(args, "context")}, nil

	case tools.ThinkStep:
		r := Reasoning{Thought: str(args, "thought")}
		if str(args, "action") != "" {
			req, err := actionFrom(args, contract)
			if err != nil {
				return nil, err
			}
			r.Next = &req
		}
		return r, nil
	}
	return nil, fmt.Errorf("%w: no mapping for capability %q", errMalformed, call.Name)
}

// actionFrom validates the envelope only. Kind and payload are left to the
// executor, where unknown kinds fail closed.
func actionFrom(obj map[string]any, contract *tools.Contract) (models.ActionRequest, error) {
	kind, ok := obj["action"].(string)
	if !ok || strings.TrimSpace(kind) == "" {
		return models.ActionRequest{}, fmt.Errorf("%w: missing action kind", errMalformed)
	}
	payload := map[string]any{}
	switch p := obj["payload"].(type) {
	case nil:
	case map[string]any:
		payload = p
	case string:
		if err := json.Unmarshal([]byte(p), &payload); err != nil {
			return models.ActionRequest{}, fmt.Errorf("%w: payload is not an object", errMalformed)
		}
	default:
		return models.ActionRequest{}, fmt.Errorf("%w: payload is not an object", errMalformed)
	}
	return contract.Normalize(models.ActionRequest{Kind: models.ActionKind(kind), Payload: payload}), nil
}

func str(m map[string]any, key string) string {
	s, _ := m[key].(string)
	return strings.TrimSpace(s)
}
