// Package react runs bounded reason → act → observe loops. Each iteration
// makes exactly one engine call; an intermediate step's action is executed
// and its observation is fed back as a system turn before the next call.
package react

import (
	"context"
	"encoding/json"
	"fmt"
	"unicode/utf8"

	"opsdesk/internal/engine"
	"opsdesk/internal/interpret"
	"opsdesk/internal/models"
	"opsdesk/internal/tools"

	"go.uber.org/zap"
)

const (
	DefaultMaxIterations = 5

	ContinuePrompt = "Continue working toward the original request. Take the next step, or answer if you are done."

	maxObservation = 2000
)

// ActFunc executes one action proposed by an intermediate step.
type ActFunc func(ctx context.Context, action models.ActionRequest) models.ActionResult

type Iteration struct {
	Index       int
	Thought     string
	Action      *models.ActionRequest
	Result      *models.ActionResult
	Observation string
}

// Result of a loop. Outcome holds the terminal interpreted outcome unless
// the loop ran out of iterations, in which case Incomplete is set and
// Message explains why.
type Result struct {
	Outcome    interpret.Outcome
	Iterations []Iteration
	Calls      int
	Incomplete bool
	Message    string
}

type Request struct {
	SystemInstruction string
	History           []engine.Turn
	Input             engine.Input
	// OnStep, if set, is called after every intermediate iteration.
	OnStep func(Iteration)
}

type Controller struct {
	engine        engine.Engine
	contract      *tools.Contract
	act           ActFunc
	maxIterations int
	logger        *zap.Logger
}

func New(eng engine.Engine, contract *tools.Contract, act ActFunc, maxIterations int, logger *zap.Logger) *Controller {
	if maxIterations <= 0 {
		maxIterations = DefaultMaxIterations
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Controller{
		engine:        eng,
		contract:      contract,
		act:           act,
		maxIterations: maxIterations,
		logger:        logger.Named("react"),
	}
}

// Run loops until the engine produces a terminal outcome or the iteration
// cap is hit. Errors are only returned for engine failures and
// cancellation; the partial Result is returned alongside them.
func (c *Controller) Run(ctx context.Context, req Request) (Result, error) {
	var res Result
	history := append([]engine.Turn(nil), req.History...)
	input := req.Input

	for i := 0; i < c.maxIterations; i++ {
		if err := ctx.Err(); err != nil {
			return res, err
		}

		resp, err := c.engine.Generate(ctx, &engine.Request{
			SystemInstruction: req.SystemInstruction,
			History:           history,
			Tools:             c.contract,
			Input:             input,
		})
		res.Calls++
		if err != nil {
			return res, err
		}

		out := interpret.Interpret(resp, c.contract)
		step, ok := out.(interpret.Reasoning)
		if !ok {
			res.Outcome = out
			c.logger.Debug("loop finished", zap.Int("calls", res.Calls), zap.String("outcome", fmt.Sprintf("%T", out)))
			return res, nil
		}

		it := Iteration{Index: i, Thought: step.Thought, Action: step.Next}
		if step.Next != nil {
			if err := ctx.Err(); err != nil {
				return res, err
			}
			result := c.act(ctx, *step.Next)
			it.Result = &result
			it.Observation = Observe(result)
		} else {
			it.Observation = "No action was taken."
		}
		res.Iterations = append(res.Iterations, it)
		if req.OnStep != nil {
			req.OnStep(it)
		}

		c.logger.Debug("iteration",
			zap.Int("index", i),
			zap.String("thought", step.Thought),
			zap.Bool("acted", step.Next != nil))

		history = append(history,
			engine.Turn{Role: models.RoleUser, Content: inputText(input)},
			engine.Turn{Role: models.RoleAssistant, Content: thoughtText(it)},
			engine.Turn{Role: models.RoleSystem, Content: "Observation: " + it.Observation},
		)
		input = engine.Input{Text: ContinuePrompt}
	}

	res.Incomplete = true
	res.Message = fmt.Sprintf("I stopped after reaching the maximum of %d iterations without finishing the request.", c.maxIterations)
	c.logger.Warn("iteration bound reached", zap.Int("max_iterations", c.maxIterations))
	return res, nil
}

// Observe serializes an action result for the engine.
func Observe(r models.ActionResult) string {
	obs := struct {
		Success bool   `json:"success"`
		Data    any    `json:"data,omitempty"`
		Error   string `json:"error,omitempty"`
	}{r.Success, r.Data, r.Error}
	raw, err := json.Marshal(obs)
	if err != nil {
		return fmt.Sprintf(`{"success":%t,"error":%q}`, r.Success, r.Error)
	}
	if len(raw) > maxObservation {
		cut := maxObservation
		for cut > 0 && !utf8.RuneStart(raw[cut]) {
			cut--
		}
		return string(raw[:cut]) + "…(truncated)"
	}
	return string(raw)
}

// Trace renders the iterations for diagnostics.
func Trace(its []Iteration) string {
	var out string
	for _, it := range its {
		out += fmt.Sprintf("%d. thought: %s\n", it.Index+1, it.Thought)
		if it.Action != nil {
			out += "   action: " + it.Action.Describe() + "\n"
		}
		out += "   observation: " + it.Observation + "\n"
	}
	return out
}

func inputText(in engine.Input) string {
	if in.IsAudio() && in.Text == "" {
		return "[voice message]"
	}
	return in.Text
}

func thoughtText(it Iteration) string {
	s := "Thought: " + it.Thought
	if it.Action != nil {
		s += "\nAction: " + it.Action.Describe()
	}
	return s
}
