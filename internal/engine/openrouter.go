package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"opsdesk/internal/models"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"go.uber.org/zap"
)

const DefaultOpenRouterURL = "https://openrouter.ai/api/v1"

// OpenRouter talks to any OpenAI-compatible chat completions endpoint.
type OpenRouter struct {
	client      openai.Client
	model       string
	temperature float64
	logger      *zap.Logger
}

func NewOpenRouter(apiKey, baseURL, model string, temperature float64, logger *zap.Logger) (*OpenRouter, error) {
	if apiKey == "" {
		return nil, errors.New("openrouter: api key is required")
	}
	if baseURL == "" {
		baseURL = DefaultOpenRouterURL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	client := openai.NewClient(
		option.WithAPIKey(apiKey),
		option.WithBaseURL(baseURL),
		option.WithHeader("X-Title", "opsdesk"),
	)
	return &OpenRouter{client: client, model: model, temperature: temperature, logger: logger.Named("openrouter")}, nil
}

func (o *OpenRouter) Generate(ctx context.Context, req *Request) (*Response, error) {
	if req.Input.IsAudio() {
		return nil, ErrAudioUnsupported
	}

	history := []openai.ChatCompletionMessageParamUnion{
		openai.SystemMessage(req.SystemInstruction),
	}
	for _, t := range req.History {
		switch t.Role {
		case models.RoleAssistant:
			history = append(history, openai.AssistantMessage(t.Content))
		case models.RoleSystem:
			history = append(history, openai.SystemMessage(t.Content))
		default:
			history = append(history, openai.UserMessage(t.Content))
		}
	}
	history = append(history, openai.UserMessage(req.Input.Text))

	params := openai.ChatCompletionNewParams{
		Model:       o.model,
		Messages:    history,
		Temperature: openai.Float(o.temperature),
	}
	if req.Tools != nil && len(req.Tools.Capabilities) > 0 {
		params.Tools = req.Tools.OpenAIDefinitions()
	}

	resp, err := o.client.Chat.Completions.New(ctx, params)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("%w: empty response from model", ErrUnavailable)
	}

	msg := resp.Choices[0].Message
	out := &Response{
		Text:             msg.Content,
		PromptTokens:     resp.Usage.PromptTokens,
		CompletionTokens: resp.Usage.CompletionTokens,
	}
	if len(msg.ToolCalls) > 0 {
		tc := msg.ToolCalls[0]
		if len(msg.ToolCalls) > 1 {
			o.logger.Warn("model returned several tool calls, using the first",
				zap.Int("count", len(msg.ToolCalls)),
				zap.String("name", tc.Function.Name))
		}
		args := map[string]any{}
		if err := json.Unmarshal([]byte(tc.Function.Arguments), &args); err != nil {
			// Leave Call nil; the interpreter treats the raw text as a reply.
			o.logger.Warn("tool call arguments are not a JSON object", zap.Error(err))
			if out.Text == "" {
				out.Text = tc.Function.Arguments
			}
			return out, nil
		}
		out.Call = &FunctionCall{Name: tc.Function.Name, Args: args}
	}
	return out, nil
}
