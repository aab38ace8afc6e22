package engine

import (
	"context"
	"errors"
	"fmt"

	"opsdesk/internal/models"

	"go.uber.org/zap"
	"google.golang.org/genai"
)

// Gemini uses the Gemini API and accepts raw audio input directly.
type Gemini struct {
	client      *genai.Client
	model       string
	temperature float32
	logger      *zap.Logger
}

func NewGemini(ctx context.Context, apiKey, model string, temperature float64, logger *zap.Logger) (*Gemini, error) {
	if apiKey == "" {
		return nil, errors.New("gemini: api key is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("creating genai client: %w", err)
	}
	return &Gemini{client: client, model: model, temperature: float32(temperature), logger: logger.Named("gemini")}, nil
}

// Client exposes the underlying client so embeddings can share it.
func (g *Gemini) Client() *genai.Client {
	return g.client
}

func (g *Gemini) Generate(ctx context.Context, req *Request) (*Response, error) {
	var contents []*genai.Content
	for _, t := range req.History {
		switch t.Role {
		case models.RoleAssistant:
			contents = append(contents, genai.NewContentFromText(t.Content, genai.RoleModel))
		case models.RoleSystem:
			contents = append(contents, genai.NewContentFromText("[observation] "+t.Content, genai.RoleUser))
		default:
			contents = append(contents, genai.NewContentFromText(t.Content, genai.RoleUser))
		}
	}

	if req.Input.IsAudio() {
		parts := []*genai.Part{genai.NewPartFromBytes(req.Input.Data, req.Input.MimeType)}
		if req.Input.Text != "" {
			parts = append(parts, genai.NewPartFromText(req.Input.Text))
		}
		contents = append(contents, genai.NewContentFromParts(parts, genai.RoleUser))
	} else {
		contents = append(contents, genai.NewContentFromText(req.Input.Text, genai.RoleUser))
	}

	temp := g.temperature
	cfg := &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(req.SystemInstruction, genai.RoleUser),
		Temperature:       &temp,
	}
	if req.Tools != nil && len(req.Tools.Capabilities) > 0 {
		cfg.Tools = []*genai.Tool{req.Tools.GenAITool()}
	}

	res, err := g.client.Models.GenerateContent(ctx, g.model, contents, cfg)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	out := &Response{Text: res.Text()}
	if res.UsageMetadata != nil {
		out.PromptTokens = int64(res.UsageMetadata.PromptTokenCount)
		out.CompletionTokens = int64(res.UsageMetadata.CandidatesTokenCount)
	}
	if calls := res.FunctionCalls(); len(calls) > 0 {
		if len(calls) > 1 {
			g.logger.Warn("model returned several function calls, using the first",
				zap.Int("count", len(calls)),
				zap.String("name", calls[0].Name))
		}
		args := calls[0].Args
		if args == nil {
			args = map[string]any{}
		}
		out.Call = &FunctionCall{Name: calls[0].Name, Args: args}
	}
	return out, nil
}
