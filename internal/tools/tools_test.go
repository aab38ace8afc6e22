package tools

import (
	"testing"

	"opsdesk/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidate(t *testing.T) {
	c := Default()

	tests := []struct {
		name    string
		req     models.ActionRequest
		wantErr error
	}{
		{
			name: "create task with title",
			req:  models.ActionRequest{Kind: models.KindCreateTask, Payload: map[string]any{"title": "Call Bob", "priority": "high"}},
		},
		{
			name:    "create task without title",
			req:     models.ActionRequest{Kind: models.KindCreateTask, Payload: map[string]any{"priority": "high"}},
			wantErr: ErrInvalidPayload,
		},
		{
			name:    "update without id",
			req:     models.ActionRequest{Kind: models.KindUpdateTask, Payload: map[string]any{"title": "x"}},
			wantErr: ErrInvalidPayload,
		},
		{
			name:    "bad priority",
			req:     models.ActionRequest{Kind: models.KindCreateTask, Payload: map[string]any{"title": "x", "priority": "whenever"}},
			wantErr: ErrInvalidPayload,
		},
		{
			name:    "bad date",
			req:     models.ActionRequest{Kind: models.KindCreateTask, Payload: map[string]any{"title": "x", "due_date": "next week"}},
			wantErr: ErrInvalidPayload,
		},
		{
			name:    "impossible calendar date",
			req:     models.ActionRequest{Kind: models.KindCreateTask, Payload: map[string]any{"title": "x", "due_date": "2026-02-30"}},
			wantErr: ErrInvalidPayload,
		},
		{
			name: "empty optional fields count as absent",
			req:  models.ActionRequest{Kind: models.KindUpdateTask, Payload: map[string]any{"id": "t1", "due_date": "", "priority": nil}},
		},
		{
			name:    "empty required field",
			req:     models.ActionRequest{Kind: models.KindSendMessage, Payload: map[string]any{"recipient_id": "m1", "body": ""}},
			wantErr: ErrInvalidPayload,
		},
		{
			name:    "wrong type",
			req:     models.ActionRequest{Kind: models.KindCreateTask, Payload: map[string]any{"title": 42}},
			wantErr: ErrInvalidPayload,
		},
		{
			name:    "bad time",
			req:     models.ActionRequest{Kind: models.KindCreateTask, Payload: map[string]any{"title": "x", "start_time": "25:00"}},
			wantErr: ErrInvalidPayload,
		},
		{
			name:    "unknown kind",
			req:     models.ActionRequest{Kind: "ARCHIVE_TASK", Payload: map[string]any{"id": "1"}},
			wantErr: ErrUnknownKind,
		},
		{
			name: "query with integer limit from json",
			req:  models.ActionRequest{Kind: models.KindQuery, Payload: map[string]any{"entity": "task", "limit": float64(5)}},
		},
		{
			name:    "query fractional limit",
			req:     models.ActionRequest{Kind: models.KindQuery, Payload: map[string]any{"entity": "task", "limit": 2.5}},
			wantErr: ErrInvalidPayload,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := c.Validate(tt.req)
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestPayloadSchemaCarriesFormats(t *testing.T) {
	c := Default()
	kind, ok := c.Schema(models.KindCreateTask)
	require.True(t, ok)

	props := PayloadSchema(kind)["properties"].(map[string]interface{})
	assert.Equal(t, "date", props["due_date"].(map[string]interface{})["format"])
	assert.Equal(t, clockPattern, props["start_time"].(map[string]interface{})["pattern"])
	assert.Equal(t, []string{"title"}, PayloadSchema(kind)["required"])
}

func TestNormalizeLowercasesEnums(t *testing.T) {
	c := Default()
	req := c.Normalize(models.ActionRequest{
		Kind:    "create_task",
		Payload: map[string]any{"title": "  Review  ", "priority": "High", "status": "In Progress"},
	})
	assert.Equal(t, models.KindCreateTask, req.Kind)
	assert.Equal(t, "Review", req.Payload["title"])
	assert.Equal(t, "high", req.Payload["priority"])
	assert.Equal(t, "in_progress", req.Payload["status"])
	require.NoError(t, c.Validate(req))
}

func TestSanitizeDropsUndeclaredFields(t *testing.T) {
	c := Default()
	out := c.Sanitize(models.ActionRequest{
		Kind:    models.KindCreateProject,
		Payload: map[string]any{"name": "Acme", "colour": "red", "client": ""},
	})
	assert.Equal(t, map[string]any{"name": "Acme"}, out)
}

func TestRenderingsShareRegistry(t *testing.T) {
	c := Default()

	defs := c.OpenAIDefinitions()
	assert.Len(t, defs, len(c.Capabilities))

	tool := c.GenAITool()
	require.Len(t, tool.FunctionDeclarations, len(c.Capabilities))
	for i, d := range tool.FunctionDeclarations {
		assert.Equal(t, c.Capabilities[i].Name, d.Name)
		assert.NotEmpty(t, d.Parameters.Properties)
	}

	ref := c.PromptReference()
	for _, k := range c.Kinds {
		assert.Contains(t, ref, string(k.Kind))
	}
	assert.Contains(t, ref, Version)
}

func TestWithoutDropsCapability(t *testing.T) {
	c := Default().Without(ThinkStep)
	_, ok := c.Capability(ThinkStep)
	assert.False(t, ok)
	_, ok = c.Capability(PerformAction)
	assert.True(t, ok)
	assert.True(t, c.Known(models.KindQuery))
}
