package app

import (
	"context"
	"path/filepath"
	"testing"

	"opsdesk/internal/config"
	"opsdesk/internal/engine"
	"opsdesk/internal/models"
	"opsdesk/internal/orchestrator"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func testConfig(t *testing.T) *config.Config {
	cfg := config.DefaultConfig()
	cfg.Database.Path = filepath.Join(t.TempDir(), "opsdesk.db")
	return cfg
}

func TestWithoutKeyTurnsFailGracefully(t *testing.T) {
	a, err := New(context.Background(), testConfig(t), zaptest.NewLogger(t))
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })

	res, err := a.Orchestrator.HandleTurn(context.Background(), orchestrator.Turn{Text: "add a task", Mode: models.ModeAgent})
	require.NoError(t, err)
	assert.True(t, res.Failed)
	assert.Equal(t, orchestrator.EngineFailureMessage, res.Reply.Content)

	total, sessions, err := a.Orchestrator.Sessions(context.Background(), 10, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	assert.Len(t, sessions, 1)
}

func TestUnconfiguredEngineIsUnavailable(t *testing.T) {
	_, err := unconfigured{provider: "gemini"}.Generate(context.Background(), &engine.Request{})
	assert.ErrorIs(t, err, engine.ErrUnavailable)
	assert.ErrorIs(t, err, errNoKey)
}

func TestInvalidConfigRejected(t *testing.T) {
	cfg := testConfig(t)
	cfg.Engine.Provider = "nope"
	_, err := New(context.Background(), cfg, nil)
	assert.Error(t, err)
}

func TestOpenRouterEngineBuilt(t *testing.T) {
	cfg := testConfig(t)
	cfg.Engine.APIKey = "sk-test"
	cfg.Knowledge.Enabled = false
	a, err := New(context.Background(), cfg, zaptest.NewLogger(t))
	require.NoError(t, err)
	assert.NoError(t, a.Close())
}
