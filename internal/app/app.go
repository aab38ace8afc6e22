// Package app wires configuration into a running orchestrator.
package app

import (
	"context"
	"errors"
	"fmt"

	"opsdesk/internal/assembler"
	"opsdesk/internal/config"
	"opsdesk/internal/db"
	"opsdesk/internal/engine"
	"opsdesk/internal/executor"
	"opsdesk/internal/knowledge"
	"opsdesk/internal/orchestrator"
	"opsdesk/internal/tools"
	"opsdesk/internal/undo"

	"github.com/philippgille/chromem-go"
	"go.uber.org/zap"
)

type App struct {
	Config       *config.Config
	Logger       *zap.Logger
	Store        *db.Store
	Contract     *tools.Contract
	Orchestrator *orchestrator.Orchestrator
}

// New opens the database and builds the turn pipeline. A missing API key
// is not fatal: turns then fail with the engine-unavailable reply while
// sessions and undo keep working.
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	path := cfg.Database.Path
	if path == "" {
		var err error
		if path, err = db.DefaultPath(); err != nil {
			return nil, fmt.Errorf("resolving database path: %w", err)
		}
	}
	conn, err := db.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening database %s: %w", path, err)
	}
	store := db.NewStore(conn)

	eng, embed, err := buildEngine(ctx, cfg, logger)
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	var index assembler.DocumentIndex
	if cfg.Knowledge.Enabled {
		ix, err := knowledge.NewIndex(embed, logger)
		if err != nil {
			_ = store.Close()
			return nil, err
		}
		index = ix
	}

	contract := tools.Default()
	asm := assembler.New(store, index, assembler.Config{
		MaxTasks:     cfg.Context.MaxTasks,
		HistoryTurns: cfg.Context.HistoryTurns,
		MaxDocuments: cfg.Context.MaxDocuments,
	}, logger)
	exec := executor.New(store, contract, logger, executor.WithMaxParallel(cfg.Orchestrator.MaxParallel))
	ledger := undo.New(store, store, logger)

	orch := orchestrator.New(
		engine.WithTimeout(eng, cfg.EngineTimeout()),
		store, asm, exec, ledger, contract,
		orchestrator.Config{MaxIterations: cfg.Orchestrator.MaxIterations},
		logger,
	)

	logger.Info("opsdesk ready",
		zap.String("provider", cfg.Engine.Provider),
		zap.String("model", cfg.Engine.Model),
		zap.String("database", path),
		zap.Bool("knowledge", cfg.Knowledge.Enabled),
		zap.String("contract_version", tools.Version))

	return &App{Config: cfg, Logger: logger, Store: store, Contract: contract, Orchestrator: orch}, nil
}

func (a *App) Close() error {
	return a.Store.Close()
}

// buildEngine returns the configured engine and the embedder documents are
// indexed with. Gemini shares its client for embeddings; everything else
// falls back to offline hashing.
func buildEngine(ctx context.Context, cfg *config.Config, logger *zap.Logger) (engine.Engine, chromem.EmbeddingFunc, error) {
	ec := cfg.Engine
	offline := knowledge.HashEmbedder(cfg.Knowledge.Dimension)

	if ec.APIKey == "" {
		logger.Warn("no API key configured, turns will fail until one is set", zap.String("provider", ec.Provider))
		return unconfigured{provider: ec.Provider}, offline, nil
	}

	switch ec.Provider {
	case config.ProviderGemini:
		g, err := engine.NewGemini(ctx, ec.APIKey, ec.Model, ec.Temperature, logger)
		if err != nil {
			return nil, nil, err
		}
		return g, knowledge.GeminiEmbedder(g.Client(), cfg.Knowledge.EmbeddingModel, cfg.Knowledge.Dimension), nil
	case config.ProviderOpenRouter:
		o, err := engine.NewOpenRouter(ec.APIKey, ec.BaseURL, ec.Model, ec.Temperature, logger)
		if err != nil {
			return nil, nil, err
		}
		return o, offline, nil
	}
	return nil, nil, fmt.Errorf("unsupported provider %q", ec.Provider)
}

type unconfigured struct {
	provider string
}

var errNoKey = errors.New("no API key configured")

func (u unconfigured) Generate(context.Context, *engine.Request) (*engine.Response, error) {
	return nil, fmt.Errorf("%w: %s: %w", engine.ErrUnavailable, u.provider, errNoKey)
}
