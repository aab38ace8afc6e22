// Package cli holds the opsdesk command tree.
package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"opsdesk/internal/app"
	"opsdesk/internal/config"
	"opsdesk/internal/logging"
	"opsdesk/internal/mcpserver"
	"opsdesk/internal/tools"
	"opsdesk/internal/ui"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

type cli struct {
	configPath string

	cfg    *config.Config
	logger *zap.Logger
}

// NewRootCmd builds a fresh command tree. Running it without a subcommand
// starts the terminal UI.
func NewRootCmd() *cobra.Command {
	c := &cli{}
	root := &cobra.Command{
		Use:   "opsdesk",
		Short: "opsdesk - conversational operations desk",
		Long: `opsdesk turns plain requests into changes to your tasks and projects.

Every change can be undone. Run without arguments to start the interactive
interface, or use "ask" for a single turn from the shell.`,
		SilenceUsage:      true,
		PersistentPreRunE: c.setup,
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if c.logger != nil {
				_ = c.logger.Sync()
			}
		},
		RunE: c.runTUI,
	}
	root.PersistentFlags().StringVar(&c.configPath, "config", "", "config file (default: <user config dir>/opsdesk/config.yaml)")

	root.AddCommand(
		c.askCmd(),
		c.chooseCmd(),
		c.undoCmd(),
		c.sessionsCmd(),
		c.teamCmd(),
		c.docsCmd(),
		c.mcpCmd(),
	)
	return root
}

// Execute runs the command tree until it finishes or the process is
// interrupted.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return NewRootCmd().ExecuteContext(ctx)
}

func (c *cli) setup(cmd *cobra.Command, args []string) error {
	path := c.configPath
	if path == "" {
		var err error
		if path, err = config.DefaultPath(); err != nil {
			return fmt.Errorf("resolving config path: %w", err)
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return err
	}

	// The UI owns the terminal, so its logs go to a file next to the config.
	if !cmd.HasParent() && cfg.Logging.File == "" {
		cfg.Logging.File = filepath.Join(filepath.Dir(path), "opsdesk.log")
	}
	logger, err := logging.New(cfg.Logging)
	if err != nil {
		return err
	}

	c.cfg = cfg
	c.logger = logger
	return nil
}

func (c *cli) open(ctx context.Context) (*app.App, error) {
	return app.New(ctx, c.cfg, c.logger)
}

func (c *cli) runTUI(cmd *cobra.Command, args []string) error {
	a, err := c.open(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()

	p := ui.NewProgram(cmd.Context(), a.Orchestrator, ui.Options{
		Provider:           c.cfg.Engine.Provider,
		Model:              c.cfg.Engine.Model,
		ProgressClearDelay: c.cfg.ProgressClearDelay(),
	})
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("running interface: %w", err)
	}
	return nil
}

func (c *cli) mcpCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve turns, choices and undo over MCP on stdio",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := c.open(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			c.logger.Info("serving MCP on stdio", zap.String("contract_version", tools.Version))
			return mcpserver.New(a.Orchestrator, c.logger).Serve()
		},
	}
}
