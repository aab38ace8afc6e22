package cli

import (
	"errors"
	"fmt"
	"io"
	"mime"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"opsdesk/internal/models"
	"opsdesk/internal/orchestrator"
	"opsdesk/internal/ui"

	"github.com/spf13/cobra"
)

func (c *cli) askCmd() *cobra.Command {
	var (
		audioPath string
		sessionID string
		agent     bool
	)
	cmd := &cobra.Command{
		Use:   "ask [text]",
		Short: "Run one turn and print the reply",
		Long: `Sends one request through the same pipeline the interface uses.

Pass --session to continue an earlier conversation. With --audio the file is
sent to the engine as a voice message.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			turn := orchestrator.Turn{
				SessionID: sessionID,
				Text:      strings.Join(args, " "),
				Mode:      models.ModeChat,
			}
			if agent {
				turn.Mode = models.ModeAgent
			}
			if audioPath != "" {
				data, err := os.ReadFile(audioPath)
				if err != nil {
					return fmt.Errorf("reading audio: %w", err)
				}
				turn.Audio = data
				turn.MimeType = audioMime(audioPath)
			}
			if strings.TrimSpace(turn.Text) == "" && len(turn.Audio) == 0 {
				return errors.New("nothing to ask: pass text or --audio")
			}

			a, err := c.open(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			turn.Sink = progressSink(cmd.ErrOrStderr())
			res, err := a.Orchestrator.HandleTurn(cmd.Context(), turn)
			if err != nil {
				return err
			}
			printResult(cmd.OutOrStdout(), res)
			return nil
		},
	}
	cmd.Flags().StringVar(&audioPath, "audio", "", "voice message file to send")
	cmd.Flags().StringVarP(&sessionID, "session", "s", "", "continue this session")
	cmd.Flags().BoolVar(&agent, "agent", true, "offer actions and multi-step reasoning (--agent=false for plain chat)")
	return cmd
}

func (c *cli) chooseCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "choose <message-id> <option>",
		Short: "Pick an option of a pending decision (1-based)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := strconv.Atoi(args[1])
			if err != nil || n < 1 {
				return fmt.Errorf("option must be a positive number, got %q", args[1])
			}

			a, err := c.open(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			res, err := a.Orchestrator.ChooseOption(cmd.Context(), args[0], n-1, progressSink(cmd.ErrOrStderr()))
			switch {
			case errors.Is(err, orchestrator.ErrDecisionResolved):
				return errors.New("that decision was already made")
			case errors.Is(err, orchestrator.ErrNoDecision):
				return errors.New("that message has no decision to make")
			case err != nil:
				return err
			}
			printResult(cmd.OutOrStdout(), res)
			return nil
		},
	}
}

func (c *cli) undoCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "undo <message-id>",
		Short: "Reverse the changes a reply made",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := c.open(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			msg, err := a.Orchestrator.Undo(cmd.Context(), args[0])
			if err != nil {
				return fmt.Errorf("undo %s: %w", args[0], err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), msg.Content)
			return nil
		},
	}
}

// progressSink prints reasoning steps and batch progress as they happen.
func progressSink(w io.Writer) orchestrator.Sink {
	return func(e orchestrator.Event) {
		switch e := e.(type) {
		case orchestrator.StepEvent:
			fmt.Fprintf(w, "→ %s\n", ui.StepLine(e.Iteration))
		case orchestrator.ProgressEvent:
			if e.Progress.Status == models.StatusExecuting && e.Progress.CurrentAction != "" {
				fmt.Fprintf(w, "[%d/%d] %s\n", e.Progress.Current, e.Progress.Total, e.Progress.CurrentAction)
			}
		}
	}
}

func printResult(w io.Writer, res orchestrator.TurnResult) {
	fmt.Fprintln(w, res.Reply.Content)
	fmt.Fprintln(w)
	fmt.Fprintf(w, "session: %s\n", res.Session.ID)
	fmt.Fprintf(w, "message: %s\n", res.Reply.ID)
	if res.Navigate != "" {
		fmt.Fprintf(w, "navigate: %s\n", res.Navigate)
	}
	if res.Reply.Undoable() {
		fmt.Fprintf(w, "undo with: opsdesk undo %s\n", res.Reply.ID)
	}
	if res.Kind == orchestrator.KindDecision {
		fmt.Fprintf(w, "choose with: opsdesk choose %s <option>\n", res.Reply.ID)
	}
}

// The system mime table often lacks audio types.
var audioTypes = map[string]string{
	".wav":  "audio/wav",
	".mp3":  "audio/mp3",
	".ogg":  "audio/ogg",
	".flac": "audio/flac",
	".m4a":  "audio/aac",
	".aac":  "audio/aac",
	".webm": "audio/webm",
}

func audioMime(path string) string {
	ext := strings.ToLower(filepath.Ext(path))
	if t, ok := audioTypes[ext]; ok {
		return t
	}
	if t := mime.TypeByExtension(ext); t != "" {
		return t
	}
	return "application/octet-stream"
}
