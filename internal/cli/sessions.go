package cli

import (
	"fmt"
	"text/tabwriter"

	"opsdesk/internal/ui"

	"github.com/spf13/cobra"
)

func (c *cli) sessionsCmd() *cobra.Command {
	var (
		limit    int
		offset   int
		deleteID string
		showID   string
	)
	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "List, show or delete conversation sessions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := c.open(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			out := cmd.OutOrStdout()
			switch {
			case deleteID != "":
				if err := a.Orchestrator.DeleteSession(cmd.Context(), deleteID); err != nil {
					return fmt.Errorf("deleting session %s: %w", deleteID, err)
				}
				fmt.Fprintf(out, "Deleted session %s\n", deleteID)
				return nil

			case showID != "":
				msgs, err := a.Orchestrator.Messages(cmd.Context(), showID)
				if err != nil {
					return err
				}
				for _, m := range msgs {
					marker := ""
					switch {
					case m.IsUndone:
						marker = " (undone)"
					case m.Undoable():
						marker = " (undoable)"
					}
					fmt.Fprintf(out, "[%s] %s%s: %s\n", m.ID, m.Role, marker, m.Content)
				}
				return nil
			}

			total, sessions, err := a.Orchestrator.Sessions(cmd.Context(), limit, offset)
			if err != nil {
				return err
			}
			if total == 0 {
				fmt.Fprintln(out, "No sessions yet.")
				return nil
			}
			w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tUPDATED\tTITLE")
			for _, s := range sessions {
				fmt.Fprintf(w, "%s\t%s\t%s\n", s.ID, ui.RelativeTime(s.UpdatedAt), ui.TruncateRunes(s.Title, 60))
			}
			if err := w.Flush(); err != nil {
				return err
			}
			fmt.Fprintf(out, "\n%d of %d sessions\n", len(sessions), total)
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "sessions per page")
	cmd.Flags().IntVar(&offset, "offset", 0, "sessions to skip")
	cmd.Flags().StringVar(&deleteID, "delete", "", "delete this session and its messages")
	cmd.Flags().StringVar(&showID, "show", "", "print the timeline of this session")
	return cmd
}
