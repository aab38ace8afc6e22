package cli

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"opsdesk/internal/models"

	"github.com/spf13/cobra"
)

// Team members and documents have no action kinds of their own, so they are
// seeded from the shell.

func (c *cli) teamCmd() *cobra.Command {
	team := &cobra.Command{
		Use:   "team",
		Short: "Manage the team roster",
	}

	var name, role, email string
	add := &cobra.Command{
		Use:   "add",
		Short: "Add a team member",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			fields := map[string]any{"name": name}
			if role != "" {
				fields["role"] = role
			}
			if email != "" {
				fields["email"] = email
			}
			return c.createRecord(cmd, models.EntityTeamMember, fields, "team member "+name)
		},
	}
	add.Flags().StringVar(&name, "name", "", "member name (required)")
	add.Flags().StringVar(&role, "role", "", "member role")
	add.Flags().StringVar(&email, "email", "", "member email")
	_ = add.MarkFlagRequired("name")

	list := &cobra.Command{
		Use:   "list",
		Short: "List team members",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.listRecords(cmd, models.EntityTeamMember, "name", "role", "email")
		},
	}

	team.AddCommand(add, list)
	return team
}

func (c *cli) docsCmd() *cobra.Command {
	docs := &cobra.Command{
		Use:   "docs",
		Short: "Manage knowledge documents",
	}

	var title, file string
	add := &cobra.Command{
		Use:   "add [content]",
		Short: "Add a knowledge document from text or --file",
		RunE: func(cmd *cobra.Command, args []string) error {
			content := strings.Join(args, " ")
			if file != "" {
				data, err := os.ReadFile(file)
				if err != nil {
					return fmt.Errorf("reading document: %w", err)
				}
				content = string(data)
			}
			if strings.TrimSpace(content) == "" {
				return errors.New("document is empty: pass content or --file")
			}
			return c.createRecord(cmd, models.EntityDocument, map[string]any{
				"title":   title,
				"content": content,
			}, "document "+title)
		},
	}
	add.Flags().StringVar(&title, "title", "", "document title (required)")
	add.Flags().StringVar(&file, "file", "", "read content from this file")
	_ = add.MarkFlagRequired("title")

	list := &cobra.Command{
		Use:   "list",
		Short: "List knowledge documents",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.listRecords(cmd, models.EntityDocument, "title")
		},
	}

	docs.AddCommand(add, list)
	return docs
}

func (c *cli) createRecord(cmd *cobra.Command, kind models.EntityKind, fields map[string]any, label string) error {
	a, err := c.open(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()

	rec, err := a.Store.Create(cmd.Context(), kind, fields)
	if err != nil {
		return fmt.Errorf("adding %s: %w", label, err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Added %s (%s)\n", label, rec.ID)
	return nil
}

func (c *cli) listRecords(cmd *cobra.Command, kind models.EntityKind, columns ...string) error {
	a, err := c.open(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()

	recs, err := a.Store.List(cmd.Context(), kind, models.Filter{})
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if len(recs) == 0 {
		fmt.Fprintf(out, "No %s records yet.\n", kind)
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\t"+strings.ToUpper(strings.Join(columns, "\t")))
	for _, r := range recs {
		row := []string{r.ID}
		for _, col := range columns {
			row = append(row, r.String(col))
		}
		fmt.Fprintln(w, strings.Join(row, "\t"))
	}
	return w.Flush()
}
