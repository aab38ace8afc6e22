// Package assembler builds the bounded context block injected into the
// reasoning prompt for one turn.
package assembler

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"opsdesk/internal/engine"
	"opsdesk/internal/models"

	"go.uber.org/zap"
)

const (
	DefaultMaxTasks     = 50
	DefaultHistoryTurns = 4
	DefaultMaxDocuments = 5

	snippetLen = 300
)

type Config struct {
	MaxTasks     int
	HistoryTurns int
	MaxDocuments int
}

func (c Config) withDefaults() Config {
	if c.MaxTasks <= 0 {
		c.MaxTasks = DefaultMaxTasks
	}
	if c.HistoryTurns <= 0 {
		c.HistoryTurns = DefaultHistoryTurns
	}
	if c.MaxDocuments <= 0 {
		c.MaxDocuments = DefaultMaxDocuments
	}
	return c
}

// DocumentIndex ranks knowledge documents against an utterance.
type DocumentIndex interface {
	Sync(ctx context.Context, docs []models.Record) error
	Relevant(ctx context.Context, query string, n int) ([]string, error)
}

type Category string

const (
	CategoryTasks     Category = "tasks"
	CategoryProjects  Category = "projects"
	CategoryTeam      Category = "team"
	CategoryDocuments Category = "documents"
)

// Snapshot is the context for one turn. Degraded lists categories whose
// fetch failed; their sections are empty.
type Snapshot struct {
	Now       time.Time
	Tasks     []models.Record
	Projects  []models.Record
	Team      []models.Record
	Documents []models.Record
	History   []models.ChatMessage
	Degraded  []Category
}

type Assembler struct {
	store  models.DomainStore
	index  DocumentIndex
	cfg    Config
	logger *zap.Logger
}

// New returns an assembler. index may be nil, in which case the first
// MaxDocuments documents are used.
func New(store models.DomainStore, index DocumentIndex, cfg Config, logger *zap.Logger) *Assembler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Assembler{store: store, index: index, cfg: cfg.withDefaults(), logger: logger.Named("assembler")}
}

// Assemble never fails: a category that cannot be read is left empty and
// recorded in Snapshot.Degraded.
func (a *Assembler) Assemble(ctx context.Context, utterance string, history []models.ChatMessage, now time.Time) Snapshot {
	s := Snapshot{Now: now}

	if tasks, err := a.store.List(ctx, models.EntityTask, models.Filter{}); err != nil {
		s.degrade(a.logger, CategoryTasks, err)
	} else {
		s.Tasks = openTasks(tasks, a.cfg.MaxTasks)
	}
	if projects, err := a.store.List(ctx, models.EntityProject, models.Filter{}); err != nil {
		s.degrade(a.logger, CategoryProjects, err)
	} else {
		s.Projects = projects
	}
	if team, err := a.store.List(ctx, models.EntityTeamMember, models.Filter{}); err != nil {
		s.degrade(a.logger, CategoryTeam, err)
	} else {
		s.Team = team
	}
	if docs, err := a.store.List(ctx, models.EntityDocument, models.Filter{}); err != nil {
		s.degrade(a.logger, CategoryDocuments, err)
	} else {
		s.Documents = a.relevantDocuments(ctx, utterance, docs)
	}

	s.History = lastTurns(history, a.cfg.HistoryTurns)
	return s
}

func (s *Snapshot) degrade(logger *zap.Logger, c Category, err error) {
	logger.Warn("context section unavailable", zap.String("category", string(c)), zap.Error(err))
	s.Degraded = append(s.Degraded, c)
}

func (a *Assembler) relevantDocuments(ctx context.Context, utterance string, docs []models.Record) []models.Record {
	limit := a.cfg.MaxDocuments
	if a.index == nil || strings.TrimSpace(utterance) == "" {
		return head(docs, limit)
	}
	if err := a.index.Sync(ctx, docs); err != nil {
		a.logger.Warn("document index sync failed, using unranked documents", zap.Error(err))
		return head(docs, limit)
	}
	ids, err := a.index.Relevant(ctx, utterance, limit)
	if err != nil {
		a.logger.Warn("document ranking failed, using unranked documents", zap.Error(err))
		return head(docs, limit)
	}
	byID := make(map[string]models.Record, len(docs))
	for _, d := range docs {
		byID[d.ID] = d
	}
	out := make([]models.Record, 0, len(ids))
	for _, id := range ids {
		if d, ok := byID[id]; ok {
			out = append(out, d)
		}
	}
	return out
}

// openTasks drops finished items and keeps the earliest due first; items
// without a due date go last.
func openTasks(tasks []models.Record, limit int) []models.Record {
	open := make([]models.Record, 0, len(tasks))
	for _, t := range tasks {
		if t.String("status") != "done" {
			open = append(open, t)
		}
	}
	sort.SliceStable(open, func(i, j int) bool {
		di, dj := open[i].String("due_date"), open[j].String("due_date")
		if di == "" || dj == "" {
			return di != "" && dj == ""
		}
		return di < dj
	})
	return head(open, limit)
}

func lastTurns(history []models.ChatMessage, n int) []models.ChatMessage {
	var turns []models.ChatMessage
	for _, m := range history {
		if m.Role == models.RoleUser || m.Role == models.RoleAssistant {
			turns = append(turns, m)
		}
	}
	if len(turns) > n {
		turns = turns[len(turns)-n:]
	}
	return turns
}

func head(recs []models.Record, n int) []models.Record {
	if len(recs) > n {
		return recs[:n]
	}
	return recs
}

// Turns converts the retained history into engine turns.
func (s Snapshot) Turns() []engine.Turn {
	turns := make([]engine.Turn, 0, len(s.History))
	for _, m := range s.History {
		turns = append(turns, engine.Turn{Role: m.Role, Content: m.Content})
	}
	return turns
}

func (s Snapshot) isDegraded(c Category) bool {
	for _, d := range s.Degraded {
		if d == c {
			return true
		}
	}
	return false
}

// Render produces the textual context block. The first lines carry the
// time anchor every relative date in the turn resolves against.
func (s Snapshot) Render() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Current time: %s (%s)\n", s.Now.Format(time.RFC3339), s.Now.Format("Monday, 2 January 2006"))
	fmt.Fprintf(&b, "Today's date: %s. Resolve relative dates such as \"tomorrow\" or \"next Monday\" against this date.\n", s.Now.Format(time.DateOnly))

	s.section(&b, "Open tasks", CategoryTasks, s.Tasks, func(r models.Record) string {
		line := fmt.Sprintf("[%s] %s", r.ID, r.String("title"))
		if d := r.String("due_date"); d != "" {
			line += " | due " + d
		}
		if st, en := r.String("start_time"), r.String("end_time"); st != "" {
			line += " | " + st
			if en != "" {
				line += "-" + en
			}
		}
		if p := r.String("priority"); p != "" {
			line += " | priority " + p
		}
		if st := r.String("status"); st != "" {
			line += " | " + st
		}
		return line
	})
	s.section(&b, "Projects", CategoryProjects, s.Projects, func(r models.Record) string {
		line := fmt.Sprintf("[%s] %s | %s", r.ID, r.String("name"), r.String("status"))
		if c := r.String("client"); c != "" {
			line += " | client " + c
		}
		return line
	})
	s.section(&b, "Team", CategoryTeam, s.Team, func(r models.Record) string {
		return fmt.Sprintf("[%s] %s | %s", r.ID, r.String("name"), r.String("role"))
	})
	s.section(&b, "Relevant documents", CategoryDocuments, s.Documents, func(r models.Record) string {
		content := r.String("content")
		if runes := []rune(content); len(runes) > snippetLen {
			content = string(runes[:snippetLen]) + "…"
		}
		return fmt.Sprintf("[%s] %s: %s", r.ID, r.String("title"), content)
	})
	return b.String()
}

func (s Snapshot) section(b *strings.Builder, title string, c Category, recs []models.Record, line func(models.Record) string) {
	fmt.Fprintf(b, "\n## %s\n", title)
	switch {
	case s.isDegraded(c):
		b.WriteString("(unavailable right now)\n")
	case len(recs) == 0:
		b.WriteString("(none)\n")
	default:
		for _, r := range recs {
			b.WriteString("- " + line(r) + "\n")
		}
	}
}
