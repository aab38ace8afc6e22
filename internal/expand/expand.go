// Package expand is a rule-based second pass over interpreted outcomes. It
// turns an under-generated single create into the batch the utterance
// actually asked for: one item per day of a weekday range, or one item per
// clause of a compound request. All functions are pure.
package expand

import (
	"regexp"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"opsdesk/internal/interpret"
	"opsdesk/internal/models"
)

var clauseSplitRE = regexp.MustCompile(`(?i)\s*(?:,\s*also\b|\band also\b|\band then\b|\bplus\b|\bas well as\b|;)\s*`)

// Title derivation strips scheduling phrases from a clause.
var titleNoise = []*regexp.Regexp{
	rangeRE,
	everyWeekdayRE,
	regexp.MustCompile(`(?i)\b(?:from\s+)?\d{1,2}(?::\d{2})?\s*(?:[ap]\.?m\.?)?\s*(?:to|until|till|-|–)\s*\d{1,2}(?::\d{2})?(?:\s*[ap]\.?m\.?)?`),
	regexp.MustCompile(`(?i)(?:\bat|@)\s*\d{1,2}(?::\d{2})?(?:\s*[ap]\.?m\.?)?`),
	regexp.MustCompile(`(?i)\b\d{1,2}(?::\d{2})?\s*[ap]\.?m\.?`),
	regexp.MustCompile(`(?i)\b(?:at\s+)?(?:half past|quarter past|quarter to)\s+[a-z0-9]+`),
	regexp.MustCompile(`(?i)\b(?:at\s+)?(?:noon|midday|midnight)\b`),
	regexp.MustCompile(`(?i)\b(?:on\s+)?\d{4}-\d{2}-\d{2}\b`),
	regexp.MustCompile(`(?i)\b(?:the\s+)?day after tomorrow\b`),
	regexp.MustCompile(`(?i)\b(?:today|tonight|tomorrow)\b`),
	weekdayRE,
}

var (
	leadingVerbRE = regexp.MustCompile(`(?i)^(?:please\s+)?(?:(?:can|could|would) you\s+)?(?:also\s+)?(?:add|create|schedule|make|put|set up|book|plan|remind me to|new)\b\s*(?:(?:a|an|the)\s+)?(?:(?:task|item|event|reminder|project)\s+)?(?:(?:to|for|called|named)\s+)?`)
	spacesRE      = regexp.MustCompile(`\s+`)
	danglingRE    = regexp.MustCompile(`(?i)(?:\s+(?:from|to|at|on|until|till|and))+$`)
)

// Apply refines an interpreted outcome. A single create becomes a Batch when
// the utterance names more work than the engine produced; an under-counting
// homogeneous Batch is re-expanded. Anything else is returned unchanged.
func Apply(out interpret.Outcome, utterance string, anchor time.Time) interpret.Outcome {
	switch o := out.(type) {
	case interpret.Action:
		if actions := Expand(utterance, anchor, o.Request); len(actions) > 1 {
			return interpret.Batch{Actions: actions, Summary: o.Message}
		}
	case interpret.Batch:
		if actions := Refine(utterance, anchor, o.Actions); actions != nil {
			return interpret.Batch{Actions: actions, Summary: o.Summary}
		}
	}
	return out
}

// Expand returns the derived actions for a single create, or nil when the
// utterance yields at most one action.
func Expand(utterance string, anchor time.Time, action models.ActionRequest) []models.ActionRequest {
	if !action.Kind.Creates() {
		return nil
	}
	var out []models.ActionRequest
	for i, clause := range SplitClauses(utterance) {
		base := action.Clone()
		if i > 0 {
			var ok bool
			if base, ok = fromClause(action, clause, anchor); !ok {
				continue
			}
		}
		out = append(out, spread(base, clause, anchor)...)
	}
	if len(out) <= 1 {
		return nil
	}
	return out
}

// Refine re-expands a batch that repeats one create but covers fewer days
// than the weekday range in the utterance. It returns nil to keep the batch.
func Refine(utterance string, anchor time.Time, batch []models.ActionRequest) []models.ActionRequest {
	if len(batch) == 0 || len(SplitClauses(utterance)) > 1 {
		return nil
	}
	rng, ok := DetectRange(utterance)
	if !ok || len(batch) >= rng.Days() {
		return nil
	}
	first := batch[0]
	if !first.Kind.Creates() {
		return nil
	}
	key := titleKey(first.Kind)
	for _, a := range batch[1:] {
		if a.Kind != first.Kind || a.String(key) != first.String(key) {
			return nil
		}
	}
	return spread(first, utterance, anchor)
}

// SplitClauses splits on continuation phrases such as "and also" or ";".
// Empty clauses are dropped.
func SplitClauses(utterance string) []string {
	var out []string
	for _, part := range clauseSplitRE.Split(utterance, -1) {
		part = strings.Trim(part, " \t,.")
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}

// spread turns one action into one per day when the clause names a weekday
// range, stamping the clause's time interval onto each copy.
func spread(base models.ActionRequest, clause string, anchor time.Time) []models.ActionRequest {
	rng, ok := DetectRange(clause)
	if !ok || base.Kind != models.KindCreateTask {
		return []models.ActionRequest{base}
	}
	start, end, hasInterval := ParseInterval(clause)
	dates := rng.Dates(anchor)
	out := make([]models.ActionRequest, 0, len(dates))
	for _, d := range dates {
		a := base.Clone()
		a.Payload["due_date"] = d.Format(time.DateOnly)
		if hasInterval {
			a.Payload["start_time"] = start
			a.Payload["end_time"] = end
		}
		out = append(out, a)
	}
	return out
}

func fromClause(template models.ActionRequest, clause string, anchor time.Time) (models.ActionRequest, bool) {
	title := deriveTitle(clause)
	if title == "" {
		return models.ActionRequest{}, false
	}
	a := models.ActionRequest{Kind: template.Kind, Payload: map[string]any{titleKey(template.Kind): title}}
	if template.Kind != models.KindCreateTask {
		return a, true
	}
	if date, ok := ResolveDate(clause, anchor); ok {
		a.Payload["due_date"] = date
	} else if date := template.String("due_date"); date != "" {
		a.Payload["due_date"] = date
	}
	if start, end, ok := ParseInterval(clause); ok {
		a.Payload["start_time"] = start
		a.Payload["end_time"] = end
	} else if start, ok := ParseStart(clause); ok {
		a.Payload["start_time"] = start
	}
	return a, true
}

func deriveTitle(clause string) string {
	s := clause
	for _, re := range titleNoise {
		s = re.ReplaceAllString(s, " ")
	}
	s = strings.TrimSpace(spacesRE.ReplaceAllString(s, " "))
	s = danglingRE.ReplaceAllString(s, "")
	s = leadingVerbRE.ReplaceAllString(s, "")
	s = strings.Trim(s, " ,.;:!-")
	if s == "" {
		return ""
	}
	r, size := utf8.DecodeRuneInString(s)
	return string(unicode.ToUpper(r)) + s[size:]
}

func titleKey(kind models.ActionKind) string {
	if kind == models.KindCreateProject {
		return "name"
	}
	return "title"
}
