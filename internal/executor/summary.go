package executor

import (
	"fmt"
	"strings"

	"opsdesk/internal/models"
)

// Summarize renders the user-facing outcome of a batch, e.g.
//
//	Completed 2 actions, 1 failed:
//	- ✓ create task "A"
//	- ✗ create task "B": task title taken
func Summarize(actions []models.ActionRequest, results []models.ActionResult) string {
	var ok, failed, skipped int
	for _, r := range results {
		switch {
		case r.Success:
			ok++
		case r.Skipped:
			skipped++
		default:
			failed++
		}
	}

	var b strings.Builder
	if failed == 0 && skipped == 0 {
		fmt.Fprintf(&b, "Completed %s:", plural(ok, "action"))
		for _, a := range actions {
			b.WriteString("\n- " + a.Describe())
		}
		return b.String()
	}

	fmt.Fprintf(&b, "Completed %s, %d failed", plural(ok, "action"), failed)
	if skipped > 0 {
		fmt.Fprintf(&b, ", %d skipped", skipped)
	}
	b.WriteString(":")
	for i, r := range results {
		desc := actions[i].Describe()
		switch {
		case r.Success:
			b.WriteString("\n- ✓ " + desc)
		case r.Skipped:
			fmt.Fprintf(&b, "\n- … %s (%s)", desc, r.Error)
		default:
			fmt.Fprintf(&b, "\n- ✗ %s: %s", desc, r.Error)
		}
	}
	return b.String()
}

func plural(n int, noun string) string {
	if n == 1 {
		return fmt.Sprintf("1 %s", noun)
	}
	return fmt.Sprintf("%d %ss", n, noun)
}
