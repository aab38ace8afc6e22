package expand

import (
	"testing"
	"time"

	"opsdesk/internal/interpret"
	"opsdesk/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Wednesday.
var anchor = time.Date(2026, time.October, 21, 10, 0, 0, 0, time.UTC)

func createTask(title string) models.ActionRequest {
	return models.ActionRequest{Kind: models.KindCreateTask, Payload: map[string]any{"title": title}}
}

func TestWeekdayRangeExpansion(t *testing.T) {
	got := Expand("Monday to Friday, 8 to 2:30, work", anchor, createTask("Work"))
	require.Len(t, got, 5)

	want := []string{"2026-10-26", "2026-10-27", "2026-10-28", "2026-10-29", "2026-10-30"}
	for i, a := range got {
		assert.Equal(t, models.KindCreateTask, a.Kind)
		assert.Equal(t, "Work", a.Payload["title"])
		assert.Equal(t, want[i], a.Payload["due_date"])
		assert.Equal(t, "08:00", a.Payload["start_time"])
		assert.Equal(t, "14:30", a.Payload["end_time"])
	}
}

func TestRangeStartsStrictlyAfterAnchor(t *testing.T) {
	monday := time.Date(2026, time.October, 19, 9, 0, 0, 0, time.UTC)
	got := Expand("standup monday to wednesday", monday, createTask("Standup"))
	require.Len(t, got, 3)
	assert.Equal(t, "2026-10-26", got[0].Payload["due_date"])
	assert.Equal(t, "2026-10-28", got[2].Payload["due_date"])
	assert.NotContains(t, got[0].Payload, "start_time")
}

func TestEveryWeekday(t *testing.T) {
	got := Expand("block focus time every weekday 9 to 5", anchor, createTask("Focus time"))
	require.Len(t, got, 5)
	assert.Equal(t, "09:00", got[0].Payload["start_time"])
	assert.Equal(t, "17:00", got[4].Payload["end_time"])
}

func TestWrappedRange(t *testing.T) {
	r, ok := DetectRange("friday to monday")
	require.True(t, ok)
	assert.Equal(t, 4, r.Days())
}

func TestCompoundExpansion(t *testing.T) {
	original := createTask("Dentist")
	original.Payload["due_date"] = "2026-10-22"

	got := Expand("Add dentist tomorrow at 3pm and also call Bob on Friday", anchor, original)
	require.Len(t, got, 2)
	assert.Equal(t, "Dentist", got[0].Payload["title"])
	assert.Equal(t, "Call Bob", got[1].Payload["title"])
	assert.Equal(t, "2026-10-23", got[1].Payload["due_date"])
}

func TestDayAbbreviationsNeedDateContext(t *testing.T) {
	monday := time.Date(2026, time.October, 19, 9, 0, 0, 0, time.UTC)
	original := createTask("Lunch with Ana")
	original.Payload["due_date"] = "2026-10-20"

	got := Expand("add lunch with Ana tomorrow at 1 and also buy sun cream", monday, original)
	require.Len(t, got, 2)
	assert.Equal(t, "Buy sun cream", got[1].Payload["title"])
	assert.Equal(t, "2026-10-20", got[1].Payload["due_date"])

	got = Expand("add lunch with Ana tomorrow and also pick up the sat phone on sat", monday, original)
	require.Len(t, got, 2)
	assert.Equal(t, "Pick up the sat phone", got[1].Payload["title"])
	assert.Equal(t, "2026-10-24", got[1].Payload["due_date"])
}

func TestCompoundClauseTimes(t *testing.T) {
	got := Expand("book gym tomorrow; team lunch on thursday from noon to half past one", anchor, createTask("Gym"))
	require.Len(t, got, 2)
	lunch := got[1]
	assert.Equal(t, "Team lunch", lunch.Payload["title"])
	assert.Equal(t, "2026-10-22", lunch.Payload["due_date"])
	assert.Equal(t, "12:00", lunch.Payload["start_time"])
	assert.Equal(t, "13:30", lunch.Payload["end_time"])
}

func TestNoExpansion(t *testing.T) {
	tests := []struct {
		name      string
		utterance string
		action    models.ActionRequest
	}{
		{"no pattern", "add a task to call Bob", createTask("Call Bob")},
		{"update kind", "move standup monday to friday", models.ActionRequest{Kind: models.KindUpdateTask, Payload: map[string]any{"id": "t1"}}},
		{"delete kind", "delete it and also the other one", models.ActionRequest{Kind: models.KindDeleteTask, Payload: map[string]any{"id": "t1"}}},
		{"single day range", "monday to monday gym", createTask("Gym")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Nil(t, Expand(tt.utterance, anchor, tt.action))
		})
	}
}

func TestParseInterval(t *testing.T) {
	tests := []struct {
		in         string
		start, end string
		ok         bool
	}{
		{"8 to 2:30", "08:00", "14:30", true},
		{"9-5", "09:00", "17:00", true},
		{"from 10am to 2pm", "10:00", "14:00", true},
		{"2 to 4pm", "14:00", "16:00", true},
		{"half past two to four", "14:30", "16:00", true},
		{"quarter to nine until noon", "08:45", "12:00", true},
		{"13:00 - 15:30", "13:00", "15:30", true},
		{"10pm to 2am", "", "", false},
		{"no time here", "", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			start, end, ok := ParseInterval(tt.in)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.start, start)
			assert.Equal(t, tt.end, end)
		})
	}
}

func TestParseStart(t *testing.T) {
	got, ok := ParseStart("call at 3")
	require.True(t, ok)
	assert.Equal(t, "15:00", got)

	got, ok = ParseStart("dentist 9:15 a.m.")
	require.True(t, ok)
	assert.Equal(t, "09:15", got)

	_, ok = ParseStart("whenever")
	assert.False(t, ok)
}

func TestResolveDate(t *testing.T) {
	tests := map[string]string{
		"tomorrow":           "2026-10-22",
		"day after tomorrow": "2026-10-23",
		"today":              "2026-10-21",
		"next monday":        "2026-10-26",
		"on wednesday":       "2026-10-28",
		"this fri":           "2026-10-23",
		"gym Sat. morning":   "2026-10-24",
		"thurs":              "2026-10-22",
		"due 2026-11-02":     "2026-11-02",
	}
	for in, want := range tests {
		got, ok := ResolveDate(in, anchor)
		require.True(t, ok, in)
		assert.Equal(t, want, got, in)
	}
	for _, in := range []string{"sometime", "buy sun cream", "wed the couple", "sat down with Bob"} {
		_, ok := ResolveDate(in, anchor)
		assert.False(t, ok, in)
	}
}

func TestRefineUnderCountingBatch(t *testing.T) {
	utterance := "Monday to Friday, 8 to 2:30, work"

	got := Refine(utterance, anchor, []models.ActionRequest{createTask("Work"), createTask("Work")})
	assert.Len(t, got, 5)

	assert.Nil(t, Refine(utterance, anchor, []models.ActionRequest{createTask("Work"), createTask("Gym")}))

	full := make([]models.ActionRequest, 5)
	for i := range full {
		full[i] = createTask("Work")
	}
	assert.Nil(t, Refine(utterance, anchor, full))
}

func TestApply(t *testing.T) {
	out := Apply(interpret.Action{Request: createTask("Work"), Message: "Blocked your week."}, "Monday to Friday, 8 to 2:30, work", anchor)
	b, ok := out.(interpret.Batch)
	require.True(t, ok, "got %T", out)
	assert.Len(t, b.Actions, 5)
	assert.Equal(t, "Blocked your week.", b.Summary)

	single := interpret.Action{Request: createTask("Call Bob")}
	assert.Equal(t, single, Apply(single, "call Bob", anchor))

	reply := interpret.Reply{Message: "hi"}
	assert.Equal(t, reply, Apply(reply, "monday to friday", anchor))
}
