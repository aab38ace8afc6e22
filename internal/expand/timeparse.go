package expand

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

const dayNames = `(mon(?:day)?|tue(?:s(?:day)?)?|wed(?:nesday)?|thu(?:r(?:s(?:day)?)?)?|fri(?:day)?|sat(?:urday)?|sun(?:day)?)`

// Outside a range, three-letter abbreviations collide with ordinary words
// ("sun cream", "mon ami") and only count after on/next/this or with a
// trailing period.
const (
	fullDayNames  = `(monday|tues(?:day)?|wednesday|thurs(?:day)?|friday|saturday|sunday)`
	shortDayNames = `(mon|tue|wed|thu|thur|fri|sat|sun)`
)

var (
	rangeRE        = regexp.MustCompile(`(?i)\b(?:from\s+)?` + dayNames + `\s*(?:to|through|thru|till|until|-|–)\s*` + dayNames + `\b`)
	everyWeekdayRE = regexp.MustCompile(`(?i)\b(?:every\s+weekday|each\s+weekday|every\s+work\s*day|weekdays)\b`)

	isoDateRE     = regexp.MustCompile(`\b(\d{4}-\d{2}-\d{2})\b`)
	afterTomorrow = regexp.MustCompile(`(?i)\bday after tomorrow\b`)
	tomorrowRE    = regexp.MustCompile(`(?i)\btomorrow\b`)
	todayRE       = regexp.MustCompile(`(?i)\b(?:today|tonight)\b`)
	weekdayRE     = regexp.MustCompile(`(?i)\b(?:(?:next|on|this)\s+)?` + fullDayNames + `\b|\b(?:next|on|this)\s+` + shortDayNames + `\b|\b` + shortDayNames + `\.`)

	numberWordRE   = regexp.MustCompile(`\b(one|two|three|four|five|six|seven|eight|nine|ten|eleven|twelve)\b`)
	halfPastRE     = regexp.MustCompile(`\bhalf past (\d{1,2})\b`)
	quarterPastRE  = regexp.MustCompile(`\bquarter past (\d{1,2})\b`)
	quarterToRE    = regexp.MustCompile(`\bquarter to (\d{1,2})\b`)
	oclockRE       = regexp.MustCompile(`\b(\d{1,2})\s*o'?clock\b`)
	noonRE         = regexp.MustCompile(`\b(?:noon|midday)\b`)
	midnightRE     = regexp.MustCompile(`\bmidnight\b`)
	meridiemRE     = regexp.MustCompile(`(\d)\s*([ap])\.?\s?m\b\.?`)
	intervalRE     = regexp.MustCompile(`\b(\d{1,2})(?::(\d{2}))?\s*(am|pm)?\s*(?:to|until|till|through|-|–)\s*(\d{1,2})(?::(\d{2}))?\s*(am|pm)?\b`)
	atTimeRE       = regexp.MustCompile(`(?:\bat|@)\s*(\d{1,2})(?::(\d{2}))?\s*(am|pm)?\b`)
	bareMeridiemRE = regexp.MustCompile(`\b(\d{1,2})(?::(\d{2}))?\s*(am|pm)\b`)
)

var numberWords = map[string]string{
	"one": "1", "two": "2", "three": "3", "four": "4", "five": "5", "six": "6",
	"seven": "7", "eight": "8", "nine": "9", "ten": "10", "eleven": "11", "twelve": "12",
}

var weekdays = map[string]time.Weekday{
	"sun": time.Sunday, "mon": time.Monday, "tue": time.Tuesday, "wed": time.Wednesday,
	"thu": time.Thursday, "fri": time.Friday, "sat": time.Saturday,
}

func weekdayOf(name string) time.Weekday {
	return weekdays[strings.ToLower(name)[:3]]
}

// Range is a run of consecutive weekdays, Start through End inclusive.
type Range struct {
	Start time.Weekday
	End   time.Weekday
}

// Days is the number of calendar days the range covers.
func (r Range) Days() int {
	return (int(r.End)-int(r.Start)+7)%7 + 1
}

// DetectRange finds "Monday to Friday" style ranges and "every weekday".
func DetectRange(text string) (Range, bool) {
	if m := rangeRE.FindStringSubmatch(text); m != nil {
		return Range{Start: weekdayOf(m[1]), End: weekdayOf(m[2])}, true
	}
	if everyWeekdayRE.MatchString(text) {
		return Range{Start: time.Monday, End: time.Friday}, true
	}
	return Range{}, false
}

// Dates lists the range's dates, beginning at the next occurrence of Start
// strictly after the anchor's day.
func (r Range) Dates(anchor time.Time) []time.Time {
	first := nextWeekday(anchor, r.Start)
	out := make([]time.Time, r.Days())
	for i := range out {
		out[i] = first.AddDate(0, 0, i)
	}
	return out
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

func nextWeekday(anchor time.Time, wd time.Weekday) time.Time {
	day := startOfDay(anchor)
	delta := (int(wd) - int(day.Weekday()) + 7) % 7
	if delta == 0 {
		delta = 7
	}
	return day.AddDate(0, 0, delta)
}

// ResolveDate resolves the first date phrase in text (ISO date, today,
// tomorrow, day after tomorrow, a weekday name) against the anchor.
func ResolveDate(text string, anchor time.Time) (string, bool) {
	if m := isoDateRE.FindStringSubmatch(text); m != nil {
		if _, err := time.Parse(time.DateOnly, m[1]); err == nil {
			return m[1], true
		}
	}
	day := startOfDay(anchor)
	switch {
	case afterTomorrow.MatchString(text):
		return day.AddDate(0, 0, 2).Format(time.DateOnly), true
	case tomorrowRE.MatchString(text):
		return day.AddDate(0, 0, 1).Format(time.DateOnly), true
	case todayRE.MatchString(text):
		return day.Format(time.DateOnly), true
	}
	if m := weekdayRE.FindStringSubmatch(text); m != nil {
		for _, name := range m[1:] {
			if name != "" {
				return nextWeekday(anchor, weekdayOf(name)).Format(time.DateOnly), true
			}
		}
	}
	return "", false
}

// normalizeTimes lower-cases text and rewrites spoken clock phrases into
// digits, e.g. "half past two" becomes "2:30".
func normalizeTimes(text string) string {
	s := strings.ToLower(text)
	s = isoDateRE.ReplaceAllString(s, " ")
	s = numberWordRE.ReplaceAllStringFunc(s, func(w string) string { return numberWords[w] })
	s = halfPastRE.ReplaceAllString(s, "$1:30")
	s = quarterPastRE.ReplaceAllString(s, "$1:15")
	s = quarterToRE.ReplaceAllStringFunc(s, func(m string) string {
		h, _ := strconv.Atoi(quarterToRE.FindStringSubmatch(m)[1])
		h--
		if h <= 0 {
			h += 12
		}
		return fmt.Sprintf("%d:45", h)
	})
	s = oclockRE.ReplaceAllString(s, "$1")
	s = noonRE.ReplaceAllString(s, "12pm")
	s = midnightRE.ReplaceAllString(s, "12am")
	s = meridiemRE.ReplaceAllString(s, "$1$2m")
	return s
}

type clock struct {
	hour, minute int
	meridiem     string
}

func parseClock(h, m, mer string) (clock, bool) {
	hour, err := strconv.Atoi(h)
	if err != nil {
		return clock{}, false
	}
	minute := 0
	if m != "" {
		if minute, err = strconv.Atoi(m); err != nil {
			return clock{}, false
		}
	}
	if hour > 23 || minute > 59 || (mer != "" && (hour < 1 || hour > 12)) {
		return clock{}, false
	}
	return clock{hour: hour, minute: minute, meridiem: mer}, true
}

func (c clock) explicit() int {
	h := c.hour
	switch c.meridiem {
	case "am":
		if h == 12 {
			h = 0
		}
	case "pm":
		if h < 12 {
			h += 12
		}
	}
	return h
}

// startHour applies the business-hours reading: without am/pm, 1 to 6
// means afternoon.
func (c clock) startHour() int {
	if c.meridiem != "" {
		return c.explicit()
	}
	if c.hour >= 1 && c.hour < 7 {
		return c.hour + 12
	}
	return c.hour
}

func format(h, m int) string {
	return fmt.Sprintf("%02d:%02d", h, m)
}

// ParseInterval extracts a start and end clock time from text, e.g.
// "8 to 2:30" gives 08:00 and 14:30.
func ParseInterval(text string) (start, end string, ok bool) {
	m := intervalRE.FindStringSubmatch(normalizeTimes(text))
	if m == nil {
		return "", "", false
	}
	a, okA := parseClock(m[1], m[2], m[3])
	b, okB := parseClock(m[4], m[5], m[6])
	if !okA || !okB {
		return "", "", false
	}

	sh := a.startHour()
	if a.meridiem == "" && b.meridiem == "pm" && a.hour < 12 && a.hour+12 < b.explicit() {
		sh = a.hour + 12
	}
	eh := b.explicit()
	if b.meridiem == "" && b.hour <= 12 && eh*60+b.minute <= sh*60+a.minute && eh+12 < 24 {
		eh += 12
	}
	if eh*60+b.minute <= sh*60+a.minute {
		return "", "", false
	}
	return format(sh, a.minute), format(eh, b.minute), true
}

// ParseStart extracts a single clock time such as "at 3" or "3:15pm".
func ParseStart(text string) (string, bool) {
	s := normalizeTimes(text)
	m := atTimeRE.FindStringSubmatch(s)
	if m == nil {
		m = bareMeridiemRE.FindStringSubmatch(s)
	}
	if m == nil {
		return "", false
	}
	c, ok := parseClock(m[1], m[2], m[3])
	if !ok {
		return "", false
	}
	return format(c.startHour(), c.minute), true
}
