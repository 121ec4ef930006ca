package intent

import (
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode"
)

// Slots are entities embedded in a single utterance.
type Slots struct {
	// Location is the place named in a weather request.
	Location string

	// From and To are the endpoints of a directions request. From may be
	// empty when only a destination was named.
	From string
	To   string

	// Task and Duration describe a reminder ("remind me to X in N minutes").
	Task     string
	Duration time.Duration

	// DurationText is the duration as spoken, e.g. "10 minutes".
	DurationText string
}

var (
	reWeatherLocation = regexp.MustCompile(`\b(?:in|at|for|about)\s+([a-z][a-z\s'.-]*?)\s*(?:today|tomorrow|tonight|right now|now|this week|this weekend)?[?.!]*$`)
	reRouteFromTo     = regexp.MustCompile(`\bfrom\s+(.+?)\s+to\s+(.+?)[?.!]*$`)
	reRouteTo         = regexp.MustCompile(`\b(?:get to|directions to|navigate to|route to|way to|to)\s+(.+?)[?.!]*$`)
	reReminderTaskIn  = regexp.MustCompile(`remind me to (.+?) in (\d+) (second|minute|hour)s?\b`)
	reReminderInTask  = regexp.MustCompile(`remind me in (\d+) (second|minute|hour)s? to (.+?)[?.!]*$`)
)

var timeWords = map[string]bool{
	"today": true, "tomorrow": true, "tonight": true, "now": true, "right now": true,
	"this week": true, "this weekend": true, "the moment": true,
}

// MaxReminderDelay is the longest reminder delay accepted. Longer requests
// leave the reminder slots empty.
const MaxReminderDelay = 7 * 24 * time.Hour

var units = map[string]time.Duration{
	"second": time.Second,
	"minute": time.Minute,
	"hour":   time.Hour,
}

func extractSlots(i Intent, norm string) Slots {
	var s Slots
	switch i {
	case Weather:
		if m := reWeatherLocation.FindStringSubmatch(norm); m != nil {
			if loc := strings.TrimSpace(m[1]); loc != "" && !timeWords[loc] {
				s.Location = TitleCase(loc)
			}
		}
	case Directions:
		if m := reRouteFromTo.FindStringSubmatch(norm); m != nil {
			s.From = TitleCase(strings.TrimSpace(m[1]))
			s.To = TitleCase(strings.TrimSpace(m[2]))
		} else if m := reRouteTo.FindStringSubmatch(norm); m != nil {
			s.To = TitleCase(strings.TrimSpace(m[1]))
		}
	case Reminder:
		if m := reReminderTaskIn.FindStringSubmatch(norm); m != nil {
			s.Task = strings.TrimSpace(m[1])
			s.setDuration(m[2], m[3])
		} else if m := reReminderInTask.FindStringSubmatch(norm); m != nil {
			s.Task = strings.TrimSpace(m[3])
			s.setDuration(m[1], m[2])
		}
	}
	return s
}

func (s *Slots) setDuration(count, unit string) {
	n, err := strconv.ParseInt(count, 10, 64)
	step, known := units[unit]
	if err != nil || !known || n <= 0 || n > int64(MaxReminderDelay/step) {
		return
	}
	s.Duration = time.Duration(n) * step
	if n == 1 {
		s.DurationText = "1 " + unit
	} else {
		s.DurationText = count + " " + unit + "s"
	}
}

// TitleCase capitalises the first letter of each word in s.
func TitleCase(s string) string {
	words := strings.Fields(s)
	for i, w := range words {
		r := []rune(w)
		r[0] = unicode.ToUpper(r[0])
		words[i] = string(r)
	}
	return strings.Join(words, " ")
}
