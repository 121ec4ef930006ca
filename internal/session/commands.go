package session

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/MrWong99/maxassist/internal/intent"
	"github.com/MrWong99/maxassist/pkg/memory"
)

const (
	advancedOnText  = "I've activated my advanced AI models! I can now provide more natural and detailed responses to your questions."
	advancedOffText = "I tried to activate my advanced models, but encountered an error. I'll continue using my standard response system."
	forgetText      = "Okay, I've forgotten everything we talked about."
)

// command pairs a pattern with the action it triggers. Patterns run against
// the normalised utterance; groups are passed to run as matches[1], ...
type command struct {
	name string
	re   *regexp.Regexp
	run  func(s *Session, ctx context.Context, matches []string) string
}

// commands is the ordered session command filter. It is consulted before
// intent routing; the first match wins and the utterance never reaches the
// router.
var commands = []command{
	{
		name: "advanced-mode",
		re:   regexp.MustCompile(`\b(use model|advanced mode)\b`),
		run:  (*Session).advancedMode,
	},
	{
		name: "preference-set",
		re:   regexp.MustCompile(`^(?:please )?remember that my (?:favorite|favourite) (.+?) is (.+?)[.!]*$`),
		run:  (*Session).setPreference,
	},
	{
		name: "preference-recall",
		re:   regexp.MustCompile(`^what(?:'s| is) my (?:favorite|favourite) (.+?)[?.!]*$`),
		run:  (*Session).recallPreference,
	},
	{
		name: "recall",
		re:   regexp.MustCompile(`^what did i (?:say|tell you) about (.+?)[?.!]*$`),
		run:  (*Session).recall,
	},
	{
		name: "forget",
		re:   regexp.MustCompile(`^(?:please )?forget everything\b`),
		run:  (*Session).forget,
	},
}

// matchCommand returns the first command matching text.
func matchCommand(text string) (command, []string, bool) {
	norm := intent.Normalize(text)
	if norm == "" {
		return command{}, nil, false
	}
	for _, c := range commands {
		if m := c.re.FindStringSubmatch(norm); m != nil {
			return c, m, true
		}
	}
	return command{}, nil, false
}

func (s *Session) advancedMode(ctx context.Context, _ []string) string {
	if s.warmer == nil {
		return advancedOffText
	}
	if err := s.warmer.Warmup(ctx); err != nil {
		s.log.Warn("session: advanced mode unavailable", "err", err)
		return advancedOffText
	}
	return advancedOnText
}

func (s *Session) setPreference(_ context.Context, m []string) string {
	key, value := strings.TrimSpace(m[1]), strings.TrimSpace(m[2])
	s.mem.SetPreference(key, value)
	return fmt.Sprintf("Got it. I'll remember that your favorite %s is %s.", key, value)
}

func (s *Session) recallPreference(_ context.Context, m []string) string {
	key := strings.TrimSpace(m[1])
	if v, ok := s.mem.Preference(key); ok {
		return fmt.Sprintf("Your favorite %s is %s.", key, v)
	}
	return fmt.Sprintf("You haven't told me your favorite %s yet.", key)
}

// recall answers "what did I say about X" from the archive, or from the
// in-process memory when no archive is configured.
func (s *Session) recall(ctx context.Context, m []string) string {
	subject := strings.TrimSpace(m[1])

	var said string
	if s.archive != nil {
		found, _ := s.archive.SearchExchanges(ctx, subject, memory.SearchOpts{SessionID: s.id, Limit: 1})
		if len(found) > 0 {
			said = found[0].Input
		}
	} else {
		for _, e := range s.mem.Recent(s.mem.Len()) {
			if memory.Matches(memory.Exchange{Input: e.Input, Response: e.Response}, subject, memory.SearchOpts{}) {
				said = e.Input
				break
			}
		}
	}

	if said == "" {
		return fmt.Sprintf("I don't remember you saying anything about %s.", subject)
	}
	return fmt.Sprintf("You said: %q.", said)
}

func (s *Session) forget(ctx context.Context, _ []string) string {
	s.mem.Clear()
	if s.archive != nil {
		_ = s.archive.DeleteSession(ctx, s.id)
	}
	s.log.Info("session: memory cleared")
	return forgetText
}
