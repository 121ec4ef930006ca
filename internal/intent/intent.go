// Package intent classifies normalized utterances into a closed set of
// intents using an ordered table of regular expressions.
//
// Classification order is part of the contract: arithmetic expressions are
// detected before anything else, then the table is evaluated top to bottom
// and the first matching entry wins. When nothing matches, the previous
// turn's intent is reused if the utterance still fits it (sticky context);
// otherwise the utterance is a fallback.
package intent

import (
	"regexp"
	"strings"
)

// Intent is a classified purpose of an utterance.
type Intent string

const (
	Greeting     Intent = "greeting"
	Farewell     Intent = "farewell"
	Capabilities Intent = "capabilities"
	Identity     Intent = "identity"
	Weather      Intent = "weather"
	Time         Intent = "time"
	Date         Intent = "date"
	Joke         Intent = "joke"
	Music        Intent = "music"
	Mobile       Intent = "mobile"
	Reminder     Intent = "reminder"
	Thanks       Intent = "thanks"
	Calculation  Intent = "calculation"
	Directions   Intent = "directions"
	Facts        Intent = "facts"
	Chat         Intent = "chat"
	Fallback     Intent = "fallback"
)

// Rule pairs an intent with the pattern that selects it. FollowUp, when
// set, is consulted only for sticky-context reuse: it recognises utterances
// like "what about tomorrow" that continue the previous topic without
// naming it.
type Rule struct {
	Intent   Intent
	Pattern  *regexp.Regexp
	FollowUp *regexp.Regexp
}

// Table is the default ordered classification table.
var Table = []Rule{
	{Intent: Greeting, Pattern: re(`\b(hi|hello|hey|greetings|good morning|good afternoon|good evening)\b`)},
	{Intent: Farewell, Pattern: re(`\b(bye|goodbye|see you|farewell|exit|quit)\b`)},
	{Intent: Capabilities, Pattern: re(`\b(what can you do|capabilities|features|functions|abilities|help me|how do you work)\b`)},
	{Intent: Identity, Pattern: re(`\b(who are you|what are you|tell me about yourself|your name|what is max)\b`)},
	{
		Intent:   Weather,
		Pattern:  re(`\b(weather|temperature|forecast|rain|snow|sunny|cloudy)\b`),
		FollowUp: re(`\b(what about|how about|and in|and for|over in|out in)\b`),
	},
	{Intent: Time, Pattern: re(`\b(time|what time is it|current time|clock|hour)\b`), FollowUp: re(`\b(and now|how about now|now)\b`)},
	{Intent: Date, Pattern: re(`\b(date|what day is it|today|what is today|day of the week)\b`)},
	{Intent: Joke, Pattern: re(`\b(joke|funny|make me laugh|tell me something funny)\b`), FollowUp: re(`\b(another|one more|again|more)\b`)},
	{Intent: Music, Pattern: re(`\b(play music|play song|music|song|playlist|artist)\b`), FollowUp: re(`\b(something else|another|next)\b`)},
	{Intent: Mobile, Pattern: re(`\b(mobile|phone|call|text|sms|app integration)\b`)},
	{Intent: Reminder, Pattern: re(`\b(remind me|reminder|don't forget|remember to|set reminder|set alarm)\b`)},
	{Intent: Thanks, Pattern: re(`\b(thanks|thank you|appreciate it|grateful)\b`)},
	{Intent: Calculation, Pattern: re(`\b(calculate|compute|how much is|solve|math|plus|minus|times|multiplied by|divided by)\b|\bwhat is\s+-?\d`)},
	{
		Intent:   Directions,
		Pattern:  re(`\b(directions?|how do i get to|how to get to|how can i get to|navigate to|route to|way to)\b`),
		FollowUp: re(`\b(what about|how about|and to|from there)\b`),
	},
	{Intent: Facts, Pattern: re(`\b(tell me something|interesting fact|fun fact|random fact|did you know)\b`), FollowUp: re(`\b(another|one more|more)\b`)},
	{Intent: Chat, Pattern: re(`\b(meaning of life|philosophy|what do you think about|let's chat|talk to me|i'm bored)\b`)},
}

func re(expr string) *regexp.Regexp {
	return regexp.MustCompile(`(?i)` + expr)
}

// Classification is the outcome of routing one utterance.
type Classification struct {
	Intent Intent

	// Normalized is the lowercased, trimmed utterance that was classified.
	Normalized string

	// Calc is set when the utterance is an arithmetic expression.
	Calc *Calc

	// Slots holds per-utterance extractions for weather, directions and
	// reminder intents. They are not persisted by the router.
	Slots Slots

	// Sticky is true when Intent was inherited from the previous turn.
	Sticky bool
}

// IsFallback reports whether the utterance went unclassified.
func (c Classification) IsFallback() bool { return c.Intent == Fallback }

// Normalize lowercases and trims text and collapses inner whitespace.
func Normalize(text string) string {
	return strings.Join(strings.Fields(strings.ToLower(text)), " ")
}

// Router classifies utterances against an ordered rule table.
// It holds no per-session state and is safe for concurrent use.
type Router struct {
	rules []Rule
}

// NewRouter returns a Router over rules. A nil rules slice selects [Table].
func NewRouter(rules []Rule) *Router {
	if rules == nil {
		rules = Table
	}
	return &Router{rules: rules}
}

// Classify routes text. lastTopic is the intent of the previous classified
// turn, or "" when there is none.
func (r *Router) Classify(text string, lastTopic Intent) Classification {
	norm := Normalize(text)
	c := Classification{Normalized: norm}

	if calc, ok := ParseCalc(norm); ok {
		c.Intent = Calculation
		c.Calc = &calc
		return c
	}

	c.Intent = Fallback
	for _, rule := range r.rules {
		if rule.Pattern.MatchString(norm) {
			c.Intent = rule.Intent
			break
		}
	}

	if c.Intent == Fallback && lastTopic != "" && lastTopic != Fallback {
		if rule, ok := r.rule(lastTopic); ok && r.continues(rule, norm) {
			c.Intent = rule.Intent
			c.Sticky = true
		}
	}

	c.Slots = extractSlots(c.Intent, norm)
	return c
}

func (r *Router) rule(i Intent) (Rule, bool) {
	for _, rule := range r.rules {
		if rule.Intent == i {
			return rule, true
		}
	}
	return Rule{}, false
}

func (r *Router) continues(rule Rule, norm string) bool {
	if rule.Pattern.MatchString(norm) {
		return true
	}
	return rule.FollowUp != nil && rule.FollowUp.MatchString(norm)
}
