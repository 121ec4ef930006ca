// Package phonetic finds mis-heard wake phrases in recognition transcripts
// using Double Metaphone phonetic encoding combined with Jaro-Winkler string
// similarity.
//
// Speech engines often render a wake phrase like "hey max" as "hey macks" or
// "hey macs". Substring matching misses these, so the matcher slides a
// window the width of each phrase across the transcript words and scores
// every window in two stages:
//
//  1. Phonetic alignment: every word of the phrase must share a Double
//     Metaphone code with some word of the window. Aligned windows are
//     accepted when their Jaro-Winkler similarity to the phrase reaches the
//     phonetic threshold (default 0.70).
//
//  2. Fuzzy fallback: windows without phonetic alignment are accepted only
//     when their Jaro-Winkler similarity reaches the higher fuzzy threshold
//     (default 0.85).
//
// Single-word phrases are never matched fuzzily: one short word carries too
// little signal and would wake on "mix" or "mag".
package phonetic

import (
	"strings"
	"unicode"

	"github.com/antzucaro/matchr"
)

const (
	defaultPhoneticThreshold = 0.70
	defaultFuzzyThreshold    = 0.85
)

// Option is a functional option for configuring a [Matcher].
type Option func(*Matcher)

// WithPhoneticThreshold sets the minimum Jaro-Winkler score required for a
// phonetically aligned window to be accepted. Default: 0.70.
func WithPhoneticThreshold(threshold float64) Option {
	return func(m *Matcher) {
		m.phoneticThreshold = threshold
	}
}

// WithFuzzyThreshold sets the minimum Jaro-Winkler score required when no
// phonetic alignment is found. Default: 0.85.
func WithFuzzyThreshold(threshold float64) Option {
	return func(m *Matcher) {
		m.fuzzyThreshold = threshold
	}
}

// Matcher is a phonetic wake-phrase matcher. It is read-only after
// construction and safe for concurrent use.
type Matcher struct {
	phoneticThreshold float64
	fuzzyThreshold    float64
}

// Match describes a wake phrase found in a transcript.
type Match struct {
	// Phrase is the configured wake phrase that matched.
	Phrase string

	// Heard is the window of transcript words that matched Phrase,
	// lowercased and space-joined.
	Heard string

	// Score is the Jaro-Winkler similarity between Heard and Phrase.
	Score float64

	// Phonetic is true when the match passed phonetic alignment rather than
	// the fuzzy fallback.
	Phonetic bool
}

// New returns a new [Matcher] configured with the supplied options.
func New(opts ...Option) *Matcher {
	m := &Matcher{
		phoneticThreshold: defaultPhoneticThreshold,
		fuzzyThreshold:    defaultFuzzyThreshold,
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// Find returns the best-scoring wake phrase heard in transcript. Phonetic
// matches always outrank fuzzy ones. ok is false when no phrase qualifies.
func (m *Matcher) Find(transcript string, phrases []string) (best Match, ok bool) {
	words := Tokenize(transcript)
	if len(words) == 0 || len(phrases) == 0 {
		return Match{}, false
	}

	for _, phrase := range phrases {
		pTokens := Tokenize(phrase)
		if len(pTokens) < 2 || len(pTokens) > len(words) {
			continue
		}
		pFull := strings.Join(pTokens, " ")
		pCodes := make([]map[string]struct{}, len(pTokens))
		for i, t := range pTokens {
			pCodes[i] = codesForTokens([]string{t})
		}

		for start := 0; start+len(pTokens) <= len(words); start++ {
			window := words[start : start+len(pTokens)]
			heard := strings.Join(window, " ")
			score := bestJWScore(window, pTokens, heard, pFull)
			aligned := phoneticallyAligned(pCodes, codesForTokens(window))

			var cand Match
			switch {
			case aligned && score >= m.phoneticThreshold:
				cand = Match{Phrase: phrase, Heard: heard, Score: score, Phonetic: true}
			case !aligned && score >= m.fuzzyThreshold:
				cand = Match{Phrase: phrase, Heard: heard, Score: score}
			default:
				continue
			}
			if better(cand, best) {
				best = cand
				ok = true
			}
		}
	}
	return best, ok
}

func better(a, b Match) bool {
	if b.Phrase == "" {
		return true
	}
	if a.Phonetic != b.Phonetic {
		return a.Phonetic
	}
	return a.Score > b.Score
}

// Tokenize lowercases s and splits it into words of letters and digits.
func Tokenize(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// codesForTokens returns the union of all Double Metaphone codes for the
// given tokens. Empty codes are excluded.
func codesForTokens(tokens []string) map[string]struct{} {
	codes := make(map[string]struct{}, len(tokens)*2)
	for _, t := range tokens {
		p, s := matchr.DoubleMetaphone(t)
		if p != "" {
			codes[p] = struct{}{}
		}
		if s != "" {
			codes[s] = struct{}{}
		}
	}
	return codes
}

// phoneticallyAligned reports whether every phrase word shares at least one
// code with the window.
func phoneticallyAligned(phraseCodes []map[string]struct{}, window map[string]struct{}) bool {
	for _, codes := range phraseCodes {
		if len(codes) == 0 {
			continue
		}
		if !codesOverlap(codes, window) {
			return false
		}
	}
	return true
}

// codesOverlap returns true if the two code sets share at least one code.
func codesOverlap(a, b map[string]struct{}) bool {
	if len(a) > len(b) {
		a, b = b, a
	}
	for code := range a {
		if _, ok := b[code]; ok {
			return true
		}
	}
	return false
}

// bestJWScore is the higher of the full-string and space-stripped
// Jaro-Winkler similarities.
func bestJWScore(heardTokens, phraseTokens []string, heardFull, phraseFull string) float64 {
	score := matchr.JaroWinkler(heardFull, phraseFull, false)
	if s := matchr.JaroWinkler(strings.Join(heardTokens, ""), strings.Join(phraseTokens, ""), false); s > score {
		score = s
	}
	return score
}
