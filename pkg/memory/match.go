package memory

import (
	"slices"
	"strings"
	"unicode"
)

// stopWords are ignored when matching keyword queries.
var stopWords = map[string]bool{
	"the": true, "and": true, "for": true, "you": true, "what": true,
	"did": true, "say": true, "about": true, "that": true, "this": true,
}

// Keywords splits query into lowercase search terms, dropping punctuation,
// words shorter than three letters, and common filler.
func Keywords(query string) []string {
	fields := strings.FieldsFunc(strings.ToLower(query), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	out := fields[:0]
	for _, f := range fields {
		if len(f) < 3 || stopWords[f] {
			continue
		}
		out = append(out, f)
	}
	return out
}

// Matches reports whether ex satisfies opts and contains every keyword of
// query in its input or response. Backends without native text search use it
// to filter candidates. A query without keywords matches nothing.
func Matches(ex Exchange, query string, opts SearchOpts) bool {
	if opts.SessionID != "" && ex.SessionID != opts.SessionID {
		return false
	}
	if opts.Intent != "" && ex.Intent != opts.Intent {
		return false
	}
	if !opts.After.IsZero() && !ex.Timestamp.After(opts.After) {
		return false
	}
	words := Keywords(query)
	if len(words) == 0 {
		return false
	}
	hay := strings.ToLower(ex.Input + " " + ex.Response)
	for _, w := range words {
		if !strings.Contains(hay, w) {
			return false
		}
	}
	return true
}

// SortNewestFirst orders exchanges by descending timestamp. Exchanges with
// equal timestamps keep their relative order.
func SortNewestFirst(exs []Exchange) {
	slices.SortStableFunc(exs, func(a, b Exchange) int {
		return b.Timestamp.Compare(a.Timestamp)
	})
}
