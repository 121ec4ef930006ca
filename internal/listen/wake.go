package listen

import (
	"cmp"
	"regexp"
	"slices"
	"strings"

	"github.com/MrWong99/maxassist/internal/transcript/phonetic"
)

// noise matches transcripts made only of filler words.
var noise = regexp.MustCompile(`(?i)^(\s|um|uh|ah|er|like|so|yeah|just|you know)+$`)

// IsNoise reports whether text carries no usable content: filler words only,
// or shorter than two characters.
func IsNoise(text string) bool {
	return len(text) < 2 || noise.MatchString(text)
}

// wakeSet holds the compiled form of the configured wake phrases.
type wakeSet struct {
	phrases []string // lowercased
	strip   *regexp.Regexp
	fuzzy   *phonetic.Matcher
}

func newWakeSet(phrases []string, fuzzy bool) *wakeSet {
	ws := &wakeSet{}
	for _, p := range phrases {
		if p = strings.ToLower(strings.TrimSpace(p)); p != "" {
			ws.phrases = append(ws.phrases, p)
		}
	}

	// Longest first so "hey max" is removed whole rather than leaving "hey".
	sorted := slices.Clone(ws.phrases)
	slices.SortStableFunc(sorted, func(a, b string) int { return cmp.Compare(len(b), len(a)) })
	alts := make([]string, len(sorted))
	for i, p := range sorted {
		alts[i] = phraseExpr(strings.Fields(p))
	}
	if len(alts) > 0 {
		ws.strip = regexp.MustCompile(`(?i)\b(?:` + strings.Join(alts, "|") + `)\b`)
	}
	if fuzzy {
		ws.fuzzy = phonetic.New()
	}
	return ws
}

// phraseExpr matches words separated by any run of non-word characters, so
// "hey, max" is stripped like "hey max".
func phraseExpr(words []string) string {
	quoted := make([]string, len(words))
	for i, w := range words {
		quoted[i] = regexp.QuoteMeta(w)
	}
	return strings.Join(quoted, `\W+`)
}

// detect reports whether text contains a wake phrase. Exact substring
// matches win; the fuzzy matcher is consulted only when enabled and no
// substring matched. heard is the mis-heard window for fuzzy matches.
func (ws *wakeSet) detect(text string) (matched bool, heard string) {
	lower := strings.ToLower(text)
	for _, p := range ws.phrases {
		if strings.Contains(lower, p) {
			return true, ""
		}
	}
	if ws.fuzzy == nil {
		return false, ""
	}
	if m, ok := ws.fuzzy.Find(lower, ws.phrases); ok {
		return true, m.Heard
	}
	return false, ""
}

var edgePunct = " \t,.;:!?-"

// command removes wake phrases (and a fuzzy-heard window, if any) from text
// and tidies the remainder.
func (ws *wakeSet) command(text, heard string) string {
	out := text
	if ws.strip != nil {
		out = ws.strip.ReplaceAllString(out, " ")
	}
	if heard != "" {
		h := regexp.MustCompile(`(?i)\b` + phraseExpr(strings.Fields(heard)) + `\b`)
		out = h.ReplaceAllString(out, " ")
	}
	out = strings.Join(strings.Fields(out), " ")
	return strings.Trim(out, edgePunct)
}
