package vocab

import (
	"strings"
	"unicode"

	"github.com/antzucaro/matchr"
)

const (
	// defaultThreshold is the minimum Jaro-Winkler score a phonetic
	// candidate needs to replace the spoken word.
	defaultThreshold = 0.80

	// minWordLen is the shortest word considered for phonetic
	// correction. Metaphone codes of very short words collide with half
	// the language.
	minWordLen = 3

	// minPairLen is the shortest combined length of a two-word window
	// considered for phonetic correction against a single term.
	minPairLen = 6

	// minPairScore is the Jaro-Winkler floor for two-word windows.
	// Joining two spoken words into one term is a bigger edit than
	// fixing a single word, so it needs a near-exact score.
	minPairScore = 0.90
)

// Option configures a Corrector.
type Option func(*Corrector)

// WithThreshold sets the minimum Jaro-Winkler score required for a
// phonetic correction. Default: 0.80.
func WithThreshold(threshold float64) Option {
	return func(c *Corrector) {
		c.threshold = threshold
	}
}

// term is a vocabulary entry with its phonetic codes precomputed.
type term struct {
	written string
	lower   string
	tokens  []string
	codes   map[string]struct{}
}

// Corrector applies a Vocabulary to transcripts. It is read-only after
// construction and safe for concurrent use.
type Corrector struct {
	replacements map[string]string
	maxPhrase    int // longest replacement key, in words
	terms        []term
	threshold    float64
}

// NewCorrector compiles the vocabulary for repeated use.
func NewCorrector(v *Vocabulary, opts ...Option) *Corrector {
	c := &Corrector{
		replacements: make(map[string]string),
		threshold:    defaultThreshold,
	}
	for _, o := range opts {
		o(c)
	}
	if v == nil {
		return c
	}
	for spoken, written := range v.Replacements {
		key := normalizeSpoken(spoken)
		if key == "" {
			continue
		}
		c.replacements[key] = written
		if n := len(strings.Fields(key)); n > c.maxPhrase {
			c.maxPhrase = n
		}
	}
	for _, t := range v.Terms {
		lower := strings.ToLower(t)
		tokens := strings.Fields(lower)
		c.terms = append(c.terms, term{
			written: t,
			lower:   strings.Join(tokens, " "),
			tokens:  tokens,
			codes:   phoneticCodes(tokens),
		})
	}
	return c
}

// Correct rewrites text using the compiled vocabulary. Separators and
// punctuation are preserved; only word tokens are touched. With an empty
// vocabulary the input is returned unchanged.
func (c *Corrector) Correct(text string) string {
	if text == "" || (len(c.replacements) == 0 && len(c.terms) == 0) {
		return text
	}

	toks := tokenize(text)
	var b strings.Builder
	b.Grow(len(text))

	for i := 0; i < len(toks); {
		if !toks[i].word {
			b.WriteString(toks[i].text)
			i++
			continue
		}
		if written, next, ok := c.replaceAt(toks, i); ok {
			b.WriteString(written)
			i = next
			continue
		}
		if written, next, ok := c.correctAt(toks, i); ok {
			b.WriteString(written)
			i = next
			continue
		}
		b.WriteString(toks[i].text)
		i++
	}
	return b.String()
}

// replaceAt tries the exact-replacement table at word token i, longest
// phrase first. It returns the written form and the index of the first
// unconsumed token.
func (c *Corrector) replaceAt(toks []token, i int) (string, int, bool) {
	for n := c.maxPhrase; n >= 1; n-- {
		words, next, ok := wordWindow(toks, i, n)
		if !ok {
			continue
		}
		key := strings.ToLower(strings.Join(words, " "))
		if written, found := c.replacements[key]; found {
			return written, next, true
		}
	}
	return "", 0, false
}

// correctAt tries phonetic correction at word token i, testing the
// two-word window and the single word and keeping the higher score.
func (c *Corrector) correctAt(toks []token, i int) (string, int, bool) {
	if len(c.terms) == 0 {
		return "", 0, false
	}

	type match struct {
		written string
		next    int
		score   float64
	}
	var best match

	if words, next, ok := wordWindow(toks, i, 2); ok && pairEligible(words) {
		if t, score, found := c.bestTerm(words); found && score >= minPairScore && score > best.score {
			best = match{written: t.written, next: next, score: score}
		}
	}
	word := toks[i].text
	if len([]rune(word)) >= minWordLen && !containsDigit(word) {
		// A term spoken correctly needs at most its casing fixed.
		lower := strings.ToLower(word)
		for _, t := range c.terms {
			if t.lower == lower {
				if t.written == word {
					return "", 0, false
				}
				return t.written, i + 1, true
			}
		}
		if t, score, found := c.bestTerm([]string{lower}); found && score >= best.score {
			best = match{written: t.written, next: i + 1, score: score}
		}
	}

	if best.written == "" {
		return "", 0, false
	}
	return best.written, best.next, true
}

// bestTerm ranks vocabulary terms against the spoken tokens: a candidate
// must share a phonetic code and have comparable length, then the highest
// Jaro-Winkler score at or above the threshold wins. Scoring compares the
// space-stripped concatenations so "jet brains" can meet "jetbrains"; the
// whole window must resemble the whole term, never just one token of it.
func (c *Corrector) bestTerm(spoken []string) (term, float64, bool) {
	for i := range spoken {
		spoken[i] = strings.ToLower(spoken[i])
	}
	codes := phoneticCodes(spoken)
	concat := strings.Join(spoken, "")
	full := strings.Join(spoken, " ")

	var (
		best      term
		bestScore float64
		found     bool
	)
	for _, t := range c.terms {
		if !codesOverlap(codes, t.codes) {
			continue
		}
		tconcat := strings.Join(t.tokens, "")
		if !lengthsComparable(concat, tconcat) {
			continue
		}
		score := matchr.JaroWinkler(concat, tconcat, false)
		if len(t.tokens) == len(spoken) {
			if s := matchr.JaroWinkler(full, t.lower, false); s > score {
				score = s
			}
		}
		if score >= c.threshold && score > bestScore {
			best, bestScore, found = t, score, true
		}
	}
	return best, bestScore, found
}

// lengthsComparable requires the shorter string to be at least 80% of the
// longer, so "visual studio" cannot swallow "Visual Studio Code".
func lengthsComparable(a, b string) bool {
	la, lb := len(a), len(b)
	if la > lb {
		la, lb = lb, la
	}
	return la*5 >= lb*4
}

// phoneticCodes returns the Double Metaphone codes of each token plus the
// concatenation of all tokens, so "jet brains" can meet "jetbrains".
func phoneticCodes(tokens []string) map[string]struct{} {
	codes := make(map[string]struct{}, len(tokens)*2+2)
	add := func(s string) {
		p, sec := matchr.DoubleMetaphone(s)
		if p != "" {
			codes[p] = struct{}{}
		}
		if sec != "" {
			codes[sec] = struct{}{}
		}
	}
	for _, t := range tokens {
		add(t)
	}
	if len(tokens) > 1 {
		add(strings.Join(tokens, ""))
	}
	return codes
}

// codesOverlap reports whether the two code sets share an entry.
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

// token is a run of word runes or a run of separators.
type token struct {
	text string
	word bool
}

// tokenize splits text into alternating word and separator tokens.
// Apostrophes count as word runes so contractions stay whole.
func tokenize(text string) []token {
	var toks []token
	start := 0
	inWord := false
	for i, r := range text {
		w := isWordRune(r)
		if i == 0 {
			inWord = w
			continue
		}
		if w != inWord {
			toks = append(toks, token{text: text[start:i], word: inWord})
			start = i
			inWord = w
		}
	}
	if start < len(text) {
		toks = append(toks, token{text: text[start:], word: inWord})
	}
	return toks
}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r) || r == '\''
}

func containsDigit(s string) bool {
	return strings.IndexFunc(s, unicode.IsDigit) >= 0
}

// pairEligible reports whether a two-word window is worth a phonetic
// attempt: both words long enough to carry a code, no digits, and enough
// combined substance ("to cubernetes" must not absorb the "to").
func pairEligible(words []string) bool {
	total := 0
	for _, w := range words {
		n := len([]rune(w))
		if n < minWordLen || containsDigit(w) {
			return false
		}
		total += n
	}
	return total >= minPairLen
}

// wordWindow collects n consecutive word tokens starting at word token i.
// The separators inside the window must be whitespace only, so phrases do
// not match across punctuation. It returns the words and the index of the
// first token after the window.
func wordWindow(toks []token, i, n int) ([]string, int, bool) {
	words := make([]string, 0, n)
	j := i
	for j < len(toks) && len(words) < n {
		t := toks[j]
		if t.word {
			words = append(words, t.text)
		} else if strings.TrimSpace(t.text) != "" {
			return nil, 0, false
		}
		j++
	}
	if len(words) != n {
		return nil, 0, false
	}
	return words, j, true
}
