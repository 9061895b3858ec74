package trigger

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

// Match describes which rule fired and through which pattern.
type Match struct {
	// Rule is the matched rule.
	Rule *Rule

	// Pattern is the literal phrase or regex source that matched.
	Pattern string
}

// Detect scans text for the configured trigger phrases and, on a match,
// returns the text with the phrase stripped plus the match. With no match it
// returns the input unchanged and a nil match.
//
// Detect is a pure function of its inputs: it holds no state and is called at
// most once per session. Literal phrases are tried longest-first across all
// rules combined (ties keep rule order); each candidate attempts a trailing
// match, then a leading match, then a diacritic-insensitive anywhere match.
// Regex patterns are tried after the literals, in rule order, directly
// against the untrimmed text. The first candidate that matches wins.
func Detect(text string, rules []Rule) (string, *Match) {
	if strings.TrimSpace(text) == "" || len(rules) == 0 {
		return text, nil
	}

	for _, c := range literalCandidates(rules) {
		stripped, ok := stripLiteral(text, c.phrase)
		if ok {
			return finalize(stripped), &Match{Rule: &rules[c.rule], Pattern: c.phrase}
		}
	}

	for ri := range rules {
		for _, re := range rules[ri].Patterns {
			loc := re.FindStringIndex(text)
			if loc == nil {
				continue
			}
			stripped := text[:loc[0]] + text[loc[1]:]
			return finalize(stripped), &Match{Rule: &rules[ri], Pattern: re.String()}
		}
	}

	return text, nil
}

// stripLiteral applies the three matching strategies for one phrase. A
// trailing and a leading match may both fire when the phrase wraps the text;
// the anywhere match only runs when neither boundary strategy fired.
func stripLiteral(text, phrase string) (string, bool) {
	result := text
	matched := false

	if out, ok := stripTrailing(result, phrase); ok {
		result = out
		matched = true
	}
	if out, ok := stripLeading(result, phrase); ok {
		result = out
		matched = true
	}
	if !matched {
		if out, ok := stripAnywhere(result, phrase); ok {
			result = out
			matched = true
		}
	}
	return result, matched
}

// stripTrailing trims trailing whitespace/punctuation, then matches the
// phrase case-insensitively at the end of the text. The character immediately
// preceding the phrase, if any, must be non-alphanumeric.
func stripTrailing(text, phrase string) (string, bool) {
	trimmed := strings.TrimRightFunc(text, isJunk)
	idx := foldSuffixIndex(trimmed, phrase)
	if idx < 0 {
		return text, false
	}
	if r, _ := utf8.DecodeLastRuneInString(trimmed[:idx]); idx > 0 && isAlnum(r) {
		return text, false
	}
	return strings.TrimRightFunc(trimmed[:idx], isJunk), true
}

// stripLeading matches the phrase case-insensitively at the start of the
// text. The character immediately after the phrase must be non-alphanumeric,
// unless the phrase consumes the whole string.
func stripLeading(text, phrase string) (string, bool) {
	end := foldPrefixIndex(text, phrase)
	if end < 0 {
		return text, false
	}
	if end < len(text) {
		if r, _ := utf8.DecodeRuneInString(text[end:]); isAlnum(r) {
			return text, false
		}
	}
	return strings.TrimLeftFunc(text[end:], isJunk), true
}

// stripAnywhere removes the first diacritic- and case-insensitive occurrence
// of the phrase anywhere in the text.
func stripAnywhere(text, phrase string) (string, bool) {
	folded, offsets := foldForSearch(text)
	foldedPhrase, _ := foldForSearch(phrase)
	if foldedPhrase == "" {
		return text, false
	}
	start := strings.Index(folded, foldedPhrase)
	if start < 0 {
		return text, false
	}
	end := start + len(foldedPhrase)
	origStart := offsets[start]
	origEnd := len(text)
	if end < len(folded) {
		origEnd = offsets[end]
	}
	return text[:origStart] + text[origEnd:], true
}

// finalize collapses whitespace runs to single spaces, trims, and capitalizes
// the first character of whatever remains after a strip.
func finalize(text string) string {
	collapsed := strings.Join(strings.Fields(text), " ")
	if collapsed == "" {
		return ""
	}
	r, size := utf8.DecodeRuneInString(collapsed)
	return string(unicode.ToUpper(r)) + collapsed[size:]
}

// foldSuffixIndex returns the byte index in s where a rune-wise
// case-insensitive match of phrase begins at the end of s, or -1.
func foldSuffixIndex(s, phrase string) int {
	si, pi := len(s), len(phrase)
	for pi > 0 {
		if si == 0 {
			return -1
		}
		pr, pn := utf8.DecodeLastRuneInString(phrase[:pi])
		sr, sn := utf8.DecodeLastRuneInString(s[:si])
		if !foldEq(sr, pr) {
			return -1
		}
		pi -= pn
		si -= sn
	}
	return si
}

// foldPrefixIndex returns the byte index in s just past a rune-wise
// case-insensitive match of phrase at the start of s, or -1.
func foldPrefixIndex(s, phrase string) int {
	si, pi := 0, 0
	for pi < len(phrase) {
		if si >= len(s) {
			return -1
		}
		pr, pn := utf8.DecodeRuneInString(phrase[pi:])
		sr, sn := utf8.DecodeRuneInString(s[si:])
		if !foldEq(sr, pr) {
			return -1
		}
		pi += pn
		si += sn
	}
	return si
}

func foldEq(a, b rune) bool {
	return a == b || unicode.ToLower(a) == unicode.ToLower(b)
}

// foldForSearch lowercases s and strips combining marks, returning the folded
// string plus a byte-offset map from folded positions back into s.
func foldForSearch(s string) (string, []int) {
	var b strings.Builder
	offsets := make([]int, 0, len(s))
	for i, r := range s {
		for _, dr := range norm.NFD.String(string(r)) {
			if unicode.Is(unicode.Mn, dr) {
				continue
			}
			lower := unicode.ToLower(dr)
			n := utf8.RuneLen(lower)
			b.WriteRune(lower)
			for range n {
				offsets = append(offsets, i)
			}
		}
	}
	return b.String(), offsets
}

func isJunk(r rune) bool {
	return unicode.IsSpace(r) || unicode.IsPunct(r)
}

func isAlnum(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r)
}
