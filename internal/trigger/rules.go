// Package trigger implements trigger-phrase detection on finished transcripts.
// A transcript is checked once, after transcription, against the configured
// rules; a match selects an enhancement mode for that session only and the
// matched phrase is stripped from the text before it travels further down the
// pipeline.
package trigger

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
)

// Rule maps a set of spoken patterns to a target enhancement mode.
type Rule struct {
	// Name is a human-readable label for logging and history records.
	Name string

	// TargetMode is the enhancement mode forced when the rule matches.
	TargetMode string

	// Phrases are the literal trigger phrases of this rule.
	Phrases []string

	// Patterns are the compiled regex triggers of this rule.
	Patterns []*regexp.Regexp
}

// ParseRules compiles raw rule definitions into matchable rules. A pattern of
// the form /body/flags (flags drawn from i, m, s) compiles as a regex; any
// other pattern is a literal phrase.
func ParseRules(raw []RawRule) ([]Rule, error) {
	rules := make([]Rule, 0, len(raw))
	for _, rr := range raw {
		if rr.Name == "" {
			return nil, fmt.Errorf("trigger: rule without a name")
		}
		if rr.TargetMode == "" {
			return nil, fmt.Errorf("trigger: rule %q has no target mode", rr.Name)
		}
		rule := Rule{Name: rr.Name, TargetMode: rr.TargetMode}
		for _, pat := range rr.Patterns {
			body, flags, isRegex := splitRegexForm(pat)
			if !isRegex {
				phrase := strings.TrimSpace(pat)
				if phrase == "" {
					return nil, fmt.Errorf("trigger: rule %q has an empty phrase", rr.Name)
				}
				rule.Phrases = append(rule.Phrases, phrase)
				continue
			}
			re, err := compilePattern(body, flags)
			if err != nil {
				return nil, fmt.Errorf("trigger: rule %q: %w", rr.Name, err)
			}
			rule.Patterns = append(rule.Patterns, re)
		}
		if len(rule.Phrases) == 0 && len(rule.Patterns) == 0 {
			return nil, fmt.Errorf("trigger: rule %q has no patterns", rr.Name)
		}
		rules = append(rules, rule)
	}
	return rules, nil
}

// RawRule is the unparsed form of a rule as it appears in configuration.
type RawRule struct {
	Name       string
	TargetMode string
	Patterns   []string
}

// splitRegexForm recognizes the /body/flags pattern syntax. The body may
// contain slashes; only the final slash separates the flags.
func splitRegexForm(pat string) (body, flags string, ok bool) {
	if len(pat) < 2 || !strings.HasPrefix(pat, "/") {
		return "", "", false
	}
	last := strings.LastIndex(pat[1:], "/")
	if last < 0 {
		return "", "", false
	}
	return pat[1 : last+1], pat[last+2:], true
}

// compilePattern translates delimited-form flags to Go regexp flags.
func compilePattern(body, flags string) (*regexp.Regexp, error) {
	var goFlags strings.Builder
	for _, f := range flags {
		switch f {
		case 'i', 'm', 's':
			goFlags.WriteRune(f)
		default:
			return nil, fmt.Errorf("unsupported regex flag %q", string(f))
		}
	}
	src := body
	if goFlags.Len() > 0 {
		src = "(?" + goFlags.String() + ")" + body
	}
	re, err := regexp.Compile(src)
	if err != nil {
		return nil, fmt.Errorf("compile pattern: %w", err)
	}
	return re, nil
}

// candidate is one literal phrase tagged with its owning rule index.
type candidate struct {
	phrase string
	rule   int
}

// literalCandidates flattens every literal phrase across all rules and orders
// them longest-first so a more specific phrase always wins over a shorter
// phrase it contains. Ties keep rule order (and phrase order within a rule).
func literalCandidates(rules []Rule) []candidate {
	var out []candidate
	for ri := range rules {
		for _, p := range rules[ri].Phrases {
			out = append(out, candidate{phrase: p, rule: ri})
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return len(out[i].phrase) > len(out[j].phrase)
	})
	return out
}
