package trigger

import (
	"strings"
	"testing"
)

func TestParseRulesLiteralAndRegex(t *testing.T) {
	rules, err := ParseRules([]RawRule{
		{
			Name:       "mixed",
			TargetMode: "email",
			Patterns:   []string{"write an email", `/draft (a|an) (email|reply)/i`},
		},
	})
	if err != nil {
		t.Fatalf("ParseRules: %v", err)
	}
	if len(rules) != 1 {
		t.Fatalf("rules = %d, want 1", len(rules))
	}
	r := rules[0]
	if len(r.Phrases) != 1 || r.Phrases[0] != "write an email" {
		t.Fatalf("phrases = %v, want [write an email]", r.Phrases)
	}
	if len(r.Patterns) != 1 {
		t.Fatalf("patterns = %d, want 1", len(r.Patterns))
	}
	if !r.Patterns[0].MatchString("DRAFT an EMAIL") {
		t.Fatal("regex flag i not applied")
	}
}

func TestParseRulesTrimsPhrases(t *testing.T) {
	rules, err := ParseRules([]RawRule{
		{Name: "r", TargetMode: "m", Patterns: []string{"  summarize this  "}},
	})
	if err != nil {
		t.Fatalf("ParseRules: %v", err)
	}
	if rules[0].Phrases[0] != "summarize this" {
		t.Fatalf("phrase = %q, want trimmed", rules[0].Phrases[0])
	}
}

func TestParseRulesRejectsInvalid(t *testing.T) {
	tests := []struct {
		name string
		raw  RawRule
		want string
	}{
		{"no name", RawRule{TargetMode: "m", Patterns: []string{"x"}}, "without a name"},
		{"no mode", RawRule{Name: "r", Patterns: []string{"x"}}, "no target mode"},
		{"no patterns", RawRule{Name: "r", TargetMode: "m"}, "no patterns"},
		{"empty phrase", RawRule{Name: "r", TargetMode: "m", Patterns: []string{"   "}}, "empty phrase"},
		{"bad regex", RawRule{Name: "r", TargetMode: "m", Patterns: []string{`/([a/i`}}, "compile"},
		{"bad flag", RawRule{Name: "r", TargetMode: "m", Patterns: []string{`/abc/x`}}, "unsupported regex flag"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseRules([]RawRule{tt.raw})
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("error = %v, want substring %q", err, tt.want)
			}
		})
	}
}

func TestSplitRegexForm(t *testing.T) {
	body, flags, ok := splitRegexForm(`/a/b/ims`)
	if !ok || body != "a/b" || flags != "ims" {
		t.Fatalf("splitRegexForm = %q %q %v, want a/b ims true", body, flags, ok)
	}
	if _, _, ok := splitRegexForm("plain words"); ok {
		t.Fatal("plain phrase misread as regex")
	}
	if _, _, ok := splitRegexForm("/unterminated"); ok {
		t.Fatal("unterminated slash form misread as regex")
	}
}

func TestLiteralCandidatesOrdering(t *testing.T) {
	rules := []Rule{
		{Name: "a", Phrases: []string{"short", "a much longer phrase"}},
		{Name: "b", Phrases: []string{"ميدل", "tiny"}},
	}
	cands := literalCandidates(rules)
	for i := 1; i < len(cands); i++ {
		if len(cands[i-1].phrase) < len(cands[i].phrase) {
			t.Fatalf("candidates not longest-first at %d: %q before %q",
				i, cands[i-1].phrase, cands[i].phrase)
		}
	}
	if cands[0].phrase != "a much longer phrase" {
		t.Fatalf("first candidate = %q, want the longest phrase", cands[0].phrase)
	}
}
