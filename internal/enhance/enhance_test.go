package enhance_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/sussurro/sussurro/internal/enhance"
	"github.com/sussurro/sussurro/pkg/provider/llm"
	llmmock "github.com/sussurro/sussurro/pkg/provider/llm/mock"
)

func newEnhancer(t *testing.T, cfg enhance.Config) *enhance.Enhancer {
	t.Helper()
	e, err := enhance.New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return e
}

func TestEnhanceUsesModePrompt(t *testing.T) {
	t.Parallel()

	p := &llmmock.Provider{
		CompleteResponse: &llm.CompletionResponse{
			Content: "  Hello, world.\n",
			Usage:   llm.Usage{PromptTokens: 42, CompletionTokens: 7},
		},
	}
	e := newEnhancer(t, enhance.Config{Provider: p, DefaultMode: enhance.ModeClean})

	got, err := e.Enhance(context.Background(), "hello world", enhance.ModeClean)
	if err != nil {
		t.Fatalf("Enhance: %v", err)
	}
	if got.Text != "Hello, world." {
		t.Errorf("Text = %q, want trimmed reply", got.Text)
	}
	if got.Mode != enhance.ModeClean || got.Model != "mock-model" {
		t.Errorf("Mode/Model = %q/%q", got.Mode, got.Model)
	}
	if got.PromptTokens != 42 || got.CompletionTokens != 7 {
		t.Errorf("usage not carried: %+v", got)
	}

	if len(p.CompleteCalls) != 1 {
		t.Fatalf("Complete called %d times", len(p.CompleteCalls))
	}
	req := p.CompleteCalls[0].Req
	if !strings.Contains(req.SystemPrompt, "clean up dictated speech") {
		t.Errorf("system prompt = %q, want clean-mode prompt", req.SystemPrompt)
	}
	if len(req.Messages) != 1 || req.Messages[0].Role != "user" || req.Messages[0].Content != "hello world" {
		t.Errorf("messages = %+v, want single user transcript", req.Messages)
	}
}

func TestEnhanceUnknownMode(t *testing.T) {
	t.Parallel()

	e := newEnhancer(t, enhance.Config{Provider: &llmmock.Provider{}})
	_, err := e.Enhance(context.Background(), "text", "haiku")
	if !errors.Is(err, enhance.ErrUnknownMode) {
		t.Fatalf("err = %v, want ErrUnknownMode", err)
	}
}

func TestConfigModesOverrideBuiltins(t *testing.T) {
	t.Parallel()

	p := &llmmock.Provider{CompleteResponse: &llm.CompletionResponse{Content: "x"}}
	e := newEnhancer(t, enhance.Config{
		Provider: p,
		Modes: map[string]string{
			"clean": "Custom cleanup instructions.",
			"shout": "Uppercase everything.",
		},
	})

	if _, err := e.Enhance(context.Background(), "text", "shout"); err != nil {
		t.Fatalf("custom mode: %v", err)
	}
	if _, err := e.Enhance(context.Background(), "text", "clean"); err != nil {
		t.Fatalf("overridden mode: %v", err)
	}
	if got := p.CompleteCalls[1].Req.SystemPrompt; got != "Custom cleanup instructions." {
		t.Errorf("overridden clean prompt = %q", got)
	}
	if !e.Has("email") {
		t.Error("built-in modes should survive config additions")
	}
}

func TestDefaultModeValidated(t *testing.T) {
	t.Parallel()

	_, err := enhance.New(enhance.Config{Provider: &llmmock.Provider{}, DefaultMode: "nope"})
	if !errors.Is(err, enhance.ErrUnknownMode) {
		t.Fatalf("err = %v, want ErrUnknownMode", err)
	}

	e := newEnhancer(t, enhance.Config{Provider: &llmmock.Provider{}, DefaultMode: enhance.ModeEmail})
	if e.DefaultMode() != enhance.ModeEmail {
		t.Errorf("DefaultMode = %q", e.DefaultMode())
	}
}

func TestEnhanceEmptyResponseFails(t *testing.T) {
	t.Parallel()

	p := &llmmock.Provider{CompleteResponse: &llm.CompletionResponse{Content: "  \n "}}
	e := newEnhancer(t, enhance.Config{Provider: p})
	if _, err := e.Enhance(context.Background(), "text", enhance.ModeClean); err == nil {
		t.Fatal("empty model output must be an error")
	}
}

func TestEnhanceProviderErrorWrapped(t *testing.T) {
	t.Parallel()

	inner := errors.New("rate limited")
	p := &llmmock.Provider{CompleteErr: inner}
	e := newEnhancer(t, enhance.Config{Provider: p})
	_, err := e.Enhance(context.Background(), "text", enhance.ModeClean)
	if !errors.Is(err, inner) {
		t.Fatalf("err = %v, want wrapped provider error", err)
	}
}

func TestSnapshotFoldedIntoPrompt(t *testing.T) {
	t.Parallel()

	p := &llmmock.Provider{CompleteResponse: &llm.CompletionResponse{Content: "done"}}
	snap := enhance.NewSnapshotter(
		fakeClipboard{text: "meeting at 3pm"},
		fakeWindow{title: "editor - main.go"},
	)
	e := newEnhancer(t, enhance.Config{Provider: p, Snapshotter: snap})

	if _, err := e.Enhance(context.Background(), "reply to this", enhance.ModePrompt); err != nil {
		t.Fatalf("Enhance: %v", err)
	}
	sys := p.CompleteCalls[0].Req.SystemPrompt
	if !strings.Contains(sys, "## Active Window\neditor - main.go") {
		t.Errorf("window section missing:\n%s", sys)
	}
	if !strings.Contains(sys, "## Clipboard\nmeeting at 3pm") {
		t.Errorf("clipboard section missing:\n%s", sys)
	}
	if !strings.Contains(sys, "never copy it into the output") {
		t.Errorf("context guard missing:\n%s", sys)
	}
	if !strings.HasPrefix(sys, "You turn dictated speech into a precise instruction") {
		t.Errorf("mode prompt must come first:\n%s", sys)
	}
}

func TestEnhanceNoSnapshotterLeavesPromptBare(t *testing.T) {
	t.Parallel()

	p := &llmmock.Provider{CompleteResponse: &llm.CompletionResponse{Content: "x"}}
	e := newEnhancer(t, enhance.Config{Provider: p})
	if _, err := e.Enhance(context.Background(), "text", enhance.ModeNote); err != nil {
		t.Fatalf("Enhance: %v", err)
	}
	if sys := p.CompleteCalls[0].Req.SystemPrompt; strings.Contains(sys, "Desktop context") {
		t.Errorf("prompt gained a context section without a snapshotter:\n%s", sys)
	}
}
