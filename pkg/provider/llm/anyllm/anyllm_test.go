package anyllm

import (
	"testing"

	anyllmlib "github.com/mozilla-ai/any-llm-go"

	"github.com/sussurro/sussurro/pkg/provider/llm"
	"github.com/sussurro/sussurro/pkg/types"
)

// TestNew_EmptyProviderName checks that an empty provider name returns an error.
func TestNew_EmptyProviderName(t *testing.T) {
	_, err := New("", "gpt-4o-mini")
	if err == nil {
		t.Fatal("expected error for empty providerName")
	}
}

// TestNew_EmptyModel checks that an empty model name returns an error.
func TestNew_EmptyModel(t *testing.T) {
	_, err := New("openai", "")
	if err == nil {
		t.Fatal("expected error for empty model")
	}
}

// TestNew_UnsupportedProvider checks that an unsupported provider returns an error.
func TestNew_UnsupportedProvider(t *testing.T) {
	_, err := New("fakecloud", "some-model", anyllmlib.WithAPIKey("dummy"))
	if err == nil {
		t.Fatal("expected error for unsupported provider")
	}
}

// TestNew_OpenAI_WithAPIKey checks that the OpenAI backend constructs with a key.
func TestNew_OpenAI_WithAPIKey(t *testing.T) {
	p, err := New("openai", "gpt-4o-mini", anyllmlib.WithAPIKey("sk-test"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.Model() != "gpt-4o-mini" {
		t.Errorf("Model() = %q, want gpt-4o-mini", p.Model())
	}
}

// TestNew_OpenAI_MissingAPIKey checks that OpenAI errors when no key is available.
// This relies on OPENAI_API_KEY not being set in the test environment.
func TestNew_OpenAI_MissingAPIKey(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	_, err := New("openai", "gpt-4o-mini")
	if err == nil {
		t.Fatal("expected error for missing API key")
	}
}

// TestNew_Ollama_NoAPIKey checks that a local backend works without an API key.
func TestNew_Ollama_NoAPIKey(t *testing.T) {
	p, err := New("ollama", "llama3.1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p == nil {
		t.Fatal("expected non-nil provider")
	}
}

// TestNew_ProviderNameCaseInsensitive checks that routing ignores case.
func TestNew_ProviderNameCaseInsensitive(t *testing.T) {
	if _, err := New("Ollama", "llama3.1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

// TestBuildParams_SystemPromptFirst checks prompt ordering and optional fields.
func TestBuildParams_SystemPromptFirst(t *testing.T) {
	p := &Provider{model: "llama3.1"}
	params := p.buildParams(llm.CompletionRequest{
		SystemPrompt: "Rewrite this as an email.",
		Messages:     []types.Message{{Role: "user", Content: "dictated text"}},
		Temperature:  0.2,
		MaxTokens:    256,
	})
	if len(params.Messages) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(params.Messages))
	}
	if params.Messages[0].Role != anyllmlib.RoleSystem {
		t.Errorf("first message role = %q, want system", params.Messages[0].Role)
	}
	if params.Messages[1].Content != "dictated text" {
		t.Errorf("user content = %q", params.Messages[1].Content)
	}
	if params.Model != "llama3.1" {
		t.Errorf("model = %q, want llama3.1", params.Model)
	}
	if params.Temperature == nil || *params.Temperature != 0.2 {
		t.Error("temperature not carried")
	}
	if params.MaxTokens == nil || *params.MaxTokens != 256 {
		t.Error("max tokens not carried")
	}
}

// TestBuildParams_ZeroOptionalsOmitted checks that zero values stay nil.
func TestBuildParams_ZeroOptionalsOmitted(t *testing.T) {
	p := &Provider{model: "llama3.1"}
	params := p.buildParams(llm.CompletionRequest{
		Messages: []types.Message{{Role: "user", Content: "text"}},
	})
	if params.Temperature != nil {
		t.Error("temperature should be nil for zero value")
	}
	if params.MaxTokens != nil {
		t.Error("max tokens should be nil for zero value")
	}
}
