package app

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	analysis "github.com/zhouzirui/voice-tavern/backend/internal/analysis/emotion"
	"github.com/zhouzirui/voice-tavern/backend/internal/config"
	"github.com/zhouzirui/voice-tavern/backend/internal/service/assistant"
	"github.com/zhouzirui/voice-tavern/backend/internal/service/speech"
)

func testConfig(baseURL string) *config.Config {
	return &config.Config{
		AI: config.AIConfig{
			Provider: config.ProviderOpenAI,
			APIKey:   "sk-test",
			BaseURL:  baseURL,
		},
		Session: config.SessionConfig{SystemPrompt: "be kind", MaxHistory: 2},
		Capture: config.CaptureConfig{MaxAttempts: 3},
	}
}

func TestNewTextOnly(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"c1","object":"chat.completion","choices":[{"index":0,"message":{"role":"assistant","content":"Hi there!"},"finish_reason":"stop"}]}`))
	}))
	defer server.Close()

	a, err := New(context.Background(), testConfig(server.URL+"/v1"), Options{
		DisableMicrophone: true,
		Speaker:           speech.LogSpeaker{},
	}, nil)
	if err != nil {
		t.Fatalf("New err: %v", err)
	}
	defer a.Close()

	if a.Orchestrator.VoiceEnabled() {
		t.Fatalf("voice should be disabled")
	}

	ex, err := a.Orchestrator.TextExchange(context.Background(), "Hello", analysis.Sad)
	if err != nil {
		t.Fatalf("TextExchange err: %v", err)
	}
	if ex.Reply != "😢 Hi there!" {
		t.Fatalf("reply = %q", ex.Reply)
	}
	if a.Session.Len() != 3 {
		t.Fatalf("history length = %d, want 3", a.Session.Len())
	}

	voice, err := a.Orchestrator.VoiceExchange(context.Background(), assistant.Observer{})
	if err != nil || voice.Reply != assistant.ServiceErrorNotice {
		t.Fatalf("voice exchange = %+v, %v", voice, err)
	}
}

func TestNewRequiresChatModel(t *testing.T) {
	cfg := testConfig("")
	cfg.AI.APIKey = ""
	if _, err := New(context.Background(), cfg, Options{DisableMicrophone: true}, nil); err == nil {
		t.Fatalf("expected error without credentials")
	}
}
