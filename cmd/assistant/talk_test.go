package main

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/zhouzirui/voice-tavern/backend/internal/app"
	"github.com/zhouzirui/voice-tavern/backend/internal/config"
)

func TestReplTextExchangeAndHistory(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"c1","object":"chat.completion","choices":[{"index":0,"message":{"role":"assistant","content":"Hi there!"},"finish_reason":"stop"}]}`))
	}))
	defer server.Close()

	timeout = 5 * time.Second
	cfg := &config.Config{
		AI:      config.AIConfig{Provider: config.ProviderOpenAI, APIKey: "sk-test", BaseURL: server.URL + "/v1"},
		Session: config.SessionConfig{SystemPrompt: "be kind", MaxHistory: 10},
		Capture: config.CaptureConfig{MaxAttempts: 3},
	}
	a, err := app.New(context.Background(), cfg, app.Options{DisableMicrophone: true, Speaker: silentSpeaker{}}, nil)
	if err != nil {
		t.Fatalf("app.New err: %v", err)
	}
	defer a.Close()

	var out bytes.Buffer
	in := strings.NewReader("Hello\n/history\n/quit\nnever read\n")
	if err := repl(context.Background(), a, in, &out); err != nil {
		t.Fatalf("repl err: %v", err)
	}

	got := out.String()
	for _, want := range []string{"Assistant: Hi there!", "[1] user: Hello", "[2] assistant: Hi there!"} {
		if !strings.Contains(got, want) {
			t.Fatalf("output missing %q:\n%s", want, got)
		}
	}
	if a.Session.Len() != 3 {
		t.Fatalf("history length = %d, want 3", a.Session.Len())
	}
}
