package emotion

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/zhouzirui/voice-tavern/backend/internal/audio"
)

// ModelConfig 描述预训练模型推理端点。
type ModelConfig struct {
	URL     string
	Token   string
	Timeout time.Duration
}

// HTTPModel posts a WAV-encoded clip to an audio-classification endpoint that
// answers with a JSON list of {label, score}, as Hugging Face inference does.
type HTTPModel struct {
	url        string
	token      string
	httpClient *http.Client
}

// NewHTTPModel 创建推理客户端。
func NewHTTPModel(cfg ModelConfig) (*HTTPModel, error) {
	url := strings.TrimSpace(cfg.URL)
	if url == "" {
		return nil, fmt.Errorf("emotion model url is required for the model strategy")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPModel{
		url:        url,
		token:      strings.TrimSpace(cfg.Token),
		httpClient: &http.Client{Timeout: timeout},
	}, nil
}

// Predict 实现 Model。
func (m *HTTPModel) Predict(ctx context.Context, clip audio.Clip) ([]Prediction, error) {
	body, err := audio.EncodeWAV(clip)
	if err != nil {
		return nil, fmt.Errorf("encode clip: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "audio/wav")
	if m.token != "" {
		req.Header.Set("Authorization", "Bearer "+m.token)
	}

	resp, err := m.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("model request: %w", err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read model response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("model returned %d: %s", resp.StatusCode, strings.TrimSpace(string(payload)))
	}

	var predictions []Prediction
	if err := json.Unmarshal(payload, &predictions); err != nil {
		return nil, fmt.Errorf("decode model response: %w", err)
	}
	return predictions, nil
}
