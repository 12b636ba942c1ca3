package speech

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/zhouzirui/voice-tavern/backend/internal/audio"
	"github.com/zhouzirui/voice-tavern/backend/internal/logging"
	"github.com/zhouzirui/voice-tavern/backend/internal/model/speech"
)

func newOpenAIClient(cfg *speech.SpeechConfig) *openai.Client {
	clientCfg := openai.DefaultConfig(cfg.OpenAIAPIKey)
	if cfg.OpenAIBaseURL != "" {
		clientCfg.BaseURL = cfg.OpenAIBaseURL
	}
	return openai.NewClientWithConfig(clientCfg)
}

// WhisperRecognizer 通过 OpenAI 转写接口识别 WAV 片段。
type WhisperRecognizer struct {
	client   *openai.Client
	model    string
	language string
	logger   *zap.Logger
}

// NewWhisperRecognizer 创建 Whisper 识别器。
func NewWhisperRecognizer(cfg *speech.SpeechConfig, logger *zap.Logger) *WhisperRecognizer {
	model := cfg.ASRModel
	if model == "" {
		model = openai.Whisper1
	}
	// Whisper 只接受 ISO-639-1 语言码
	language, _, _ := strings.Cut(cfg.ASRLanguage, "-")
	return &WhisperRecognizer{
		client:   newOpenAIClient(cfg),
		model:    model,
		language: strings.ToLower(language),
		logger:   logging.OrNop(logger).Named("whisper"),
	}
}

// Transcribe 实现 Recognizer。
func (r *WhisperRecognizer) Transcribe(ctx context.Context, clip audio.Clip) (string, error) {
	if clip.Empty() {
		return "", speech.ErrNoSpeech
	}

	wav, err := audio.EncodeWAV(clip)
	if err != nil {
		return "", fmt.Errorf("encode clip: %w", err)
	}

	resp, err := r.client.CreateTranscription(ctx, openai.AudioRequest{
		Model:    r.model,
		Reader:   bytes.NewReader(wav),
		FilePath: "utterance.wav",
		Language: r.language,
	})
	if err != nil {
		var apiErr *openai.APIError
		if errors.As(err, &apiErr) {
			return "", fmt.Errorf("%w: whisper api error (status %d): %s", speech.ErrServiceUnavailable, apiErr.HTTPStatusCode, apiErr.Message)
		}
		return "", classifyRecognitionError(err)
	}

	text := strings.TrimSpace(resp.Text)
	if text == "" {
		return "", speech.ErrUnintelligible
	}
	r.logger.Debug("transcribed", zap.String("text", text))
	return text, nil
}

// OpenAITTSClient 使用 OpenAI 语音接口合成 24kHz PCM。
type OpenAITTSClient struct {
	client *openai.Client
	model  openai.SpeechModel
	voice  openai.SpeechVoice
	speed  float64
}

// NewOpenAITTSClient 创建 OpenAI 合成客户端。
func NewOpenAITTSClient(cfg *speech.SpeechConfig) *OpenAITTSClient {
	voice := openai.SpeechVoice(cfg.TTSVoice)
	if voice == "" {
		voice = openai.VoiceAlloy
	}
	speed := float64(cfg.TTSSpeed)
	if speed <= 0 {
		speed = 1
	}
	return &OpenAITTSClient{
		client: newOpenAIClient(cfg),
		model:  openai.TTSModel1,
		voice:  voice,
		speed:  speed,
	}
}

// Synthesize 返回 24kHz 16bit 单声道 PCM。
func (c *OpenAITTSClient) Synthesize(ctx context.Context, req *speech.TTSRequest) (*speech.TTSResponse, error) {
	if strings.TrimSpace(req.Text) == "" {
		return nil, fmt.Errorf("tts text is empty")
	}

	raw, err := c.client.CreateSpeech(ctx, openai.CreateSpeechRequest{
		Model:          c.model,
		Input:          req.Text,
		Voice:          c.voice,
		ResponseFormat: openai.SpeechResponseFormatPcm,
		Speed:          c.speed,
	})
	if err != nil {
		return nil, fmt.Errorf("openai speech: %w", err)
	}
	defer raw.Close()

	data, err := io.ReadAll(raw)
	if err != nil {
		return nil, fmt.Errorf("read openai speech: %w", err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("tts audio is empty")
	}
	return &speech.TTSResponse{
		SessionID:  req.SessionID,
		AudioData:  data,
		Format:     "pcm",
		SampleRate: 24000,
	}, nil
}
