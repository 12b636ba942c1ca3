package speech

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/zhouzirui/voice-tavern/backend/internal/audio"
	"github.com/zhouzirui/voice-tavern/backend/internal/logging"
	"github.com/zhouzirui/voice-tavern/backend/internal/model/speech"
)

// Recognizer 将一段采集到的语音转写为文本。
//
// Errors follow the recognition taxonomy: speech.ErrUnintelligible when the
// service answered with nothing usable, speech.ErrServiceUnavailable when it
// could not be reached or refused the request.
type Recognizer interface {
	Transcribe(ctx context.Context, clip audio.Clip) (string, error)
}

// NewRecognizer 根据 ASRProvider 选择识别后端。
func NewRecognizer(cfg *speech.SpeechConfig, logger *zap.Logger) (Recognizer, error) {
	switch strings.ToLower(cfg.ASRProvider) {
	case "", "volcengine":
		if !HasVolcengineCredentials(cfg) {
			return nil, fmt.Errorf("volcengine asr requires SPEECH_APP_ID and SPEECH_ACCESS_TOKEN")
		}
		return NewVolcengineRecognizer(NewVolcengineASRClient(cfg, logger), cfg.ASRLanguage), nil
	case "openai":
		if cfg.OpenAIAPIKey == "" {
			return nil, fmt.Errorf("openai asr requires OPENAI_API_KEY")
		}
		return NewWhisperRecognizer(cfg, logger), nil
	default:
		return nil, fmt.Errorf("unknown asr provider %q", cfg.ASRProvider)
	}
}

// VolcengineRecognizer adapts the websocket ASR client to clips, which are sent
// as 16-bit PCM at the clip's own sample rate.
type VolcengineRecognizer struct {
	client   *VolcengineASRClient
	language string
	logger   *zap.Logger
}

// NewVolcengineRecognizer 包装识别客户端。
func NewVolcengineRecognizer(client *VolcengineASRClient, language string) *VolcengineRecognizer {
	return &VolcengineRecognizer{client: client, language: language, logger: client.logger}
}

// Transcribe 实现 Recognizer。
func (r *VolcengineRecognizer) Transcribe(ctx context.Context, clip audio.Clip) (string, error) {
	if clip.Empty() {
		return "", speech.ErrNoSpeech
	}

	resp, err := r.client.Transcribe(ctx, &speech.ASRRequest{
		SessionID:  uuid.NewString(),
		AudioData:  bytes.NewReader(audio.ToPCM16(clip.Samples)),
		Format:     "pcm",
		Language:   r.language,
		SampleRate: clip.SampleRate,
	})
	if err != nil {
		return "", classifyRecognitionError(err)
	}

	text := strings.TrimSpace(resp.Text)
	if text == "" {
		return "", speech.ErrUnintelligible
	}
	r.logger.Debug("transcribed", zap.String("text", text), zap.Int64("durationMs", resp.Duration))
	return text, nil
}

// classifyRecognitionError keeps recognition sentinels and context errors as
// they are and folds everything else into speech.ErrServiceUnavailable.
func classifyRecognitionError(err error) error {
	switch {
	case errors.Is(err, speech.ErrServiceUnavailable),
		errors.Is(err, speech.ErrUnintelligible),
		errors.Is(err, speech.ErrNoSpeech),
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):
		return err
	}
	return fmt.Errorf("%w: %v", speech.ErrServiceUnavailable, err)
}

// LogRecognizer 是没有识别后端时的占位实现，总是报告服务不可用。
type LogRecognizer struct {
	Reason string
	Logger *zap.Logger
}

// Transcribe 实现 Recognizer。
func (r LogRecognizer) Transcribe(context.Context, audio.Clip) (string, error) {
	logging.OrNop(r.Logger).Warn("speech recognition unavailable", zap.String("reason", r.Reason))
	return "", fmt.Errorf("%w: %s", speech.ErrServiceUnavailable, r.Reason)
}
