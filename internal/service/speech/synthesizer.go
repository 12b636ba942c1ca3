package speech

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/zhouzirui/voice-tavern/backend/internal/audio"
	"github.com/zhouzirui/voice-tavern/backend/internal/logging"
	"github.com/zhouzirui/voice-tavern/backend/internal/model/speech"
)

// Speaker renders text audibly and returns once playback has finished.
type Speaker interface {
	Speak(ctx context.Context, text string) error
}

// TTSClient 合成完整音频。
type TTSClient interface {
	Synthesize(ctx context.Context, req *speech.TTSRequest) (*speech.TTSResponse, error)
}

// Player 播放 PCM16 单声道样本。
type Player interface {
	Play(ctx context.Context, pcm []int16) error
}

// PlayerFactory 按采样率创建播放器。
type PlayerFactory func(sampleRate int) Player

// Synthesizer 是同步的语音播报实现：合成 PCM 后交给播放器。
type Synthesizer struct {
	tts       TTSClient
	newPlayer PlayerFactory
	voice     string
	logger    *zap.Logger
}

// NewSynthesizer 组装播报器。
func NewSynthesizer(tts TTSClient, newPlayer PlayerFactory, voice string, logger *zap.Logger) *Synthesizer {
	return &Synthesizer{
		tts:       tts,
		newPlayer: newPlayer,
		voice:     voice,
		logger:    logging.OrNop(logger).Named("speech"),
	}
}

// Speak 实现 Speaker。空文本直接返回。
func (s *Synthesizer) Speak(ctx context.Context, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	resp, err := s.tts.Synthesize(ctx, &speech.TTSRequest{
		Text:       text,
		Voice:      s.voice,
		Format:     "pcm",
		SampleRate: 24000,
	})
	if err != nil {
		return fmt.Errorf("synthesize: %w", err)
	}

	rate := resp.SampleRate
	if rate <= 0 {
		rate = 24000
	}
	if err := s.newPlayer(rate).Play(ctx, audio.FromPCM16(resp.AudioData)); err != nil {
		return fmt.Errorf("play: %w", err)
	}

	s.logger.Debug("spoke", zap.Int("chars", len(text)), zap.Int64("durationMs", resp.Duration))
	return nil
}

// LogSpeaker only logs what would have been spoken. It is used when speech
// output is disabled or unavailable.
type LogSpeaker struct {
	Logger *zap.Logger
}

// Speak 实现 Speaker。
func (s LogSpeaker) Speak(_ context.Context, text string) error {
	logging.OrNop(s.Logger).Info("speak (text only)", zap.String("text", text))
	return nil
}

// NewSpeaker 根据配置选择播报实现，凭证缺失或关闭 TTS 时退化为只记日志。
func NewSpeaker(cfg *speech.SpeechConfig, newPlayer PlayerFactory, logger *zap.Logger) Speaker {
	logger = logging.OrNop(logger)
	if !cfg.TTSEnabled || newPlayer == nil {
		return LogSpeaker{Logger: logger.Named("speech")}
	}

	switch strings.ToLower(cfg.TTSProvider) {
	case "openai":
		if cfg.OpenAIAPIKey == "" {
			logger.Warn("openai tts selected without OPENAI_API_KEY, speech output is text only")
			return LogSpeaker{Logger: logger.Named("speech")}
		}
		return NewSynthesizer(NewOpenAITTSClient(cfg), newPlayer, "", logger)
	default:
		if !HasVolcengineCredentials(cfg) {
			logger.Warn("volcengine credentials missing, speech output is text only")
			return LogSpeaker{Logger: logger.Named("speech")}
		}
		return NewSynthesizer(NewVolcengineTTSClient(cfg, logger), newPlayer, cfg.TTSVoice, logger)
	}
}
