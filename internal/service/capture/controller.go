// Package capture 实现带重试上限的语音采集：校准、监听、识别，最后做情绪分类。
package capture

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	analysis "github.com/zhouzirui/voice-tavern/backend/internal/analysis/emotion"
	"github.com/zhouzirui/voice-tavern/backend/internal/audio"
	"github.com/zhouzirui/voice-tavern/backend/internal/logging"
	"github.com/zhouzirui/voice-tavern/backend/internal/model/speech"
)

// Spoken prompts.
const (
	RetryPrompt        = "I didn't catch that. Please try again."
	ServiceErrorPrompt = "Speech recognition service error."
)

// Status 是一次采集调用的结果类别。
type Status string

const (
	StatusOK           Status = "ok"
	StatusNoInput      Status = "no_input"
	StatusServiceError Status = "service_error"
)

// Result 描述一次采集的结果。Status 非 ok 时 Transcript 为空、Emotion 为 neutral。
type Result struct {
	Transcript string         `json:"transcript"`
	Emotion    analysis.Label `json:"emotion"`
	Status     Status         `json:"status"`
	Attempts   int            `json:"attempts"`
	Err        error          `json:"-"`
}

// Microphone 是校准后的语音片段来源。
type Microphone interface {
	Calibrate(ctx context.Context, d time.Duration) error
	Listen(ctx context.Context, timeout, phraseLimit time.Duration) (audio.Clip, error)
}

// Recognizer 将片段转写为文本。
type Recognizer interface {
	Transcribe(ctx context.Context, clip audio.Clip) (string, error)
}

// Speaker 同步播报一段文本。
type Speaker interface {
	Speak(ctx context.Context, text string) error
}

// Classifier 推断片段的情绪。
type Classifier interface {
	Classify(ctx context.Context, clip audio.Clip) analysis.Label
}

// Event is passed to the progress hook after every attempt.
type Event struct {
	Attempt     int    `json:"attempt"`
	MaxAttempts int    `json:"maxAttempts"`
	Outcome     string `json:"outcome"`
}

// Attempt outcomes reported through Event.
const (
	OutcomeRecognized   = "recognized"
	OutcomeNoSpeech     = "no_speech"
	OutcomeUnclear      = "unintelligible"
	OutcomeServiceError = "service_error"
)

// Config 控制采集参数。
type Config struct {
	MaxAttempts   int
	Calibration   time.Duration
	ListenTimeout time.Duration
	PhraseLimit   time.Duration
}

// DefaultConfig 返回默认采集参数。
func DefaultConfig() Config {
	return Config{
		MaxAttempts:   3,
		Calibration:   time.Second,
		ListenTimeout: 5 * time.Second,
		PhraseLimit:   10 * time.Second,
	}
}

// Controller runs the bounded capture loop.
type Controller struct {
	mic        Microphone
	recognizer Recognizer
	speaker    Speaker
	classifier Classifier
	cfg        Config
	logger     *zap.Logger
}

// NewController 组装采集控制器。
func NewController(mic Microphone, recognizer Recognizer, speaker Speaker, classifier Classifier, cfg Config, logger *zap.Logger) *Controller {
	def := DefaultConfig()
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = def.MaxAttempts
	}
	if cfg.Calibration < 0 {
		cfg.Calibration = def.Calibration
	}
	if cfg.ListenTimeout <= 0 {
		cfg.ListenTimeout = def.ListenTimeout
	}
	if cfg.PhraseLimit <= 0 {
		cfg.PhraseLimit = def.PhraseLimit
	}
	return &Controller{
		mic:        mic,
		recognizer: recognizer,
		speaker:    speaker,
		classifier: classifier,
		cfg:        cfg,
		logger:     logging.OrNop(logger).Named("capture"),
	}
}

// Capture listens until a transcript is obtained, the attempt budget is spent,
// or the recognizer reports a service failure. maxAttempts <= 0 uses the
// configured default.
func (c *Controller) Capture(ctx context.Context, maxAttempts int) Result {
	return c.CaptureWithProgress(ctx, maxAttempts, nil)
}

// CaptureWithProgress 与 Capture 相同，并在每次尝试后回调 progress。
func (c *Controller) CaptureWithProgress(ctx context.Context, maxAttempts int, progress func(Event)) Result {
	if maxAttempts <= 0 {
		maxAttempts = c.cfg.MaxAttempts
	}
	notify := func(attempt int, outcome string) {
		if progress != nil {
			progress(Event{Attempt: attempt, MaxAttempts: maxAttempts, Outcome: outcome})
		}
	}

	if err := c.mic.Calibrate(ctx, c.cfg.Calibration); err != nil {
		c.logger.Error("microphone calibration failed", zap.Error(err))
		c.say(ctx, ServiceErrorPrompt)
		notify(0, OutcomeServiceError)
		return failed(StatusServiceError, 0, fmt.Errorf("calibrate microphone: %w", err))
	}

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		clip, transcript, err := c.attempt(ctx)
		if err == nil {
			label := c.classifier.Classify(ctx, clip)
			c.logger.Info("speech recognized",
				zap.Int("attempt", attempt),
				zap.String("transcript", transcript),
				zap.String("emotion", string(label)))
			notify(attempt, OutcomeRecognized)
			return Result{Transcript: transcript, Emotion: label, Status: StatusOK, Attempts: attempt}
		}

		if retryable(err) {
			outcome := OutcomeUnclear
			if errors.Is(err, speech.ErrNoSpeech) {
				outcome = OutcomeNoSpeech
			}
			c.logger.Info("capture attempt failed",
				zap.Int("attempt", attempt),
				zap.Int("maxAttempts", maxAttempts),
				zap.String("outcome", outcome))
			notify(attempt, outcome)
			c.say(ctx, RetryPrompt)
			continue
		}

		c.logger.Error("speech recognition service error", zap.Int("attempt", attempt), zap.Error(err))
		notify(attempt, OutcomeServiceError)
		c.say(ctx, ServiceErrorPrompt)
		return failed(StatusServiceError, attempt, err)
	}

	c.logger.Warn("no usable input after all attempts", zap.Int("attempts", maxAttempts))
	return failed(StatusNoInput, maxAttempts, speech.ErrUnintelligible)
}

func (c *Controller) attempt(ctx context.Context) (audio.Clip, string, error) {
	clip, err := c.mic.Listen(ctx, c.cfg.ListenTimeout, c.cfg.PhraseLimit)
	if err != nil {
		return audio.Clip{}, "", err
	}
	transcript, err := c.recognizer.Transcribe(ctx, clip)
	if err != nil {
		return audio.Clip{}, "", err
	}
	transcript = strings.TrimSpace(transcript)
	if transcript == "" {
		return audio.Clip{}, "", speech.ErrUnintelligible
	}
	return clip, transcript, nil
}

func (c *Controller) say(ctx context.Context, text string) {
	if c.speaker == nil {
		return
	}
	if err := c.speaker.Speak(ctx, text); err != nil {
		c.logger.Warn("speak prompt failed", zap.String("text", text), zap.Error(err))
	}
}

func retryable(err error) bool {
	return errors.Is(err, speech.ErrNoSpeech) || errors.Is(err, speech.ErrUnintelligible)
}

func failed(status Status, attempts int, err error) Result {
	return Result{Emotion: analysis.Neutral, Status: status, Attempts: attempts, Err: err}
}
