// Package app 负责把配置组装成可运行的会话组件，供 HTTP 服务与 CLI 共用。
package app

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/zhouzirui/voice-tavern/backend/internal/audio"
	"github.com/zhouzirui/voice-tavern/backend/internal/audio/device"
	"github.com/zhouzirui/voice-tavern/backend/internal/config"
	"github.com/zhouzirui/voice-tavern/backend/internal/logging"
	"github.com/zhouzirui/voice-tavern/backend/internal/service/ai"
	"github.com/zhouzirui/voice-tavern/backend/internal/service/assistant"
	"github.com/zhouzirui/voice-tavern/backend/internal/service/capture"
	chatservice "github.com/zhouzirui/voice-tavern/backend/internal/service/chat"
	emotionservice "github.com/zhouzirui/voice-tavern/backend/internal/service/emotion"
	"github.com/zhouzirui/voice-tavern/backend/internal/service/speech"
)

// Options 调整组装过程。
type Options struct {
	// DisableMicrophone 只启用文本交换。
	DisableMicrophone bool
	// Speaker 替换默认的语音播报实现，测试与无声模式使用。
	Speaker speech.Speaker
}

// App 持有一次运行期间的全部会话组件。
type App struct {
	Session      *chatservice.Session
	Orchestrator *assistant.Orchestrator
	Generator    *ai.Generator

	closers []func() error
}

// New wires the language model, speech, emotion and capture services described
// by cfg around a single conversation session. A missing or unusable
// microphone only disables voice exchanges.
func New(ctx context.Context, cfg *config.Config, opts Options, logger *zap.Logger) (*App, error) {
	logger = logging.OrNop(logger)

	chatModel, err := ai.NewChatModel(ctx, cfg.AI)
	if err != nil {
		return nil, fmt.Errorf("init chat model: %w", err)
	}

	speaker := opts.Speaker
	if speaker == nil {
		speaker = speech.NewSpeaker(&cfg.Speech, devicePlayer, logger)
	}

	session := chatservice.NewSession(cfg.Session.SystemPrompt, cfg.Session.MaxHistory)
	generator, err := ai.NewGenerator(ctx, chatModel, session, speaker, cfg.AI.Timeout, logger)
	if err != nil {
		return nil, fmt.Errorf("init generator: %w", err)
	}

	a := &App{Session: session, Generator: generator}

	var capturer assistant.Capturer
	if !opts.DisableMicrophone {
		controller, closeMic, err := newCaptureController(cfg, speaker, logger)
		if err != nil {
			logger.Warn("voice capture disabled", zap.Error(err))
		} else {
			capturer = controller
			a.closers = append(a.closers, closeMic)
		}
	}

	a.Orchestrator = assistant.NewOrchestrator(capturer, generator, cfg.Capture.MaxAttempts, logger)
	logger.Info("session ready",
		zap.String("sessionId", session.ID()),
		zap.String("provider", cfg.AI.Provider),
		zap.Bool("voice", capturer != nil))
	return a, nil
}

func newCaptureController(cfg *config.Config, speaker speech.Speaker, logger *zap.Logger) (*capture.Controller, func() error, error) {
	classifier, err := emotionservice.NewClassifier(emotionservice.Config{
		Strategy:   emotionservice.Strategy(cfg.Emotion.Strategy),
		Thresholds: cfg.Emotion.Thresholds,
		Model: emotionservice.ModelConfig{
			URL:     cfg.Emotion.ModelURL,
			Token:   cfg.Emotion.ModelToken,
			Timeout: cfg.Emotion.ModelTimeout,
		},
	}, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("init emotion classifier: %w", err)
	}

	var recognizer capture.Recognizer
	if r, err := speech.NewRecognizer(&cfg.Speech, logger); err != nil {
		logger.Warn("speech recognition unavailable", zap.Error(err))
		recognizer = speech.LogRecognizer{Reason: err.Error(), Logger: logger.Named("speech")}
	} else {
		recognizer = r
	}

	sampleRate := cfg.Speech.ASRSampleRate
	if sampleRate <= 0 {
		sampleRate = audio.SampleRate
	}
	mic, err := device.OpenMicrophone(sampleRate, audio.FramesPerBuffer)
	if err != nil {
		return nil, nil, err
	}

	opts := audio.DefaultListenerOptions()
	opts.SampleRate = sampleRate
	listener := audio.NewListener(mic, opts)

	controller := capture.NewController(listener, recognizer, speaker, classifier, capture.Config{
		MaxAttempts:   cfg.Capture.MaxAttempts,
		Calibration:   cfg.Capture.Calibration,
		ListenTimeout: cfg.Capture.ListenTimeout,
		PhraseLimit:   cfg.Capture.PhraseLimit,
	}, logger)
	return controller, mic.Close, nil
}

// devicePlayer 在默认输出设备上播放合成音频。
func devicePlayer(sampleRate int) speech.Player {
	return device.NewPlayer(sampleRate)
}

// Close 释放音频设备。
func (a *App) Close() error {
	var errs []error
	for _, c := range a.closers {
		if err := c(); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
