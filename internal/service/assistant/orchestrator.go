// Package assistant 串联语音采集与回复生成，保证同一会话同时只有一次交换。
package assistant

import (
	"context"
	"errors"
	"strings"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	analysis "github.com/zhouzirui/voice-tavern/backend/internal/analysis/emotion"
	"github.com/zhouzirui/voice-tavern/backend/internal/logging"
	"github.com/zhouzirui/voice-tavern/backend/internal/service/capture"
)

// ErrBusy is returned when another exchange is still in flight.
var ErrBusy = errors.New("another exchange is in progress")

// Notices shown when voice capture yields nothing to send.
const (
	NoInputNotice      = "😕 I couldn't understand you after a few tries. You can try again or type your message!"
	ServiceErrorNotice = "Speech recognition service error. You can type your message instead."
)

// Capturer 执行一次带重试的语音采集。
type Capturer interface {
	CaptureWithProgress(ctx context.Context, maxAttempts int, progress func(capture.Event)) capture.Result
}

// Responder 根据用户文本与情绪生成回复。
type Responder interface {
	Generate(ctx context.Context, userText string, label analysis.Label) (reply, warning string)
}

// Exchange 是一次完整交换的结果。
type Exchange struct {
	Transcript string          `json:"transcript,omitempty"`
	Emotion    analysis.Label  `json:"emotion"`
	Reply      string          `json:"reply"`
	Warning    string          `json:"warning,omitempty"`
	Capture    *capture.Result `json:"capture,omitempty"`
}

// Observer receives progress from a voice exchange. Every method is optional.
type Observer struct {
	OnAttempt func(capture.Event)
	OnCapture func(capture.Result)
}

// Orchestrator owns the single conversation and serialises exchanges on it.
type Orchestrator struct {
	capturer    Capturer
	responder   Responder
	maxAttempts int
	gate        *semaphore.Weighted
	logger      *zap.Logger

	mu          sync.Mutex
	lastEmotion analysis.Label
}

// NewOrchestrator 组装编排器。capturer 为 nil 时语音交换不可用。
func NewOrchestrator(capturer Capturer, responder Responder, maxAttempts int, logger *zap.Logger) *Orchestrator {
	return &Orchestrator{
		capturer:    capturer,
		responder:   responder,
		maxAttempts: maxAttempts,
		gate:        semaphore.NewWeighted(1),
		logger:      logging.OrNop(logger).Named("assistant"),
		lastEmotion: analysis.Neutral,
	}
}

// VoiceEnabled 表示是否配置了麦克风采集。
func (o *Orchestrator) VoiceEnabled() bool {
	return o.capturer != nil
}

// LastEmotion 返回最近一次语音采集得到的情绪。
func (o *Orchestrator) LastEmotion() analysis.Label {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.lastEmotion
}

// VoiceExchange captures speech, then generates a reply conditioned on the
// detected emotion. When capture fails the corresponding notice is returned
// without contacting the backend.
func (o *Orchestrator) VoiceExchange(ctx context.Context, obs Observer) (Exchange, error) {
	if o.capturer == nil {
		return Exchange{Emotion: analysis.Neutral, Reply: ServiceErrorNotice}, nil
	}
	if !o.gate.TryAcquire(1) {
		return Exchange{}, ErrBusy
	}
	defer o.gate.Release(1)

	result := o.capturer.CaptureWithProgress(ctx, o.maxAttempts, obs.OnAttempt)
	if obs.OnCapture != nil {
		obs.OnCapture(result)
	}

	exchange := Exchange{Emotion: result.Emotion, Capture: &result}
	switch result.Status {
	case capture.StatusOK:
	case capture.StatusNoInput:
		exchange.Emotion = analysis.Neutral
		exchange.Reply = NoInputNotice
		o.logger.Info("voice exchange ended without input", zap.Int("attempts", result.Attempts))
		return exchange, nil
	default:
		exchange.Emotion = analysis.Neutral
		exchange.Reply = ServiceErrorNotice
		o.logger.Warn("voice exchange aborted", zap.Error(result.Err))
		return exchange, nil
	}

	o.mu.Lock()
	o.lastEmotion = result.Emotion
	o.mu.Unlock()

	exchange.Transcript = result.Transcript
	exchange.Reply, exchange.Warning = o.responder.Generate(ctx, result.Transcript, result.Emotion)
	return exchange, nil
}

// TextExchange generates a reply for typed input. An empty label reuses the
// emotion of the most recent voice capture.
func (o *Orchestrator) TextExchange(ctx context.Context, text string, label analysis.Label) (Exchange, error) {
	if !o.gate.TryAcquire(1) {
		return Exchange{}, ErrBusy
	}
	defer o.gate.Release(1)

	if strings.TrimSpace(string(label)) == "" {
		label = o.LastEmotion()
	}
	label = analysis.Normalize(label)

	reply, warning := o.responder.Generate(ctx, text, label)
	return Exchange{Transcript: text, Emotion: label, Reply: reply, Warning: warning}, nil
}
