package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"
	"go.uber.org/zap"

	analysis "github.com/zhouzirui/voice-tavern/backend/internal/analysis/emotion"
	"github.com/zhouzirui/voice-tavern/backend/internal/logging"
	chatservice "github.com/zhouzirui/voice-tavern/backend/internal/service/chat"
)

// User-facing strings returned or spoken by Generate.
const (
	NoInputReply       = "No input received."
	FailureWarning     = "⚠️ Hmm, something went wrong while getting a response. Please try again."
	SpokenFailure      = "There was an error generating a response."
	DefaultLLMTimeout  = 10 * time.Second
	failureReplyPrefix = "Error: "
)

// Speaker 播报生成的回复。错误只记录日志。
type Speaker interface {
	Speak(ctx context.Context, text string) error
}

// Generator turns one user utterance into a decorated, spoken reply while
// keeping the session history bounded.
type Generator struct {
	session *chatservice.Session
	chain   compose.Runnable[map[string]any, *schema.Message]
	speaker Speaker
	timeout time.Duration
	logger  *zap.Logger
}

// NewGenerator 编译 eino chain：历史消息 -> 模型。
func NewGenerator(ctx context.Context, chatModel model.BaseChatModel, session *chatservice.Session, speaker Speaker, timeout time.Duration, logger *zap.Logger) (*Generator, error) {
	if chatModel == nil {
		return nil, fmt.Errorf("chat model is required")
	}
	if session == nil {
		return nil, fmt.Errorf("session is required")
	}
	if timeout <= 0 {
		timeout = DefaultLLMTimeout
	}

	promptTemplate := prompt.FromMessages(
		schema.FString,
		schema.MessagesPlaceholder("history", false),
	)

	chain := compose.NewChain[map[string]any, *schema.Message]()
	chain.AppendChatTemplate(promptTemplate)
	chain.AppendChatModel(chatModel)

	runnable, err := chain.Compile(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to compile chat chain: %w", err)
	}

	return &Generator{
		session: session,
		chain:   runnable,
		speaker: speaker,
		timeout: timeout,
		logger:  logging.OrNop(logger).Named("ai"),
	}, nil
}

// Session 返回生成器使用的会话。
func (g *Generator) Session() *chatservice.Session {
	return g.session
}

// Generate appends the user turn, asks the backend for a reply and returns the
// emotion-decorated reply plus an optional warning. Backend failures never
// surface as errors: the reply becomes "Error: <description>" and no assistant
// turn is recorded.
func (g *Generator) Generate(ctx context.Context, userText string, label analysis.Label) (string, string) {
	if strings.TrimSpace(userText) == "" {
		return NoInputReply, ""
	}

	g.session.AppendUser(userText)

	content, err := g.invoke(ctx)
	if err != nil {
		g.logger.Error("generate reply failed", zap.String("session", g.session.ID()), zap.Error(err))
		g.speak(ctx, SpokenFailure)
		return failureReplyPrefix + err.Error(), FailureWarning
	}

	g.session.AppendAssistant(content)

	var warning string
	if g.session.Truncate() {
		warning = chatservice.HistoryTrimmedWarning
		g.logger.Info("history truncated", zap.String("session", g.session.ID()), zap.Int("turns", g.session.Len()))
	}

	reply := analysis.Normalize(label).Prefix() + content
	g.logger.Info("generated reply",
		zap.String("session", g.session.ID()),
		zap.String("emotion", string(analysis.Normalize(label))),
		zap.Int("length", len(content)))

	g.speak(ctx, reply)
	return reply, warning
}

func (g *Generator) invoke(ctx context.Context) (string, error) {
	callCtx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	input := map[string]any{"history": g.session.Messages()}

	type outcome struct {
		msg *schema.Message
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		msg, err := g.chain.Invoke(callCtx, input)
		done <- outcome{msg: msg, err: err}
	}()

	// 后端可能忽略 ctx，这里以超时为准返回
	var res outcome
	select {
	case res = <-done:
	case <-callCtx.Done():
		return "", classifyBackendError(callCtx.Err())
	}

	if res.err != nil {
		if errors.Is(callCtx.Err(), context.DeadlineExceeded) {
			return "", classifyBackendError(callCtx.Err())
		}
		return "", classifyBackendError(res.err)
	}
	if res.msg == nil || strings.TrimSpace(res.msg.Content) == "" {
		return "", ErrBackendMalformed
	}
	return res.msg.Content, nil
}

func (g *Generator) speak(ctx context.Context, text string) {
	if g.speaker == nil {
		return
	}
	if err := g.speaker.Speak(ctx, text); err != nil {
		g.logger.Warn("speak reply failed", zap.Error(err))
	}
}
