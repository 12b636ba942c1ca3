package chat

import (
	"sync"
	"time"

	"github.com/cloudwego/eino/schema"
	"github.com/google/uuid"

	"github.com/zhouzirui/voice-tavern/backend/internal/model/chat"
)

const (
	// DefaultMaxHistory 是保留的最近交换轮数（一问一答为一轮）。
	DefaultMaxHistory = 10

	// HistoryTrimmedWarning 在截断后返回给调用方。
	HistoryTrimmedWarning = "⚠️ Too many messages! Older ones were removed to stay sharp."
)

// Session owns the bounded conversation history. The system turn at position 0
// is set once and never removed; Truncate keeps it plus the latest
// 2*MaxHistory turns.
type Session struct {
	mu         sync.RWMutex
	id         string
	maxHistory int
	createdAt  time.Time
	turns      []chat.Turn
	nextIndex  int
}

// NewSession 创建会话并写入系统提示，maxHistory <= 0 时使用默认值。
func NewSession(systemPrompt string, maxHistory int) *Session {
	if maxHistory <= 0 {
		maxHistory = DefaultMaxHistory
	}
	now := time.Now().UTC()
	s := &Session{
		id:         uuid.NewString(),
		maxHistory: maxHistory,
		createdAt:  now,
		turns:      make([]chat.Turn, 0, 2*maxHistory+2),
	}
	s.append(chat.RoleSystem, systemPrompt)
	return s
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// MaxHistory returns the exchange bound.
func (s *Session) MaxHistory() int { return s.maxHistory }

// AppendUser 追加用户轮次。空文本策略由调用方负责。
func (s *Session) AppendUser(text string) chat.Turn {
	return s.append(chat.RoleUser, text)
}

// AppendAssistant 追加助手轮次。
func (s *Session) AppendAssistant(text string) chat.Turn {
	return s.append(chat.RoleAssistant, text)
}

func (s *Session) append(role chat.Role, text string) chat.Turn {
	s.mu.Lock()
	defer s.mu.Unlock()

	turn := chat.Turn{
		Role:      role,
		Content:   text,
		Index:     s.nextIndex,
		CreatedAt: time.Now().UTC(),
	}
	s.nextIndex++
	s.turns = append(s.turns, turn)
	return turn
}

// Truncate drops the oldest non-system turns once the history exceeds
// 2*MaxHistory+1 entries. It reports whether anything was removed.
func (s *Session) Truncate() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	limit := 2*s.maxHistory + 1
	if len(s.turns) <= limit {
		return false
	}

	keep := s.turns[len(s.turns)-2*s.maxHistory:]
	trimmed := make([]chat.Turn, 0, 2*s.maxHistory+2)
	trimmed = append(trimmed, s.turns[0])
	trimmed = append(trimmed, keep...)
	s.turns = trimmed
	return true
}

// Len 返回当前历史长度（含系统轮次）。
func (s *Session) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.turns)
}

// History returns a copy of the stored turns.
func (s *Session) History() []chat.Turn {
	s.mu.RLock()
	defer s.mu.RUnlock()

	copied := make([]chat.Turn, len(s.turns))
	copy(copied, s.turns)
	return copied
}

// Snapshot 返回可序列化的会话视图。
func (s *Session) Snapshot() chat.Snapshot {
	return chat.Snapshot{
		ID:         s.id,
		MaxHistory: s.maxHistory,
		Turns:      s.History(),
		CreatedAt:  s.createdAt,
	}
}

// Messages 将历史转换为 eino 消息，按顺序交给模型。
func (s *Session) Messages() []*schema.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()

	messages := make([]*schema.Message, 0, len(s.turns))
	for _, turn := range s.turns {
		switch turn.Role {
		case chat.RoleSystem:
			messages = append(messages, schema.SystemMessage(turn.Content))
		case chat.RoleAssistant:
			messages = append(messages, schema.AssistantMessage(turn.Content, nil))
		default:
			messages = append(messages, schema.UserMessage(turn.Content))
		}
	}
	return messages
}
