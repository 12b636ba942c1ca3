package chat_test

import (
	"fmt"
	"sync"
	"testing"

	"github.com/cloudwego/eino/schema"

	modelchat "github.com/zhouzirui/voice-tavern/backend/internal/model/chat"
	chat "github.com/zhouzirui/voice-tavern/backend/internal/service/chat"
)

func TestNewSessionStartsWithSystemTurn(t *testing.T) {
	s := chat.NewSession("be kind", 0)

	if s.ID() == "" {
		t.Fatal("expected session id")
	}
	if s.MaxHistory() != chat.DefaultMaxHistory {
		t.Fatalf("unexpected max history: %d", s.MaxHistory())
	}

	history := s.History()
	if len(history) != 1 {
		t.Fatalf("expected 1 turn, got %d", len(history))
	}
	if history[0].Role != modelchat.RoleSystem || history[0].Content != "be kind" || history[0].Index != 0 {
		t.Fatalf("unexpected system turn: %+v", history[0])
	}
}

func TestAppendPreservesOrder(t *testing.T) {
	s := chat.NewSession("sys", 3)

	u := s.AppendUser("Hello")
	a := s.AppendAssistant("Hi there!")
	if u.Index != 1 || a.Index != 2 {
		t.Fatalf("unexpected indices: user=%d assistant=%d", u.Index, a.Index)
	}

	history := s.History()
	roles := []modelchat.Role{modelchat.RoleSystem, modelchat.RoleUser, modelchat.RoleAssistant}
	for i, role := range roles {
		if history[i].Role != role {
			t.Fatalf("turn %d: got role %s want %s", i, history[i].Role, role)
		}
	}
}

func TestTruncateNoopWithinBound(t *testing.T) {
	s := chat.NewSession("sys", 2)
	for i := 0; i < 2; i++ {
		s.AppendUser("q")
		s.AppendAssistant("a")
	}

	before := s.History()
	if s.Truncate() {
		t.Fatal("Truncate should report false at the bound")
	}
	after := s.History()
	if len(before) != len(after) || len(after) != 5 {
		t.Fatalf("history changed: before=%d after=%d", len(before), len(after))
	}
}

func TestTruncateKeepsSystemAndNewestTurns(t *testing.T) {
	const maxHistory = 2
	s := chat.NewSession("sys", maxHistory)
	for i := 0; i < 4; i++ {
		s.AppendUser(fmt.Sprintf("q%d", i))
		s.AppendAssistant(fmt.Sprintf("a%d", i))
	}

	if !s.Truncate() {
		t.Fatal("expected truncation")
	}
	history := s.History()
	if len(history) != 2*maxHistory+1 {
		t.Fatalf("unexpected length %d", len(history))
	}
	if history[0].Role != modelchat.RoleSystem {
		t.Fatalf("system turn lost: %+v", history[0])
	}
	want := []string{"q2", "a2", "q3", "a3"}
	for i, content := range want {
		if history[i+1].Content != content {
			t.Fatalf("turn %d: got %q want %q", i+1, history[i+1].Content, content)
		}
	}
	if history[1].Index != 5 {
		t.Fatalf("indices must survive truncation, got %d", history[1].Index)
	}

	if s.Truncate() {
		t.Fatal("second Truncate should be a no-op")
	}
}

func TestHistoryBoundAcrossExchanges(t *testing.T) {
	const maxHistory = 3
	s := chat.NewSession("sys", maxHistory)
	for i := 0; i < 50; i++ {
		s.AppendUser("q")
		s.AppendAssistant("a")
		s.Truncate()
		if got := s.Len(); got > 2*maxHistory+1 {
			t.Fatalf("exchange %d: history length %d exceeds bound", i, got)
		}
		if s.History()[0].Role != modelchat.RoleSystem {
			t.Fatalf("exchange %d: system turn missing", i)
		}
	}
}

func TestHistoryReturnsCopy(t *testing.T) {
	s := chat.NewSession("sys", 1)
	history := s.History()
	history[0].Content = "mutated"

	if s.History()[0].Content != "sys" {
		t.Fatal("History must not expose internal storage")
	}
}

func TestMessagesConvertsRoles(t *testing.T) {
	s := chat.NewSession("sys", 1)
	s.AppendUser("Hello")
	s.AppendAssistant("Hi")

	msgs := s.Messages()
	want := []schema.RoleType{schema.System, schema.User, schema.Assistant}
	if len(msgs) != len(want) {
		t.Fatalf("expected %d messages, got %d", len(want), len(msgs))
	}
	for i, role := range want {
		if msgs[i].Role != role {
			t.Fatalf("message %d: got %s want %s", i, msgs[i].Role, role)
		}
	}
	if msgs[1].Content != "Hello" {
		t.Fatalf("unexpected content %q", msgs[1].Content)
	}
}

func TestSnapshot(t *testing.T) {
	s := chat.NewSession("sys", 4)
	s.AppendUser("Hello")

	snap := s.Snapshot()
	if snap.ID != s.ID() || snap.MaxHistory != 4 || len(snap.Turns) != 2 {
		t.Fatalf("unexpected snapshot: %+v", snap)
	}
	if snap.CreatedAt.IsZero() {
		t.Fatal("expected creation time")
	}
}

func TestConcurrentAppend(t *testing.T) {
	s := chat.NewSession("sys", 100)
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.AppendUser("q")
			s.Truncate()
		}()
	}
	wg.Wait()

	if got := s.Len(); got != 21 {
		t.Fatalf("expected 21 turns, got %d", got)
	}
}
