package chat

import (
	"fmt"
	"testing"

	"github.com/avesely/opsdeck/internal/domain"
)

func TestSessionLastNBoundsHistory(t *testing.T) {
	t.Parallel()

	s := &Session{ID: "c1"}
	for i := 0; i < 30; i++ {
		s.Append(domain.ChatMessage{Role: domain.RoleUser, Content: fmt.Sprintf("msg-%d", i)})
	}

	got := s.LastN(historySuffixLimit)
	if len(got) != historySuffixLimit {
		t.Fatalf("LastN = %d, want %d", len(got), historySuffixLimit)
	}
	if got[0].Content != "msg-10" || got[len(got)-1].Content != "msg-29" {
		t.Errorf("wrong suffix: first=%q last=%q", got[0].Content, got[len(got)-1].Content)
	}
	if s.Len() != 30 {
		t.Errorf("full history must keep growing, len = %d", s.Len())
	}
}

func TestSessionTruncateTo(t *testing.T) {
	t.Parallel()

	s := &Session{ID: "c1"}
	s.Append(domain.ChatMessage{Role: domain.RoleUser, Content: "kept"})
	mark := s.Len()
	s.Append(domain.ChatMessage{Role: domain.RoleUser, Content: "rolled back"})
	s.Append(domain.ChatMessage{Role: domain.RoleAssistant, Content: "also rolled back"})

	s.TruncateTo(mark)
	if s.Len() != 1 {
		t.Fatalf("len = %d, want 1", s.Len())
	}
	if got := s.LastN(1)[0].Content; got != "kept" {
		t.Errorf("remaining = %q", got)
	}
}

func TestRegistryClearIsolation(t *testing.T) {
	t.Parallel()

	reg := NewRegistry()
	a := reg.GetOrCreate("conn-a")
	b := reg.GetOrCreate("conn-b")
	a.Append(domain.ChatMessage{Role: domain.RoleUser, Content: "a1"})
	b.Append(domain.ChatMessage{Role: domain.RoleUser, Content: "b1"})

	a.Clear()

	if a.Len() != 0 {
		t.Errorf("cleared session len = %d", a.Len())
	}
	if b.Len() != 1 {
		t.Errorf("other session affected, len = %d", b.Len())
	}
}

func TestRegistryLifecycle(t *testing.T) {
	t.Parallel()

	reg := NewRegistry()
	s1 := reg.GetOrCreate("conn-1")
	if got := reg.GetOrCreate("conn-1"); got != s1 {
		t.Error("GetOrCreate must return the same session for a connection")
	}
	if reg.Count() != 1 {
		t.Errorf("count = %d", reg.Count())
	}

	reg.Remove("conn-1")
	if reg.Count() != 0 {
		t.Errorf("count after remove = %d", reg.Count())
	}
	if got := reg.GetOrCreate("conn-1"); got == s1 {
		t.Error("removed session must not be resurrected")
	}
}
