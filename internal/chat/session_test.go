package chat

import (
	"testing"
	"time"
)

func TestMemoryStoreAppendAndGet(t *testing.T) {
	store := NewMemorySessionStore(time.Hour, 10)

	store.Append("s1", Message{Role: "user", Content: "hello"})
	store.Append("s1", Message{Role: "assistant", Content: "hi"})

	msgs := store.Get("s1")
	if len(msgs) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(msgs))
	}
	if msgs[0].ID == "" {
		t.Error("expected generated message ID")
	}
	if msgs[0].SessionID != "s1" {
		t.Errorf("expected session ID stamped, got %q", msgs[0].SessionID)
	}
	if msgs[0].CreatedAt.IsZero() {
		t.Error("expected CreatedAt stamped")
	}
	if msgs[1].Role != "assistant" || msgs[1].Content != "hi" {
		t.Errorf("unexpected second message: %+v", msgs[1])
	}
}

func TestMemoryStoreGetReturnsCopy(t *testing.T) {
	store := NewMemorySessionStore(time.Hour, 10)
	store.Append("s1", Message{Role: "user", Content: "original"})

	msgs := store.Get("s1")
	msgs[0].Content = "mutated"

	if got := store.Get("s1")[0].Content; got != "original" {
		t.Errorf("store history mutated through returned slice: %q", got)
	}
}

func TestMemoryStoreUnknownSession(t *testing.T) {
	store := NewMemorySessionStore(time.Hour, 10)
	if msgs := store.Get("missing"); msgs != nil {
		t.Errorf("expected nil for unknown session, got %v", msgs)
	}
}

func TestMemoryStoreClear(t *testing.T) {
	store := NewMemorySessionStore(time.Hour, 10)
	store.Append("s1", Message{Role: "user", Content: "hello"})

	store.Clear("s1")

	if msgs := store.Get("s1"); msgs != nil {
		t.Errorf("expected session gone after Clear, got %v", msgs)
	}
}

func TestMemoryStoreTTLExpiry(t *testing.T) {
	store := NewMemorySessionStore(30*time.Minute, 10)

	current := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return current }

	store.Append("s1", Message{Role: "user", Content: "hello"})

	current = current.Add(31 * time.Minute)

	if msgs := store.Get("s1"); msgs != nil {
		t.Errorf("expected expired session to be dropped, got %v", msgs)
	}
}

func TestMemoryStoreEvictsOldestAtCap(t *testing.T) {
	store := NewMemorySessionStore(time.Hour, 2)

	current := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return current }

	store.Append("old", Message{Role: "user", Content: "a"})
	current = current.Add(time.Minute)
	store.Append("mid", Message{Role: "user", Content: "b"})
	current = current.Add(time.Minute)
	store.Append("new", Message{Role: "user", Content: "c"})

	if msgs := store.Get("old"); msgs != nil {
		t.Error("expected oldest session evicted at cap")
	}
	if store.Get("mid") == nil || store.Get("new") == nil {
		t.Error("expected surviving sessions intact")
	}
}

func TestMemoryStoreSessions(t *testing.T) {
	store := NewMemorySessionStore(time.Hour, 10)
	store.Append("a", Message{Role: "user", Content: "1"})
	store.Append("b", Message{Role: "user", Content: "2"})

	ids := store.Sessions()
	if len(ids) != 2 {
		t.Fatalf("expected 2 sessions, got %d", len(ids))
	}
}
