package history

import (
	"context"
	"fmt"
	"os"
	"testing"

	"github.com/parroquiasbdebarinas-lang/Server/internal/chat"
	"github.com/parroquiasbdebarinas-lang/Server/internal/postgres"
)

// newTestStore opens the database named by TEST_DATABASE_URL, applies
// migrations, and empties the chat_messages table. Tests that call this
// helper are skipped when the variable is unset.
func newTestStore(t *testing.T) *Store {
	t.Helper()
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}

	db, err := postgres.Open(dsn)
	if err != nil {
		t.Skipf("postgres not available: %v", err)
	}
	if _, err := db.Exec(`DELETE FROM chat_messages`); err != nil {
		t.Fatalf("failed to empty chat_messages: %v", err)
	}
	t.Cleanup(func() {
		db.Exec(`DELETE FROM chat_messages`)
		db.Close()
	})
	return NewStore(db)
}

func seed(t *testing.T, s *Store, n int) []chat.Message {
	t.Helper()
	ctx := context.Background()
	msgs := make([]chat.Message, n)
	for i := 0; i < n; i++ {
		msgs[i] = chat.Message{
			ID:        fmt.Sprintf("msg-%03d", i),
			User:      "ana",
			Text:      fmt.Sprintf("mensaje %d", i),
			IP:        "10.0.0.1",
			Timestamp: int64(1000 + i),
		}
		if err := s.Append(ctx, msgs[i]); err != nil {
			t.Fatalf("Append() error: %v", err)
		}
	}
	return msgs
}

func TestAppendAndFindByID(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	want := chat.Message{
		ID: "msg-1", User: "ana", Text: "hola", IP: "10.0.0.1",
		IsSystem: false, Timestamp: 1234,
	}
	if err := s.Append(ctx, want); err != nil {
		t.Fatalf("Append() error: %v", err)
	}

	got, err := s.FindByID(ctx, "msg-1")
	if err != nil {
		t.Fatalf("FindByID() error: %v", err)
	}
	if got == nil {
		t.Fatal("expected message, got nil")
	}
	if *got != want {
		t.Errorf("FindByID() = %+v, want %+v", *got, want)
	}
}

func TestFindByID_Missing(t *testing.T) {
	s := newTestStore(t)

	got, err := s.FindByID(context.Background(), "missing")
	if err != nil {
		t.Fatalf("FindByID() error: %v", err)
	}
	if got != nil {
		t.Errorf("expected nil for missing id, got %+v", got)
	}
}

func TestRecent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seed(t, s, 10)

	msgs, hasMore, err := s.Recent(ctx, 3)
	if err != nil {
		t.Fatalf("Recent() error: %v", err)
	}
	if len(msgs) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(msgs))
	}
	if !hasMore {
		t.Error("expected hasMore=true with 10 stored and window of 3")
	}

	// The window holds the newest messages in chronological order.
	wantIDs := []string{"msg-007", "msg-008", "msg-009"}
	for i, want := range wantIDs {
		if msgs[i].ID != want {
			t.Errorf("msgs[%d].ID = %q, want %q", i, msgs[i].ID, want)
		}
	}
}

func TestRecent_WindowCoversAll(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seed(t, s, 3)

	msgs, hasMore, err := s.Recent(ctx, 50)
	if err != nil {
		t.Fatalf("Recent() error: %v", err)
	}
	if len(msgs) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(msgs))
	}
	if hasMore {
		t.Error("expected hasMore=false when the window covers everything")
	}
}

func TestAll_Order(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seed(t, s, 5)

	msgs, err := s.All(ctx)
	if err != nil {
		t.Fatalf("All() error: %v", err)
	}
	if len(msgs) != 5 {
		t.Fatalf("expected 5 messages, got %d", len(msgs))
	}
	for i := 1; i < len(msgs); i++ {
		if msgs[i].Timestamp < msgs[i-1].Timestamp {
			t.Errorf("messages out of order at %d: %d before %d", i, msgs[i-1].Timestamp, msgs[i].Timestamp)
		}
	}
}

func TestTrim(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seed(t, s, 10)

	if err := s.Trim(ctx, 4); err != nil {
		t.Fatalf("Trim() error: %v", err)
	}

	msgs, err := s.All(ctx)
	if err != nil {
		t.Fatalf("All() error: %v", err)
	}
	if len(msgs) != 4 {
		t.Fatalf("expected 4 messages after trim, got %d", len(msgs))
	}
	// The oldest went first.
	if msgs[0].ID != "msg-006" {
		t.Errorf("expected oldest survivor msg-006, got %q", msgs[0].ID)
	}
}

func TestTrim_UnderLimit(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seed(t, s, 3)

	if err := s.Trim(ctx, 10); err != nil {
		t.Fatalf("Trim() error: %v", err)
	}
	msgs, err := s.All(ctx)
	if err != nil {
		t.Fatalf("All() error: %v", err)
	}
	if len(msgs) != 3 {
		t.Errorf("expected trim to be a no-op, got %d messages", len(msgs))
	}
}

func TestDelete(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seed(t, s, 2)

	deleted, err := s.Delete(ctx, "msg-000")
	if err != nil {
		t.Fatalf("Delete() error: %v", err)
	}
	if !deleted {
		t.Fatal("expected deleted=true")
	}

	got, err := s.FindByID(ctx, "msg-000")
	if err != nil {
		t.Fatalf("FindByID() error: %v", err)
	}
	if got != nil {
		t.Error("expected message gone after delete")
	}

	deleted, err = s.Delete(ctx, "msg-000")
	if err != nil {
		t.Fatalf("second Delete() error: %v", err)
	}
	if deleted {
		t.Error("expected deleted=false for missing id")
	}
}

func TestDeleteAll(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seed(t, s, 5)

	if err := s.DeleteAll(ctx); err != nil {
		t.Fatalf("DeleteAll() error: %v", err)
	}
	msgs, err := s.All(ctx)
	if err != nil {
		t.Fatalf("All() error: %v", err)
	}
	if len(msgs) != 0 {
		t.Errorf("expected empty history, got %d messages", len(msgs))
	}

	_, hasMore, err := s.Recent(ctx, 50)
	if err != nil {
		t.Fatalf("Recent() error: %v", err)
	}
	if hasMore {
		t.Error("expected hasMore=false on empty history")
	}
}
