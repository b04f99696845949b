package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"chatquiz-service/internal/domain"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := New(filepath.Join(t.TempDir(), "quiz.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestScheduleRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	entry := domain.ScheduleEntry{
		RoomID:       "room-1",
		QuizID:       "quiz-1",
		NextFireTime: time.Date(2026, 3, 1, 18, 0, 0, 0, time.UTC),
		Recurrence:   domain.Daily,
		OpenPeriod:   45 * time.Second,
	}
	if err := store.Put(ctx, entry); err != nil {
		t.Fatalf("put: %v", err)
	}

	// Overwrite advances the fire time in place.
	entry.NextFireTime = entry.NextFireTime.Add(24 * time.Hour)
	if err := store.Put(ctx, entry); err != nil {
		t.Fatalf("put update: %v", err)
	}

	entries, err := store.List(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	got := entries[0]
	if !got.NextFireTime.Equal(entry.NextFireTime) || got.Recurrence != domain.Daily || got.OpenPeriod != 45*time.Second {
		t.Fatalf("entry did not round-trip: %+v", got)
	}

	if err := store.Delete(ctx, "room-1", "quiz-1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := store.Delete(ctx, "room-1", "quiz-1"); err != domain.ErrScheduleNotFound {
		t.Fatalf("expected ErrScheduleNotFound, got %v", err)
	}
}

func TestGlobalScorePersistence(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	for i := 0; i < 2; i++ {
		if err := store.Increment(ctx, "alice"); err != nil {
			t.Fatalf("increment: %v", err)
		}
	}
	if err := store.Increment(ctx, "bob"); err != nil {
		t.Fatalf("increment: %v", err)
	}

	scores, err := store.Load(ctx)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if scores["alice"] != 2 || scores["bob"] != 1 {
		t.Fatalf("unexpected scores: %+v", scores)
	}
}
