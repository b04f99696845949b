package memory

import (
	"context"
	"testing"
	"time"

	"chatquiz-service/internal/domain"
)

func TestScheduleStoreLifecycle(t *testing.T) {
	ctx := context.Background()
	store := NewScheduleStore()

	entry := domain.ScheduleEntry{
		RoomID:       "room-1",
		QuizID:       "quiz-1",
		NextFireTime: time.Now().Add(time.Hour),
		Recurrence:   domain.Daily,
		OpenPeriod:   30 * time.Second,
	}
	if err := store.Put(ctx, entry); err != nil {
		t.Fatalf("put: %v", err)
	}

	entries, err := store.List(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(entries) != 1 || entries[0].QuizID != "quiz-1" {
		t.Fatalf("unexpected entries: %+v", entries)
	}

	if err := store.Delete(ctx, "room-1", "quiz-1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := store.Delete(ctx, "room-1", "quiz-1"); err != domain.ErrScheduleNotFound {
		t.Fatalf("expected ErrScheduleNotFound, got %v", err)
	}
}

func TestScheduleStoreListIsSorted(t *testing.T) {
	ctx := context.Background()
	store := NewScheduleStore()
	for _, id := range []string{"b", "a", "c"} {
		_ = store.Put(ctx, domain.ScheduleEntry{
			RoomID:       id,
			QuizID:       "quiz-1",
			NextFireTime: time.Now(),
			Recurrence:   domain.Once,
			OpenPeriod:   time.Second,
		})
	}
	entries, _ := store.List(ctx)
	for i, want := range []string{"a", "b", "c"} {
		if entries[i].RoomID != want {
			t.Fatalf("expected sorted rooms, got %+v", entries)
		}
	}
}
