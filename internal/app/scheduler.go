package app

import (
	"context"
	"log"
	"time"

	"chatquiz-service/internal/domain"
)

// ScheduleStore persists schedule entries keyed by (room, quiz).
type ScheduleStore interface {
	List(ctx context.Context) ([]domain.ScheduleEntry, error)
	Put(ctx context.Context, entry domain.ScheduleEntry) error
	Delete(ctx context.Context, roomID, quizID string) error
}

// SessionStarter is the slice of the engine the scheduler needs.
type SessionStarter interface {
	Start(ctx context.Context, roomID, quizID string, openPeriod time.Duration) error
}

// Scheduler fires due schedule entries on a fixed tick. Each tick samples the
// clock once so entries straddling the tick boundary are judged against the
// same instant.
type Scheduler struct {
	store    ScheduleStore
	starter  SessionStarter
	interval time.Duration
	now      func() time.Time
}

func NewScheduler(store ScheduleStore, starter SessionStarter, interval time.Duration) *Scheduler {
	return newSchedulerWithClock(store, starter, interval, time.Now)
}

// newSchedulerWithClock allows deterministic ticks in tests.
func newSchedulerWithClock(store ScheduleStore, starter SessionStarter, interval time.Duration, now func() time.Time) *Scheduler {
	return &Scheduler{store: store, starter: starter, interval: interval, now: now}
}

// Run drives the tick loop until the context is cancelled.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Tick(ctx, s.now())
		}
	}
}

// Tick runs one scheduler pass: every entry due at now fires exactly once,
// then has its next occurrence recomputed (or is removed when one-shot).
// A failed start still advances the entry so a stuck room never fires in a
// tight loop.
func (s *Scheduler) Tick(ctx context.Context, now time.Time) {
	entries, err := s.store.List(ctx)
	if err != nil {
		log.Printf("scheduler: list entries: %v", err)
		return
	}

	for _, entry := range entries {
		if entry.NextFireTime.After(now) {
			continue
		}

		// Stores deserialize the recurrence string as-is, so a row written
		// by another tool can carry an unknown value. Skip it rather than
		// spin in nextAfter on a zero interval.
		if _, err := domain.ParseRecurrence(string(entry.Recurrence)); err != nil {
			log.Printf("scheduler: skip entry %s/%s: %v", entry.RoomID, entry.QuizID, err)
			continue
		}

		if err := s.starter.Start(ctx, entry.RoomID, entry.QuizID, entry.OpenPeriod); err != nil {
			log.Printf("scheduler: start quiz %s in room %s: %v", entry.QuizID, entry.RoomID, err)
		}

		if entry.Recurrence == domain.Once {
			if err := s.store.Delete(ctx, entry.RoomID, entry.QuizID); err != nil {
				log.Printf("scheduler: drop one-shot entry %s/%s: %v", entry.RoomID, entry.QuizID, err)
			}
			continue
		}

		entry.NextFireTime = nextAfter(entry.NextFireTime, now, entry.Recurrence.Interval())
		if err := s.store.Put(ctx, entry); err != nil {
			log.Printf("scheduler: advance entry %s/%s: %v", entry.RoomID, entry.QuizID, err)
		}
	}
}

// Schedule validates and stores a new entry.
func (s *Scheduler) Schedule(ctx context.Context, entry domain.ScheduleEntry) error {
	if err := entry.Validate(); err != nil {
		return err
	}
	return s.store.Put(ctx, entry)
}

// CancelSchedule removes an entry; ErrScheduleNotFound when absent.
func (s *Scheduler) CancelSchedule(ctx context.Context, roomID, quizID string) error {
	return s.store.Delete(ctx, roomID, quizID)
}

// ListSchedules returns all stored entries.
func (s *Scheduler) ListSchedules(ctx context.Context) ([]domain.ScheduleEntry, error) {
	return s.store.List(ctx)
}

// nextAfter advances current by whole intervals until it is strictly in the
// future. Repeated addition (rather than a single add) skips periods missed
// while the process was down without producing a catch-up burst: the caller
// fires at most once per tick regardless of how many periods elapsed.
func nextAfter(current, now time.Time, interval time.Duration) time.Time {
	next := current
	for !next.After(now) {
		next = next.Add(interval)
	}
	return next
}
