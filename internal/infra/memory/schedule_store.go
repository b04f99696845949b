package memory

import (
	"context"
	"sort"
	"sync"

	"chatquiz-service/internal/domain"
)

// ScheduleStore keeps schedule entries in process memory. Entries do not
// survive a restart; use the sqlite or redis store for that.
type ScheduleStore struct {
	mu      sync.RWMutex
	entries map[scheduleKey]domain.ScheduleEntry
}

type scheduleKey struct {
	roomID string
	quizID string
}

func NewScheduleStore() *ScheduleStore {
	return &ScheduleStore{entries: make(map[scheduleKey]domain.ScheduleEntry)}
}

func (s *ScheduleStore) List(_ context.Context) ([]domain.ScheduleEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.ScheduleEntry, 0, len(s.entries))
	for _, entry := range s.entries {
		out = append(out, entry)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].RoomID != out[j].RoomID {
			return out[i].RoomID < out[j].RoomID
		}
		return out[i].QuizID < out[j].QuizID
	})
	return out, nil
}

func (s *ScheduleStore) Put(_ context.Context, entry domain.ScheduleEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[scheduleKey{entry.RoomID, entry.QuizID}] = entry
	return nil
}

func (s *ScheduleStore) Delete(_ context.Context, roomID, quizID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := scheduleKey{roomID, quizID}
	if _, ok := s.entries[key]; !ok {
		return domain.ErrScheduleNotFound
	}
	delete(s.entries, key)
	return nil
}
