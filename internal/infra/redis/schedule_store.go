package redis

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"chatquiz-service/internal/domain"
)

const schedulePrefix = "quiz:schedule:"

// ScheduleStore persists schedule entries as JSON values, one key per
// (room, quiz) pair, so entries survive process restarts and can be shared
// across instances.
type ScheduleStore struct {
	client *redis.Client
}

func NewScheduleStore(client *redis.Client) *ScheduleStore {
	return &ScheduleStore{client: client}
}

func (s *ScheduleStore) List(ctx context.Context) ([]domain.ScheduleEntry, error) {
	var entries []domain.ScheduleEntry
	iter := s.client.Scan(ctx, 0, schedulePrefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		data, err := s.client.Get(ctx, iter.Val()).Bytes()
		if err == redis.Nil {
			continue // deleted between scan and get
		}
		if err != nil {
			return nil, fmt.Errorf("read schedule %s: %w", iter.Val(), err)
		}
		var entry domain.ScheduleEntry
		if err := json.Unmarshal(data, &entry); err != nil {
			return nil, fmt.Errorf("decode schedule %s: %w", iter.Val(), err)
		}
		entries = append(entries, entry)
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("scan schedules: %w", err)
	}
	return entries, nil
}

func (s *ScheduleStore) Put(ctx context.Context, entry domain.ScheduleEntry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("encode schedule: %w", err)
	}
	if err := s.client.Set(ctx, s.key(entry.RoomID, entry.QuizID), data, 0).Err(); err != nil {
		return fmt.Errorf("store schedule: %w", err)
	}
	return nil
}

func (s *ScheduleStore) Delete(ctx context.Context, roomID, quizID string) error {
	deleted, err := s.client.Del(ctx, s.key(roomID, quizID)).Result()
	if err != nil {
		return fmt.Errorf("delete schedule: %w", err)
	}
	if deleted == 0 {
		return domain.ErrScheduleNotFound
	}
	return nil
}

func (s *ScheduleStore) key(roomID, quizID string) string {
	return schedulePrefix + roomID + ":" + quizID
}
