package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"chatquiz-service/internal/domain"
)

// Store persists schedule entries and the global score table in a local
// sqlite file. It is the default zero-infrastructure backend.
type Store struct {
	db *sql.DB
}

// New opens (or creates) the database at path and ensures the schema exists.
func New(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	if err := createTables(db); err != nil {
		return nil, fmt.Errorf("create tables: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func createTables(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS schedules (
			room_id TEXT NOT NULL,
			quiz_id TEXT NOT NULL,
			next_fire_unix INTEGER NOT NULL,
			recurrence TEXT NOT NULL,
			open_period_sec INTEGER NOT NULL,
			PRIMARY KEY (room_id, quiz_id)
		)
	`)
	if err != nil {
		return err
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS global_scores (
			user_id TEXT PRIMARY KEY,
			points INTEGER NOT NULL DEFAULT 0
		)
	`)
	return err
}

// List returns all schedule entries, ordered for deterministic ticks.
func (s *Store) List(ctx context.Context) ([]domain.ScheduleEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT room_id, quiz_id, next_fire_unix, recurrence, open_period_sec
		FROM schedules ORDER BY room_id, quiz_id
	`)
	if err != nil {
		return nil, fmt.Errorf("list schedules: %w", err)
	}
	defer rows.Close()

	var entries []domain.ScheduleEntry
	for rows.Next() {
		var (
			entry      domain.ScheduleEntry
			fireUnix   int64
			recurrence string
			periodSec  int64
		)
		if err := rows.Scan(&entry.RoomID, &entry.QuizID, &fireUnix, &recurrence, &periodSec); err != nil {
			return nil, fmt.Errorf("scan schedule: %w", err)
		}
		entry.NextFireTime = time.Unix(fireUnix, 0).UTC()
		entry.Recurrence = domain.Recurrence(recurrence)
		entry.OpenPeriod = time.Duration(periodSec) * time.Second
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

func (s *Store) Put(ctx context.Context, entry domain.ScheduleEntry) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO schedules (room_id, quiz_id, next_fire_unix, recurrence, open_period_sec)
		VALUES (?, ?, ?, ?, ?)
	`, entry.RoomID, entry.QuizID, entry.NextFireTime.Unix(), string(entry.Recurrence), int64(entry.OpenPeriod/time.Second))
	if err != nil {
		return fmt.Errorf("store schedule: %w", err)
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, roomID, quizID string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM schedules WHERE room_id = ? AND quiz_id = ?`, roomID, quizID)
	if err != nil {
		return fmt.Errorf("delete schedule: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete schedule: %w", err)
	}
	if affected == 0 {
		return domain.ErrScheduleNotFound
	}
	return nil
}

// Increment adds one point to a user's all-time score.
func (s *Store) Increment(ctx context.Context, userID string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO global_scores (user_id, points) VALUES (?, 1)
		ON CONFLICT (user_id) DO UPDATE SET points = points + 1
	`, userID)
	if err != nil {
		return fmt.Errorf("increment score: %w", err)
	}
	return nil
}

// Load returns the full all-time score table.
func (s *Store) Load(ctx context.Context) (map[string]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT user_id, points FROM global_scores`)
	if err != nil {
		return nil, fmt.Errorf("load scores: %w", err)
	}
	defer rows.Close()

	scores := make(map[string]int)
	for rows.Next() {
		var (
			userID string
			points int
		)
		if err := rows.Scan(&userID, &points); err != nil {
			return nil, fmt.Errorf("scan score: %w", err)
		}
		scores[userID] = points
	}
	return scores, rows.Err()
}
