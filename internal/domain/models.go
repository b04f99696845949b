package domain

import (
	"fmt"
	"time"
)

// Question is a single multiple-choice question. Once a session has been
// started from a quiz, its questions are never mutated.
type Question struct {
	Prompt       string   `json:"prompt"`
	Options      []string `json:"options"`
	CorrectIndex int      `json:"correctIndex"`
	Explanation  string   `json:"explanation,omitempty"`
}

// Validate checks the structural rules for a question: between 2 and 10
// options and a correct index pointing at one of them.
func (q Question) Validate() error {
	if len(q.Options) < 2 || len(q.Options) > 10 {
		return fmt.Errorf("%w: question needs 2..10 options, has %d", ErrInvalidConfiguration, len(q.Options))
	}
	if q.CorrectIndex < 0 || q.CorrectIndex >= len(q.Options) {
		return fmt.Errorf("%w: correct index %d out of range", ErrInvalidConfiguration, q.CorrectIndex)
	}
	return nil
}

// Quiz is an ordered collection of questions.
type Quiz struct {
	ID        string     `json:"id"`
	Questions []Question `json:"questions"`
}

// Validate checks every question in the quiz.
func (q Quiz) Validate() error {
	for i, question := range q.Questions {
		if err := question.Validate(); err != nil {
			return fmt.Errorf("question %d: %w", i, err)
		}
	}
	return nil
}

// Recurrence describes how often a schedule entry repeats.
type Recurrence string

const (
	Once   Recurrence = "once"
	Daily  Recurrence = "daily"
	Weekly Recurrence = "weekly"
)

// Interval returns the repetition period, or zero for one-shot entries.
func (r Recurrence) Interval() time.Duration {
	switch r {
	case Daily:
		return 24 * time.Hour
	case Weekly:
		return 7 * 24 * time.Hour
	default:
		return 0
	}
}

// ParseRecurrence maps user input onto a known recurrence.
func ParseRecurrence(raw string) (Recurrence, error) {
	switch Recurrence(raw) {
	case Once, Daily, Weekly:
		return Recurrence(raw), nil
	default:
		return "", fmt.Errorf("%w: unknown recurrence %q", ErrInvalidConfiguration, raw)
	}
}

// ScheduleEntry describes when and how often a quiz auto-starts in a room.
type ScheduleEntry struct {
	RoomID       string        `json:"roomId"`
	QuizID       string        `json:"quizId"`
	NextFireTime time.Time     `json:"nextFireTime"`
	Recurrence   Recurrence    `json:"recurrence"`
	OpenPeriod   time.Duration `json:"openPeriod"`
}

// Validate rejects entries that could never fire sanely.
func (e ScheduleEntry) Validate() error {
	if e.RoomID == "" || e.QuizID == "" {
		return fmt.Errorf("%w: schedule entry needs room and quiz ids", ErrInvalidConfiguration)
	}
	if e.OpenPeriod <= 0 {
		return fmt.Errorf("%w: open period must be positive", ErrInvalidConfiguration)
	}
	if e.NextFireTime.IsZero() {
		return fmt.Errorf("%w: schedule entry needs a fire time", ErrInvalidConfiguration)
	}
	if _, err := ParseRecurrence(string(e.Recurrence)); err != nil {
		return err
	}
	return nil
}

// Verdict is the outcome of recording a single answer event.
type Verdict int

const (
	// Stale means the question is unknown or already closed; the answer is
	// silently dropped.
	Stale Verdict = iota
	// Duplicate means this user already answered this question.
	Duplicate
	Incorrect
	Correct
)

func (v Verdict) String() string {
	switch v {
	case Correct:
		return "correct"
	case Incorrect:
		return "incorrect"
	case Duplicate:
		return "duplicate"
	default:
		return "stale"
	}
}

// LeaderboardEntry is one user's score line.
type LeaderboardEntry struct {
	UserID string `json:"userId"`
	Score  int    `json:"score"`
}

// Leaderboard is an ordered scoreboard snapshot. RoomID is empty for the
// global board.
type Leaderboard struct {
	RoomID    string             `json:"roomId,omitempty"`
	Entries   []LeaderboardEntry `json:"entries"`
	UpdatedAt time.Time          `json:"updatedAt"`
}
