package app

import (
	"context"
	"log"
	"sort"
	"sync"
	"time"

	"chatquiz-service/internal/domain"
)

// GlobalScoreStore persists all-time scores across process restarts
// (Redis hash, sqlite table). A nil store keeps the global board in memory
// only.
type GlobalScoreStore interface {
	Increment(ctx context.Context, userID string) error
	Load(ctx context.Context) (map[string]int, error)
}

type pollMapping struct {
	roomID       string
	correctIndex int
}

// board keeps scores together with first-score insertion order so that ties
// resolve to whoever reached the score first.
type board struct {
	scores map[string]int
	order  []string
}

func newBoard() *board {
	return &board{scores: make(map[string]int)}
}

func (b *board) award(userID string) {
	if _, ok := b.scores[userID]; !ok {
		b.order = append(b.order, userID)
	}
	b.scores[userID]++
}

func (b *board) entries() []domain.LeaderboardEntry {
	entries := make([]domain.LeaderboardEntry, 0, len(b.order))
	for _, userID := range b.order {
		entries = append(entries, domain.LeaderboardEntry{UserID: userID, Score: b.scores[userID]})
	}
	// Stable sort over insertion order keeps ties deterministic.
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Score > entries[j].Score
	})
	return entries
}

// Ledger tallies answers exactly once per (question, user) and serves
// leaderboards. It owns the poll mappings that tie an answer event back to a
// room and correct option, so late or redelivered events never touch session
// state.
type Ledger struct {
	mu       sync.Mutex
	mappings map[string]pollMapping
	answered map[string]map[string]struct{}
	boards   map[string]*board
	global   *board
	store    GlobalScoreStore
	now      func() time.Time
}

// NewLedger builds a ledger, seeding the global board from the store when one
// is configured.
func NewLedger(ctx context.Context, store GlobalScoreStore) (*Ledger, error) {
	l := &Ledger{
		mappings: make(map[string]pollMapping),
		answered: make(map[string]map[string]struct{}),
		boards:   make(map[string]*board),
		global:   newBoard(),
		store:    store,
		now:      time.Now,
	}
	if store != nil {
		scores, err := store.Load(ctx)
		if err != nil {
			return nil, err
		}
		l.seedGlobal(scores)
	}
	return l, nil
}

// seedGlobal installs persisted scores. Achievement order is not persisted,
// so loaded entries are ordered by score then user id to stay deterministic.
func (l *Ledger) seedGlobal(scores map[string]int) {
	users := make([]string, 0, len(scores))
	for userID := range scores {
		users = append(users, userID)
	}
	sort.Slice(users, func(i, j int) bool {
		if scores[users[i]] != scores[users[j]] {
			return scores[users[i]] > scores[users[j]]
		}
		return users[i] < users[j]
	})
	l.global = newBoard()
	for _, userID := range users {
		l.global.scores[userID] = scores[userID]
		l.global.order = append(l.global.order, userID)
	}
}

// OpenQuestion registers the poll mapping for a freshly activated question.
func (l *Ledger) OpenQuestion(token, roomID string, correctIndex int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.mappings[token] = pollMapping{roomID: roomID, correctIndex: correctIndex}
	l.answered[token] = make(map[string]struct{})
}

// CloseQuestion drops the mapping and answered set; answers arriving after
// this point are reported Stale.
func (l *Ledger) CloseQuestion(token string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.mappings, token)
	delete(l.answered, token)
}

// ResetBoard clears a room's session board. Called when a new session starts
// in the room; global scores are untouched.
func (l *Ledger) ResetBoard(roomID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.boards[roomID] = newBoard()
}

// RecordAnswer scores one answer event. Transport delivery is at-least-once,
// so unknown tokens and repeat answers are absorbed without any score change.
func (l *Ledger) RecordAnswer(ctx context.Context, token, userID string, selectedIndex int) domain.Verdict {
	l.mu.Lock()
	mapping, ok := l.mappings[token]
	if !ok {
		l.mu.Unlock()
		return domain.Stale
	}
	seen := l.answered[token]
	if _, dup := seen[userID]; dup {
		l.mu.Unlock()
		return domain.Duplicate
	}
	seen[userID] = struct{}{}
	if selectedIndex != mapping.correctIndex {
		l.mu.Unlock()
		return domain.Incorrect
	}
	b, ok := l.boards[mapping.roomID]
	if !ok {
		b = newBoard()
		l.boards[mapping.roomID] = b
	}
	b.award(userID)
	l.global.award(userID)
	l.mu.Unlock()

	if l.store != nil {
		// Persistence is best-effort; the in-memory tally is authoritative
		// for the running session.
		if err := l.store.Increment(ctx, userID); err != nil {
			log.Printf("ledger: persist score for %s: %v", userID, err)
		}
	}
	return domain.Correct
}

// Leaderboard returns the current session board for a room, highest score
// first, ties broken by who scored first.
func (l *Ledger) Leaderboard(roomID string) domain.Leaderboard {
	l.mu.Lock()
	defer l.mu.Unlock()
	b, ok := l.boards[roomID]
	if !ok {
		b = newBoard()
	}
	return domain.Leaderboard{RoomID: roomID, Entries: b.entries(), UpdatedAt: l.now()}
}

// GlobalLeaderboard returns the all-time board across every room.
func (l *Ledger) GlobalLeaderboard() domain.Leaderboard {
	l.mu.Lock()
	defer l.mu.Unlock()
	return domain.Leaderboard{Entries: l.global.entries(), UpdatedAt: l.now()}
}
