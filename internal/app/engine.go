package app

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"chatquiz-service/internal/domain"
)

// QuizRepository loads quiz content (from cache/backing store).
type QuizRepository interface {
	GetQuiz(ctx context.Context, quizID string) (domain.Quiz, error)
}

// Transport delivers quiz content to a room. Implementations must tolerate
// rooms with no listeners; an error return counts toward the room's
// consecutive-failure limit.
type Transport interface {
	ActivateQuestion(ctx context.Context, roomID, token string, q domain.Question, openPeriod time.Duration) error
	Announce(ctx context.Context, roomID, text string) error
	PostResults(ctx context.Context, roomID string, lb domain.Leaderboard) error
}

// maxTransportFailures aborts a room's session after this many consecutive
// failed activations, so a dead room cannot loop forever.
const maxTransportFailures = 3

type sessionState int

const (
	stateActive sessionState = iota + 1
	stateFinished
)

// session is one room's run through a quiz. All fields are guarded by mu;
// the current question token doubles as the fencing key between the armed
// timer and manual advance/stop, so a late timer firing is a no-op.
type session struct {
	mu         sync.Mutex
	roomID     string
	quizID     string
	questions  []domain.Question
	current    int
	state      sessionState
	openPeriod time.Duration
	token      string
	timer      *time.Timer
	failures   int
}

// Engine drives at most one live session per room. Rooms are independent:
// the engine map lock is never held across a transport call, and each room
// serializes on its own session mutex.
type Engine struct {
	mu        sync.RWMutex
	rooms     map[string]*session
	quizzes   QuizRepository
	ledger    *Ledger
	transport Transport
	newToken  func() string
}

func NewEngine(quizzes QuizRepository, ledger *Ledger, transport Transport) *Engine {
	return &Engine{
		rooms:     make(map[string]*session),
		quizzes:   quizzes,
		ledger:    ledger,
		transport: transport,
		newToken:  uuid.NewString,
	}
}

// Start begins a session in a room. It fails with ErrSessionAlreadyRunning
// if the room has a live session; the running session and its timer are left
// untouched. A quiz with no questions finishes immediately with an empty
// leaderboard and holds no room slot.
func (e *Engine) Start(ctx context.Context, roomID, quizID string, openPeriod time.Duration) error {
	if openPeriod <= 0 {
		return fmt.Errorf("%w: open period must be positive", domain.ErrInvalidConfiguration)
	}

	quiz, err := e.quizzes.GetQuiz(ctx, quizID)
	if err != nil {
		return err
	}
	if err := quiz.Validate(); err != nil {
		return err
	}

	if len(quiz.Questions) == 0 {
		// A live session still owns the room and its board.
		e.mu.Lock()
		if _, running := e.rooms[roomID]; running {
			e.mu.Unlock()
			return domain.ErrSessionAlreadyRunning
		}
		e.mu.Unlock()
		e.ledger.ResetBoard(roomID)
		if err := e.transport.PostResults(ctx, roomID, e.ledger.Leaderboard(roomID)); err != nil {
			log.Printf("engine: room %s: post empty results: %v", roomID, err)
		}
		return nil
	}

	s := &session{
		roomID:     roomID,
		quizID:     quizID,
		questions:  quiz.Questions,
		state:      stateActive,
		openPeriod: openPeriod,
	}

	// The session mutex is taken before the room slot becomes visible so a
	// racing advance or stop waits until the first question is activated.
	s.mu.Lock()
	defer s.mu.Unlock()

	e.mu.Lock()
	if _, running := e.rooms[roomID]; running {
		e.mu.Unlock()
		return domain.ErrSessionAlreadyRunning
	}
	e.rooms[roomID] = s
	e.mu.Unlock()

	e.ledger.ResetBoard(roomID)
	e.activateLocked(ctx, s)
	return nil
}

// Advance manually closes the current question and moves on, preempting the
// armed timer.
func (e *Engine) Advance(ctx context.Context, roomID string) error {
	s, ok := e.room(roomID)
	if !ok {
		return domain.ErrSessionNotFound
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != stateActive {
		return domain.ErrSessionNotFound
	}
	e.advanceLocked(ctx, s)
	return nil
}

// Stop forces the session to Finished regardless of remaining questions and
// posts the final leaderboard. The pending timer is disarmed; if it already
// fired it loses the token race and does nothing.
func (e *Engine) Stop(ctx context.Context, roomID string) error {
	s, ok := e.room(roomID)
	if !ok {
		return domain.ErrSessionNotFound
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != stateActive {
		return domain.ErrSessionNotFound
	}
	e.finishLocked(ctx, s)
	return nil
}

// ForceRestart stops any running session in the room and starts a new one.
// This is the explicit alternative to silently clobbering a live session.
func (e *Engine) ForceRestart(ctx context.Context, roomID, quizID string, openPeriod time.Duration) error {
	if err := e.Stop(ctx, roomID); err != nil && err != domain.ErrSessionNotFound {
		return err
	}
	return e.Start(ctx, roomID, quizID, openPeriod)
}

// Running reports whether a room currently has a live session.
func (e *Engine) Running(roomID string) bool {
	_, ok := e.room(roomID)
	return ok
}

func (e *Engine) room(roomID string) (*session, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	s, ok := e.rooms[roomID]
	return s, ok
}

// expire is the timer callback. The token comparison fences it against a
// manual advance or stop that happened between firing and acquiring the lock.
func (e *Engine) expire(roomID, token string) {
	s, ok := e.room(roomID)
	if !ok {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != stateActive || s.token != token {
		return
	}
	e.advanceLocked(context.Background(), s)
}

// activateLocked opens questions[current]: mints a token, registers the poll
// mapping, arms the timer, then tells the transport. The timer is armed
// before the transport call so the session keeps advancing even when the
// activation fails. Caller holds s.mu.
func (e *Engine) activateLocked(ctx context.Context, s *session) {
	q := s.questions[s.current]
	token := e.newToken()
	s.token = token
	e.ledger.OpenQuestion(token, s.roomID, q.CorrectIndex)
	s.timer = time.AfterFunc(s.openPeriod, func() {
		e.expire(s.roomID, token)
	})

	if err := e.transport.ActivateQuestion(ctx, s.roomID, token, q, s.openPeriod); err != nil {
		s.failures++
		log.Printf("engine: room %s: activate question %d: %v (consecutive failures: %d)", s.roomID, s.current, err, s.failures)
		if s.failures >= maxTransportFailures {
			log.Printf("engine: room %s: aborting session after %d transport failures", s.roomID, s.failures)
			e.finishLocked(ctx, s)
		}
		return
	}
	s.failures = 0
}

// advanceLocked closes the current question and either activates the next
// one or finishes the session. Caller holds s.mu.
func (e *Engine) advanceLocked(ctx context.Context, s *session) {
	s.timer.Stop()
	e.ledger.CloseQuestion(s.token)
	s.token = ""

	if expl := s.questions[s.current].Explanation; expl != "" {
		if err := e.transport.Announce(ctx, s.roomID, expl); err != nil {
			log.Printf("engine: room %s: announce explanation: %v", s.roomID, err)
		}
	}

	s.current++
	if s.current >= len(s.questions) {
		e.finishLocked(ctx, s)
		return
	}
	e.activateLocked(ctx, s)
}

// finishLocked transitions to Finished, posts the frozen leaderboard and
// releases the room slot so a subsequent Start is permitted. Caller holds
// s.mu; the engine map lock is safe to take here because no path acquires a
// session mutex while holding it.
func (e *Engine) finishLocked(ctx context.Context, s *session) {
	if s.timer != nil {
		s.timer.Stop()
	}
	if s.token != "" {
		e.ledger.CloseQuestion(s.token)
		s.token = ""
	}
	s.state = stateFinished

	e.mu.Lock()
	if e.rooms[s.roomID] == s {
		delete(e.rooms, s.roomID)
	}
	e.mu.Unlock()

	if err := e.transport.PostResults(ctx, s.roomID, e.ledger.Leaderboard(s.roomID)); err != nil {
		log.Printf("engine: room %s: post results: %v", s.roomID, err)
	}
}
