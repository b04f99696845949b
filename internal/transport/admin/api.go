package admin

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"chatquiz-service/internal/domain"
)

// Engine is the slice of the session engine the operator API drives.
type Engine interface {
	Start(ctx context.Context, roomID, quizID string, openPeriod time.Duration) error
	Stop(ctx context.Context, roomID string) error
	Advance(ctx context.Context, roomID string) error
	ForceRestart(ctx context.Context, roomID, quizID string, openPeriod time.Duration) error
}

// Boards serves leaderboard snapshots.
type Boards interface {
	Leaderboard(roomID string) domain.Leaderboard
	GlobalLeaderboard() domain.Leaderboard
}

// Schedules manages recurring quiz triggers.
type Schedules interface {
	Schedule(ctx context.Context, entry domain.ScheduleEntry) error
	CancelSchedule(ctx context.Context, roomID, quizID string) error
	ListSchedules(ctx context.Context) ([]domain.ScheduleEntry, error)
}

// API exposes the operator surface over HTTP: start/stop/advance a room,
// read leaderboards, manage schedule entries.
type API struct {
	engine            Engine
	boards            Boards
	schedules         Schedules
	defaultOpenPeriod time.Duration
}

func NewAPI(engine Engine, boards Boards, schedules Schedules, defaultOpenPeriod time.Duration) *API {
	return &API{engine: engine, boards: boards, schedules: schedules, defaultOpenPeriod: defaultOpenPeriod}
}

// Register mounts all routes on the router.
func (a *API) Register(r *mux.Router) {
	r.HandleFunc("/rooms/{roomID}/start", a.handleStart).Methods(http.MethodPost)
	r.HandleFunc("/rooms/{roomID}/restart", a.handleRestart).Methods(http.MethodPost)
	r.HandleFunc("/rooms/{roomID}/stop", a.handleStop).Methods(http.MethodPost)
	r.HandleFunc("/rooms/{roomID}/advance", a.handleAdvance).Methods(http.MethodPost)
	r.HandleFunc("/rooms/{roomID}/leaderboard", a.handleLeaderboard).Methods(http.MethodGet)
	r.HandleFunc("/leaderboard", a.handleGlobalLeaderboard).Methods(http.MethodGet)
	r.HandleFunc("/schedules", a.handleListSchedules).Methods(http.MethodGet)
	r.HandleFunc("/schedules", a.handleCreateSchedule).Methods(http.MethodPost)
	r.HandleFunc("/schedules/{roomID}/{quizID}", a.handleDeleteSchedule).Methods(http.MethodDelete)
}

type startRequest struct {
	QuizID        string `json:"quizId"`
	OpenPeriodSec int    `json:"openPeriodSec"`
}

type scheduleRequest struct {
	RoomID        string    `json:"roomId"`
	QuizID        string    `json:"quizId"`
	FireAt        time.Time `json:"fireAt"`
	Recurrence    string    `json:"recurrence"`
	OpenPeriodSec int       `json:"openPeriodSec"`
}

func (a *API) handleStart(w http.ResponseWriter, r *http.Request) {
	a.startRoom(w, r, a.engine.Start)
}

func (a *API) handleRestart(w http.ResponseWriter, r *http.Request) {
	a.startRoom(w, r, a.engine.ForceRestart)
}

func (a *API) startRoom(w http.ResponseWriter, r *http.Request, start func(context.Context, string, string, time.Duration) error) {
	roomID := mux.Vars(r)["roomID"]
	var req startRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	openPeriod := a.defaultOpenPeriod
	if req.OpenPeriodSec > 0 {
		openPeriod = time.Duration(req.OpenPeriodSec) * time.Second
	}
	if err := start(r.Context(), roomID, req.QuizID, openPeriod); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (a *API) handleStop(w http.ResponseWriter, r *http.Request) {
	if err := a.engine.Stop(r.Context(), mux.Vars(r)["roomID"]); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleAdvance(w http.ResponseWriter, r *http.Request) {
	if err := a.engine.Advance(r.Context(), mux.Vars(r)["roomID"]); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleLeaderboard(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, a.boards.Leaderboard(mux.Vars(r)["roomID"]))
}

func (a *API) handleGlobalLeaderboard(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, a.boards.GlobalLeaderboard())
}

func (a *API) handleListSchedules(w http.ResponseWriter, r *http.Request) {
	entries, err := a.schedules.ListSchedules(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	if entries == nil {
		entries = []domain.ScheduleEntry{}
	}
	writeJSON(w, entries)
}

func (a *API) handleCreateSchedule(w http.ResponseWriter, r *http.Request) {
	var req scheduleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	recurrence, err := domain.ParseRecurrence(req.Recurrence)
	if err != nil {
		writeError(w, err)
		return
	}
	openPeriod := a.defaultOpenPeriod
	if req.OpenPeriodSec > 0 {
		openPeriod = time.Duration(req.OpenPeriodSec) * time.Second
	}
	entry := domain.ScheduleEntry{
		RoomID:       req.RoomID,
		QuizID:       req.QuizID,
		NextFireTime: req.FireAt,
		Recurrence:   recurrence,
		OpenPeriod:   openPeriod,
	}
	if err := a.schedules.Schedule(r.Context(), entry); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusCreated)
}

func (a *API) handleDeleteSchedule(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	if err := a.schedules.CancelSchedule(r.Context(), vars["roomID"], vars["quizID"]); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrSessionAlreadyRunning):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, domain.ErrQuizNotFound),
		errors.Is(err, domain.ErrSessionNotFound),
		errors.Is(err, domain.ErrScheduleNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, domain.ErrInvalidConfiguration):
		http.Error(w, err.Error(), http.StatusBadRequest)
	default:
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
