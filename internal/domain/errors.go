package domain

import "errors"

var (
	// ErrQuizNotFound indicates the quiz content could not be loaded.
	ErrQuizNotFound = errors.New("quiz not found")
	// ErrSessionNotFound is returned when no live session exists for a room.
	ErrSessionNotFound = errors.New("no session running in room")
	// ErrSessionAlreadyRunning rejects a start while a room has a live session.
	ErrSessionAlreadyRunning = errors.New("session already running in room")
	// ErrScheduleNotFound is returned when a schedule entry is absent.
	ErrScheduleNotFound = errors.New("schedule entry not found")
	// ErrInvalidConfiguration rejects bad open periods, recurrences and
	// malformed questions before any state is touched.
	ErrInvalidConfiguration = errors.New("invalid configuration")
)
