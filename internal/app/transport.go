package app

import (
	"context"
	"time"

	"chatquiz-service/internal/domain"
)

// MultiTransport fans engine events out to several transports (websocket
// rooms and a chat bot at the same time). Every transport is attempted; the
// first error is reported so the engine's failure counting still applies.
type MultiTransport []Transport

func (m MultiTransport) ActivateQuestion(ctx context.Context, roomID, token string, q domain.Question, openPeriod time.Duration) error {
	var firstErr error
	for _, t := range m {
		if err := t.ActivateQuestion(ctx, roomID, token, q, openPeriod); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (m MultiTransport) Announce(ctx context.Context, roomID, text string) error {
	var firstErr error
	for _, t := range m {
		if err := t.Announce(ctx, roomID, text); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (m MultiTransport) PostResults(ctx context.Context, roomID string, lb domain.Leaderboard) error {
	var firstErr error
	for _, t := range m {
		if err := t.PostResults(ctx, roomID, lb); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
