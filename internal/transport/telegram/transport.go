package telegram

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"chatquiz-service/internal/domain"
)

// AnswerSink receives poll answers forwarded from Telegram.
type AnswerSink interface {
	RecordAnswer(ctx context.Context, token, userID string, selectedIndex int) domain.Verdict
}

// maxTrackedPolls bounds the poll-to-token map; Telegram can redeliver
// answers for long-closed polls and those are stale anyway.
const maxTrackedPolls = 1024

// botAPI is the slice of tgbotapi.BotAPI the transport uses.
type botAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
}

// Transport delivers questions to Telegram chats as native quiz polls.
// Room ids are Telegram chat ids in decimal form.
type Transport struct {
	api  botAPI
	sink AnswerSink

	mu     sync.Mutex
	polls  map[string]string // telegram poll id -> question token
	recent []string          // poll ids in insertion order, for pruning
}

func New(token string, sink AnswerSink) (*Transport, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("create bot api: %w", err)
	}
	return &Transport{api: api, sink: sink, polls: make(map[string]string)}, nil
}

// Run consumes Telegram updates and forwards poll answers into the sink
// until the context is cancelled.
func (t *Transport) Run(ctx context.Context) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	u.AllowedUpdates = []string{"message", "poll_answer"}
	updates := t.api.GetUpdatesChan(u)

	for {
		select {
		case <-ctx.Done():
			t.api.StopReceivingUpdates()
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			switch {
			case update.PollAnswer != nil:
				t.handlePollAnswer(ctx, update.PollAnswer)
			case update.Message != nil && update.Message.IsCommand():
				t.handleCommand(update.Message)
			}
		}
	}
}

// greeting is the reply to /start.
const greeting = "🤖 Hello! I am the quiz bot.\nI send quizzes to this chat automatically."

func (t *Transport) handleCommand(msg *tgbotapi.Message) {
	if msg.Command() != "start" {
		return
	}
	if _, err := t.api.Send(tgbotapi.NewMessage(msg.Chat.ID, greeting)); err != nil {
		log.Printf("telegram: reply to /start in chat %d: %v", msg.Chat.ID, err)
	}
}

func (t *Transport) handlePollAnswer(ctx context.Context, answer *tgbotapi.PollAnswer) {
	if len(answer.OptionIDs) == 0 {
		return // vote retracted
	}
	t.mu.Lock()
	token, ok := t.polls[answer.PollID]
	t.mu.Unlock()
	if !ok {
		return
	}
	userID := strconv.FormatInt(answer.User.ID, 10)
	verdict := t.sink.RecordAnswer(ctx, token, userID, answer.OptionIDs[0])
	log.Printf("telegram: poll %s answer from %s: %s", answer.PollID, userID, verdict)
}

func (t *Transport) ActivateQuestion(_ context.Context, roomID, token string, q domain.Question, openPeriod time.Duration) error {
	chatID, err := parseChatID(roomID)
	if err != nil {
		return err
	}

	poll := tgbotapi.NewPoll(chatID, q.Prompt, q.Options...)
	poll.Type = "quiz"
	poll.CorrectOptionID = int64(q.CorrectIndex)
	poll.IsAnonymous = false
	poll.OpenPeriod = int(openPeriod / time.Second)

	msg, err := t.api.Send(poll)
	if err != nil {
		return fmt.Errorf("send poll: %w", err)
	}
	if msg.Poll != nil {
		t.track(msg.Poll.ID, token)
	}
	return nil
}

func (t *Transport) Announce(_ context.Context, roomID, text string) error {
	chatID, err := parseChatID(roomID)
	if err != nil {
		return err
	}
	if _, err := t.api.Send(tgbotapi.NewMessage(chatID, text)); err != nil {
		return fmt.Errorf("send message: %w", err)
	}
	return nil
}

func (t *Transport) PostResults(ctx context.Context, roomID string, lb domain.Leaderboard) error {
	return t.Announce(ctx, roomID, formatResults(lb))
}

func (t *Transport) track(pollID, token string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.polls[pollID] = token
	t.recent = append(t.recent, pollID)
	for len(t.recent) > maxTrackedPolls {
		delete(t.polls, t.recent[0])
		t.recent = t.recent[1:]
	}
}

func parseChatID(roomID string) (int64, error) {
	chatID, err := strconv.ParseInt(roomID, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("room %q is not a telegram chat id: %w", roomID, err)
	}
	return chatID, nil
}

func formatResults(lb domain.Leaderboard) string {
	if len(lb.Entries) == 0 {
		return "Quiz finished! Nobody scored this round."
	}
	text := "🏁 Quiz finished! Final scores:\n"
	for i, entry := range lb.Entries {
		text += fmt.Sprintf("%d. %s: %d\n", i+1, entry.UserID, entry.Score)
	}
	return text
}
