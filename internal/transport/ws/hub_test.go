package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"chatquiz-service/internal/domain"
)

func TestQuestionBroadcastAndAnswerFlow(t *testing.T) {
	sink := &recordingSink{verdict: domain.Correct}
	hub := NewHub(sink)

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", hub.ServeWS)
	server := httptest.NewServer(mux)
	defer server.Close()

	alice := dial(t, server, "room-1", "alice")
	defer alice.Close()
	bob := dial(t, server, "room-1", "bob")
	defer bob.Close()
	other := dial(t, server, "room-2", "carol")
	defer other.Close()

	question := domain.Question{
		Prompt:       "What is 2 + 2?",
		Options:      []string{"3", "4"},
		CorrectIndex: 1,
	}
	if err := hub.ActivateQuestion(context.Background(), "room-1", "tok-1", question, 30*time.Second); err != nil {
		t.Fatalf("activate: %v", err)
	}

	for _, conn := range []*websocket.Conn{alice, bob} {
		msg := readMessage(t, conn)
		if msg.Type != "question" {
			t.Fatalf("expected question, got %s", msg.Type)
		}
		var q questionPayload
		mustUnmarshal(t, msg.Payload, &q)
		if q.Token != "tok-1" || len(q.Options) != 2 {
			t.Fatalf("unexpected question payload: %+v", q)
		}
	}

	// Room-2 must not see room-1 questions.
	_ = other.SetReadDeadline(time.Now().Add(100 * time.Millisecond))
	var stray inboundMessage
	if err := other.ReadJSON(&stray); err == nil {
		t.Fatalf("unexpected message for other room: %+v", stray)
	}

	answer := map[string]any{
		"type":    "answer",
		"payload": map[string]any{"token": "tok-1", "selectedIndex": 1},
	}
	if err := alice.WriteJSON(answer); err != nil {
		t.Fatalf("write answer: %v", err)
	}

	msg := readMessage(t, alice)
	if msg.Type != "verdict" {
		t.Fatalf("expected verdict, got %s", msg.Type)
	}
	var v verdictPayload
	mustUnmarshal(t, msg.Payload, &v)
	if v.Verdict != "correct" || v.Token != "tok-1" {
		t.Fatalf("unexpected verdict payload: %+v", v)
	}

	got := sink.last()
	if got.token != "tok-1" || got.userID != "alice" || got.index != 1 {
		t.Fatalf("sink saw %+v", got)
	}
}

func TestResultsBroadcast(t *testing.T) {
	hub := NewHub(&recordingSink{verdict: domain.Stale})

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", hub.ServeWS)
	server := httptest.NewServer(mux)
	defer server.Close()

	conn := dial(t, server, "room-1", "alice")
	defer conn.Close()

	lb := domain.Leaderboard{
		RoomID:  "room-1",
		Entries: []domain.LeaderboardEntry{{UserID: "alice", Score: 2}},
	}
	if err := hub.PostResults(context.Background(), "room-1", lb); err != nil {
		t.Fatalf("post results: %v", err)
	}

	msg := readMessage(t, conn)
	if msg.Type != "results" {
		t.Fatalf("expected results, got %s", msg.Type)
	}
	var got domain.Leaderboard
	mustUnmarshal(t, msg.Payload, &got)
	if len(got.Entries) != 1 || got.Entries[0].Score != 2 {
		t.Fatalf("unexpected leaderboard: %+v", got)
	}
}

func TestBroadcastToEmptyRoomIsNoError(t *testing.T) {
	hub := NewHub(&recordingSink{})
	if err := hub.Announce(context.Background(), "empty-room", "hello"); err != nil {
		t.Fatalf("announce to empty room: %v", err)
	}
}

type recordedAnswer struct {
	token  string
	userID string
	index  int
}

type recordingSink struct {
	mu      sync.Mutex
	verdict domain.Verdict
	answers []recordedAnswer
}

func (s *recordingSink) RecordAnswer(_ context.Context, token, userID string, selectedIndex int) domain.Verdict {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.answers = append(s.answers, recordedAnswer{token: token, userID: userID, index: selectedIndex})
	return s.verdict
}

func (s *recordingSink) last() recordedAnswer {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.answers) == 0 {
		return recordedAnswer{}
	}
	return s.answers[len(s.answers)-1]
}

func dial(t *testing.T, server *httptest.Server, roomID, userID string) *websocket.Conn {
	t.Helper()
	u := "ws" + server.URL[len("http"):] + "/ws?roomId=" + roomID + "&userId=" + userID
	conn, _, err := websocket.DefaultDialer.Dial(u, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	// Give the hub a moment to register the client before broadcasting.
	time.Sleep(20 * time.Millisecond)
	return conn
}

func readMessage(t *testing.T, conn *websocket.Conn) inboundMessage {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg inboundMessage
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("read: %v", err)
	}
	return msg
}

func mustUnmarshal(t *testing.T, raw json.RawMessage, v any) {
	t.Helper()
	if err := json.Unmarshal(raw, v); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
}
