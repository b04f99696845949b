package ws

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"chatquiz-service/internal/domain"
)

// AnswerSink receives answer events from connected clients.
type AnswerSink interface {
	RecordAnswer(ctx context.Context, token, userID string, selectedIndex int) domain.Verdict
}

// Hub tracks websocket clients per room and implements the engine's
// Transport: activations, announcements and results are broadcast to every
// client in the room. A room with no clients is not an error; chat rooms can
// be listened to intermittently.
type Hub struct {
	sink     AnswerSink
	upgrader websocket.Upgrader

	mu    sync.RWMutex
	rooms map[string]map[*client]struct{}
}

func NewHub(sink AnswerSink) *Hub {
	return &Hub{
		sink: sink,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		rooms: make(map[string]map[*client]struct{}),
	}
}

type client struct {
	roomID string
	userID string
	send   chan outboundMessage
}

type inboundMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type answerPayload struct {
	Token         string `json:"token"`
	SelectedIndex int    `json:"selectedIndex"`
}

type outboundMessage struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

type questionPayload struct {
	Token         string   `json:"token"`
	Prompt        string   `json:"prompt"`
	Options       []string `json:"options"`
	OpenPeriodSec int      `json:"openPeriodSec"`
}

type verdictPayload struct {
	Token   string `json:"token"`
	Verdict string `json:"verdict"`
}

type errorPayload struct {
	Message string `json:"message"`
}

// ServeWS upgrades the request and pumps messages until the client goes away.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	roomID := r.URL.Query().Get("roomId")
	userID := r.URL.Query().Get("userId")
	if roomID == "" || userID == "" {
		http.Error(w, "missing roomId or userId", http.StatusBadRequest)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("ws upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	c := &client{roomID: roomID, userID: userID, send: make(chan outboundMessage, 16)}
	h.register(c)
	defer h.unregister(c)

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		for msg := range c.send {
			if err := conn.WriteJSON(msg); err != nil {
				log.Printf("ws write error: %v", err)
				return
			}
		}
	}()

	for {
		var inbound inboundMessage
		if err := conn.ReadJSON(&inbound); err != nil {
			break
		}
		switch inbound.Type {
		case "answer":
			var payload answerPayload
			if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
				c.deliver(outboundMessage{Type: "error", Payload: errorPayload{Message: "invalid answer payload"}})
				continue
			}
			verdict := h.sink.RecordAnswer(r.Context(), payload.Token, userID, payload.SelectedIndex)
			c.deliver(outboundMessage{Type: "verdict", Payload: verdictPayload{
				Token:   payload.Token,
				Verdict: verdict.String(),
			}})
		default:
			c.deliver(outboundMessage{Type: "error", Payload: errorPayload{Message: "unsupported message type"}})
		}
	}

	h.unregister(c)
	<-writerDone
}

func (h *Hub) register(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	clients, ok := h.rooms[c.roomID]
	if !ok {
		clients = make(map[*client]struct{})
		h.rooms[c.roomID] = clients
	}
	clients[c] = struct{}{}
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	clients, ok := h.rooms[c.roomID]
	if !ok {
		return
	}
	if _, present := clients[c]; !present {
		return
	}
	delete(clients, c)
	close(c.send)
	if len(clients) == 0 {
		delete(h.rooms, c.roomID)
	}
}

// deliver drops the oldest pending message when the client's queue is full so
// a slow reader never blocks the hub.
func (c *client) deliver(msg outboundMessage) {
	select {
	case c.send <- msg:
	default:
		select {
		case <-c.send:
		default:
		}
		select {
		case c.send <- msg:
		default:
		}
	}
}

func (h *Hub) broadcast(roomID string, msg outboundMessage) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.rooms[roomID] {
		c.deliver(msg)
	}
}

// ActivateQuestion pushes the question to the room. The correct index is
// withheld; clients only ever learn verdicts for their own answers.
func (h *Hub) ActivateQuestion(_ context.Context, roomID, token string, q domain.Question, openPeriod time.Duration) error {
	h.broadcast(roomID, outboundMessage{Type: "question", Payload: questionPayload{
		Token:         token,
		Prompt:        q.Prompt,
		Options:       q.Options,
		OpenPeriodSec: int(openPeriod / time.Second),
	}})
	return nil
}

func (h *Hub) Announce(_ context.Context, roomID, text string) error {
	h.broadcast(roomID, outboundMessage{Type: "announce", Payload: text})
	return nil
}

func (h *Hub) PostResults(_ context.Context, roomID string, lb domain.Leaderboard) error {
	h.broadcast(roomID, outboundMessage{Type: "results", Payload: lb})
	return nil
}
