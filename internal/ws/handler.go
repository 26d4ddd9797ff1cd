package ws

import (
	"encoding/json"
	"time"

	"github.com/gofiber/websocket/v2"
	"go.uber.org/zap"

	"github.com/Bechir-Lahoueg/Freelancing-App-sub001/internal/auth"
	"github.com/Bechir-Lahoueg/Freelancing-App-sub001/internal/metrics"
)

// envelope is the inbound wire shape: {"event": "...", "data": {...}}.
type envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

type conversationRef struct {
	ConversationID string `json:"conversationId"`
}

// Handler upgrades socket sessions and dispatches their control events
// to the hub. Identity comes from the token; the emitted user:online is
// accepted as a re-announcement only.
type Handler struct {
	hub       *Hub
	jwtSecret string
	log       *zap.SugaredLogger
}

func NewHandler(hub *Hub, jwtSecret string, log *zap.SugaredLogger) *Handler {
	return &Handler{hub: hub, jwtSecret: jwtSecret, log: log}
}

// Serve runs one socket session: /ws?token=<jwt>.
func (h *Handler) Serve(conn *websocket.Conn) {
	token := conn.Query("token")
	claims, err := auth.ParseToken(h.jwtSecret, token)
	if err != nil {
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"error":"invalid token"}`))
		_ = conn.Close()
		return
	}

	client := NewClient(conn)
	h.hub.Register(client)
	h.hub.AnnouncePresence(claims.UserID, client)
	metrics.ActiveConnections.Inc()

	go client.WritePump()

	defer func() {
		h.hub.Unregister(client)
		client.Close()
		metrics.ActiveConnections.Dec()
	}()

	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var env envelope
		if err := json.Unmarshal(data, &env); err != nil {
			continue
		}
		h.dispatch(claims.UserID, client, env)
	}
}

func (h *Handler) dispatch(userID string, client *Client, env envelope) {
	switch env.Event {
	case "user:online":
		h.hub.AnnouncePresence(userID, client)
	case "conversation:join":
		if ref, ok := decodeRef(env.Data); ok {
			h.hub.Join(ref.ConversationID, client)
		}
	case "conversation:leave":
		if ref, ok := decodeRef(env.Data); ok {
			h.hub.Leave(ref.ConversationID, client)
		}
	case "typing:start":
		if ref, ok := decodeRef(env.Data); ok {
			h.hub.RelayTyping(ref.ConversationID, userID, client, true)
		}
	case "typing:stop":
		if ref, ok := decodeRef(env.Data); ok {
			h.hub.RelayTyping(ref.ConversationID, userID, client, false)
		}
	default:
		h.log.Debugw("unknown ws event", "event", env.Event)
	}
}

func decodeRef(data json.RawMessage) (conversationRef, bool) {
	var ref conversationRef
	if err := json.Unmarshal(data, &ref); err != nil || ref.ConversationID == "" {
		return ref, false
	}
	return ref, true
}
