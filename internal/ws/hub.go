package ws

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

// PresenceMirror receives best-effort copies of presence transitions.
// The hub's in-memory tables stay the live record; the mirror exists for
// other processes and never gates delivery.
type PresenceMirror interface {
	SetOnline(ctx context.Context, userID string) error
	SetOffline(ctx context.Context, userID string) error
}

// Hub is the realtime fanout: per-conversation rooms plus one user
// channel per announced user. All tables are process-local and rebuilt
// from scratch on every (re)connection; nothing here is durable and no
// other component touches these maps directly.
type Hub struct {
	mu       sync.RWMutex
	sessions map[*Client]struct{}
	rooms    map[string]map[*Client]struct{} // conversationID -> sessions
	users    map[string]*Client              // userID -> latest session
	mirror   PresenceMirror
	log      *zap.SugaredLogger
}

func NewHub(mirror PresenceMirror, log *zap.SugaredLogger) *Hub {
	return &Hub{
		sessions: make(map[*Client]struct{}),
		rooms:    make(map[string]map[*Client]struct{}),
		users:    make(map[string]*Client),
		mirror:   mirror,
		log:      log,
	}
}

func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	h.sessions[c] = struct{}{}
	h.mu.Unlock()
}

// Unregister drops the session from every room and, when it is the
// user's latest session, broadcasts the offline transition.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	delete(h.sessions, c)
	for id, members := range h.rooms {
		delete(members, c)
		if len(members) == 0 {
			delete(h.rooms, id)
		}
	}
	var wentOffline string
	if c.userID != "" && h.users[c.userID] == c {
		delete(h.users, c.userID)
		wentOffline = c.userID
	}
	h.mu.Unlock()

	if wentOffline != "" {
		h.broadcastAll("user:status", map[string]string{"userId": wentOffline, "status": "offline"})
		h.mirrorPresence(wentOffline, false)
	}
}

// Join adds the session to a conversation room. Pure membership change,
// no persistence, no participant check: the HTTP layer guards reads.
func (h *Hub) Join(conversationID string, c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.rooms[conversationID]; !ok {
		h.rooms[conversationID] = make(map[*Client]struct{})
	}
	h.rooms[conversationID][c] = struct{}{}
}

func (h *Hub) Leave(conversationID string, c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if members, ok := h.rooms[conversationID]; ok {
		delete(members, c)
		if len(members) == 0 {
			delete(h.rooms, conversationID)
		}
	}
}

// AnnouncePresence records the session as the user's current live
// connection. Latest session wins; an older session stays connected but
// no longer carries the user channel.
func (h *Hub) AnnouncePresence(userID string, c *Client) {
	h.mu.Lock()
	c.userID = userID
	h.users[userID] = c
	h.mu.Unlock()

	h.broadcastAll("user:status", map[string]string{"userId": userID, "status": "online"})
	h.mirrorPresence(userID, true)
}

// BroadcastToConversation delivers the event to every session currently
// in the room. Best effort: sessions not joined receive nothing, the
// persisted message record is the source of truth.
func (h *Hub) BroadcastToConversation(conversationID, event string, payload interface{}) {
	b, err := encodeFrame(event, payload)
	if err != nil {
		h.log.Errorw("encode frame", "event", event, "error", err)
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.rooms[conversationID] {
		c.Send(b)
	}
}

// SendToUser delivers on the user channel of the latest announced session.
func (h *Hub) SendToUser(userID, event string, payload interface{}) {
	b, err := encodeFrame(event, payload)
	if err != nil {
		h.log.Errorw("encode frame", "event", event, "error", err)
		return
	}
	h.mu.RLock()
	c, ok := h.users[userID]
	h.mu.RUnlock()
	if ok {
		c.Send(b)
	}
}

// RelayTyping broadcasts a typing signal to the room, excluding the
// sender's own session.
func (h *Hub) RelayTyping(conversationID, userID string, from *Client, starting bool) {
	event := "user:stop-typing"
	if starting {
		event = "user:typing"
	}
	b, err := encodeFrame(event, map[string]string{"userId": userID, "conversationId": conversationID})
	if err != nil {
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.rooms[conversationID] {
		if c != from {
			c.Send(b)
		}
	}
}

func (h *Hub) broadcastAll(event string, payload interface{}) {
	b, err := encodeFrame(event, payload)
	if err != nil {
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.sessions {
		c.Send(b)
	}
}

func (h *Hub) mirrorPresence(userID string, online bool) {
	if h.mirror == nil {
		return
	}
	ctx := context.Background()
	var err error
	if online {
		err = h.mirror.SetOnline(ctx, userID)
	} else {
		err = h.mirror.SetOffline(ctx, userID)
	}
	if err != nil {
		h.log.Warnw("presence mirror", "userId", userID, "error", err)
	}
}
