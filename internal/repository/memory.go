package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/Bechir-Lahoueg/Freelancing-App-sub001/internal/apperr"
	"github.com/Bechir-Lahoueg/Freelancing-App-sub001/internal/models"
)

// In-memory implementations of the store interfaces. They back the test
// suite and the local dev mode, and mirror the Mongo semantics: per-key
// unread increments, creation-time ordering, unique task and code keys.

type MemoryConversations struct {
	mu     sync.Mutex
	byID   map[string]*models.Conversation
	byTask map[string]string
	byCode map[string]string
}

func NewMemoryConversations() *MemoryConversations {
	return &MemoryConversations{
		byID:   make(map[string]*models.Conversation),
		byTask: make(map[string]string),
		byCode: make(map[string]string),
	}
}

func cloneConversation(c *models.Conversation) *models.Conversation {
	cp := *c
	cp.Participants = append([]models.Participant(nil), c.Participants...)
	cp.UnreadCount = models.UnreadCounts{}
	for k, v := range c.UnreadCount {
		cp.UnreadCount[k] = v
	}
	if c.LastMessage != nil {
		lm := *c.LastMessage
		cp.LastMessage = &lm
	}
	if c.ClosedBy != nil {
		cb := *c.ClosedBy
		cp.ClosedBy = &cb
	}
	if c.AssignedAgent != nil {
		ag := *c.AssignedAgent
		cp.AssignedAgent = &ag
	}
	return &cp
}

func (r *MemoryConversations) Insert(_ context.Context, c *models.Conversation) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.byTask[c.TaskRequestID]; dup {
		return fmt.Errorf("insert conversation: %w", apperr.ErrConflict)
	}
	if c.ConversationCode != "" {
		if _, dup := r.byCode[c.ConversationCode]; dup {
			return fmt.Errorf("insert conversation: %w", apperr.ErrConflict)
		}
	}
	now := time.Now().UTC()
	if c.ID == "" {
		c.ID = primitive.NewObjectID().Hex()
	}
	c.CreatedAt = now
	c.UpdatedAt = now
	if c.UnreadCount == nil {
		c.UnreadCount = models.UnreadCounts{}
	}
	r.byID[c.ID] = cloneConversation(c)
	r.byTask[c.TaskRequestID] = c.ID
	if c.ConversationCode != "" {
		r.byCode[c.ConversationCode] = c.ID
	}
	return nil
}

func (r *MemoryConversations) FindByID(_ context.Context, id string) (*models.Conversation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.byID[id]
	if !ok {
		return nil, fmt.Errorf("find conversation: %w", apperr.ErrNotFound)
	}
	return cloneConversation(c), nil
}

func (r *MemoryConversations) FindByTask(_ context.Context, taskID string) (*models.Conversation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id, ok := r.byTask[taskID]
	if !ok {
		return nil, fmt.Errorf("find conversation: %w", apperr.ErrNotFound)
	}
	return cloneConversation(r.byID[id]), nil
}

func (r *MemoryConversations) FindByCode(_ context.Context, code string) (*models.Conversation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id, ok := r.byCode[code]
	if !ok {
		return nil, fmt.Errorf("find conversation: %w", apperr.ErrNotFound)
	}
	return cloneConversation(r.byID[id]), nil
}

func (r *MemoryConversations) ListForUser(_ context.Context, userID string, statuses []string) ([]*models.Conversation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	allowed := make(map[string]bool, len(statuses))
	for _, s := range statuses {
		allowed[s] = true
	}
	var out []*models.Conversation
	for _, c := range r.byID {
		if allowed[c.Status] && c.HasParticipant(userID) {
			out = append(out, cloneConversation(c))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		ti, tj := out[i].CreatedAt, out[j].CreatedAt
		if out[i].LastMessage != nil {
			ti = out[i].LastMessage.Timestamp
		}
		if out[j].LastMessage != nil {
			tj = out[j].LastMessage.Timestamp
		}
		// conversations with no messages sort last
		if (out[i].LastMessage == nil) != (out[j].LastMessage == nil) {
			return out[j].LastMessage == nil
		}
		if !ti.Equal(tj) {
			return ti.After(tj)
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func (r *MemoryConversations) RecordMessage(_ context.Context, id string, lm models.LastMessage, recipients []string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.byID[id]
	if !ok {
		return fmt.Errorf("update conversation: %w", apperr.ErrNotFound)
	}
	c.LastMessage = &lm
	for _, uid := range recipients {
		c.UnreadCount.Increment(uid)
	}
	c.UpdatedAt = time.Now().UTC()
	return nil
}

func (r *MemoryConversations) ResetUnread(_ context.Context, id, userID string) error {
	return r.update(id, func(c *models.Conversation) {
		c.UnreadCount.Reset(userID)
	})
}

func (r *MemoryConversations) SetStatus(_ context.Context, id, status string) error {
	return r.update(id, func(c *models.Conversation) {
		c.Status = status
	})
}

func (r *MemoryConversations) Close(_ context.Context, id string, closedBy models.ClosedBy) error {
	return r.update(id, func(c *models.Conversation) {
		c.Status = models.StatusClosed
		c.ClosedBy = &closedBy
	})
}

func (r *MemoryConversations) Complete(_ context.Context, id, action string, closedBy *models.ClosedBy) error {
	return r.update(id, func(c *models.Conversation) {
		c.TaskCompleted = true
		c.CompletedAction = action
		if closedBy != nil {
			c.Status = models.StatusCompleted
			cb := *closedBy
			c.ClosedBy = &cb
		}
	})
}

func (r *MemoryConversations) AssignAgent(_ context.Context, id string, agent models.AssignedAgent) error {
	return r.update(id, func(c *models.Conversation) {
		c.AssignedAgent = &agent
	})
}

func (r *MemoryConversations) update(id string, fn func(*models.Conversation)) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.byID[id]
	if !ok {
		return fmt.Errorf("update conversation: %w", apperr.ErrNotFound)
	}
	fn(c)
	c.UpdatedAt = time.Now().UTC()
	return nil
}

type MemoryMessages struct {
	mu     sync.Mutex
	byConv map[string][]*models.Message
	lastTS time.Time
}

func NewMemoryMessages() *MemoryMessages {
	return &MemoryMessages{byConv: make(map[string][]*models.Message)}
}

func cloneMessage(m *models.Message) *models.Message {
	cp := *m
	cp.ReadBy = append([]models.ReadReceipt(nil), m.ReadBy...)
	return &cp
}

func (r *MemoryMessages) Insert(_ context.Context, m *models.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if m.ID == "" {
		m.ID = primitive.NewObjectID().Hex()
	}
	ts := time.Now().UTC()
	// keep creation times strictly increasing so ordering is deterministic
	if !ts.After(r.lastTS) {
		ts = r.lastTS.Add(time.Nanosecond)
	}
	r.lastTS = ts
	m.CreatedAt = ts
	r.byConv[m.ConversationID] = append(r.byConv[m.ConversationID], cloneMessage(m))
	return nil
}

func (r *MemoryMessages) ListVisible(_ context.Context, conversationID, userID string, limit int64, before time.Time) ([]*models.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	msgs := r.byConv[conversationID]
	var visible []*models.Message
	for _, m := range msgs {
		if !m.VisibleTo(userID) {
			continue
		}
		if !before.IsZero() && !m.CreatedAt.Before(before) {
			continue
		}
		visible = append(visible, cloneMessage(m))
	}
	// messages are stored in insertion (creation) order; keep the newest
	// `limit` entries, chronological
	if limit > 0 && int64(len(visible)) > limit {
		visible = visible[int64(len(visible))-limit:]
	}
	return visible, nil
}

func (r *MemoryMessages) ListAll(_ context.Context, conversationID string) ([]*models.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	msgs := r.byConv[conversationID]
	out := make([]*models.Message, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, cloneMessage(m))
	}
	return out, nil
}

func (r *MemoryMessages) MarkRead(_ context.Context, conversationID, userID string, at time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for _, m := range r.byConv[conversationID] {
		if m.SenderID == userID || m.IsRead {
			continue
		}
		m.IsRead = true
		m.ReadBy = append(m.ReadBy, models.ReadReceipt{UserID: userID, ReadAt: at})
		n++
	}
	return n, nil
}

type MemoryTasks struct {
	mu   sync.Mutex
	byID map[string]*models.TaskRequest
}

func NewMemoryTasks() *MemoryTasks {
	return &MemoryTasks{byID: make(map[string]*models.TaskRequest)}
}

func (r *MemoryTasks) Put(t *models.TaskRequest) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byID[t.ID] = t
}

func (r *MemoryTasks) FindByID(_ context.Context, id string) (*models.TaskRequest, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.byID[id]
	if !ok {
		return nil, fmt.Errorf("find task: %w", apperr.ErrNotFound)
	}
	cp := *t
	return &cp, nil
}

func (r *MemoryTasks) SetStatus(_ context.Context, id, status string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.byID[id]
	if !ok {
		return fmt.Errorf("update task: %w", apperr.ErrNotFound)
	}
	t.Status = status
	return nil
}
