package models

import "time"

// Participant roles.
const (
	RoleUser       = "user"
	RoleAdmin      = "admin"
	RoleSuperAdmin = "superadmin"
)

// Conversation statuses.
const (
	StatusActive    = "active"
	StatusArchived  = "archived"
	StatusClosed    = "closed"
	StatusCompleted = "completed"
)

// Close reasons.
const (
	CloseReasonAdminLeft     = "admin_left"
	CloseReasonTaskCompleted = "task_completed"
)

// Actions available when the underlying task is completed.
const (
	CompletedKeepOpen = "keep_open"
	CompletedClose    = "close_conversation"
)

type Participant struct {
	UserID string `bson:"userId" json:"userId"`
	Role   string `bson:"role" json:"role"`
}

type LastMessage struct {
	Content   string    `bson:"content" json:"content"`
	SenderID  string    `bson:"senderId" json:"senderId"`
	Timestamp time.Time `bson:"timestamp" json:"timestamp"`
}

type ClosedBy struct {
	UserID   string    `bson:"userId" json:"userId"`
	Reason   string    `bson:"reason" json:"reason"`
	ClosedAt time.Time `bson:"closedAt" json:"closedAt"`
}

type AssignedAgent struct {
	Name       string    `bson:"name" json:"name"`
	AssignedAt time.Time `bson:"assignedAt" json:"assignedAt"`
}

// UnreadCounts maps participant userId to pending message count.
// Increment and Reset are the only mutators; whole-map replacement is
// what loses updates under concurrent sends, so nothing else writes it.
type UnreadCounts map[string]int

func (u UnreadCounts) Get(userID string) int {
	return u[userID]
}

func (u UnreadCounts) Increment(userID string) {
	u[userID]++
}

func (u UnreadCounts) Reset(userID string) {
	u[userID] = 0
}

// Conversation is the durable thread binding participants to one task request.
// There is exactly one conversation per task; creation is idempotent on
// TaskRequestID. Conversations are archived, never deleted.
type Conversation struct {
	ID               string         `bson:"_id,omitempty" json:"id"`
	ConversationCode string         `bson:"conversationCode,omitempty" json:"conversationCode,omitempty"`
	TaskRequestID    string         `bson:"taskRequestId" json:"taskRequestId"`
	Participants     []Participant  `bson:"participants" json:"participants"`
	LastMessage      *LastMessage   `bson:"lastMessage,omitempty" json:"lastMessage,omitempty"`
	UnreadCount      UnreadCounts   `bson:"unreadCount" json:"unreadCount"`
	Status           string         `bson:"status" json:"status"`
	ClosedBy         *ClosedBy      `bson:"closedBy,omitempty" json:"closedBy,omitempty"`
	TaskCompleted    bool           `bson:"taskCompleted" json:"taskCompleted"`
	CompletedAction  string         `bson:"completedAction,omitempty" json:"completedAction,omitempty"`
	AssignedAgent    *AssignedAgent `bson:"assignedAgent,omitempty" json:"assignedAgent,omitempty"`
	CreatedAt        time.Time      `bson:"createdAt" json:"createdAt"`
	UpdatedAt        time.Time      `bson:"updatedAt" json:"updatedAt"`
}

func (c *Conversation) HasParticipant(userID string) bool {
	for _, p := range c.Participants {
		if p.UserID == userID {
			return true
		}
	}
	return false
}

func (c *Conversation) ParticipantRole(userID string) (string, bool) {
	for _, p := range c.Participants {
		if p.UserID == userID {
			return p.Role, true
		}
	}
	return "", false
}

// OtherParticipantIDs returns every participant except userID.
func (c *Conversation) OtherParticipantIDs(userID string) []string {
	var out []string
	for _, p := range c.Participants {
		if p.UserID != userID {
			out = append(out, p.UserID)
		}
	}
	return out
}
