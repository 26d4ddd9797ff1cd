package service

import (
	"context"
	"sync"
	"testing"

	"go.uber.org/zap"

	"github.com/Bechir-Lahoueg/Freelancing-App-sub001/internal/models"
	"github.com/Bechir-Lahoueg/Freelancing-App-sub001/internal/repository"
)

type recordedEvent struct {
	ConversationID string
	Event          string
	Payload        interface{}
}

type fanoutRecorder struct {
	mu     sync.Mutex
	events []recordedEvent
}

func (f *fanoutRecorder) BroadcastToConversation(conversationID, event string, payload interface{}) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, recordedEvent{ConversationID: conversationID, Event: event, Payload: payload})
}

func (f *fanoutRecorder) eventNames() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.events))
	for _, e := range f.events {
		out = append(out, e.Event)
	}
	return out
}

func (f *fanoutRecorder) lastEvent() (recordedEvent, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.events) == 0 {
		return recordedEvent{}, false
	}
	return f.events[len(f.events)-1], true
}

type testEnv struct {
	convs    *ConversationService
	msgs     *MessageService
	convRepo *repository.MemoryConversations
	msgRepo  *repository.MemoryMessages
	tasks    *repository.MemoryTasks
	fanout   *fanoutRecorder
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	convRepo := repository.NewMemoryConversations()
	msgRepo := repository.NewMemoryMessages()
	tasks := repository.NewMemoryTasks()
	fanout := &fanoutRecorder{}
	log := zap.NewNop().Sugar()
	return &testEnv{
		convs:    NewConversationService(convRepo, msgRepo, tasks, fanout, nil, log),
		msgs:     NewMessageService(convRepo, msgRepo, fanout, nil, log),
		convRepo: convRepo,
		msgRepo:  msgRepo,
		tasks:    tasks,
		fanout:   fanout,
	}
}

// seedConversation inserts a conversation with the given participants
// directly into the store.
func (e *testEnv) seedConversation(t *testing.T, code string, participants ...models.Participant) *models.Conversation {
	t.Helper()
	conv := &models.Conversation{
		ConversationCode: code,
		TaskRequestID:    "task-" + code,
		Participants:     participants,
		UnreadCount:      models.UnreadCounts{},
		Status:           models.StatusActive,
	}
	if err := e.convRepo.Insert(context.Background(), conv); err != nil {
		t.Fatalf("seed conversation: %v", err)
	}
	return conv
}
