package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Bechir-Lahoueg/Freelancing-App-sub001/internal/apperr"
	"github.com/Bechir-Lahoueg/Freelancing-App-sub001/internal/events"
	"github.com/Bechir-Lahoueg/Freelancing-App-sub001/internal/models"
	"github.com/Bechir-Lahoueg/Freelancing-App-sub001/internal/repository"
)

// Fanout is the live-delivery seam. Emission is best effort: a failed or
// absent broadcast never rolls back a persisted write.
type Fanout interface {
	BroadcastToConversation(conversationID, event string, payload interface{})
}

// CodeResult bundles what a support lookup by conversation code returns.
type CodeResult struct {
	Conversation  *models.Conversation  `json:"conversation"`
	Messages      []*models.Message     `json:"messages"`
	AssignedAgent *models.AssignedAgent `json:"assignedAgent,omitempty"`
}

// ConversationService owns conversation lifecycle: creation bound 1:1 to
// a task request, listing, archive/close/complete transitions and the
// support code lookup.
type ConversationService struct {
	convs    repository.ConversationRepository
	msgs     repository.MessageRepository
	tasks    repository.TaskRepository
	fanout   Fanout
	producer *events.Producer
	log      *zap.SugaredLogger
}

func NewConversationService(
	convs repository.ConversationRepository,
	msgs repository.MessageRepository,
	tasks repository.TaskRepository,
	fanout Fanout,
	producer *events.Producer,
	log *zap.SugaredLogger,
) *ConversationService {
	return &ConversationService{
		convs:    convs,
		msgs:     msgs,
		tasks:    tasks,
		fanout:   fanout,
		producer: producer,
		log:      log,
	}
}

func newConversationCode() string {
	return "CONV-" + strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
}

// CreateOrGet opens the conversation for a task, or returns the existing
// one unchanged. The task owner joins with role "user", the initiating
// actor with their own role, and an opening system message seeds the
// lastMessage cache.
func (s *ConversationService) CreateOrGet(ctx context.Context, taskID, actorID, actorRole string) (*models.Conversation, bool, error) {
	if conv, err := s.convs.FindByTask(ctx, taskID); err == nil {
		return conv, false, nil
	} else if !errors.Is(err, apperr.ErrNotFound) {
		return nil, false, err
	}

	task, err := s.tasks.FindByID(ctx, taskID)
	if err != nil {
		return nil, false, err
	}

	participants := []models.Participant{{UserID: task.UserID, Role: models.RoleUser}}
	unread := models.UnreadCounts{task.UserID: 0}
	if actorID != task.UserID {
		participants = append(participants, models.Participant{UserID: actorID, Role: actorRole})
		unread[actorID] = 0
	}

	conv := &models.Conversation{
		ConversationCode: newConversationCode(),
		TaskRequestID:    taskID,
		Participants:     participants,
		UnreadCount:      unread,
		Status:           models.StatusActive,
	}
	if err := s.convs.Insert(ctx, conv); err != nil {
		// lost the creation race: someone else opened it for this task
		if errors.Is(err, apperr.ErrConflict) {
			if existing, ferr := s.convs.FindByTask(ctx, taskID); ferr == nil {
				return existing, false, nil
			}
		}
		return nil, false, err
	}

	sys := &models.Message{
		ConversationID: conv.ID,
		SenderID:       actorID,
		Content:        fmt.Sprintf("Conversation creee pour le service %q. Vous pouvez maintenant discuter avec le client.", task.Title),
		MessageType:    models.TypeSystem,
	}
	if err := s.msgs.Insert(ctx, sys); err != nil {
		return nil, false, err
	}
	lm := models.LastMessage{Content: sys.Content, SenderID: sys.SenderID, Timestamp: sys.CreatedAt}
	if err := s.convs.RecordMessage(ctx, conv.ID, lm, nil); err != nil {
		return nil, false, err
	}
	conv.LastMessage = &lm

	s.producer.Publish(ctx, conv.ID, events.ConversationCreated, conv)
	return conv, true, nil
}

// ListForUser returns the caller's visible conversations, most recent
// message first. Archived conversations are excluded from listings.
func (s *ConversationService) ListForUser(ctx context.Context, userID string) ([]*models.Conversation, error) {
	statuses := []string{models.StatusActive, models.StatusClosed, models.StatusCompleted}
	return s.convs.ListForUser(ctx, userID, statuses)
}

// Archive hides the conversation from listings. Unconditional.
func (s *ConversationService) Archive(ctx context.Context, conversationID string) error {
	return s.convs.SetStatus(ctx, conversationID, models.StatusArchived)
}

// LookupByCode resolves a support code (case-insensitive) to the
// conversation, its full history and the assigned agent.
func (s *ConversationService) LookupByCode(ctx context.Context, code string) (*CodeResult, error) {
	normalized := strings.ToUpper(strings.TrimSpace(code))
	conv, err := s.convs.FindByCode(ctx, normalized)
	if err != nil {
		return nil, err
	}
	msgs, err := s.msgs.ListAll(ctx, conv.ID)
	if err != nil {
		return nil, err
	}
	return &CodeResult{Conversation: conv, Messages: msgs, AssignedAgent: conv.AssignedAgent}, nil
}

// Close ends the conversation. Only admin participants may close, and the
// reason must be one of the known close reasons.
func (s *ConversationService) Close(ctx context.Context, conversationID, actorID, reason string) error {
	if reason != models.CloseReasonAdminLeft && reason != models.CloseReasonTaskCompleted {
		return fmt.Errorf("%w: unknown close reason %q", apperr.ErrValidation, reason)
	}
	conv, err := s.convs.FindByID(ctx, conversationID)
	if err != nil {
		return err
	}
	role, ok := conv.ParticipantRole(actorID)
	if !ok {
		return apperr.ErrForbidden
	}
	if role != models.RoleAdmin && role != models.RoleSuperAdmin {
		return apperr.ErrForbidden
	}
	closedBy := models.ClosedBy{UserID: actorID, Reason: reason, ClosedAt: time.Now().UTC()}
	if err := s.convs.Close(ctx, conversationID, closedBy); err != nil {
		return err
	}
	sys := &models.Message{
		ConversationID: conversationID,
		SenderID:       actorID,
		Content:        "L'administrateur a quitte la conversation. Cette conversation est maintenant fermee.",
		MessageType:    models.TypeSystem,
	}
	if err := s.msgs.Insert(ctx, sys); err != nil {
		s.log.Warnw("close system message", "conversationId", conversationID, "error", err)
	}
	s.fanout.BroadcastToConversation(conversationID, "conversation:closed", map[string]interface{}{
		"conversationId": conversationID,
		"reason":         reason,
		"message":        sys,
	})
	s.producer.Publish(ctx, conversationID, events.ConversationClosed, closedBy)
	return nil
}

// CompleteTask records the task workflow's completion signal. With
// close_conversation the thread also moves to completed; with keep_open
// it stays active for follow-up questions.
func (s *ConversationService) CompleteTask(ctx context.Context, conversationID, actorID, action string) error {
	if action != models.CompletedKeepOpen && action != models.CompletedClose {
		return fmt.Errorf("%w: unknown completed action %q", apperr.ErrValidation, action)
	}
	conv, err := s.convs.FindByID(ctx, conversationID)
	if err != nil {
		return err
	}
	if !conv.HasParticipant(actorID) {
		return apperr.ErrForbidden
	}
	var closedBy *models.ClosedBy
	if action == models.CompletedClose {
		closedBy = &models.ClosedBy{
			UserID:   actorID,
			Reason:   models.CloseReasonTaskCompleted,
			ClosedAt: time.Now().UTC(),
		}
	}
	if err := s.convs.Complete(ctx, conversationID, action, closedBy); err != nil {
		return err
	}
	if err := s.tasks.SetStatus(ctx, conv.TaskRequestID, "completed"); err != nil {
		s.log.Warnw("task status update", "taskRequestId", conv.TaskRequestID, "error", err)
	}

	content := "✅ La tache a ete marquee comme terminee par l'administrateur."
	if action == models.CompletedClose {
		content += " Cette conversation est maintenant fermee."
	} else {
		content += " La conversation reste ouverte pour d'eventuels echanges."
	}
	sys := &models.Message{
		ConversationID: conversationID,
		SenderID:       actorID,
		Content:        content,
		MessageType:    models.TypeSystem,
	}
	if err := s.msgs.Insert(ctx, sys); err != nil {
		s.log.Warnw("completion system message", "conversationId", conversationID, "error", err)
	}
	s.fanout.BroadcastToConversation(conversationID, "task:completed", map[string]interface{}{
		"conversationId": conversationID,
		"action":         action,
		"taskCompleted":  true,
		"message":        sys,
	})
	return nil
}

// AssignAgent routes the conversation to a named support agent.
func (s *ConversationService) AssignAgent(ctx context.Context, conversationID, name string) error {
	if name == "" {
		return fmt.Errorf("%w: agent name required", apperr.ErrValidation)
	}
	agent := models.AssignedAgent{Name: name, AssignedAt: time.Now().UTC()}
	return s.convs.AssignAgent(ctx, conversationID, agent)
}
