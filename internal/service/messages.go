package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/Bechir-Lahoueg/Freelancing-App-sub001/internal/apperr"
	"github.com/Bechir-Lahoueg/Freelancing-App-sub001/internal/events"
	"github.com/Bechir-Lahoueg/Freelancing-App-sub001/internal/metrics"
	"github.com/Bechir-Lahoueg/Freelancing-App-sub001/internal/models"
	"github.com/Bechir-Lahoueg/Freelancing-App-sub001/internal/repository"
)

const defaultPageSize = 50

// SendMessageInput carries a new message's payload. File metadata comes
// from the blob store; raw bytes never pass through here.
type SendMessageInput struct {
	Content     string `json:"content"`
	MessageType string `json:"messageType"`
	RecipientID string `json:"recipientId"`
	FileURL     string `json:"fileUrl"`
	FileName    string `json:"fileName"`
	FileSize    int64  `json:"fileSize"`
	MimeType    string `json:"mimeType"`
}

// MessageService accepts new messages, persists them, keeps the owning
// conversation's cache and unread counters current, and hands the event
// to the fanout for live delivery.
type MessageService struct {
	convs    repository.ConversationRepository
	msgs     repository.MessageRepository
	fanout   Fanout
	producer *events.Producer
	log      *zap.SugaredLogger
}

func NewMessageService(
	convs repository.ConversationRepository,
	msgs repository.MessageRepository,
	fanout Fanout,
	producer *events.Producer,
	log *zap.SugaredLogger,
) *MessageService {
	return &MessageService{convs: convs, msgs: msgs, fanout: fanout, producer: producer, log: log}
}

// Send persists the message, then updates the conversation, then
// broadcasts. The broadcast only ever follows a successful persist.
func (s *MessageService) Send(ctx context.Context, conversationID, senderID string, in SendMessageInput) (*models.Message, error) {
	conv, err := s.convs.FindByID(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if !conv.HasParticipant(senderID) {
		return nil, apperr.ErrForbidden
	}

	msgType := in.MessageType
	if msgType == "" {
		msgType = models.TypeText
	}
	if !models.ValidMessageType(msgType) {
		return nil, fmt.Errorf("%w: unknown message type %q", apperr.ErrValidation, in.MessageType)
	}
	if in.Content == "" && in.FileURL == "" {
		return nil, fmt.Errorf("%w: message needs content or a file", apperr.ErrValidation)
	}
	if in.RecipientID != "" && !conv.HasParticipant(in.RecipientID) {
		return nil, fmt.Errorf("%w: recipient is not a participant", apperr.ErrValidation)
	}

	content := in.Content
	if content == "" && msgType != models.TypeText {
		content = "Fichier partage: " + in.FileName
	}

	msg := &models.Message{
		ConversationID: conversationID,
		SenderID:       senderID,
		RecipientID:    in.RecipientID,
		Content:        content,
		MessageType:    msgType,
		FileURL:        in.FileURL,
		FileName:       in.FileName,
		FileSize:       in.FileSize,
		MimeType:       in.MimeType,
	}
	if err := s.msgs.Insert(ctx, msg); err != nil {
		return nil, err
	}

	display := content
	if msgType != models.TypeText && msgType != models.TypeSystem {
		name := in.FileName
		if name == "" {
			name = "Fichier"
		}
		display = "\U0001F4CE " + name
	}
	lm := models.LastMessage{Content: display, SenderID: senderID, Timestamp: msg.CreatedAt}
	if err := s.convs.RecordMessage(ctx, conversationID, lm, conv.OtherParticipantIDs(senderID)); err != nil {
		return nil, err
	}

	s.fanout.BroadcastToConversation(conversationID, "message:received", map[string]interface{}{
		"message":        msg,
		"conversationId": conversationID,
	})
	s.producer.Publish(ctx, conversationID, events.MessageSent, msg)
	metrics.MessagesSent.Inc()
	return msg, nil
}

// GetMessages returns the page of messages visible to the requester in
// chronological order; `before` pages backwards through history.
func (s *MessageService) GetMessages(ctx context.Context, conversationID, requesterID string, limit int64, before time.Time) ([]*models.Message, error) {
	conv, err := s.convs.FindByID(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if !conv.HasParticipant(requesterID) {
		return nil, apperr.ErrForbidden
	}
	if limit <= 0 {
		limit = defaultPageSize
	}
	return s.msgs.ListVisible(ctx, conversationID, requesterID, limit, before)
}

// MarkAsRead resets the caller's unread counter and stamps a read
// receipt on every message they had not read yet. Idempotent.
func (s *MessageService) MarkAsRead(ctx context.Context, conversationID, userID string) error {
	conv, err := s.convs.FindByID(ctx, conversationID)
	if err != nil {
		return err
	}
	if !conv.HasParticipant(userID) {
		return apperr.ErrForbidden
	}
	if err := s.convs.ResetUnread(ctx, conversationID, userID); err != nil {
		return err
	}
	if _, err := s.msgs.MarkRead(ctx, conversationID, userID, time.Now().UTC()); err != nil {
		return err
	}
	s.fanout.BroadcastToConversation(conversationID, "messages:read", map[string]string{
		"conversationId": conversationID,
		"userId":         userID,
	})
	return nil
}
