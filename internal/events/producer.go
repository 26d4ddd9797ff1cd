package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// Event names carried on the chat topic for downstream consumers
// (notification fanout, analytics).
const (
	ConversationCreated = "chat.conversation.created"
	ConversationClosed  = "chat.conversation.closed"
	MessageSent         = "chat.message.sent"
)

type envelope struct {
	Event string      `json:"event"`
	Data  interface{} `json:"data"`
	At    time.Time   `json:"at"`
}

// Producer writes keyed chat events to kafka. Records are keyed by
// conversation id so per-conversation ordering survives partitioning.
// A nil Producer is valid and drops everything; event emission is
// best-effort and never fails the request that triggered it.
type Producer struct {
	writer *kafka.Writer
	log    *zap.SugaredLogger
}

func NewProducer(brokers []string, topic string, log *zap.SugaredLogger) *Producer {
	w := kafka.NewWriter(kafka.WriterConfig{
		Brokers:  brokers,
		Topic:    topic,
		Balancer: &kafka.LeastBytes{},
	})
	return &Producer{writer: w, log: log}
}

func (p *Producer) Publish(ctx context.Context, conversationID, event string, data interface{}) {
	if p == nil || p.writer == nil {
		return
	}
	b, err := json.Marshal(envelope{Event: event, Data: data, At: time.Now().UTC()})
	if err != nil {
		p.log.Errorw("marshal event", "event", event, "error", err)
		return
	}
	msg := kafka.Message{Key: []byte(conversationID), Value: b, Time: time.Now()}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		p.log.Errorw("kafka publish", "event", event, "error", err)
	}
}

func (p *Producer) Close() error {
	if p == nil || p.writer == nil {
		return nil
	}
	return p.writer.Close()
}
