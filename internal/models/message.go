package models

import "time"

// Message types.
const (
	TypeText   = "text"
	TypeImage  = "image"
	TypePDF    = "pdf"
	TypeVideo  = "video"
	TypeAudio  = "audio"
	TypeFile   = "file"
	TypeSystem = "system"
)

func ValidMessageType(t string) bool {
	switch t {
	case TypeText, TypeImage, TypePDF, TypeVideo, TypeAudio, TypeFile, TypeSystem:
		return true
	}
	return false
}

type ReadReceipt struct {
	UserID string    `bson:"userId" json:"userId"`
	ReadAt time.Time `bson:"readAt" json:"readAt"`
}

// Message is immutable after creation except for the read-state fields.
// An empty RecipientID means the message is visible to every participant;
// when set, only the recipient and the sender can read it.
type Message struct {
	ID             string        `bson:"_id,omitempty" json:"id"`
	ConversationID string        `bson:"conversationId" json:"conversationId"`
	SenderID       string        `bson:"senderId" json:"senderId"`
	RecipientID    string        `bson:"recipientId,omitempty" json:"recipientId,omitempty"`
	Content        string        `bson:"content,omitempty" json:"content"`
	MessageType    string        `bson:"messageType" json:"messageType"`
	FileURL        string        `bson:"fileUrl,omitempty" json:"fileUrl,omitempty"`
	FileName       string        `bson:"fileName,omitempty" json:"fileName,omitempty"`
	FileSize       int64         `bson:"fileSize,omitempty" json:"fileSize,omitempty"`
	MimeType       string        `bson:"mimeType,omitempty" json:"mimeType,omitempty"`
	IsRead         bool          `bson:"isRead" json:"isRead"`
	ReadBy         []ReadReceipt `bson:"readBy,omitempty" json:"readBy"`
	CreatedAt      time.Time     `bson:"createdAt" json:"createdAt"`
}

// VisibleTo reports whether userID may read the message.
func (m *Message) VisibleTo(userID string) bool {
	return m.RecipientID == "" || m.RecipientID == userID || m.SenderID == userID
}
