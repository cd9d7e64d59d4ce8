package model

import "time"

type Sender string

const (
	SenderUser Sender = "user"
	SenderBot  Sender = "bot"
)

// Message is one entry of a conversation log. Entries are never mutated after creation.
type Message struct {
	ID        string    `json:"id"`
	Content   string    `json:"content"`
	Sender    Sender    `json:"sender"`
	Timestamp time.Time `json:"timestamp"`
}

// ArchivedMessage is the row written by the archive worker.
type ArchivedMessage struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	MessageID string    `gorm:"size:64;not null;uniqueIndex" json:"message_id"`
	OwnerID   string    `gorm:"size:64;not null;index" json:"owner_id"`
	Sender    string    `gorm:"size:16;not null;index" json:"sender"`
	Content   string    `gorm:"type:text;not null" json:"content"`
	SentAt    time.Time `gorm:"not null;index" json:"sent_at"`
	CreatedAt time.Time `json:"created_at"`
}

// ArchiveEnvelope is the queue payload carrying one completed exchange.
type ArchiveEnvelope struct {
	OwnerID  string    `json:"owner_id"`
	Messages []Message `json:"messages"`
}

// Rows flattens the envelope into archive rows.
func (e ArchiveEnvelope) Rows() []ArchivedMessage {
	rows := make([]ArchivedMessage, 0, len(e.Messages))
	for _, m := range e.Messages {
		rows = append(rows, ArchivedMessage{
			MessageID: m.ID,
			OwnerID:   e.OwnerID,
			Sender:    string(m.Sender),
			Content:   m.Content,
			SentAt:    m.Timestamp,
		})
	}
	return rows
}
