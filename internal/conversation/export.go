package conversation

import (
	"fmt"
	"time"

	"zerocode-chat/internal/model"
)

type ExportedMessage struct {
	Sender    model.Sender `json:"sender"`
	Content   string       `json:"content"`
	Timestamp time.Time    `json:"timestamp"`
}

// ExportDocument is the downloadable projection of a session's log.
type ExportDocument struct {
	ExportDate    time.Time         `json:"exportDate"`
	TotalMessages int               `json:"totalMessages"`
	Messages      []ExportedMessage `json:"messages"`
}

// Export projects the current log. It does not change the session.
func (s *Session) Export(now time.Time) ExportDocument {
	return NewExportDocument(s.Messages(), now)
}

func NewExportDocument(messages []model.Message, now time.Time) ExportDocument {
	out := make([]ExportedMessage, 0, len(messages))
	for _, m := range messages {
		out = append(out, ExportedMessage{
			Sender:    m.Sender,
			Content:   m.Content,
			Timestamp: m.Timestamp.UTC(),
		})
	}
	return ExportDocument{
		ExportDate:    now.UTC(),
		TotalMessages: len(out),
		Messages:      out,
	}
}

// ExportFilename follows zerocode-chat-YYYY-MM-DD.json.
func ExportFilename(now time.Time) string {
	return fmt.Sprintf("zerocode-chat-%s.json", now.UTC().Format(time.DateOnly))
}
