package app

import (
	"context"
	"errors"
	"time"

	"zerocode-chat/internal/conversation"
	"zerocode-chat/internal/model"
)

var (
	ErrInvalidDirection = errors.New("recall direction must be older or newer")
	ErrArchiveDisabled  = errors.New("transcript archive is disabled")
)

// ArchiveReader reads back archived exchanges, oldest first.
type ArchiveReader interface {
	ListByOwner(ownerID string, limit int) ([]model.ArchivedMessage, error)
}

// ChatService maps authenticated users onto their conversation sessions.
type ChatService struct {
	sessions *conversation.Manager
	archive  ArchiveReader
	now      func() time.Time
}

type SendMessageResult struct {
	UserMessage model.Message      `json:"userMessage"`
	State       conversation.State `json:"state"`
}

// NewChatService builds the service. archive may be nil when archiving is off.
func NewChatService(sessions *conversation.Manager, archive ArchiveReader) *ChatService {
	return &ChatService{
		sessions: sessions,
		archive:  archive,
		now:      time.Now,
	}
}

// Send appends the user message and returns without waiting for the reply.
func (s *ChatService) Send(userID, content string) (*SendMessageResult, error) {
	if userID == "" {
		return nil, ErrInvalidInput
	}
	session := s.sessions.Get(userID)
	pending, err := session.Submit(content)
	if err != nil {
		return nil, err
	}
	return &SendMessageResult{
		UserMessage: pending.UserMessage,
		State:       session.Snapshot(),
	}, nil
}

// SendAndWait appends the user message and blocks until the reply lifecycle ends.
func (s *ChatService) SendAndWait(ctx context.Context, userID, content string) (model.Message, error) {
	if userID == "" {
		return model.Message{}, ErrInvalidInput
	}
	pending, err := s.sessions.Get(userID).Submit(content)
	if err != nil {
		return model.Message{}, err
	}
	return pending.Wait(ctx)
}

func (s *ChatService) State(userID string) (conversation.State, error) {
	if userID == "" {
		return conversation.State{}, ErrInvalidInput
	}
	return s.sessions.Get(userID).Snapshot(), nil
}

func (s *ChatService) Clear(userID string) error {
	if userID == "" {
		return ErrInvalidInput
	}
	return s.sessions.Get(userID).Clear()
}

func (s *ChatService) Recall(userID, direction string) (string, error) {
	if userID == "" {
		return "", ErrInvalidInput
	}
	dir, ok := conversation.ParseDirection(direction)
	if !ok {
		return "", ErrInvalidDirection
	}
	return s.sessions.Get(userID).Recall(dir), nil
}

// Export returns the document and the filename it should be saved under.
func (s *ChatService) Export(userID string) (conversation.ExportDocument, string, error) {
	if userID == "" {
		return conversation.ExportDocument{}, "", ErrInvalidInput
	}
	now := s.now()
	return s.sessions.Get(userID).Export(now), conversation.ExportFilename(now), nil
}

// Archive lists the user's archived messages. Unlike the session log it survives Clear.
func (s *ChatService) Archive(userID string, limit int) ([]model.ArchivedMessage, error) {
	if userID == "" {
		return nil, ErrInvalidInput
	}
	if s.archive == nil {
		return nil, ErrArchiveDisabled
	}
	return s.archive.ListByOwner(userID, limit)
}

func (s *ChatService) Subscribe(userID string) (<-chan conversation.State, func(), error) {
	if userID == "" {
		return nil, nil, ErrInvalidInput
	}
	ch, cancel := s.sessions.Get(userID).Subscribe()
	return ch, cancel, nil
}

// EndSession drops the user's in-memory session on logout. The persisted log survives.
func (s *ChatService) EndSession(userID string) {
	if userID != "" {
		s.sessions.Release(userID)
	}
}
