// Package conversation implements the chat session: an append-only message log,
// a single outstanding reply, the input recall buffer and persistence of the log.
package conversation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"zerocode-chat/internal/model"
	"zerocode-chat/internal/oracle"
	"zerocode-chat/internal/pkg/logging"
	"zerocode-chat/internal/store"
)

const (
	DefaultHistoryLimit = 50
	FailureReply        = "I'm sorry, something went wrong. Please try again."
)

var (
	ErrEmptyMessage = errors.New("message content is empty")
	ErrReplyPending = errors.New("a reply is already pending")
	ErrClosed       = errors.New("session is closed")
	ErrReplyDropped = errors.New("reply dropped")
)

// Archiver receives every completed exchange. Failures are logged and otherwise ignored.
type Archiver interface {
	Archive(ctx context.Context, owner string, exchange []model.Message) error
}

// State is a copy of the session state at one point in time.
type State struct {
	Messages      []model.Message `json:"messages"`
	IsLoading     bool            `json:"isLoading"`
	InputHistory  []string        `json:"inputHistory"`
	HistoryCursor int             `json:"historyCursor"`
}

type Option func(*Session)

func WithHistoryLimit(n int) Option {
	return func(s *Session) {
		if n > 0 {
			s.historyLimit = n
		}
	}
}

// WithMaxMessages bounds the log. The oldest exchanges are dropped whole, so the log
// may hold one message fewer than n. 0 means unbounded; 1 is raised to 2 so an exchange fits.
func WithMaxMessages(n int) Option {
	return func(s *Session) {
		switch {
		case n == 1:
			s.maxMessages = 2
		case n >= 0:
			s.maxMessages = n
		}
	}
}

// WithReplyTimeout bounds a single oracle call. 0 waits indefinitely.
func WithReplyTimeout(d time.Duration) Option {
	return func(s *Session) {
		if d >= 0 {
			s.replyTimeout = d
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Session) {
		if now != nil {
			s.now = now
		}
	}
}

func WithArchiver(owner string, a Archiver) Option {
	return func(s *Session) {
		s.owner = owner
		s.archiver = a
	}
}

type Session struct {
	key          string
	store        store.Store
	oracle       oracle.Oracle
	archiver     Archiver
	owner        string
	historyLimit int
	maxMessages  int
	replyTimeout time.Duration
	now          func() time.Time
	logger       zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu          sync.Mutex
	messages    []model.Message
	loading     bool
	history     []string
	cursor      int
	generation  uint64
	closed      bool
	subscribers map[int]chan State
	nextSubID   int
}

// New builds a session persisted under key and hydrates its log from st.
// The session lives until Close is called or ctx is cancelled.
func New(ctx context.Context, key string, st store.Store, o oracle.Oracle, opts ...Option) *Session {
	sessionCtx, cancel := context.WithCancel(ctx)
	s := &Session{
		key:          key,
		store:        st,
		oracle:       o,
		historyLimit: DefaultHistoryLimit,
		now:          time.Now,
		logger:       logging.Component("conversation").With().Str("key", key).Logger(),
		ctx:          sessionCtx,
		cancel:       cancel,
		messages:     []model.Message{},
		history:      []string{},
		cursor:       -1,
		subscribers:  make(map[int]chan State),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.hydrate()
	return s
}

// hydrate loads the persisted log. Missing or malformed data leaves the log empty.
func (s *Session) hydrate() {
	messages, err := LoadMessages(s.ctx, s.store, s.key)
	if err != nil {
		s.logger.Warn().Err(err).Msg("load persisted messages failed")
		return
	}
	s.messages = s.bound(messages)
	s.logger.Debug().Int("messages", len(s.messages)).Msg("session hydrated")
}

// LoadMessages reads a persisted log. An absent key yields an empty log.
func LoadMessages(ctx context.Context, st store.Store, key string) ([]model.Message, error) {
	raw, ok, err := st.Get(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("read persisted messages failed: %w", err)
	}
	if !ok || raw == "" {
		return []model.Message{}, nil
	}

	var messages []model.Message
	if err := json.Unmarshal([]byte(raw), &messages); err != nil {
		return nil, fmt.Errorf("parse persisted messages failed: %w", err)
	}
	if messages == nil {
		messages = []model.Message{}
	}
	return messages, nil
}

// Submit appends a user message and requests a reply in the background.
// Blank input and input arriving while a reply is pending are rejected without any state change.
func (s *Session) Submit(raw string) (*Pending, error) {
	content := strings.TrimSpace(raw)
	if content == "" {
		return nil, ErrEmptyMessage
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, ErrClosed
	}
	if s.loading {
		s.mu.Unlock()
		return nil, ErrReplyPending
	}

	userMessage := s.newMessage(content, model.SenderUser)
	s.appendLocked(userMessage)
	s.loading = true
	s.pushHistoryLocked(raw)
	s.cursor = -1

	pending := &Pending{UserMessage: userMessage, done: make(chan struct{})}
	generation := s.generation
	s.notifyLocked()
	s.mu.Unlock()

	go s.awaitReply(pending, generation, content)
	return pending, nil
}

func (s *Session) awaitReply(pending *Pending, generation uint64, content string) {
	ctx := s.ctx
	if s.replyTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.replyTimeout)
		defer cancel()
	}

	reply, err := s.oracle.Reply(ctx, content)
	if err == nil && strings.TrimSpace(reply) == "" {
		err = oracle.ErrEmptyCompletion
	}

	s.mu.Lock()
	s.loading = false

	if s.closed || generation != s.generation {
		// Torn down or cleared while the reply was outstanding.
		s.notifyLocked()
		s.mu.Unlock()
		pending.finish(model.Message{}, ErrReplyDropped)
		return
	}

	var botMessage model.Message
	if err != nil {
		s.logger.Warn().Err(err).Msg("oracle reply failed")
		botMessage = s.newMessage(FailureReply, model.SenderBot)
	} else {
		botMessage = s.newMessage(reply, model.SenderBot)
	}
	s.appendLocked(botMessage)
	s.persistLocked()
	s.notifyLocked()
	s.mu.Unlock()

	if s.archiver != nil {
		exchange := []model.Message{pending.UserMessage, botMessage}
		if archiveErr := s.archiver.Archive(s.ctx, s.owner, exchange); archiveErr != nil {
			s.logger.Error().Err(archiveErr).Msg("archive exchange failed")
		}
	}
	pending.finish(botMessage, err)
}

// Clear empties the log and deletes its persisted copy. The recall buffer is kept.
// A reply still outstanding is dropped when it arrives.
func (s *Session) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}

	s.messages = []model.Message{}
	s.generation++
	s.notifyLocked()

	if err := s.store.Delete(s.ctx, s.key); err != nil {
		return fmt.Errorf("delete persisted messages failed: %w", err)
	}
	return nil
}

// Snapshot returns a copy of the current state.
func (s *Session) Snapshot() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// Messages returns a copy of the log.
func (s *Session) Messages() []model.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.Message(nil), s.messages...)
}

func (s *Session) IsLoading() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loading
}

// Subscribe streams a snapshot after every state change. Slow readers only see the latest one.
func (s *Session) Subscribe() (<-chan State, func()) {
	ch := make(chan State, 1)

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		close(ch)
		return ch, func() {}
	}
	id := s.nextSubID
	s.nextSubID++
	s.subscribers[id] = ch
	ch <- s.snapshotLocked()
	s.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.subscribers, id)
			s.mu.Unlock()
		})
	}
}

// Close cancels the outstanding reply, if any, and stops notifying subscribers.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	for id, ch := range s.subscribers {
		close(ch)
		delete(s.subscribers, id)
	}
	s.mu.Unlock()

	s.cancel()
}

func (s *Session) newMessage(content string, sender model.Sender) model.Message {
	return model.Message{
		ID:        newMessageID(),
		Content:   content,
		Sender:    sender,
		Timestamp: s.now(),
	}
}

func (s *Session) appendLocked(m model.Message) {
	s.messages = s.bound(append(s.messages, m))
}

// bound drops whole exchanges from the front: the kept log never starts with a
// bot reply whose user message was cut.
func (s *Session) bound(messages []model.Message) []model.Message {
	if s.maxMessages <= 0 || len(messages) <= s.maxMessages {
		return messages
	}
	start := len(messages) - s.maxMessages
	for start < len(messages) && messages[start].Sender == model.SenderBot {
		start++
	}
	trimmed := make([]model.Message, len(messages)-start)
	copy(trimmed, messages[start:])
	return trimmed
}

// persistLocked overwrites the stored log with the full in-memory log.
func (s *Session) persistLocked() {
	payload, err := json.Marshal(s.messages)
	if err != nil {
		s.logger.Error().Err(err).Msg("marshal messages failed")
		return
	}
	if err := s.store.Set(s.ctx, s.key, string(payload)); err != nil {
		s.logger.Error().Err(err).Msg("persist messages failed")
	}
}

func (s *Session) snapshotLocked() State {
	return State{
		Messages:      append([]model.Message{}, s.messages...),
		IsLoading:     s.loading,
		InputHistory:  append([]string{}, s.history...),
		HistoryCursor: s.cursor,
	}
}

func (s *Session) notifyLocked() {
	if s.closed || len(s.subscribers) == 0 {
		return
	}
	snap := s.snapshotLocked()
	for _, ch := range s.subscribers {
		select {
		case ch <- snap:
		default:
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- snap:
			default:
			}
		}
	}
}

// newMessageID returns a UUIDv7, which sorts in creation order.
func newMessageID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

// Pending tracks one outstanding reply.
type Pending struct {
	UserMessage model.Message

	done  chan struct{}
	reply model.Message
	err   error
}

func (p *Pending) finish(reply model.Message, err error) {
	p.reply = reply
	p.err = err
	close(p.done)
}

// Done is closed once the reply has been appended, failed or dropped.
func (p *Pending) Done() <-chan struct{} {
	return p.done
}

// Wait blocks until the reply lifecycle ends. On oracle failure the returned message is the
// appended failure notice and err is the oracle's error.
func (p *Pending) Wait(ctx context.Context) (model.Message, error) {
	select {
	case <-ctx.Done():
		return model.Message{}, ctx.Err()
	case <-p.done:
		return p.reply, p.err
	}
}
