package conversation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"zerocode-chat/internal/model"
	"zerocode-chat/internal/oracle"
	"zerocode-chat/internal/store"
)

const testKey = "zerocode_chat_history"

// gatedOracle blocks every reply until release is called.
type gatedOracle struct {
	release chan struct{}
	reply   string
	err     error

	mu     sync.Mutex
	inputs []string
}

func newGatedOracle(reply string, err error) *gatedOracle {
	return &gatedOracle{release: make(chan struct{}), reply: reply, err: err}
}

func (o *gatedOracle) Reply(ctx context.Context, input string) (string, error) {
	o.mu.Lock()
	o.inputs = append(o.inputs, input)
	o.mu.Unlock()
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case <-o.release:
		return o.reply, o.err
	}
}

func (o *gatedOracle) open() { close(o.release) }

func instantOracle() oracle.Oracle {
	return oracle.NewKeywordOracle(oracle.WithDelay(0, 0), oracle.WithRand(rand.New(rand.NewSource(1))))
}

type recordingArchiver struct {
	mu        sync.Mutex
	owner     string
	exchanges [][]model.Message
}

func (a *recordingArchiver) Archive(_ context.Context, owner string, exchange []model.Message) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.owner = owner
	a.exchanges = append(a.exchanges, exchange)
	return nil
}

func wait(t *testing.T, p *Pending) (model.Message, error) {
	t.Helper()
	select {
	case <-p.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("reply did not finish")
	}
	return p.Wait(context.Background())
}

func persisted(t *testing.T, st store.Store) ([]model.Message, bool) {
	t.Helper()
	raw, ok, err := st.Get(context.Background(), testKey)
	require.NoError(t, err)
	if !ok {
		return nil, false
	}
	var messages []model.Message
	require.NoError(t, json.Unmarshal([]byte(raw), &messages))
	return messages, true
}

func TestSubmitRoundTrip(t *testing.T) {
	st := store.NewMemoryStore()
	o := newGatedOracle("pong", nil)
	s := New(context.Background(), testKey, st, o)
	defer s.Close()

	p, err := s.Submit("  ping  ")
	require.NoError(t, err)

	state := s.Snapshot()
	require.Len(t, state.Messages, 1)
	assert.Equal(t, "ping", state.Messages[0].Content)
	assert.Equal(t, model.SenderUser, state.Messages[0].Sender)
	assert.True(t, state.IsLoading)
	assert.Equal(t, []string{"  ping  "}, state.InputHistory)
	assert.Equal(t, -1, state.HistoryCursor)

	_, stored := persisted(t, st)
	assert.False(t, stored, "nothing is persisted while the reply is outstanding")

	o.open()
	reply, err := wait(t, p)
	require.NoError(t, err)
	assert.Equal(t, "pong", reply.Content)
	assert.Equal(t, model.SenderBot, reply.Sender)

	state = s.Snapshot()
	assert.False(t, state.IsLoading)
	require.Len(t, state.Messages, 2)
	assert.Equal(t, model.SenderUser, state.Messages[0].Sender)
	assert.Equal(t, model.SenderBot, state.Messages[1].Sender)
	assert.False(t, state.Messages[1].Timestamp.Before(state.Messages[0].Timestamp))
	assert.Less(t, state.Messages[0].ID, state.Messages[1].ID)
	assert.Equal(t, []string{"ping"}, o.inputs)

	messages, ok := persisted(t, st)
	require.True(t, ok)
	require.Len(t, messages, 2)
	assert.Equal(t, "ping", messages[0].Content)
	assert.Equal(t, "pong", messages[1].Content)
}

func TestSubmitGreeting(t *testing.T) {
	s := New(context.Background(), testKey, store.NewMemoryStore(), instantOracle())
	defer s.Close()

	p, err := s.Submit("hello")
	require.NoError(t, err)
	reply, err := wait(t, p)
	require.NoError(t, err)
	assert.Equal(t, "Hello! I'm ZeroCode AI Assistant. How can I help you today?", reply.Content)
}

func TestSubmitFallbackTemplate(t *testing.T) {
	s := New(context.Background(), testKey, store.NewMemoryStore(), instantOracle())
	defer s.Close()

	p, err := s.Submit("xyz123")
	require.NoError(t, err)
	reply, err := wait(t, p)
	require.NoError(t, err)

	suffix := oracle.FallbackSuffix("xyz123")
	require.True(t, strings.HasSuffix(reply.Content, suffix))
	assert.Contains(t, oracle.DefaultAcknowledgements, strings.TrimSuffix(reply.Content, suffix))
}

func TestSubmitRejections(t *testing.T) {
	o := newGatedOracle("pong", nil)
	s := New(context.Background(), testKey, store.NewMemoryStore(), o)
	defer s.Close()

	for _, blank := range []string{"", "   ", "\n\t"} {
		_, err := s.Submit(blank)
		assert.ErrorIs(t, err, ErrEmptyMessage)
	}
	assert.Equal(t, State{Messages: []model.Message{}, InputHistory: []string{}, HistoryCursor: -1}, s.Snapshot())

	p, err := s.Submit("first")
	require.NoError(t, err)
	s.Recall(Older)
	before := s.Snapshot()

	_, err = s.Submit("second")
	assert.ErrorIs(t, err, ErrReplyPending)
	assert.Equal(t, before, s.Snapshot())

	o.open()
	_, err = wait(t, p)
	require.NoError(t, err)
}

func TestSubmitOracleFailure(t *testing.T) {
	st := store.NewMemoryStore()
	boom := errors.New("boom")
	o := newGatedOracle("", boom)
	o.open()
	s := New(context.Background(), testKey, st, o)
	defer s.Close()

	p, err := s.Submit("hi")
	require.NoError(t, err)
	reply, err := wait(t, p)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, FailureReply, reply.Content)

	state := s.Snapshot()
	assert.False(t, state.IsLoading)
	require.Len(t, state.Messages, 2)
	assert.Equal(t, "hi", state.Messages[0].Content)
	assert.Equal(t, FailureReply, state.Messages[1].Content)

	stored, ok := persisted(t, st)
	require.True(t, ok)
	assert.Len(t, stored, 2)

	// The session stays usable.
	_, err = s.Submit("again")
	assert.NoError(t, err)
}

func TestSubmitReplyTimeout(t *testing.T) {
	o := newGatedOracle("never", nil)
	s := New(context.Background(), testKey, store.NewMemoryStore(), o, WithReplyTimeout(20*time.Millisecond))
	defer s.Close()

	p, err := s.Submit("slow")
	require.NoError(t, err)
	reply, err := wait(t, p)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, FailureReply, reply.Content)
	assert.False(t, s.IsLoading())
}

func TestClear(t *testing.T) {
	st := store.NewMemoryStore()
	s := New(context.Background(), testKey, st, instantOracle())

	p, err := s.Submit("hello")
	require.NoError(t, err)
	_, err = wait(t, p)
	require.NoError(t, err)
	_, ok := persisted(t, st)
	require.True(t, ok)

	require.NoError(t, s.Clear())
	state := s.Snapshot()
	assert.Empty(t, state.Messages)
	assert.Equal(t, []string{"hello"}, state.InputHistory, "recall buffer survives a clear")
	_, ok = persisted(t, st)
	assert.False(t, ok)
	s.Close()

	reloaded := New(context.Background(), testKey, st, instantOracle())
	defer reloaded.Close()
	assert.Empty(t, reloaded.Messages())
}

func TestClearDropsOutstandingReply(t *testing.T) {
	st := store.NewMemoryStore()
	o := newGatedOracle("late", nil)
	s := New(context.Background(), testKey, st, o)
	defer s.Close()

	p, err := s.Submit("question")
	require.NoError(t, err)
	require.NoError(t, s.Clear())
	assert.True(t, s.IsLoading())

	o.open()
	_, err = wait(t, p)
	assert.ErrorIs(t, err, ErrReplyDropped)
	assert.False(t, s.IsLoading())
	assert.Empty(t, s.Messages())
	_, ok := persisted(t, st)
	assert.False(t, ok)
}

func TestCloseCancelsOutstandingReply(t *testing.T) {
	st := store.NewMemoryStore()
	o := newGatedOracle("late", nil)
	s := New(context.Background(), testKey, st, o)

	p, err := s.Submit("question")
	require.NoError(t, err)
	s.Close()

	_, err = wait(t, p)
	assert.ErrorIs(t, err, ErrReplyDropped)
	_, ok := persisted(t, st)
	assert.False(t, ok)

	_, err = s.Submit("after close")
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, s.Clear(), ErrClosed)
}

func TestHydrateRoundTrip(t *testing.T) {
	st := store.NewMemoryStore()
	base := time.Date(2024, 5, 1, 10, 0, 0, 123456789, time.UTC)
	tick := 0
	clock := func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Second)
	}

	s := New(context.Background(), testKey, st, instantOracle(), WithClock(clock))
	require.NoError(t, s.Clear())
	p, err := s.Submit("hi")
	require.NoError(t, err)
	_, err = wait(t, p)
	require.NoError(t, err)
	original := s.Messages()
	s.Close()

	reloaded := New(context.Background(), testKey, st, instantOracle())
	defer reloaded.Close()
	got := reloaded.Snapshot()

	require.Len(t, got.Messages, 2)
	for i := range original {
		assert.Equal(t, original[i].ID, got.Messages[i].ID)
		assert.Equal(t, original[i].Content, got.Messages[i].Content)
		assert.Equal(t, original[i].Sender, got.Messages[i].Sender)
		assert.True(t, original[i].Timestamp.Equal(got.Messages[i].Timestamp))
	}
	assert.False(t, got.IsLoading)
	assert.Equal(t, -1, got.HistoryCursor)
	assert.Empty(t, got.InputHistory)
}

func TestHydrateMalformed(t *testing.T) {
	cases := map[string]string{
		"garbage":     "{not json",
		"wrong shape": `{"messages": 1}`,
		"empty":       "",
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			st := store.NewMemoryStore()
			require.NoError(t, st.Set(context.Background(), testKey, raw))

			s := New(context.Background(), testKey, st, instantOracle())
			defer s.Close()
			assert.Empty(t, s.Messages())

			p, err := s.Submit("hello")
			require.NoError(t, err)
			_, err = wait(t, p)
			require.NoError(t, err)
			assert.Len(t, s.Messages(), 2)
		})
	}
}

func TestHydrateStoreError(t *testing.T) {
	s := New(context.Background(), testKey, failingStore{}, instantOracle())
	defer s.Close()
	assert.Empty(t, s.Messages())
}

type failingStore struct{}

func (failingStore) Get(context.Context, string) (string, bool, error) {
	return "", false, errors.New("unavailable")
}
func (failingStore) Set(context.Context, string, string) error { return errors.New("unavailable") }
func (failingStore) Delete(context.Context, string) error      { return errors.New("unavailable") }

func TestPersistFailureKeepsMemoryState(t *testing.T) {
	s := New(context.Background(), testKey, failingStore{}, instantOracle())
	defer s.Close()

	p, err := s.Submit("hello")
	require.NoError(t, err)
	_, err = wait(t, p)
	require.NoError(t, err)
	assert.Len(t, s.Messages(), 2)
	assert.Error(t, s.Clear())
	assert.Empty(t, s.Messages())
}

func TestMaxMessages(t *testing.T) {
	st := store.NewMemoryStore()
	s := New(context.Background(), testKey, st, instantOracle(), WithMaxMessages(3))
	defer s.Close()

	for i := 0; i < 3; i++ {
		p, err := s.Submit(fmt.Sprintf("msg %d", i))
		require.NoError(t, err)
		_, err = wait(t, p)
		require.NoError(t, err)
	}
	messages := s.Messages()
	require.Len(t, messages, 2, "a cut exchange is dropped whole")
	assert.Equal(t, "msg 2", messages[0].Content)
	assert.Equal(t, model.SenderUser, messages[0].Sender)
	assert.Equal(t, model.SenderBot, messages[1].Sender)

	stored, _ := persisted(t, st)
	require.Len(t, stored, 2)
	assert.Equal(t, model.SenderUser, stored[0].Sender)
}

func TestMaxMessagesHydrateKeepsWholeExchanges(t *testing.T) {
	st := store.NewMemoryStore()
	full := New(context.Background(), testKey, st, instantOracle())
	submitAll(t, full, "one", "two", "three")
	full.Close()

	wantLen := map[int]int{1: 2, 2: 2, 3: 2, 4: 4, 5: 4, 6: 6}
	for limit, want := range wantLen {
		s := New(context.Background(), testKey, st, instantOracle(), WithMaxMessages(limit))
		messages := s.Messages()
		s.Close()

		require.Len(t, messages, want, "limit %d", limit)
		assert.Equal(t, model.SenderUser, messages[0].Sender, "limit %d", limit)
		assert.Equal(t, model.SenderBot, messages[len(messages)-1].Sender, "limit %d", limit)
	}
}

func TestArchiverReceivesExchange(t *testing.T) {
	archive := &recordingArchiver{}
	s := New(context.Background(), testKey, store.NewMemoryStore(), instantOracle(), WithArchiver("user-1", archive))
	defer s.Close()

	p, err := s.Submit("thanks")
	require.NoError(t, err)
	_, err = wait(t, p)
	require.NoError(t, err)

	archive.mu.Lock()
	defer archive.mu.Unlock()
	assert.Equal(t, "user-1", archive.owner)
	require.Len(t, archive.exchanges, 1)
	require.Len(t, archive.exchanges[0], 2)
	assert.Equal(t, "thanks", archive.exchanges[0][0].Content)
	assert.Equal(t, model.SenderBot, archive.exchanges[0][1].Sender)
}

func TestSubscribe(t *testing.T) {
	o := newGatedOracle("pong", nil)
	s := New(context.Background(), testKey, store.NewMemoryStore(), o)

	updates, unsubscribe := s.Subscribe()
	defer unsubscribe()

	initial := <-updates
	assert.Empty(t, initial.Messages)

	p, err := s.Submit("ping")
	require.NoError(t, err)
	loading := <-updates
	assert.True(t, loading.IsLoading)

	o.open()
	_, err = wait(t, p)
	require.NoError(t, err)
	done := <-updates
	assert.False(t, done.IsLoading)
	assert.Len(t, done.Messages, 2)

	s.Close()
	_, ok := <-updates
	assert.False(t, ok, "channel closes with the session")
}
