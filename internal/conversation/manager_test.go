package conversation

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"zerocode-chat/internal/store"
)

func TestManagerSeparatesOwners(t *testing.T) {
	st := store.NewMemoryStore()
	archive := &recordingArchiver{}
	m := NewManager(context.Background(), testKey, st, instantOracle(), archive)
	defer m.Close()

	alice := m.Get("alice")
	assert.Same(t, alice, m.Get("alice"))
	bob := m.Get("bob")
	assert.NotSame(t, alice, bob)

	submitAll(t, alice, "hello")
	assert.Len(t, alice.Messages(), 2)
	assert.Empty(t, bob.Messages())

	_, ok, err := st.Get(context.Background(), store.Key(testKey, "alice"))
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "alice", archive.owner)
}

func TestManagerReleaseRehydrates(t *testing.T) {
	st := store.NewMemoryStore()
	m := NewManager(context.Background(), testKey, st, instantOracle(), nil)
	defer m.Close()

	first := m.Get("carol")
	submitAll(t, first, "hi")
	m.Release("carol")

	_, err := first.Submit("closed")
	assert.ErrorIs(t, err, ErrClosed)

	second := m.Get("carol")
	assert.NotSame(t, first, second)
	assert.Len(t, second.Messages(), 2)
}

func TestManagerReleaseDropsPendingReply(t *testing.T) {
	st := store.NewMemoryStore()
	o := newGatedOracle("late", nil)
	m := NewManager(context.Background(), testKey, st, o, nil)
	defer m.Close()

	first := m.Get("dave")
	p, err := first.Submit("question")
	require.NoError(t, err)

	m.Release("dave")
	second := m.Get("dave")
	assert.NotSame(t, first, second)

	o.open()
	_, err = wait(t, p)
	assert.ErrorIs(t, err, ErrReplyDropped)

	assert.Empty(t, second.Messages())
	_, ok, err := st.Get(context.Background(), store.Key(testKey, "dave"))
	require.NoError(t, err)
	assert.False(t, ok, "the released session must not write behind the new one")
}
