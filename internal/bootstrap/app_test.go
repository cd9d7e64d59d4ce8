package bootstrap

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"zerocode-chat/internal/config"
	"zerocode-chat/internal/oracle"
	"zerocode-chat/internal/store"
)

func TestNewOracle(t *testing.T) {
	cfg := config.Default()

	o, err := NewOracle(cfg)
	require.NoError(t, err)
	assert.IsType(t, &oracle.KeywordOracle{}, o)

	cfg.Session.Oracle = "llm"
	cfg.LLM.BaseURL = "http://127.0.0.1:1"
	cfg.LLM.APIKey = "k"
	cfg.LLM.Model = "m"
	o, err = NewOracle(cfg)
	require.NoError(t, err)
	assert.IsType(t, &oracle.LLMOracle{}, o)

	cfg.Session.Oracle = "psychic"
	_, err = NewOracle(cfg)
	assert.Error(t, err)
}

func TestNewWithConfigInMemory(t *testing.T) {
	cfg := config.Default()
	cfg.Auth.SimulatedLatencyMS = 0

	a, err := NewWithConfig(context.Background(), cfg)
	require.NoError(t, err)
	defer func() { assert.NoError(t, a.Close()) }()

	assert.IsType(t, &store.MemoryStore{}, a.Store)
	assert.Nil(t, a.Redis)
	assert.Nil(t, a.MQConn)
	assert.Nil(t, a.ArchiveWorker)
	require.NoError(t, a.Store.Ping(context.Background()))

	state, err := a.ChatService.State("someone")
	require.NoError(t, err)
	assert.Empty(t, state.Messages)
}
