package oracle

import (
	"context"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"
)

// Trigger pairs a lowercase phrase with its canned response.
type Trigger struct {
	Phrase   string
	Response string
}

// DefaultTriggers is checked in order; the first contained phrase wins.
var DefaultTriggers = []Trigger{
	{Phrase: "hello", Response: "Hello! I'm ZeroCode AI Assistant. How can I help you today?"},
	{Phrase: "hi", Response: "Hi there! Welcome to ZeroCode Chat. What would you like to talk about?"},
	{Phrase: "help", Response: "I can help you with various topics including programming, general questions, and more. What specific area would you like assistance with?"},
	{Phrase: "what can you do", Response: "I can assist with programming questions, general knowledge, problem-solving, and engaging conversations. Try asking me anything!"},
	{Phrase: "thanks", Response: "You're welcome! I'm here if you need any more help."},
	{Phrase: "bye", Response: "Goodbye! Feel free to come back anytime you need assistance."},
}

var DefaultAcknowledgements = []string{
	"That's an interesting question! Let me think about that...",
	"I understand what you're asking. Here's my perspective on that topic.",
	"Great question! Based on my knowledge, I can share some insights.",
	"I'd be happy to help you with that. Let me provide some information.",
	"That's a thoughtful inquiry. Here's what I know about this subject.",
	"I can definitely assist you with that. Let me break it down for you.",
	"Excellent question! I have some relevant information that might help.",
	"I appreciate you asking about this. Here's my take on the matter.",
}

const fallbackSuffix = ` Regarding "%s", I think this is a topic worth exploring further. What specific aspect would you like to know more about?`

// FallbackSuffix returns the text appended to an acknowledgement for input.
func FallbackSuffix(input string) string {
	return fmt.Sprintf(fallbackSuffix, input)
}

// KeywordOracle simulates a remote assistant with a lookup table and a random fallback.
type KeywordOracle struct {
	triggers []Trigger
	acks     []string
	minDelay time.Duration
	maxDelay time.Duration

	mu  sync.Mutex
	rng *rand.Rand
}

type KeywordOption func(*KeywordOracle)

// WithDelay sets the simulated latency range. Zero values disable the wait.
func WithDelay(minDelay, maxDelay time.Duration) KeywordOption {
	return func(o *KeywordOracle) {
		if minDelay < 0 {
			minDelay = 0
		}
		if maxDelay < minDelay {
			maxDelay = minDelay
		}
		o.minDelay, o.maxDelay = minDelay, maxDelay
	}
}

func WithRand(rng *rand.Rand) KeywordOption {
	return func(o *KeywordOracle) {
		o.rng = rng
	}
}

func NewKeywordOracle(opts ...KeywordOption) *KeywordOracle {
	o := &KeywordOracle{
		triggers: DefaultTriggers,
		acks:     DefaultAcknowledgements,
		minDelay: time.Second,
		maxDelay: 3 * time.Second,
		rng:      rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

func (o *KeywordOracle) Reply(ctx context.Context, input string) (string, error) {
	if err := sleepWithContext(ctx, o.delay()); err != nil {
		return "", err
	}

	lower := strings.ToLower(input)
	for _, t := range o.triggers {
		if strings.Contains(lower, t.Phrase) {
			return t.Response, nil
		}
	}

	o.mu.Lock()
	ack := o.acks[o.rng.Intn(len(o.acks))]
	o.mu.Unlock()
	return ack + FallbackSuffix(input), nil
}

func (o *KeywordOracle) delay() time.Duration {
	span := o.maxDelay - o.minDelay
	if span <= 0 {
		return o.minDelay
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.minDelay + time.Duration(o.rng.Int63n(int64(span)+1))
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
