// Package canned provides an offline llm.Provider that answers by keyword.
//
// It needs no network, no API key, and no model weights, which makes it the
// default generator when no real backend is configured. Replies are picked
// from fixed pools with an injectable random source and clock so tests stay
// deterministic.
package canned

import (
	"context"
	"math/rand/v2"
	"strings"
	"sync"
	"time"

	"github.com/MrWong99/maxassist/pkg/provider/llm"
)

var jokes = []string{
	"Why don't scientists trust atoms? Because they make up everything!",
	"What did the ocean say to the beach? Nothing, it just waved.",
	"I told my wife she was drawing her eyebrows too high. She looked surprised.",
	"Why don't eggs tell jokes? They'd crack each other up.",
	"What's the best thing about Switzerland? I don't know, but the flag is a big plus.",
}

var general = []string{
	"I understand you're interested in this topic. While I'm constantly learning, I'd be happy to help with what I know. Could you provide more details about what you're looking for?",
	"That's an interesting question. I'm analyzing multiple sources to give you the best answer I can. Could you elaborate a bit more?",
	"I'm processing your request using my trained language models. To give you the most helpful response, could you tell me more about what you're trying to accomplish?",
	"I'm here to assist with that. My training allows me to understand complex queries, but additional context would help me provide a more targeted response.",
}

// Provider implements llm.Provider with keyword-matched canned replies.
// It is safe for concurrent use.
type Provider struct {
	name string

	mu  sync.Mutex
	rng *rand.Rand
	now func() time.Time
}

// Option is a functional option for Provider.
type Option func(*Provider)

// WithRand sets the random source used to pick from reply pools.
func WithRand(r *rand.Rand) Option {
	return func(p *Provider) { p.rng = r }
}

// WithClock sets the clock used for time and date replies.
func WithClock(now func() time.Time) Option {
	return func(p *Provider) { p.now = now }
}

// WithName sets the assistant name used in self-introductions. Default "MAX".
func WithName(name string) Option {
	return func(p *Provider) { p.name = name }
}

// New creates a canned Provider.
func New(opts ...Option) *Provider {
	p := &Provider{
		name: "MAX",
		rng:  rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), 0)),
		now:  time.Now,
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Complete implements llm.Provider. The reply is chosen from the last user
// message; MaxTokens is ignored because truncation is the caller's concern.
func (p *Provider) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var prompt string
	for i := len(req.Messages) - 1; i >= 0; i-- {
		if req.Messages[i].Role == llm.RoleUser {
			prompt = strings.ToLower(req.Messages[i].Content)
			break
		}
	}

	text := p.reply(prompt)
	words := len(strings.Fields(text))
	return &llm.CompletionResponse{
		Content: text,
		Usage: llm.Usage{
			PromptTokens:     len(strings.Fields(prompt)),
			CompletionTokens: words,
			TotalTokens:      len(strings.Fields(prompt)) + words,
		},
	}, nil
}

func (p *Provider) reply(prompt string) string {
	switch {
	case strings.Contains(prompt, "weather"):
		return "Based on your location, the weather today is expected to be partly cloudy with a high of 72°F. There's a 20% chance of rain in the evening."
	case strings.Contains(prompt, "hello") || strings.Contains(prompt, "hi "):
		return "Hello! I'm " + p.name + ", your personal AI assistant powered by advanced language models. How can I assist you today?"
	case strings.Contains(prompt, "time"):
		return "According to your system, the current time is " + p.now().Format("3:04:05 PM") + "."
	case strings.Contains(prompt, "date"):
		return "Today is " + p.now().Format("Monday, January 2, 2006") + "."
	case strings.Contains(prompt, "joke"):
		return p.pick(jokes)
	case strings.Contains(prompt, "name"):
		return "I'm " + p.name + ", an advanced AI assistant. I'm designed to help you with information, tasks, and conversations."
	case strings.Contains(prompt, "thank"):
		return "You're welcome! I'm here to help whenever you need me. Just ask and I'll do my best to assist you."
	case strings.Contains(prompt, "music") || strings.Contains(prompt, "song"):
		return "I'd love to play some music for you. In a full implementation, I would connect to your favorite music services. What genre would you like to listen to?"
	case strings.Contains(prompt, "translate"):
		return "I can help translate between many languages. Just tell me what you'd like translated and to which language."
	default:
		return p.pick(general)
	}
}

func (p *Provider) pick(pool []string) string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return pool[p.rng.IntN(len(pool))]
}

// Capabilities implements llm.Provider.
func (p *Provider) Capabilities() llm.Capabilities {
	return llm.Capabilities{ContextWindow: 4_096, MaxOutputTokens: 256}
}

// Ensure Provider implements llm.Provider at compile time.
var _ llm.Provider = (*Provider)(nil)
