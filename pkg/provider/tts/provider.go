// Package tts defines the Provider interface for text-to-speech backends.
//
// Speech output is a side effect of the assistant: a reply is complete once
// its text exists, and synthesis only decorates it. Providers therefore
// return audio as a channel the caller may drain at its own pace, and report
// failures by closing that channel early.
//
// Implementations must be safe for concurrent use.
package tts

import "context"

// Voice describes a voice offered by a provider.
type Voice struct {
	// ID is the provider-specific voice identifier.
	ID string

	// Name is the human-readable voice name.
	Name string

	// Provider identifies which TTS provider this voice belongs to.
	Provider string

	// Metadata holds provider-specific attributes (gender, accent, ...).
	Metadata map[string]string
}

// Provider is the abstraction over any TTS backend.
type Provider interface {
	// Synthesize converts text into audio. The returned channel emits encoded
	// audio chunks and is closed when synthesis finishes, fails, or ctx is
	// cancelled. The caller must drain it.
	//
	// Returns a non-nil error only if synthesis cannot start.
	Synthesize(ctx context.Context, text string, voice Voice) (<-chan []byte, error)

	// ListVoices returns the voices currently available.
	ListVoices(ctx context.Context) ([]Voice, error)
}
