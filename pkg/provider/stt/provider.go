// Package stt defines the Provider interface for speech-recognition backends.
//
// A recognition engine delivers a stream of (transcript, confidence, isFinal)
// results and eventually ends, either normally (engine session limit,
// silence) or with a classified error. Continuous listening is built on top
// of this by restarting the engine whenever a stream ends while the listener
// is still active; see package listen.
//
// Implementations must be safe for concurrent use.
package stt

import (
	"context"
	"errors"
	"fmt"
)

// Result is a single recognition hypothesis.
type Result struct {
	// Transcript is the recognised text, unnormalised.
	Transcript string

	// Confidence is the engine's certainty in [0.0, 1.0]. Engines that do not
	// report confidence use 1.0.
	Confidence float64

	// IsFinal is true when the engine has committed to this hypothesis. Interim
	// results may still change.
	IsFinal bool
}

// ErrorKind classifies why a recognition stream failed.
type ErrorKind string

// Error kinds reported by recognition engines.
const (
	KindNetwork           ErrorKind = "network"
	KindNoSpeech          ErrorKind = "no-speech"
	KindAborted           ErrorKind = "aborted"
	KindAudioCapture      ErrorKind = "audio-capture"
	KindNotAllowed        ErrorKind = "not-allowed"
	KindServiceNotAllowed ErrorKind = "service-not-allowed"
	KindSourceClosed      ErrorKind = "source-closed"
	KindUnknown           ErrorKind = "unknown"
)

// ParseErrorKind maps an engine error string to an ErrorKind. Unrecognised
// values map to KindUnknown, which is treated as transient.
func ParseErrorKind(s string) ErrorKind {
	switch k := ErrorKind(s); k {
	case KindNetwork, KindNoSpeech, KindAborted, KindAudioCapture,
		KindNotAllowed, KindServiceNotAllowed, KindSourceClosed:
		return k
	default:
		return KindUnknown
	}
}

// ErrStreamClosed is returned when starting a stream on a provider whose
// input source has gone away.
var ErrStreamClosed = errors.New("stt: input source closed")

// RecognitionError is the error reported by a stream that ended abnormally.
type RecognitionError struct {
	Kind ErrorKind
	Err  error
}

// Error implements error.
func (e *RecognitionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("stt: recognition %s: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("stt: recognition %s", e.Kind)
}

// Unwrap returns the underlying cause.
func (e *RecognitionError) Unwrap() error { return e.Err }

// Fatal reports whether retrying cannot help: permission denials and a
// vanished input source.
func (e *RecognitionError) Fatal() bool {
	switch e.Kind {
	case KindNotAllowed, KindServiceNotAllowed, KindSourceClosed:
		return true
	default:
		return false
	}
}

// IsFatal reports whether err is a fatal RecognitionError.
func IsFatal(err error) bool {
	var re *RecognitionError
	return errors.As(err, &re) && re.Fatal()
}

// StreamConfig carries recognition hints for a new stream.
type StreamConfig struct {
	// Language is the BCP-47 language tag, e.g. "en-US". Empty lets the
	// engine decide.
	Language string

	// InterimResults requests non-final hypotheses in addition to finals.
	InterimResults bool
}

// Stream is one run of a recognition engine.
//
// Results is closed when the run ends. After that, Err reports why: nil for a
// normal end, a *RecognitionError otherwise. Close stops the run early; it is
// safe to call more than once and after the run has ended.
type Stream interface {
	Results() <-chan Result
	Err() error
	Close() error
}

// Provider starts recognition streams.
type Provider interface {
	// StartStream begins a new recognition run. The caller owns the Stream and
	// must Close it.
	StartStream(ctx context.Context, cfg StreamConfig) (Stream, error)
}
