// Package stt defines the Provider interface for Speech-to-Text backends.
//
// An STT provider wraps a real-time transcription service (local Whisper
// inference, Deepgram, or Google Speech-to-Text) and exposes a uniform
// streaming interface. The central abstraction is SessionHandle: once
// opened, a session accepts raw PCM audio frames and emits a single ordered
// [Event] stream carrying speech-start, partial, final, silence-timeout, and
// error notifications — the exact event set the teaching orchestrator (L)
// drives its state machine from.
//
// Implementations must be safe for concurrent use.
package stt

import (
	"context"
)

// StreamConfig describes the audio format and recognition hints for a new
// STT session.
type StreamConfig struct {
	// SampleRate is the audio sample rate in Hz (16000 is the voice-session default).
	SampleRate int

	// Channels is the number of audio channels. 1 = mono, the only supported layout.
	Channels int

	// Language is the BCP-47 language tag for recognition (e.g., "en-US").
	// An empty string lets the provider auto-detect the language, if supported.
	Language string
}

// SessionHandle represents an open STT streaming session. It is an
// interface so that test code can provide synthetic implementations without
// a live provider connection.
//
// Callers must call Close when the session is no longer needed. All methods
// must be safe for concurrent use.
type SessionHandle interface {
	// SendAudio delivers a chunk of raw PCM audio bytes for transcription.
	// Calling SendAudio after Close returns an error.
	SendAudio(chunk []byte) error

	// Events returns the ordered event stream for this session. The channel
	// is closed when the session ends. A conforming provider emits
	// [EventSpeechStarted] within 300ms of voice onset.
	Events() <-chan Event

	// Close terminates the session, flushes any pending audio, and releases
	// all associated resources. After Close returns, Events is closed.
	// Calling Close more than once is safe and returns nil.
	Close() error
}

// Provider is the abstraction over any STT backend.
//
// Implementations must be safe for concurrent use. Multiple sessions may be
// open simultaneously, one per active voice session.
type Provider interface {
	// StartStream opens a new streaming transcription session with the
	// given audio format and recognition configuration. The returned
	// SessionHandle is ready to accept audio immediately.
	//
	// Returns an error if the provider cannot establish the session.
	// The caller owns the SessionHandle and must call Close when done.
	StartStream(ctx context.Context, cfg StreamConfig) (SessionHandle, error)
}
