package stt

import "github.com/lumenforge/tutorcore/pkg/types"

// EventKind enumerates the STT event stream values the orchestrator (L)
// consumes, mirroring the event set every STT provider must emit.
type EventKind int

const (
	// EventSpeechStarted is the barge-in signal: voice onset detected.
	// A provider must emit this within 300ms of voice onset.
	EventSpeechStarted EventKind = iota

	// EventPartialTranscript carries an interim, non-authoritative guess.
	EventPartialTranscript

	// EventFinalTranscript carries an authoritative, committed transcript.
	EventFinalTranscript

	// EventSilenceTimeout fires when no speech is observed for the
	// provider's configured idle window.
	EventSilenceTimeout

	// EventError reports a provider-side failure; the session stays alive.
	EventError
)

// Event is a single value from an STT session's event stream.
type Event struct {
	Kind       EventKind
	Transcript types.Transcript // populated for EventPartialTranscript / EventFinalTranscript
	Err        error            // populated for EventError
}
