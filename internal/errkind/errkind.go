// Package errkind classifies errors flowing through the tutoring runtime into
// a small fixed set of kinds so that callers at every layer — worker, chat
// service, orchestrator, HTTP wrapper — can apply a uniform retry and
// surfacing policy without inspecting error strings.
package errkind

import (
	"errors"
	"fmt"
)

// Kind is one of a fixed set of error classifications. Every error that
// crosses a subsystem boundary (DRS, cache, broker, vector index, providers)
// should be classifiable into exactly one Kind.
type Kind string

const (
	// InvalidInput marks malformed payloads, oversize uploads, or unsupported
	// file types. Non-retryable; returned to the caller with a descriptive
	// message.
	InvalidInput Kind = "invalid_input"

	// NotFound marks a reference to an unknown course, session, or quiz.
	// Non-retryable.
	NotFound Kind = "not_found"

	// Conflict marks a state violation, such as ending an already-ended
	// session. Non-retryable.
	Conflict Kind = "conflict"

	// Transient marks network timeouts, cache miss loops, LLM 5xx responses,
	// and broker hiccups. Retried with backoff by the caller.
	Transient Kind = "transient"

	// ResourceExhausted marks a memory cap or provider quota breach.
	// Retryable with backoff; a worker process may self-exit after raising it.
	ResourceExhausted Kind = "resource_exhausted"

	// ProviderPermanent marks a 4xx from a provider that indicates a coding or
	// configuration bug. Non-retryable; logged with full context; the owning
	// task is dead-lettered.
	ProviderPermanent Kind = "provider_permanent"

	// Degraded marks a component being down (reranker, cache, BM25 index).
	// Never surfaced to the end user as an error; logged once and the
	// feature degrades along its documented ladder.
	Degraded Kind = "degraded"

	// GarbageOutput marks LLM output that failed the sanity-check heuristics
	// in [internal/guard]. The chat service downgrades and retries once; the
	// orchestrator falls back to an apology.
	GarbageOutput Kind = "garbage_output"
)

// Error wraps an underlying cause with a [Kind] and an optional retry-after
// hint, so that every layer can branch on Kind without parsing messages.
type Error struct {
	Kind       Kind
	Message    string
	RetryAfter int // seconds; zero means no specific hint
	Cause      error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// New creates an [Error] of the given kind with no underlying cause.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap creates an [Error] of the given kind wrapping cause.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// WithRetryAfter sets the retry-after hint, in seconds, and returns e for
// chaining.
func (e *Error) WithRetryAfter(seconds int) *Error {
	e.RetryAfter = seconds
	return e
}

// Of returns the [Kind] of err if it is (or wraps) an [*Error]; otherwise it
// returns Transient, the conservative default for unclassified errors
// originating from an external dependency.
func Of(err error) Kind {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Transient
}

// Retryable reports whether an error of this kind should be retried by the
// caller (with backoff), per the propagation policy.
func (k Kind) Retryable() bool {
	switch k {
	case Transient, ResourceExhausted:
		return true
	default:
		return false
	}
}
