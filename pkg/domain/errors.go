package domain

import "errors"

// Failure taxonomy shared across services. Handlers map these to HTTP
// statuses with errors.Is; services wrap underlying causes with %w so the
// original message survives to the response envelope.
var (
	// ErrUnsupportedFormat rejects a file extension before any I/O happens.
	ErrUnsupportedFormat = errors.New("unsupported file format")

	// ErrExtraction marks a document that could not be parsed. The upload is
	// aborted with no partial state.
	ErrExtraction = errors.New("document extraction failed")

	// ErrStoreUnavailable distinguishes "retrieval subsystem down" from
	// "no matches found". It is returned when the embedding provider or the
	// vector store is unconfigured or unreachable.
	ErrStoreUnavailable = errors.New("vector store unavailable")

	// ErrProvider marks a non-success response from a remote model provider.
	ErrProvider = errors.New("provider request failed")

	// ErrSessionNotFound covers both "never existed" and "expired"; the
	// session store cannot tell them apart once the TTL has elapsed.
	ErrSessionNotFound = errors.New("session not found or expired")

	// ErrNotFound is the generic absent-record error for ledger and
	// history lookups.
	ErrNotFound = errors.New("not found")
)
