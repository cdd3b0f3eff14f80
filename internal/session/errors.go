package session

import "errors"

var (
	// ErrTestNotFound: the catalog has no definition for the requested test.
	ErrTestNotFound = errors.New("test not found")
	// ErrEmptyTest: the definition exists but has zero questions. Navigation
	// and scoring are undefined, so the engine refuses to run it.
	ErrEmptyTest = errors.New("test has no questions")
	// ErrStoreUnavailable: a backing service failed during load. Surfaced
	// synchronously; the caller decides whether to retry the whole load.
	ErrStoreUnavailable = errors.New("store unavailable")
	// ErrInvalidChoice: choice index outside 0..3. A caller bug, rejected
	// rather than clamped.
	ErrInvalidChoice = errors.New("choice index out of range")
	// ErrUnknownQuestion: question number not present in the loaded test.
	ErrUnknownQuestion = errors.New("unknown question number")
	// ErrNotActive: the operation needs a live (active or paused) session.
	ErrNotActive = errors.New("session not active")
	// ErrNotLoaded / ErrAlreadyLoaded guard the one-shot Load transition.
	ErrNotLoaded     = errors.New("session not loaded")
	ErrAlreadyLoaded = errors.New("session already loaded")
	// ErrResultDeferred: submission completed locally but the result sink
	// rejected the write; score recording may be delayed.
	ErrResultDeferred = errors.New("result recording deferred")
)
