package domain

import "errors"

// Error taxonomy. Callers classify with errors.Is and map onto a single
// outbound "error" event; per-participant side-effect failures are isolated
// at the call site, never propagated to siblings.
var (
	// ErrAuth: bad or missing credential. The connection is rejected before
	// any registry or session state is created.
	ErrAuth = errors.New("auth error")

	// ErrAccessDenied: actor is not a participant of the target thread or
	// session. Emitted back to the caller only, never broadcast.
	ErrAccessDenied = errors.New("access denied")

	// ErrNotFound: thread, session or meeting absent.
	ErrNotFound = errors.New("not found")

	// ErrResource: a media engine call failed. Logged and surfaced as a
	// generic signaling failure; coordinator state stays consistent.
	ErrResource = errors.New("media resource error")

	// ErrStore: a thread store call failed. The send is considered failed
	// with no partial unread or broadcast side effects.
	ErrStore = errors.New("store error")

	ErrUserIDEmpty   = errors.New("user id empty")
	ErrUserIDTooLong = errors.New("user id too long")
	ErrBadRole       = errors.New("unknown role")
)
