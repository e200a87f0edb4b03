package entity

import "errors"

// Authentication and authorization failures. Surfaced to callers as
// access-denied responses; never retried.
var (
	ErrTokenExpired     = errors.New("token expired")
	ErrTokenMalformed   = errors.New("token malformed")
	ErrTokenUnsupported = errors.New("token signature scheme unsupported")
	ErrForbidden        = errors.New("forbidden")
)

// Invite consumption failures. Exhaustion is terminal for the request:
// a retry after genuine exhaustion must fail again, not loop.
var (
	ErrInviteNotFound  = errors.New("invite code not found")
	ErrInviteInactive  = errors.New("invite code inactive")
	ErrInviteExpired   = errors.New("invite code expired")
	ErrInviteExhausted = errors.New("invite code exhausted")
)

// Store failures. Unavailable is retried once with backoff by the calling
// service; Conflict and NotFound are terminal.
var (
	ErrNotFound    = errors.New("not found")
	ErrUnavailable = errors.New("store unavailable")
	ErrConflict    = errors.New("conflict")
)
