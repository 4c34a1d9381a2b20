// Package queue defines message payloads exchanged over the message broker.
package queue

// UserRegisteredEvent is published when a new account is created, either via
// the register form or through just-in-time provisioning of an external
// identity.  Downstream consumers (welcome mail, analytics) act on it without
// querying the primary database.
type UserRegisteredEvent struct {
	UserID       uint64 `json:"user_id"`
	Username     string `json:"username"`
	Email        string `json:"email"`
	RegisteredAt string `json:"registered_at"`
}

// UserSignedInEvent is published once per successful sign-in, regardless of
// the surface (authorization-code grant or cookie session).
type UserSignedInEvent struct {
	UserID     uint64 `json:"user_id"`
	Method     string `json:"method"` // "oauth2" | "cookie"
	SignedInAt string `json:"signed_in_at"`
}

// SessionsInvalidatedEvent is published when a user's invalidation watermark
// is bumped, revoking every outstanding credential ("logout everywhere").
type SessionsInvalidatedEvent struct {
	UserID        uint64 `json:"user_id"`
	InvalidatedAt string `json:"invalidated_at"`
}
