package model

import "time"

// User represents an application account as stored in the `users` table.
// Each field corresponds to a column.  Handlers define separate response
// types with JSON tags; this struct is used by the repository layer only.
//
// Fields:
//
//	ID           – primary key identifier of the user.
//	Username     – unique display/login name.
//	Email        – unique email address, stored lower-cased.
//	PasswordHash – bcrypt hashed password; never leaves the server.
//	InvalidateAt – watermark timestamp: any credential whose issued-at time
//	               is not after this value is rejected.  Bumping it to "now"
//	               revokes every outstanding token and session at once.
//	CreatedAt    – timestamp of creation.
//	UpdatedAt    – timestamp of last update.
//
// The Upstream* fields cache tokens obtained from an external identity
// provider so the server can act on the user's behalf without interactive
// login.  They are null for purely local accounts.
type User struct {
	ID           uint64    // users.id
	Username     string    // users.username
	Email        string    // users.email
	PasswordHash string    // users.password_hash
	InvalidateAt time.Time // users.invalidate_at
	CreatedAt    time.Time // users.created_at
	UpdatedAt    time.Time // users.updated_at

	UpstreamAccess  *string    // users.upstream_access_token (nullable)
	UpstreamRefresh *string    // users.upstream_refresh_token (nullable)
	UpstreamRenewAt *time.Time // users.upstream_renew_at (nullable)
}
