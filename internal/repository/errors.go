// Package repository implements the credential store on top of MySQL and the
// single-use code ledger on top of Redis.  Sentinel errors defined here let
// handlers distinguish failure scenarios without string matching: duplicate
// registrations map to 400-class responses, while missing users surface as
// generic authentication failures.
package repository

import "errors"

// ErrUsernameExists is returned when registration collides with an existing
// username.  Uniqueness is enforced by the database index, not by a
// check-then-insert in application code, so two concurrent registrations
// cannot both succeed.
var ErrUsernameExists = errors.New("username already exists")

// ErrEmailExists is the email counterpart of ErrUsernameExists.
var ErrEmailExists = errors.New("email already exists")

// ErrUserNotFound is returned when a credential references a user id or
// email that no longer resolves to a row.
var ErrUserNotFound = errors.New("user not found")
