package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/iliyamo/web-app-template/internal/model"
	"github.com/iliyamo/web-app-template/internal/utils"
)

// UserRepo persists users.  All reads and writes go through *sql.DB with the
// caller's context so request cancellation propagates into the driver.
type UserRepo struct{ DB *sql.DB }

func NewUserRepo(db *sql.DB) *UserRepo { return &UserRepo{DB: db} }

const userColumns = "id,username,email,password_hash,invalidate_at,created_at,updated_at," +
	"upstream_access_token,upstream_refresh_token,upstream_renew_at"

// Create inserts a new user and returns the stored record.  The invalidation
// watermark starts one minute in the past so that tokens issued immediately
// after registration validate.  Username/email collisions are reported via
// the unique indexes (uq_users_username, uq_users_email).
func (r *UserRepo) Create(ctx context.Context, username, email, password string, cost int) (model.User, error) {
	username = strings.TrimSpace(username)
	email = strings.ToLower(strings.TrimSpace(email))
	hash, err := utils.HashPassword(password, cost)
	if err != nil {
		return model.User{}, err
	}

	invalidateAt := time.Now().UTC().Add(-time.Minute)
	res, err := r.DB.ExecContext(ctx,
		"INSERT INTO users (username, email, password_hash, invalidate_at) VALUES (?,?,?,?)",
		username, email, hash, invalidateAt)
	if err != nil {
		if dup := classifyDuplicate(err); dup != nil {
			return model.User{}, dup
		}
		return model.User{}, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return model.User{}, err
	}
	return r.GetByID(ctx, uint64(id))
}

// GetByEmail fetches a user by normalized email.
func (r *UserRepo) GetByEmail(ctx context.Context, email string) (model.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	return r.scanOne(r.DB.QueryRowContext(ctx,
		"SELECT "+userColumns+" FROM users WHERE email=? LIMIT 1", email))
}

// GetByID fetches a user by id.
func (r *UserRepo) GetByID(ctx context.Context, id uint64) (model.User, error) {
	return r.scanOne(r.DB.QueryRowContext(ctx,
		"SELECT "+userColumns+" FROM users WHERE id=? LIMIT 1", id))
}

// UpsertFromExternalIdentity links an authenticated external identity to a
// local user record, creating one on first sign-in.  The email acts as the
// account identifier; the display name is synced into username on change.
// The operation is idempotent and runs exactly once per cookie sign-in, not
// per request.  Provisioned accounts receive a random throwaway password so
// the local login path cannot be used against them.
func (r *UserRepo) UpsertFromExternalIdentity(ctx context.Context, email, displayName string, cost int) (model.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	displayName = strings.TrimSpace(displayName)

	u, err := r.GetByEmail(ctx, email)
	if errors.Is(err, ErrUserNotFound) {
		throwaway, rndErr := utils.RandomHex(32)
		if rndErr != nil {
			return model.User{}, rndErr
		}
		created, createErr := r.Create(ctx, displayName, email, throwaway, cost)
		if createErr == nil {
			return created, nil
		}
		// A concurrent sign-in may have created the row between the read and
		// the insert; fall through to the read in that case.
		if !errors.Is(createErr, ErrEmailExists) {
			return model.User{}, createErr
		}
		u, err = r.GetByEmail(ctx, email)
	}
	if err != nil {
		return model.User{}, err
	}

	if displayName != "" && u.Username != displayName {
		if _, err := r.DB.ExecContext(ctx,
			"UPDATE users SET username=? WHERE id=?", displayName, u.ID); err != nil {
			if dup := classifyDuplicate(err); dup != nil {
				// Another account owns that name; keep the stored one.
				return u, nil
			}
			return model.User{}, err
		}
		u.Username = displayName
	}
	return u, nil
}

// BumpInvalidate moves the invalidation watermark forward to t, revoking all
// credentials issued at or before it.  GREATEST keeps the watermark
// monotonic under concurrent bumps.
func (r *UserRepo) BumpInvalidate(ctx context.Context, userID uint64, t time.Time) error {
	res, err := r.DB.ExecContext(ctx,
		"UPDATE users SET invalidate_at=GREATEST(invalidate_at, ?) WHERE id=?",
		t.UTC(), userID)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrUserNotFound
	}
	return nil
}

// SaveUpstreamTokens stores freshly refreshed provider tokens and the time
// at which the next refresh becomes due.
func (r *UserRepo) SaveUpstreamTokens(ctx context.Context, userID uint64, access, refresh string, renewAt time.Time) error {
	_, err := r.DB.ExecContext(ctx,
		"UPDATE users SET upstream_access_token=?, upstream_refresh_token=?, upstream_renew_at=? WHERE id=?",
		access, refresh, renewAt.UTC(), userID)
	return err
}

func (r *UserRepo) scanOne(row *sql.Row) (model.User, error) {
	var (
		u       model.User
		access  sql.NullString
		refresh sql.NullString
		renewAt sql.NullTime
	)
	err := row.Scan(&u.ID, &u.Username, &u.Email, &u.PasswordHash, &u.InvalidateAt,
		&u.CreatedAt, &u.UpdatedAt, &access, &refresh, &renewAt)
	if errors.Is(err, sql.ErrNoRows) {
		return model.User{}, ErrUserNotFound
	}
	if err != nil {
		return model.User{}, err
	}
	if access.Valid {
		u.UpstreamAccess = &access.String
	}
	if refresh.Valid {
		u.UpstreamRefresh = &refresh.String
	}
	if renewAt.Valid {
		t := renewAt.Time
		u.UpstreamRenewAt = &t
	}
	return u, nil
}

// classifyDuplicate maps a MySQL 1062 duplicate-key error to the sentinel
// for the violated index, or nil for unrelated errors.
func classifyDuplicate(err error) error {
	msg := strings.ToLower(err.Error())
	if !strings.Contains(msg, "1062") {
		return nil
	}
	switch {
	case strings.Contains(msg, "uq_users_username"):
		return ErrUsernameExists
	case strings.Contains(msg, "uq_users_email"):
		return ErrEmailExists
	default:
		return ErrEmailExists
	}
}
