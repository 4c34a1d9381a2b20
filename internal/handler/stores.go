package handler

import (
	"context"
	"errors"
	"time"

	"github.com/iliyamo/web-app-template/internal/model"
	"github.com/iliyamo/web-app-template/internal/token"
)

// UserStore is the credential-store contract the handlers depend on.  It is
// implemented by repository.UserRepo; tests substitute an in-memory fake.
type UserStore interface {
	Create(ctx context.Context, username, email, password string, cost int) (model.User, error)
	GetByEmail(ctx context.Context, email string) (model.User, error)
	GetByID(ctx context.Context, id uint64) (model.User, error)
	UpsertFromExternalIdentity(ctx context.Context, email, displayName string, cost int) (model.User, error)
	BumpInvalidate(ctx context.Context, userID uint64, t time.Time) error
}

// CodeConsumer marks authorization codes as used.  Implemented by
// repository.CodeRepo.
type CodeConsumer interface {
	Consume(ctx context.Context, jti string, ttl time.Duration) (bool, error)
}

// SeedUpstream caches the external provider's token pair for a user who just
// signed in with their credentials.  The wiring binds it to the upstream
// client's password grant; a nil hook means no provider is configured.  The
// hook must never fail the sign-in, so it reports nothing.
type SeedUpstream func(ctx context.Context, userID uint64, email, password string)

// Code resolution failures shown to OAuth2 clients.  Both map to HTTP 400;
// the wording follows the provider's fixed messages.
var (
	errInvalidCode   = errors.New("Invalid code provided")
	errMalformedCode = errors.New("Malformed code provided")
)

// resolveCode validates an authorization code, resolves its subject and
// consumes the code so it cannot be replayed.  Checks run in fixed order:
// signature and expiry first (no store hit for garbage), then the subject
// lookup, then the single-use consume.
func resolveCode(ctx context.Context, tokens *token.Issuer, users UserStore, codes CodeConsumer, raw string) (model.User, error) {
	claims, err := tokens.Verify(raw, token.PurposeAuthorizationCode)
	if err != nil {
		return model.User{}, errInvalidCode
	}

	u, err := users.GetByID(ctx, claims.UserID)
	if err != nil {
		return model.User{}, errMalformedCode
	}

	ok, err := codes.Consume(ctx, claims.ID, token.CodeTTL)
	if err != nil || !ok {
		return model.User{}, errInvalidCode
	}
	return u, nil
}
