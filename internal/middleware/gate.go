package middleware // middleware provides shared request processing for handlers

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/web-app-template/internal/model"
	"github.com/iliyamo/web-app-template/internal/token"
)

// Principal is the resolved identity attached to the request context after a
// credential passed every check.  Handlers read it via middleware.From(c).
type Principal struct {
	UserID   uint64
	Username string
	Email    string
	IssuedAt time.Time
}

// principalKey is the context key under which the Principal is stored.
const principalKey = "principal"

// From returns the principal resolved by the gate, or false when the request
// was not authenticated.
func From(c echo.Context) (Principal, bool) {
	p, ok := c.Get(principalKey).(Principal)
	return p, ok
}

// UserLoader is the slice of the credential store the gate needs.  A fresh
// lookup runs on every authenticated request; results are never cached, so
// bumping a user's invalidation watermark takes effect within one round-trip.
type UserLoader interface {
	GetByID(ctx context.Context, id uint64) (model.User, error)
}

// credentialSource pairs a predicate-style extractor with the purpose its
// credential must verify against.  The gate walks the list top-down and uses
// the first source that yields a raw credential.
type credentialSource struct {
	extract func(c echo.Context) (string, bool)
	purpose token.Purpose
}

// AfterAuth runs after a request has fully authenticated, with the freshly
// loaded user.  The wiring uses it to renew cached upstream provider tokens
// when they fall due; a nil hook is valid.
type AfterAuth func(ctx context.Context, u model.User)

// Gate returns the authentication middleware.  Selection order: bearer
// header, access_token query parameter (websocket upgrades cannot set
// headers), session cookie.  A request matching none of the three, or
// failing any validation step, is rejected with a generic 401 problem body.
// The rejection reason is never leaked to the client.
func Gate(tokens *token.Issuer, users UserLoader, cookieName string, after AfterAuth) echo.MiddlewareFunc {
	sources := []credentialSource{
		{
			extract: func(c echo.Context) (string, bool) {
				auth := c.Request().Header.Get("Authorization")
				if !strings.HasPrefix(auth, "Bearer ") {
					return "", false
				}
				return strings.TrimPrefix(auth, "Bearer "), true
			},
			purpose: token.PurposeAccessToken,
		},
		{
			extract: func(c echo.Context) (string, bool) {
				t := c.QueryParam("access_token")
				return t, t != ""
			},
			purpose: token.PurposeAccessToken,
		},
		{
			extract: func(c echo.Context) (string, bool) {
				cookie, err := c.Cookie(cookieName)
				if err != nil || cookie.Value == "" {
					return "", false
				}
				return cookie.Value, true
			},
			purpose: token.PurposeSessionCookie,
		},
	}

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			var (
				raw     string
				purpose token.Purpose
				found   bool
			)
			for _, src := range sources {
				if v, ok := src.extract(c); ok {
					raw, purpose, found = v, src.purpose, true
					break
				}
			}
			if !found {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthenticated"})
			}

			// Cheap checks first: signature, time window, purpose.
			claims, err := tokens.Verify(raw, purpose)
			if err != nil {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthenticated"})
			}

			// Store cross-check: the subject must still exist and the
			// credential must have been issued after the user's
			// invalidation watermark.
			ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
			defer cancel()

			u, err := users.GetByID(ctx, claims.UserID)
			if err != nil {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthenticated"})
			}
			if !claims.IssuedAt.Time.After(u.InvalidateAt) {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthenticated"})
			}

			if after != nil {
				after(ctx, u)
			}

			c.Set(principalKey, Principal{
				UserID:   u.ID,
				Username: u.Username,
				Email:    u.Email,
				IssuedAt: claims.IssuedAt.Time,
			})
			return next(c)
		}
	}
}
