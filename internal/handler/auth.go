package handler

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/web-app-template/internal/config"
	"github.com/iliyamo/web-app-template/internal/logging"
	"github.com/iliyamo/web-app-template/internal/middleware"
	"github.com/iliyamo/web-app-template/internal/queue"
	queue_publisher "github.com/iliyamo/web-app-template/internal/service"
	"github.com/iliyamo/web-app-template/internal/token"
)

// AuthHandler exposes the JSON api the SPA frontend talks to: kicking off the
// authorization flow, completing it into a token pair, refreshing, identity
// introspection and logout.
type AuthHandler struct {
	Cfg    config.Config
	Users  UserStore
	Codes  CodeConsumer
	Tokens *token.Issuer

	log *logging.Logger
}

func NewAuthHandler(cfg config.Config, users UserStore, codes CodeConsumer, tokens *token.Issuer) *AuthHandler {
	return &AuthHandler{Cfg: cfg, Users: users, Codes: codes, Tokens: tokens, log: logging.New("auth")}
}

// ----- DTOs -----

type completeReq struct {
	Code string `json:"code"`
}
type refreshReq struct {
	RefreshToken string `json:"refresh_token"`
}

type tokenPart struct {
	Token   string    `json:"token"`
	Expires time.Time `json:"expires"`
}
type userPart struct {
	ID       uint64 `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
}
type authResp struct {
	User    userPart  `json:"user"`
	Access  tokenPart `json:"access"`
	Refresh tokenPart `json:"refresh"`
}

// Start hands the SPA everything it needs to begin the authorization-code
// flow.  GET /api/auth/start
func (h *AuthHandler) Start(c echo.Context) error {
	return c.JSON(http.StatusOK, echo.Map{
		"client_id":    h.Cfg.Authentication.ClientId,
		"redirect_uri": h.Cfg.Authentication.RedirectUri,
		"endpoint":     h.Cfg.Authentication.AuthorizeEndpoint,
	})
}

// Complete exchanges the authorization code the SPA received via redirect for
// an access/refresh token pair.  The exchange runs in-process through the
// same checks the /oauth2/handle endpoint applies.  POST /api/auth/complete
func (h *AuthHandler) Complete(c echo.Context) error {
	var req completeReq
	if err := c.Bind(&req); err != nil || strings.TrimSpace(req.Code) == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "code required"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	u, err := resolveCode(ctx, h.Tokens, h.Users, h.Codes, strings.TrimSpace(req.Code))
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
	}

	return h.issuePair(c, u.ID, u.Username, u.Email)
}

// Refresh trades a refresh token for a fresh pair.  The refresh token runs
// through the full validation chain, watermark included, so "logout
// everywhere" cuts refresh tokens off together with access tokens.
// POST /api/auth/refresh
func (h *AuthHandler) Refresh(c echo.Context) error {
	var req refreshReq
	if err := c.Bind(&req); err != nil || strings.TrimSpace(req.RefreshToken) == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "refresh_token required"})
	}

	claims, err := h.Tokens.Verify(strings.TrimSpace(req.RefreshToken), token.PurposeRefreshToken)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid refresh"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	u, err := h.Users.GetByID(ctx, claims.UserID)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid refresh"})
	}
	if !claims.IssuedAt.Time.After(u.InvalidateAt) {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid refresh"})
	}

	return h.issuePair(c, u.ID, u.Username, u.Email)
}

// Check returns the caller's identity as resolved by the gate.
// GET /api/auth/check
func (h *AuthHandler) Check(c echo.Context) error {
	p, ok := middleware.From(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthenticated"})
	}
	return c.JSON(http.StatusOK, echo.Map{
		"user_id":  p.UserID,
		"username": p.Username,
		"email":    p.Email,
	})
}

// Logout bumps the caller's invalidation watermark, revoking every
// outstanding token and session, clears the session cookie and sends the
// browser home.  GET /api/auth/logout
func (h *AuthHandler) Logout(c echo.Context) error {
	p, ok := middleware.From(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthenticated"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	now := time.Now().UTC()
	if err := h.Users.BumpInvalidate(ctx, p.UserID, now); err != nil {
		h.log.Errorf("bumping invalidation watermark for user %d failed: %v", p.UserID, err)
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "logout failed"})
	}

	clearSessionCookie(c, h.Cfg.Authentication.CookieName)

	_ = queue_publisher.PublishSessionsInvalidated(ctx, queue.SessionsInvalidatedEvent{
		UserID:        p.UserID,
		InvalidatedAt: now.Format(time.RFC3339),
	})

	return c.Redirect(http.StatusFound, "/")
}

// issuePair signs and returns an access/refresh token pair.
func (h *AuthHandler) issuePair(c echo.Context, userID uint64, username, email string) error {
	accessTTL := time.Duration(h.Cfg.Authentication.AccessTTLMin) * time.Minute
	refreshTTL := time.Duration(h.Cfg.Authentication.RefreshTTLDays) * 24 * time.Hour

	access, err := h.Tokens.Issue(userID, token.PurposeAccessToken, accessTTL)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "issue access failed"})
	}
	refresh, err := h.Tokens.Issue(userID, token.PurposeRefreshToken, refreshTTL)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "issue refresh failed"})
	}

	now := time.Now().UTC()
	return c.JSON(http.StatusOK, authResp{
		User:    userPart{ID: userID, Username: username, Email: email},
		Access:  tokenPart{Token: access, Expires: now.Add(accessTTL)},
		Refresh: tokenPart{Token: refresh, Expires: now.Add(refreshTTL)},
	})
}

// clearSessionCookie overwrites the session cookie with an expired one.
func clearSessionCookie(c echo.Context, name string) {
	c.SetCookie(&http.Cookie{
		Name:     name,
		Value:    "",
		Path:     "/",
		Expires:  time.Unix(0, 0),
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}
