package handler

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/web-app-template/internal/config"
	"github.com/iliyamo/web-app-template/internal/logging"
	"github.com/iliyamo/web-app-template/internal/queue"
	"github.com/iliyamo/web-app-template/internal/repository"
	queue_publisher "github.com/iliyamo/web-app-template/internal/service"
	"github.com/iliyamo/web-app-template/internal/token"
	"github.com/iliyamo/web-app-template/internal/utils"
)

// LocalAuthHandler implements cookie-session authentication as its own
// scheme beside the token flow: classic login/register forms that end in a
// signed session cookie and a redirect to the app shell.
type LocalAuthHandler struct {
	Cfg    config.Config
	Users  UserStore
	Tokens *token.Issuer
	Seed   SeedUpstream

	log *logging.Logger
}

func NewLocalAuthHandler(cfg config.Config, users UserStore, tokens *token.Issuer, seed SeedUpstream) *LocalAuthHandler {
	return &LocalAuthHandler{Cfg: cfg, Users: users, Tokens: tokens, Seed: seed, log: logging.New("localauth")}
}

// LoginForm renders the login view.  GET /api/localauth and /login
func (h *LocalAuthHandler) LoginForm(c echo.Context) error {
	return renderCredentialForm(c, h.view("login", ""))
}

// RegisterForm renders the register view.  GET /api/localauth/register
func (h *LocalAuthHandler) RegisterForm(c echo.Context) error {
	return renderCredentialForm(c, h.view("register", ""))
}

// Login authenticates the form credentials and signs the browser in.
// POST /api/localauth and /login
func (h *LocalAuthHandler) Login(c echo.Context) error {
	email := strings.ToLower(strings.TrimSpace(c.FormValue("email")))
	password := c.FormValue("password")

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	const invalidCombination = "Invalid combination of email and password"

	u, err := h.Users.GetByEmail(ctx, email)
	if err != nil {
		return renderCredentialForm(c, h.view("login", invalidCombination))
	}
	if !utils.VerifyPassword(u.PasswordHash, password) {
		return renderCredentialForm(c, h.view("login", invalidCombination))
	}

	if h.Seed != nil {
		h.Seed(ctx, u.ID, u.Email, password)
	}

	return h.signIn(c, ctx, u.Email, u.Username, "login")
}

// Register creates the account and signs the browser in.
// POST /api/localauth/register
func (h *LocalAuthHandler) Register(c echo.Context) error {
	username := strings.TrimSpace(c.FormValue("username"))
	email := strings.ToLower(strings.TrimSpace(c.FormValue("email")))
	password := c.FormValue("password")

	if username == "" {
		return renderCredentialForm(c, h.view("register", "You need to provide a username"))
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	u, err := h.Users.Create(ctx, username, email, password, h.Cfg.Authentication.BcryptCost)
	switch {
	case err == nil:
	case errors.Is(err, repository.ErrUsernameExists):
		return renderCredentialForm(c, h.view("register", "A account with that username already exists"))
	case errors.Is(err, repository.ErrEmailExists):
		return renderCredentialForm(c, h.view("register", "A account with that email already exists"))
	default:
		h.log.Errorf("creating user failed: %v", err)
		return renderCredentialForm(c, h.view("register", "An internal error occured"))
	}

	_ = queue_publisher.PublishUserRegistered(ctx, queue.UserRegisteredEvent{
		UserID:       u.ID,
		Username:     u.Username,
		Email:        u.Email,
		RegisteredAt: time.Now().UTC().Format(time.RFC3339),
	})

	if h.Seed != nil {
		h.Seed(ctx, u.ID, u.Email, password)
	}

	return h.signIn(c, ctx, u.Email, u.Username, "register")
}

// signIn runs the once-per-sign-in identity sync, issues the session cookie
// and redirects to the app shell.  The sync upserts the identity into the
// user table; for an external identity this is the just-in-time provisioning
// step, for a local account it is a cheap no-op update.
func (h *LocalAuthHandler) signIn(c echo.Context, ctx context.Context, email, displayName, view string) error {
	u, err := h.Users.UpsertFromExternalIdentity(ctx, email, displayName, h.Cfg.Authentication.BcryptCost)
	if err != nil {
		h.log.Errorf("identity sync for %s failed: %v", email, err)
		return renderCredentialForm(c, h.view(view, "An internal error occured"))
	}

	ttl := time.Duration(h.Cfg.Authentication.CookieExpiryDays) * 24 * time.Hour
	session, err := h.Tokens.Issue(u.ID, token.PurposeSessionCookie, ttl)
	if err != nil {
		h.log.Errorf("issuing session for user %d failed: %v", u.ID, err)
		return renderCredentialForm(c, h.view(view, "An internal error occured"))
	}

	c.SetCookie(&http.Cookie{
		Name:     h.Cfg.Authentication.CookieName,
		Value:    session,
		Path:     "/",
		Expires:  time.Now().UTC().Add(ttl),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})

	_ = queue_publisher.PublishUserSignedIn(ctx, queue.UserSignedInEvent{
		UserID:     u.ID,
		Method:     "cookie",
		SignedInAt: time.Now().UTC().Format(time.RFC3339),
	})

	// Redirect back to the app shell
	return c.Redirect(http.StatusFound, "/")
}

func (h *LocalAuthHandler) view(view, errMsg string) credentialView {
	if view == "register" {
		return credentialView{
			Title:        "Register",
			Action:       "/api/localauth/register",
			Register:     true,
			SwitchHref:   "/api/localauth/login",
			SwitchLabel:  "Already have an account? Login",
			ErrorMessage: errMsg,
		}
	}
	return credentialView{
		Title:        "Login",
		Action:       "/api/localauth/login",
		SwitchHref:   "/api/localauth/register",
		SwitchLabel:  "Create an account",
		ErrorMessage: errMsg,
	}
}
