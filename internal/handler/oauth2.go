package handler

import (
	"context"
	"errors"
	"net/http"
	"net/url"
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

// OAuth2Handler implements the authorization-code grant with this server
// acting as its own provider.  The browser-facing authorize endpoints and
// the server-to-server handle endpoint are split the way the standard keeps
// them apart, so the authorization server could later move into its own
// process without changing the exchange contract.
type OAuth2Handler struct {
	Cfg    config.Config
	Users  UserStore
	Codes  CodeConsumer
	Tokens *token.Issuer
	Seed   SeedUpstream

	log *logging.Logger
}

func NewOAuth2Handler(cfg config.Config, users UserStore, codes CodeConsumer, tokens *token.Issuer, seed SeedUpstream) *OAuth2Handler {
	return &OAuth2Handler{Cfg: cfg, Users: users, Codes: codes, Tokens: tokens, Seed: seed, log: logging.New("oauth2")}
}

// validParams checks the fixed single-tenant client registration.  There is
// exactly one client; anything else is a bad request, not a lookup.
func (h *OAuth2Handler) validParams(clientID, redirectURI, responseType string) bool {
	return clientID == h.Cfg.Authentication.ClientId &&
		redirectURI == h.Cfg.Authentication.RedirectUri &&
		responseType == "code"
}

// Authorize renders the login or register view bound to the configured
// client.  GET /oauth2/authorize
func (h *OAuth2Handler) Authorize(c echo.Context) error {
	clientID := c.QueryParam("client_id")
	redirectURI := c.QueryParam("redirect_uri")
	responseType := c.QueryParam("response_type")
	view := c.QueryParam("view")
	if view == "" {
		view = "login"
	}

	if !h.validParams(clientID, redirectURI, responseType) {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "Invalid oauth2 request"})
	}

	return renderCredentialForm(c, h.view(view, clientID, redirectURI, responseType, ""))
}

// AuthorizeSubmit handles the credential submission of either view.  Success
// redirects to redirect_uri with a one-minute authorization code; failure
// re-renders the form with an inline message.  POST /oauth2/authorize
func (h *OAuth2Handler) AuthorizeSubmit(c echo.Context) error {
	clientID := c.QueryParam("client_id")
	redirectURI := c.QueryParam("redirect_uri")
	responseType := c.QueryParam("response_type")
	view := c.QueryParam("view")
	if view == "" {
		view = "login"
	}

	if !h.validParams(clientID, redirectURI, responseType) {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "Invalid oauth2 request"})
	}

	email := strings.ToLower(strings.TrimSpace(c.FormValue("email")))
	password := c.FormValue("password")
	username := strings.TrimSpace(c.FormValue("username"))

	if view == "register" && username == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "You need to provide a username"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	var (
		userID uint64
		errMsg string
	)
	if view == "register" {
		userID, errMsg = h.register(ctx, username, email, password)
	} else {
		userID, errMsg = h.login(ctx, email, password)
	}
	if errMsg != "" {
		return renderCredentialForm(c, h.view(view, clientID, redirectURI, responseType, errMsg))
	}

	// The credentials are still at hand, so this is the one place the
	// provider token cache can be seeded for later renewal.
	if h.Seed != nil {
		h.Seed(ctx, userID, email, password)
	}

	code, err := h.Tokens.Issue(userID, token.PurposeAuthorizationCode, token.CodeTTL)
	if err != nil {
		h.log.Errorf("issuing authorization code failed: %v", err)
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "issue code failed"})
	}

	_ = queue_publisher.PublishUserSignedIn(ctx, queue.UserSignedInEvent{
		UserID:     userID,
		Method:     "oauth2",
		SignedInAt: time.Now().UTC().Format(time.RFC3339),
	})

	return c.Redirect(http.StatusFound, redirectURI+"?code="+url.QueryEscape(code))
}

// Handle exchanges an authorization code for the resolved user id.  The
// caller authenticates with the client secret; every parameter of the grant
// is checked against the fixed registration.  POST /oauth2/handle
func (h *OAuth2Handler) Handle(c echo.Context) error {
	authHeader := c.Request().Header.Get("Authorization")
	if authHeader == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "You are missing the Authorization header"})
	}
	if authHeader != "Basic "+h.Cfg.Authentication.ClientSecret {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "Invalid Authorization header value"})
	}

	if c.FormValue("grant_type") != "authorization_code" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "Invalid grant type provided"})
	}
	if c.FormValue("client_id") != h.Cfg.Authentication.ClientId {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "Invalid client id provided"})
	}
	if c.FormValue("redirect_uri") != h.Cfg.Authentication.RedirectUri {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "Invalid redirect uri provided"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	u, err := resolveCode(ctx, h.Tokens, h.Users, h.Codes, c.FormValue("code"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
	}

	return c.JSON(http.StatusOK, echo.Map{"user_id": u.ID})
}

// login verifies the email/password pair.  Unknown email and wrong password
// produce the identical message so the form cannot be used to probe for
// accounts.
func (h *OAuth2Handler) login(ctx context.Context, email, password string) (uint64, string) {
	const invalidCombination = "Invalid combination of email and password"

	u, err := h.Users.GetByEmail(ctx, email)
	if err != nil {
		return 0, invalidCombination
	}
	if !utils.VerifyPassword(u.PasswordHash, password) {
		return 0, invalidCombination
	}
	return u.ID, ""
}

// register creates the account and reports duplicate collisions with the
// field that collided.  Registration confirms existence by design, so the
// specific message leaks nothing the form would not reveal anyway.
func (h *OAuth2Handler) register(ctx context.Context, username, email, password string) (uint64, string) {
	u, err := h.Users.Create(ctx, username, email, password, h.Cfg.Authentication.BcryptCost)
	switch {
	case err == nil:
	case errors.Is(err, repository.ErrUsernameExists):
		return 0, "A account with that username already exists"
	case errors.Is(err, repository.ErrEmailExists):
		return 0, "A account with that email already exists"
	default:
		h.log.Errorf("creating user failed: %v", err)
		return 0, "An internal error occured"
	}

	_ = queue_publisher.PublishUserRegistered(ctx, queue.UserRegisteredEvent{
		UserID:       u.ID,
		Username:     u.Username,
		Email:        u.Email,
		RegisteredAt: time.Now().UTC().Format(time.RFC3339),
	})
	return u.ID, ""
}

// view builds the template data for one of the two authorize views.
func (h *OAuth2Handler) view(view, clientID, redirectURI, responseType, errMsg string) credentialView {
	params := url.Values{}
	params.Set("client_id", clientID)
	params.Set("redirect_uri", redirectURI)
	params.Set("response_type", responseType)

	other := "register"
	title := "Login"
	switchLabel := "Create an account"
	if view == "register" {
		other = "login"
		title = "Register"
		switchLabel = "Already have an account? Login"
	}

	action := params.Encode() + "&view=" + view
	switchTo := params.Encode() + "&view=" + other

	return credentialView{
		Title:        title,
		Action:       "/oauth2/authorize?" + action,
		Register:     view == "register",
		SwitchHref:   "/oauth2/authorize?" + switchTo,
		SwitchLabel:  switchLabel,
		ErrorMessage: errMsg,
	}
}
