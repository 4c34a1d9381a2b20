package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/web-app-template/internal/config"
	"github.com/iliyamo/web-app-template/internal/token"
)

type oauth2Fixture struct {
	e      *echo.Echo
	cfg    config.Config
	store  *memStore
	codes  *memCodes
	tokens *token.Issuer
}

func newOAuth2Fixture(t *testing.T) *oauth2Fixture {
	t.Helper()

	cfg := testConfig()
	store := newMemStore()
	codes := newMemCodes()
	tokens := testIssuer(cfg)

	h := NewOAuth2Handler(cfg, store, codes, tokens, nil)
	e := echo.New()
	e.GET("/oauth2/authorize", h.Authorize)
	e.POST("/oauth2/authorize", h.AuthorizeSubmit)
	e.POST("/oauth2/handle", h.Handle)

	return &oauth2Fixture{e: e, cfg: cfg, store: store, codes: codes, tokens: tokens}
}

func (f *oauth2Fixture) authorizeURL(view string) string {
	params := url.Values{}
	params.Set("client_id", f.cfg.Authentication.ClientId)
	params.Set("redirect_uri", f.cfg.Authentication.RedirectUri)
	params.Set("response_type", "code")
	params.Set("view", view)
	return "/oauth2/authorize?" + params.Encode()
}

func (f *oauth2Fixture) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	f.e.ServeHTTP(rec, req)
	return rec
}

func formRequest(target string, form url.Values) *http.Request {
	req := httptest.NewRequest(http.MethodPost, target, strings.NewReader(form.Encode()))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationForm)
	return req
}

// register drives the register view and returns the issued code.
func (f *oauth2Fixture) register(t *testing.T, username, email, password string) string {
	t.Helper()

	form := url.Values{}
	form.Set("username", username)
	form.Set("email", email)
	form.Set("password", password)

	rec := f.do(formRequest(f.authorizeURL("register"), form))
	require.Equal(t, http.StatusFound, rec.Code, "body: %s", rec.Body.String())

	loc, err := url.Parse(rec.Header().Get("Location"))
	require.NoError(t, err)
	code := loc.Query().Get("code")
	require.NotEmpty(t, code)
	return code
}

// exchange posts the code to /oauth2/handle with proper client credentials.
func (f *oauth2Fixture) exchange(code string) *httptest.ResponseRecorder {
	form := url.Values{}
	form.Set("grant_type", "authorization_code")
	form.Set("client_id", f.cfg.Authentication.ClientId)
	form.Set("redirect_uri", f.cfg.Authentication.RedirectUri)
	form.Set("code", code)

	req := formRequest("/oauth2/handle", form)
	req.Header.Set("Authorization", "Basic "+f.cfg.Authentication.ClientSecret)
	return f.do(req)
}

func TestAuthorize_RejectsUnknownClient(t *testing.T) {
	t.Parallel()

	f := newOAuth2Fixture(t)
	rec := f.do(httptest.NewRequest(http.MethodGet,
		"/oauth2/authorize?client_id=evil&redirect_uri=http://evil&response_type=code", nil))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "Invalid oauth2 request")
}

func TestAuthorize_RendersLoginForm(t *testing.T) {
	t.Parallel()

	f := newOAuth2Fixture(t)
	rec := f.do(httptest.NewRequest(http.MethodGet, f.authorizeURL("login"), nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `name="email"`)
	assert.Contains(t, rec.Body.String(), `name="password"`)
	assert.NotContains(t, rec.Body.String(), `name="username"`)
}

func TestAuthorize_RegisterThenDuplicate(t *testing.T) {
	t.Parallel()

	f := newOAuth2Fixture(t)
	f.register(t, "alice", "alice@example.com", "pw123")
	require.Equal(t, 1, f.store.count())

	// Same username again: form re-renders with the error, no row appears.
	form := url.Values{}
	form.Set("username", "alice")
	form.Set("email", "other@example.com")
	form.Set("password", "pw123")
	rec := f.do(formRequest(f.authorizeURL("register"), form))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "A account with that username already exists")
	assert.Equal(t, 1, f.store.count())
}

func TestAuthorize_RegisterRequiresUsername(t *testing.T) {
	t.Parallel()

	f := newOAuth2Fixture(t)
	form := url.Values{}
	form.Set("email", "alice@example.com")
	form.Set("password", "pw123")

	rec := f.do(formRequest(f.authorizeURL("register"), form))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "You need to provide a username")
}

func TestAuthorize_LoginWrongPassword(t *testing.T) {
	t.Parallel()

	f := newOAuth2Fixture(t)
	f.register(t, "alice", "alice@example.com", "pw123")

	form := url.Values{}
	form.Set("email", "alice@example.com")
	form.Set("password", "wrong")
	rec := f.do(formRequest(f.authorizeURL("login"), form))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Invalid combination of email and password")
}

func TestAuthorize_LoginUnknownEmailSameMessage(t *testing.T) {
	t.Parallel()

	f := newOAuth2Fixture(t)

	form := url.Values{}
	form.Set("email", "nobody@example.com")
	form.Set("password", "pw123")
	rec := f.do(formRequest(f.authorizeURL("login"), form))

	// Unknown account and wrong password are indistinguishable.
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Invalid combination of email and password")
}

func TestAuthorize_LoginIssuesCode(t *testing.T) {
	t.Parallel()

	f := newOAuth2Fixture(t)
	f.register(t, "alice", "alice@example.com", "pw123")

	form := url.Values{}
	form.Set("email", "alice@example.com")
	form.Set("password", "pw123")
	rec := f.do(formRequest(f.authorizeURL("login"), form))

	require.Equal(t, http.StatusFound, rec.Code)
	assert.True(t, strings.HasPrefix(rec.Header().Get("Location"),
		f.cfg.Authentication.RedirectUri+"?code="))
}

func TestAuthorize_SignInSeedsUpstreamTokenCache(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	store := newMemStore()
	codes := newMemCodes()
	tokens := testIssuer(cfg)

	var (
		gotID       uint64
		gotEmail    string
		gotPassword string
		seeded      int
	)
	h := NewOAuth2Handler(cfg, store, codes, tokens,
		func(_ context.Context, userID uint64, email, password string) {
			gotID, gotEmail, gotPassword = userID, email, password
			seeded++
		})

	e := echo.New()
	e.POST("/oauth2/authorize", h.AuthorizeSubmit)

	params := url.Values{}
	params.Set("client_id", cfg.Authentication.ClientId)
	params.Set("redirect_uri", cfg.Authentication.RedirectUri)
	params.Set("response_type", "code")
	params.Set("view", "register")

	form := url.Values{}
	form.Set("username", "alice")
	form.Set("email", "alice@example.com")
	form.Set("password", "pw123")

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, formRequest("/oauth2/authorize?"+params.Encode(), form))
	require.Equal(t, http.StatusFound, rec.Code, "body: %s", rec.Body.String())

	assert.Equal(t, 1, seeded)
	assert.Equal(t, uint64(1), gotID)
	assert.Equal(t, "alice@example.com", gotEmail)
	assert.Equal(t, "pw123", gotPassword)

	// A rejected login leaves the cache alone.
	params.Set("view", "login")
	bad := url.Values{}
	bad.Set("email", "alice@example.com")
	bad.Set("password", "wrong")

	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, formRequest("/oauth2/authorize?"+params.Encode(), bad))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, seeded)
}

func TestHandle_ExchangesCodeForUserID(t *testing.T) {
	t.Parallel()

	f := newOAuth2Fixture(t)
	code := f.register(t, "alice", "alice@example.com", "pw123")

	rec := f.exchange(code)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"user_id":1`)
}

func TestHandle_CodeIsSingleUse(t *testing.T) {
	t.Parallel()

	f := newOAuth2Fixture(t)
	code := f.register(t, "alice", "alice@example.com", "pw123")

	require.Equal(t, http.StatusOK, f.exchange(code).Code)

	rec := f.exchange(code)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "Invalid code provided")
}

func TestHandle_ExpiredCode(t *testing.T) {
	t.Parallel()

	f := newOAuth2Fixture(t)
	f.register(t, "alice", "alice@example.com", "pw123")

	expired, err := f.tokens.Issue(1, token.PurposeAuthorizationCode, -time.Second)
	require.NoError(t, err)

	rec := f.exchange(expired)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "Invalid code provided")
}

func TestHandle_RejectsBadClientAuth(t *testing.T) {
	t.Parallel()

	f := newOAuth2Fixture(t)
	code := f.register(t, "alice", "alice@example.com", "pw123")

	form := url.Values{}
	form.Set("grant_type", "authorization_code")
	form.Set("client_id", f.cfg.Authentication.ClientId)
	form.Set("redirect_uri", f.cfg.Authentication.RedirectUri)
	form.Set("code", code)

	// Missing header
	rec := f.do(formRequest("/oauth2/handle", form))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "missing the Authorization header")

	// Wrong secret
	req := formRequest("/oauth2/handle", form)
	req.Header.Set("Authorization", "Basic wrong")
	rec = f.do(req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "Invalid Authorization header value")
}

func TestHandle_RejectsBadGrantParams(t *testing.T) {
	t.Parallel()

	f := newOAuth2Fixture(t)
	code := f.register(t, "alice", "alice@example.com", "pw123")

	cases := []struct {
		name    string
		mutate  func(url.Values)
		wantMsg string
	}{
		{"grant type", func(v url.Values) { v.Set("grant_type", "password") }, "Invalid grant type provided"},
		{"client id", func(v url.Values) { v.Set("client_id", "other") }, "Invalid client id provided"},
		{"redirect uri", func(v url.Values) { v.Set("redirect_uri", "http://evil") }, "Invalid redirect uri provided"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			form := url.Values{}
			form.Set("grant_type", "authorization_code")
			form.Set("client_id", f.cfg.Authentication.ClientId)
			form.Set("redirect_uri", f.cfg.Authentication.RedirectUri)
			form.Set("code", code)
			tc.mutate(form)

			req := formRequest("/oauth2/handle", form)
			req.Header.Set("Authorization", "Basic "+f.cfg.Authentication.ClientSecret)
			rec := f.do(req)

			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Contains(t, rec.Body.String(), tc.wantMsg)
		})
	}
}
