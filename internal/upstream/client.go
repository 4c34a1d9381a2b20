// Package upstream maintains cached external-provider tokens.  When an
// upstream identity provider is configured, a sign-in with credentials also
// obtains the provider's access/refresh token pair and caches it on the user
// row; this client later renews the pair once the stored renew-at time has
// passed, so the server can call the provider on the user's behalf without
// interactive login.
package upstream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/iliyamo/web-app-template/internal/config"
	"github.com/iliyamo/web-app-template/internal/logging"
	"github.com/iliyamo/web-app-template/internal/model"
)

// TokenStore is the slice of the credential store the token cache writes
// through.
type TokenStore interface {
	SaveUpstreamTokens(ctx context.Context, userID uint64, access, refresh string, renewAt time.Time) error
}

// Client performs token grants against the configured provider.  A nil Client
// (upstream disabled) is valid; SignIn and RefreshIfDue then do nothing.
type Client struct {
	cfg  config.UpstreamConfig
	http *http.Client
	log  *logging.Logger
}

// NewClient returns a client for the given upstream configuration, or nil
// when no token endpoint is configured.
func NewClient(cfg config.UpstreamConfig) *Client {
	if cfg.TokenEndpoint == "" {
		return nil
	}
	return &Client{
		cfg: cfg,
		// Grants ride on a user's request; they must never block one
		// indefinitely.
		http: &http.Client{Timeout: 5 * time.Second},
		log:  logging.New("upstream"),
	}
}

type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"`
}

// SignIn seeds the token cache for a user who just authenticated with their
// credentials: a password grant against the provider obtains the pair that
// RefreshIfDue keeps fresh afterwards.  Failures are logged and swallowed;
// local sign-in never depends on the provider being reachable.
func (c *Client) SignIn(ctx context.Context, store TokenStore, userID uint64, email, password string) {
	if c == nil {
		return
	}

	form := url.Values{}
	form.Set("grant_type", "password")
	form.Set("username", email)
	form.Set("password", password)
	form.Set("client_id", c.cfg.ClientId)
	form.Set("client_secret", c.cfg.ClientSecret)

	tr, err := c.requestTokens(ctx, form)
	if err != nil {
		c.log.Debugf("provider sign-in for user %d failed: %v", userID, err)
		return
	}
	if tr.RefreshToken == "" {
		// Without a refresh token there is nothing to renew later.
		c.log.Debugf("provider sign-in for user %d returned no refresh token", userID)
		return
	}

	renewAt := time.Now().UTC().Add(time.Duration(tr.ExpiresIn) * time.Second)
	if err := store.SaveUpstreamTokens(ctx, userID, tr.AccessToken, tr.RefreshToken, renewAt); err != nil {
		c.log.Warnf("caching provider tokens for user %d failed: %v", userID, err)
		return
	}
	c.log.Infof("cached upstream tokens for user %d, renewal due %s",
		userID, renewAt.Format(time.RFC3339))
}

// RefreshIfDue renews the user's cached provider tokens when the stored
// renew-at time has passed.  Failures are expected for long-inactive users
// whose refresh token lapsed upstream; they are logged at low severity and
// the cached state is left as-is ("refresh denied"), never surfaced to the
// request that triggered the renewal.  At most one attempt is made.
func (c *Client) RefreshIfDue(ctx context.Context, store TokenStore, u model.User) {
	if c == nil || u.UpstreamRefresh == nil || u.UpstreamRenewAt == nil {
		return
	}
	if time.Now().UTC().Before(*u.UpstreamRenewAt) {
		return
	}

	form := url.Values{}
	form.Set("grant_type", "refresh_token")
	form.Set("refresh_token", *u.UpstreamRefresh)
	form.Set("client_id", c.cfg.ClientId)
	form.Set("client_secret", c.cfg.ClientSecret)

	tr, err := c.requestTokens(ctx, form)
	if err != nil {
		c.log.Debugf("refresh denied for user %d: %v", u.ID, err)
		return
	}
	if tr.RefreshToken == "" {
		// Providers may omit the refresh token on renewal; keep the old one.
		tr.RefreshToken = *u.UpstreamRefresh
	}

	renewAt := time.Now().UTC().Add(time.Duration(tr.ExpiresIn) * time.Second)
	if err := store.SaveUpstreamTokens(ctx, u.ID, tr.AccessToken, tr.RefreshToken, renewAt); err != nil {
		c.log.Warnf("persisting refreshed tokens for user %d failed: %v", u.ID, err)
		return
	}
	c.log.Infof("refreshed upstream tokens for user %d, next renewal %s",
		u.ID, renewAt.Format(time.RFC3339))
}

// requestTokens posts one form-encoded grant to the token endpoint and
// decodes the response.  Exactly one attempt; any non-200 status or
// malformed body is an error.
func (c *Client) requestTokens(ctx context.Context, form url.Values) (tokenResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.cfg.TokenEndpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return tokenResponse{}, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.http.Do(req)
	if err != nil {
		return tokenResponse{}, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return tokenResponse{}, fmt.Errorf("provider returned %s", resp.Status)
	}

	var tr tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		return tokenResponse{}, err
	}
	if tr.AccessToken == "" {
		return tokenResponse{}, errors.New("response carries no access token")
	}
	return tr, nil
}
