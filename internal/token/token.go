// Package token issues and verifies the signed credentials of the auth
// subsystem: authorization codes, access tokens, refresh tokens and session
// cookies.  Every credential is a self-contained HS256 JWT with a typed
// payload; each purpose is signed with its own symmetric key.
package token

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/iliyamo/web-app-template/internal/config"
	"github.com/iliyamo/web-app-template/internal/utils"
)

// Purpose tags what a credential may be used for.  Verification fails when
// the purpose baked into the credential does not match the expected one, so
// an authorization code can never pass as an access token even if both were
// signed with the same key.
type Purpose string

const (
	PurposeAuthorizationCode Purpose = "authorization_code"
	PurposeAccessToken       Purpose = "access_token"
	PurposeRefreshToken      Purpose = "refresh_token"
	PurposeSessionCookie     Purpose = "session_cookie"
)

// CodeTTL is the lifetime of an authorization code.  Codes only bridge the
// redirect between the authorize view and the exchange call, so one minute
// is plenty.
const CodeTTL = time.Minute

// skewLeeway is subtracted from "now" for the not-before claim so that a
// validator with a slightly slower clock does not reject a fresh credential.
const skewLeeway = time.Minute

// Verification failures are collapsed into these sentinel reasons.  Wire
// responses must stay generic (401/400); the distinction exists for logging
// and tests only.
var (
	ErrMalformed = errors.New("credential malformed")
	ErrExpired   = errors.New("credential expired")
	ErrSignature = errors.New("credential signature invalid")
)

// Claims is the typed payload carried by every credential.  The custom
// fields travel beside the registered ones; no string-keyed claim bags are
// passed around after parsing.
type Claims struct {
	jwt.RegisteredClaims
	UserID  uint64  `json:"uid"`
	Purpose Purpose `json:"purpose"`
}

// Issuer creates and verifies credentials.  It holds one signing key per
// purpose and a clock that tests may replace.
type Issuer struct {
	keys map[Purpose][]byte
	now  func() time.Time
}

// NewIssuer builds an Issuer from the authentication config plus the durable
// session key loaded from the keystore.  Authorization codes use the plain
// secret; access and refresh tokens use their dedicated secrets.
func NewIssuer(auth config.AuthenticationConfig, sessionKey []byte) *Issuer {
	return &Issuer{
		keys: map[Purpose][]byte{
			PurposeAuthorizationCode: []byte(auth.Secret),
			PurposeAccessToken:       []byte(auth.AccessSecret),
			PurposeRefreshToken:      []byte(auth.RefreshSecret),
			PurposeSessionCookie:     sessionKey,
		},
		now: func() time.Time { return time.Now().UTC() },
	}
}

// Issue creates a signed credential for the user with the given purpose and
// ttl.  issuedAt is now, not-before is now minus the skew leeway and the
// expiry is now plus ttl.  The credential carries a random jti so that
// single-use tracking can identify it.
func (i *Issuer) Issue(userID uint64, purpose Purpose, ttl time.Duration) (string, error) {
	key, ok := i.keys[purpose]
	if !ok {
		return "", ErrMalformed
	}
	jti, err := utils.RandomHex(16)
	if err != nil {
		return "", err
	}

	now := i.now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        jti,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now.Add(-skewLeeway)),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		UserID:  userID,
		Purpose: purpose,
	}

	t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return t.SignedString(key)
}

// Verify checks a raw credential against the expected purpose.  The checks
// run cheap-first: signature and time window are enforced by the JWT parse,
// then the purpose tag is compared.  The caller is responsible for the
// store-backed checks (user existence, invalidation watermark).
func (i *Issuer) Verify(raw string, purpose Purpose) (*Claims, error) {
	key, ok := i.keys[purpose]
	if !ok {
		return nil, ErrMalformed
	}

	claims := &Claims{}
	_, err := jwt.ParseWithClaims(raw, claims,
		func(t *jwt.Token) (interface{}, error) { return key, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(i.now),
	)
	switch {
	case err == nil:
	case errors.Is(err, jwt.ErrTokenExpired):
		return nil, ErrExpired
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return nil, ErrSignature
	default:
		return nil, ErrMalformed
	}

	if claims.Purpose != purpose || claims.UserID == 0 || claims.IssuedAt == nil {
		return nil, ErrMalformed
	}
	return claims, nil
}
