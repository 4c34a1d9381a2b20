package handler

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/iliyamo/web-app-template/internal/config"
	"github.com/iliyamo/web-app-template/internal/model"
	"github.com/iliyamo/web-app-template/internal/repository"
	"github.com/iliyamo/web-app-template/internal/token"
	"github.com/iliyamo/web-app-template/internal/utils"
	"golang.org/x/crypto/bcrypt"
)

// memStore is an in-memory UserStore with the same duplicate and watermark
// semantics as the MySQL repository.
type memStore struct {
	mu     sync.Mutex
	nextID uint64
	byID   map[uint64]model.User
}

func newMemStore() *memStore {
	return &memStore{byID: map[uint64]model.User{}}
}

func (s *memStore) Create(_ context.Context, username, email, password string, cost int) (model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	username = strings.TrimSpace(username)
	email = strings.ToLower(strings.TrimSpace(email))
	for _, u := range s.byID {
		if u.Username == username {
			return model.User{}, repository.ErrUsernameExists
		}
		if u.Email == email {
			return model.User{}, repository.ErrEmailExists
		}
	}

	hash, err := utils.HashPassword(password, cost)
	if err != nil {
		return model.User{}, err
	}

	s.nextID++
	u := model.User{
		ID:           s.nextID,
		Username:     username,
		Email:        email,
		PasswordHash: hash,
		InvalidateAt: time.Now().UTC().Add(-time.Minute),
		CreatedAt:    time.Now().UTC(),
	}
	s.byID[u.ID] = u
	return u, nil
}

func (s *memStore) GetByEmail(_ context.Context, email string) (model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	email = strings.ToLower(strings.TrimSpace(email))
	for _, u := range s.byID {
		if u.Email == email {
			return u, nil
		}
	}
	return model.User{}, repository.ErrUserNotFound
}

func (s *memStore) GetByID(_ context.Context, id uint64) (model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.byID[id]
	if !ok {
		return model.User{}, repository.ErrUserNotFound
	}
	return u, nil
}

func (s *memStore) UpsertFromExternalIdentity(ctx context.Context, email, displayName string, cost int) (model.User, error) {
	if u, err := s.GetByEmail(ctx, email); err == nil {
		return u, nil
	}
	throwaway, err := utils.RandomHex(8)
	if err != nil {
		return model.User{}, err
	}
	return s.Create(ctx, displayName, email, throwaway, cost)
}

func (s *memStore) BumpInvalidate(_ context.Context, userID uint64, t time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.byID[userID]
	if !ok {
		return repository.ErrUserNotFound
	}
	if t.After(u.InvalidateAt) {
		u.InvalidateAt = t
		s.byID[userID] = u
	}
	return nil
}

func (s *memStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.byID)
}

// memCodes mirrors the Redis single-use ledger.
type memCodes struct {
	mu       sync.Mutex
	consumed map[string]bool
}

func newMemCodes() *memCodes {
	return &memCodes{consumed: map[string]bool{}}
}

func (m *memCodes) Consume(_ context.Context, jti string, _ time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.consumed[jti] {
		return false, nil
	}
	m.consumed[jti] = true
	return true, nil
}

func testConfig() config.Config {
	return config.Config{
		PublicUrl: "http://localhost:8080",
		Authentication: config.AuthenticationConfig{
			Secret:            "code-secret",
			AccessSecret:      "access-secret",
			RefreshSecret:     "refresh-secret",
			ClientId:          "test-client",
			ClientSecret:      "test-client-secret",
			RedirectUri:       "http://localhost:8080",
			AuthorizeEndpoint: "http://localhost:8080/oauth2/authorize",
			CookieName:        "webapp_session",
			CookieExpiryDays:  7,
			AccessTTLMin:      30,
			RefreshTTLDays:    30,
			BcryptCost:        bcrypt.MinCost,
		},
	}
}

func testIssuer(cfg config.Config) *token.Issuer {
	return token.NewIssuer(cfg.Authentication, []byte("session-key"))
}
