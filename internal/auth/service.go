package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
)

// Service registers users, logs them in and verifies session tokens.
//
// It is safe for concurrent use.
type Service struct {
	users  UserRepository
	secret string
	ttl    time.Duration
	params Params

	// dummyHash is verified for unknown usernames to equalise login timing.
	dummyOnce sync.Once
	dummyHash string
}

// NewService creates an auth service.
//
// Parameters:
//   - users: User persistence
//   - secret: HS256 signing key (at least 32 characters)
//   - ttl: Session token lifetime
func NewService(users UserRepository, secret string, ttl time.Duration) *Service {
	return &Service{
		users:  users,
		secret: secret,
		ttl:    ttl,
		params: DefaultParams,
	}
}

// SetHashParams overrides the Argon2id cost used for new hashes.
func (s *Service) SetHashParams(p Params) {
	s.params = p
}

// SessionTTL returns the lifetime of issued tokens.
func (s *Service) SessionTTL() time.Duration {
	return s.ttl
}

// Register creates a user with a hashed password.
func (s *Service) Register(ctx context.Context, username, password string) (*User, error) {
	username = strings.TrimSpace(username)
	if !IsValidUsername(username) {
		return nil, ErrInvalidUsername
	}
	if len(password) < minPasswordLength {
		return nil, ErrPasswordTooShort
	}

	hash, err := s.params.Hash(password)
	if err != nil {
		return nil, err
	}
	return s.users.Create(ctx, username, hash)
}

// Login checks the credentials and returns a signed session token.
// Unknown users and wrong passwords both yield ErrInvalidCredentials.
func (s *Service) Login(ctx context.Context, username, password string) (string, *User, error) {
	user, err := s.users.GetByUsername(ctx, strings.TrimSpace(username))
	if errors.Is(err, ErrUserNotFound) {
		s.burnVerify(password)
		return "", nil, ErrInvalidCredentials
	}
	if err != nil {
		return "", nil, err
	}

	ok, err := VerifyPassword(password, user.PasswordHash)
	if err != nil {
		return "", nil, fmt.Errorf("verifying password: %w", err)
	}
	if !ok {
		return "", nil, ErrInvalidCredentials
	}

	token, err := GenerateSessionToken(user, s.secret, s.ttl)
	if err != nil {
		return "", nil, err
	}
	return token, user, nil
}

// VerifyIdentity resolves a session token to the user it was issued to.
// Tokens for users that no longer exist are rejected.
func (s *Service) VerifyIdentity(ctx context.Context, token string) (int64, error) {
	if token == "" {
		return 0, ErrTokenInvalid
	}

	claims, err := ParseSessionToken(token, s.secret)
	if err != nil {
		return 0, err
	}
	id, err := claims.UserID()
	if err != nil {
		return 0, err
	}

	if _, err := s.users.GetByID(ctx, id); err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return 0, fmt.Errorf("%w: unknown user", ErrTokenInvalid)
		}
		return 0, err
	}
	return id, nil
}

// User returns the account for id.
func (s *Service) User(ctx context.Context, id int64) (*User, error) {
	return s.users.GetByID(ctx, id)
}

// RegisterRFID stores uid as the user's badge credential. An empty uid
// clears it, after which the user's devices cannot be toggled.
func (s *Service) RegisterRFID(ctx context.Context, id int64, uid string) error {
	uid = NormalizeRFID(uid)
	if len(uid) > maxRFIDLength {
		return ErrInvalidRFID
	}
	return s.users.SetRFID(ctx, id, uid)
}

func (s *Service) burnVerify(password string) {
	s.dummyOnce.Do(func() {
		s.dummyHash, _ = s.params.Hash("countrelay-placeholder") //nolint:errcheck // empty hash skips the burn
	})
	if s.dummyHash == "" {
		return
	}
	_, _ = VerifyPassword(password, s.dummyHash) //nolint:errcheck // timing only
}
