// Package auth issues and checks the gateway's own bearer tokens. Accounts
// live in a process-local registry and reset with the process, like the
// conversation store.
package auth

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

const minPasswordLength = 6

var (
	ErrSecretRequired     = errors.New("auth: jwt secret required")
	ErrUserExists         = errors.New("auth: user already exists")
	ErrEmailExists        = errors.New("auth: email already registered")
	ErrUsernameRequired   = errors.New("auth: username is required")
	ErrPasswordTooWeak    = errors.New("auth: password must be at least 6 characters")
	ErrInvalidCredentials = errors.New("auth: invalid credentials")
	ErrInvalidToken       = errors.New("auth: invalid token")
)

// User is the public view of an account. Password hashes never leave the
// registry.
type User struct {
	ID        string    `json:"id"`
	Username  string    `json:"username"`
	Email     string    `json:"email,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

type account struct {
	user         User
	passwordHash []byte
}

type RegisterInput struct {
	Username string
	Email    string
	Password string
}

type LoginInput struct {
	Identifier string
	Password   string
}

type AuthResult struct {
	Token     string
	ExpiresAt time.Time
	User      User
}

// Service keeps the account registry and signs HMAC bearer tokens for it.
type Service struct {
	secret []byte
	ttl    time.Duration

	mu       sync.RWMutex
	accounts map[string]*account // keyed by lowercase username
	emails   map[string]string   // lowercase email -> username key
}

func NewService(secret string, ttl time.Duration) (*Service, error) {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return nil, ErrSecretRequired
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}

	return &Service{
		secret:   []byte(secret),
		ttl:      ttl,
		accounts: make(map[string]*account),
		emails:   make(map[string]string),
	}, nil
}

func (s *Service) Register(ctx context.Context, input RegisterInput) (*AuthResult, error) {
	_ = ctx

	username := strings.TrimSpace(input.Username)
	if username == "" {
		return nil, ErrUsernameRequired
	}
	if len(strings.TrimSpace(input.Password)) < minPasswordLength {
		return nil, ErrPasswordTooWeak
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(input.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}

	acct := &account{
		user: User{
			ID:        uuid.NewString(),
			Username:  username,
			Email:     strings.TrimSpace(input.Email),
			CreatedAt: time.Now().UTC(),
		},
		passwordHash: hash,
	}

	nameKey := strings.ToLower(username)
	emailKey := strings.ToLower(acct.user.Email)

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, taken := s.accounts[nameKey]; taken {
		return nil, ErrUserExists
	}
	if emailKey != "" {
		if _, taken := s.emails[emailKey]; taken {
			return nil, ErrEmailExists
		}
	}

	s.accounts[nameKey] = acct
	if emailKey != "" {
		s.emails[emailKey] = nameKey
	}

	return s.issue(acct)
}

func (s *Service) Login(ctx context.Context, input LoginInput) (*AuthResult, error) {
	_ = ctx

	identifier := strings.TrimSpace(input.Identifier)
	if identifier == "" || input.Password == "" {
		return nil, ErrInvalidCredentials
	}

	s.mu.RLock()
	acct := s.lookup(identifier)
	s.mu.RUnlock()

	if acct == nil {
		return nil, ErrInvalidCredentials
	}
	if bcrypt.CompareHashAndPassword(acct.passwordHash, []byte(input.Password)) != nil {
		return nil, ErrInvalidCredentials
	}

	return s.issue(acct)
}

func (s *Service) VerifyToken(token string) (*jwt.RegisteredClaims, error) {
	parsed, err := jwt.ParseWithClaims(token, &jwt.RegisteredClaims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return s.secret, nil
	})
	if err != nil {
		return nil, err
	}

	claims, ok := parsed.Claims.(*jwt.RegisteredClaims)
	if !ok || !parsed.Valid {
		return nil, ErrInvalidToken
	}

	return claims, nil
}

// lookup resolves an identifier as a username first, then as an email.
// Callers must hold at least the read lock.
func (s *Service) lookup(identifier string) *account {
	key := strings.ToLower(identifier)
	if acct, ok := s.accounts[key]; ok {
		return acct
	}
	if nameKey, ok := s.emails[key]; ok {
		return s.accounts[nameKey]
	}
	return nil
}

func (s *Service) issue(acct *account) (*AuthResult, error) {
	now := time.Now().UTC()
	expiresAt := now.Add(s.ttl)

	claims := jwt.RegisteredClaims{
		Subject:   acct.user.ID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(expiresAt),
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return nil, err
	}

	return &AuthResult{Token: signed, ExpiresAt: expiresAt, User: acct.user}, nil
}
