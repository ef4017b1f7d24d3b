// Package auth issues and validates the bearer tokens used by the REST
// surface and the websocket join handshake. Tokens are opaque random
// strings held in a TokenStore with a TTL; guests get a shorter-lived
// token and a synthetic identity.
package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/sketchsync/sketchsync/internal/metrics"
	"github.com/sketchsync/sketchsync/internal/models"
	"github.com/sketchsync/sketchsync/internal/store"
)

var (
	// ErrInvalidToken marks an unknown or expired bearer token.
	ErrInvalidToken = errors.New("auth: invalid or expired token")
	// ErrInvalidCredentials marks a failed email/password login.
	ErrInvalidCredentials = errors.New("auth: invalid credentials")
	// ErrEmailTaken marks a registration against an existing email.
	ErrEmailTaken = errors.New("auth: email already registered")
)

// AccountStore is the slice of the data store the auth service needs.
type AccountStore interface {
	CreateAccount(ctx context.Context, email, name, passwordHash string) (*models.Account, error)
	GetAccountByEmail(ctx context.Context, email string) (*models.Account, error)
}

// Service validates credentials and manages bearer tokens.
type Service struct {
	accounts   AccountStore
	tokens     store.TokenStore
	sessionTTL time.Duration
	guestTTL   time.Duration
}

// NewService creates an auth service.
func NewService(accounts AccountStore, tokens store.TokenStore, sessionTTL, guestTTL time.Duration) *Service {
	return &Service{
		accounts:   accounts,
		tokens:     tokens,
		sessionTTL: sessionTTL,
		guestTTL:   guestTTL,
	}
}

// Register creates an account with a bcrypt-hashed password.
func (s *Service) Register(ctx context.Context, email, name, password string) (*models.Account, error) {
	email = strings.ToLower(strings.TrimSpace(email))

	existing, err := s.accounts.GetAccountByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, ErrEmailTaken
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}
	return s.accounts.CreateAccount(ctx, email, name, string(hash))
}

// Login checks the password and issues a session token.
func (s *Service) Login(ctx context.Context, email, password string) (string, *models.Account, error) {
	email = strings.ToLower(strings.TrimSpace(email))

	acc, err := s.accounts.GetAccountByEmail(ctx, email)
	if err != nil {
		return "", nil, err
	}
	if acc == nil {
		metrics.AuthFailures.Inc()
		return "", nil, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(acc.PasswordHash), []byte(password)); err != nil {
		metrics.AuthFailures.Inc()
		return "", nil, ErrInvalidCredentials
	}

	token := newToken()
	identity := models.Identity{UserID: acc.ID.String(), Name: acc.Name}
	if err := s.tokens.SaveToken(ctx, token, identity, s.sessionTTL); err != nil {
		return "", nil, err
	}
	metrics.TokensIssued.WithLabelValues("session").Inc()
	return token, acc, nil
}

// Anonymous issues a short-lived guest token for the given display
// name. Guests have no account; their identity lives only in the token.
func (s *Service) Anonymous(ctx context.Context, name string) (string, models.Identity, error) {
	identity := models.Identity{
		UserID: "guest-" + uuid.NewString()[:8],
		Name:   name,
		Guest:  true,
	}
	token := newToken()
	if err := s.tokens.SaveToken(ctx, token, identity, s.guestTTL); err != nil {
		return "", models.Identity{}, err
	}
	metrics.TokensIssued.WithLabelValues("guest").Inc()
	return token, identity, nil
}

// Validate resolves a bearer token to its identity. This is the
// credential check performed before any room join.
func (s *Service) Validate(ctx context.Context, token string) (models.Identity, error) {
	if token == "" {
		metrics.AuthFailures.Inc()
		return models.Identity{}, ErrInvalidToken
	}
	identity, err := s.tokens.GetToken(ctx, token)
	if err != nil {
		return models.Identity{}, err
	}
	if identity == nil {
		metrics.AuthFailures.Inc()
		return models.Identity{}, ErrInvalidToken
	}
	return *identity, nil
}

// Logout revokes a token. Unknown tokens are a no-op.
func (s *Service) Logout(ctx context.Context, token string) error {
	return s.tokens.DeleteToken(ctx, token)
}

// newToken returns 256 bits of entropy, hex encoded.
func newToken() string {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		panic(err) // crypto/rand failure is unrecoverable
	}
	return hex.EncodeToString(buf)
}
