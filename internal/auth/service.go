package auth

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"

	"github.com/vovakirdan/agora-server/internal/core"
	"github.com/vovakirdan/agora-server/internal/store"
)

var (
	// ErrInvalidCredentials is returned when login/password don't match.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrUserExists is returned when trying to register with an existing username or email.
	ErrUserExists = errors.New("user already exists")
	// ErrInvalidUsername is returned when username doesn't meet constraints.
	ErrInvalidUsername = errors.New("invalid username")
	// ErrInvalidEmail is returned when the email cannot be parsed.
	ErrInvalidEmail = errors.New("invalid email")
	// ErrInvalidPassword is returned when password doesn't meet constraints.
	ErrInvalidPassword = errors.New("invalid password")
)

// Service issues tokens for local accounts.
type Service struct {
	store     store.AccountStore
	jwtConfig *JWTConfig
}

// NewService creates a new authentication service.
func NewService(accounts store.AccountStore, jwtConfig *JWTConfig) *Service {
	return &Service{
		store:     accounts,
		jwtConfig: jwtConfig,
	}
}

// Register creates a new account with hashed password and returns a JWT token.
func (s *Service) Register(ctx context.Context, username, email, password string) (string, error) {
	username = strings.TrimSpace(username)
	if len(username) < 3 || len(username) > 32 {
		return "", ErrInvalidUsername
	}
	email = strings.TrimSpace(email)
	if email != "" {
		if _, err := mail.ParseAddress(email); err != nil {
			return "", ErrInvalidEmail
		}
	}
	if len(password) < 6 {
		return "", ErrInvalidPassword
	}

	if existing, err := s.store.GetAccountByLogin(ctx, username); err == nil && existing != nil {
		return "", ErrUserExists
	}
	if email != "" {
		if existing, err := s.store.GetAccountByLogin(ctx, email); err == nil && existing != nil {
			return "", ErrUserExists
		}
	}

	hashedPassword, err := HashPassword(password)
	if err != nil {
		return "", err
	}

	acc := &store.Account{
		Username:     username,
		Email:        email,
		PasswordHash: hashedPassword,
		Role:         core.RoleUser,
	}
	if err := s.store.CreateAccount(ctx, acc); err != nil {
		return "", fmt.Errorf("create account: %w", err)
	}

	return s.issue(acc)
}

// Login validates credentials and returns a JWT token. login may be a username or email.
func (s *Service) Login(ctx context.Context, login, password string) (string, error) {
	acc, err := s.store.GetAccountByLogin(ctx, login)
	if err != nil {
		return "", ErrInvalidCredentials
	}
	if acc.PasswordHash == "" {
		return "", ErrInvalidCredentials
	}
	if errPwd := ComparePassword(acc.PasswordHash, password); errPwd != nil {
		return "", ErrInvalidCredentials
	}

	return s.issue(acc)
}

// IssueFor returns a token for an existing account. Used by fixtures and
// trusted collaborators that already authenticated the user.
func (s *Service) IssueFor(acc *store.Account) (string, error) {
	return s.issue(acc)
}

// ValidateToken validates a JWT token and returns the claims.
func (s *Service) ValidateToken(tokenString string) (*Claims, error) {
	return ValidateToken(s.jwtConfig, tokenString)
}

func (s *Service) issue(acc *store.Account) (string, error) {
	token, err := GenerateToken(s.jwtConfig, acc.ID, acc.Username, acc.Role)
	if err != nil {
		return "", fmt.Errorf("generate token: %w", err)
	}
	return token, nil
}
