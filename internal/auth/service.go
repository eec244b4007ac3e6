package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/olegsharov/converse-server/internal/store"
)

var (
	// ErrInvalidCredentials is returned when username/password don't match.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrIdentityExists is returned when registering an existing username.
	ErrIdentityExists = errors.New("identity already exists")
	// ErrInvalidUsername is returned when the username fails constraints.
	ErrInvalidUsername = errors.New("invalid username")
	// ErrInvalidPassword is returned when the password fails constraints.
	ErrInvalidPassword = errors.New("invalid password")
	// ErrInvalidToken is returned when token verification fails. A connection
	// presenting such a token is rejected before any event handler attaches.
	ErrInvalidToken = errors.New("invalid token")
)

// Service provides credential issuance and verification.
type Service struct {
	store     store.IdentityStore
	jwtConfig *JWTConfig
}

// NewService creates a new authentication service.
func NewService(identityStore store.IdentityStore, jwtConfig *JWTConfig) *Service {
	return &Service{
		store:     identityStore,
		jwtConfig: jwtConfig,
	}
}

// Register creates a new identity with hashed password and returns a JWT token.
func (s *Service) Register(ctx context.Context, username, password string) (string, error) {
	username = strings.TrimSpace(username)
	if len(username) < 3 || len(username) > 32 {
		return "", ErrInvalidUsername
	}
	if len(password) < 6 {
		return "", ErrInvalidPassword
	}

	existing, err := s.store.GetIdentityByUsername(ctx, username)
	if err == nil && existing != nil {
		return "", ErrIdentityExists
	}

	hashedPassword, err := HashPassword(password)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}

	ident, err := s.store.CreateIdentity(ctx, username, hashedPassword)
	if err != nil {
		return "", fmt.Errorf("create identity: %w", err)
	}

	token, err := GenerateToken(s.jwtConfig, ident.ID, ident.Username)
	if err != nil {
		return "", fmt.Errorf("generate token: %w", err)
	}
	return token, nil
}

// Login validates credentials and returns a JWT token.
func (s *Service) Login(ctx context.Context, username, password string) (string, error) {
	ident, err := s.store.GetIdentityByUsername(ctx, username)
	if err != nil {
		return "", ErrInvalidCredentials
	}

	if errPwd := ComparePassword(ident.PasswordHash, password); errPwd != nil {
		return "", ErrInvalidCredentials
	}

	token, err := GenerateToken(s.jwtConfig, ident.ID, ident.Username)
	if err != nil {
		return "", fmt.Errorf("generate token: %w", err)
	}
	return token, nil
}

// VerifyToken resolves a token to the owning identity id and username.
// Returns ErrInvalidToken for anything that does not verify.
func (s *Service) VerifyToken(tokenString string) (int64, string, error) {
	claims, err := ValidateToken(s.jwtConfig, tokenString)
	if err != nil {
		return 0, "", fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	return claims.IdentityID, claims.Username, nil
}
