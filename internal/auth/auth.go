package auth

import (
	"errors"
)

var ErrAuthDisabled = errors.New("authentication is disabled")

// Authenticator guards the HTTP surfaces with bearer tokens
type Authenticator struct {
	enabled    bool
	jwtManager *JWTManager
}

// NewAuthenticator creates an authenticator. When disabled every request
// is let through.
func NewAuthenticator(enabled bool, manager *JWTManager) *Authenticator {
	if manager == nil {
		manager = NewJWTManager("", 0)
	}
	return &Authenticator{
		enabled:    enabled,
		jwtManager: manager,
	}
}

// IsEnabled returns whether authentication is enabled
func (a *Authenticator) IsEnabled() bool {
	return a.enabled
}

// ValidateToken validates a JWT token
func (a *Authenticator) ValidateToken(token string) (*Claims, error) {
	return a.jwtManager.ValidateToken(token)
}

// IssueToken mints a token for subject and returns it with its Unix expiry
func (a *Authenticator) IssueToken(subject string) (string, int64, error) {
	if !a.enabled {
		return "", 0, ErrAuthDisabled
	}
	token, expiresAt, err := a.jwtManager.GenerateToken(subject)
	if err != nil {
		return "", 0, err
	}
	return token, expiresAt.Unix(), nil
}

// JWTManager returns the JWT manager
func (a *Authenticator) JWTManager() *JWTManager {
	return a.jwtManager
}
