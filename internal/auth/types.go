// Package auth authenticates operators of the walletvisor API. Operators
// are declared in configuration with bcrypt password hashes and may trade
// their credentials for a short-lived JWT.
package auth

import (
	"errors"
	"time"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrPermissionDenied   = errors.New("permission denied")
)

const (
	RoleAdmin  = "admin"
	RoleViewer = "viewer"

	ActionRead  = "read"
	ActionWrite = "write"
)

// Config enables operator authentication on the API.
type Config struct {
	Enabled   bool          `mapstructure:"enabled"`
	JWTSecret string        `mapstructure:"jwt_secret"`
	TokenTTL  time.Duration `mapstructure:"token_ttl"`
	Operators []Operator    `mapstructure:"operators"`
}

// Operator is one API account. Role is RoleAdmin or RoleViewer.
type Operator struct {
	Name         string `mapstructure:"name"`
	PasswordHash string `mapstructure:"password_hash"`
	Role         string `mapstructure:"role"`
}

// Result is the outcome of a successful authentication.
type Result struct {
	Operator string `json:"operator"`
	Role     string `json:"role"`
	Token    *Token `json:"token,omitempty"`
}

// Token represents a JWT token
type Token struct {
	Type      string    `json:"type"`
	Value     string    `json:"value"`
	ExpiresAt time.Time `json:"expires_at"`
}

// LoginRequest is the body of the login endpoint.
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}
