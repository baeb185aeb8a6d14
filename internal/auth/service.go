package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

const defaultTokenTTL = 12 * time.Hour

// Service checks operator credentials and issues tokens.
type Service struct {
	operators map[string]Operator
	jwtSecret []byte
	tokenTTL  time.Duration
	now       func() time.Time
}

// Claims represents JWT claims
type Claims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// Validate reports configuration problems without building a Service.
func (c Config) Validate() error {
	if !c.Enabled {
		return nil
	}
	var errs []error
	if len(c.Operators) == 0 {
		errs = append(errs, errors.New("server.auth: enabled without operators"))
	}
	seen := map[string]bool{}
	for i, op := range c.Operators {
		switch {
		case op.Name == "":
			errs = append(errs, fmt.Errorf("server.auth.operators[%d]: name is required", i))
		case seen[op.Name]:
			errs = append(errs, fmt.Errorf("server.auth.operators[%d]: duplicate name %q", i, op.Name))
		}
		seen[op.Name] = true
		if _, err := bcrypt.Cost([]byte(op.PasswordHash)); err != nil {
			errs = append(errs, fmt.Errorf("server.auth.operators[%d]: password_hash is not a bcrypt hash", i))
		}
		if op.Role != "" && op.Role != RoleAdmin && op.Role != RoleViewer {
			errs = append(errs, fmt.Errorf("server.auth.operators[%d]: unknown role %q", i, op.Role))
		}
	}
	return errors.Join(errs...)
}

// NewService builds a Service. A missing JWT secret is replaced with a
// random one, so tokens do not survive a restart.
func NewService(c Config) (*Service, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	secret := []byte(c.JWTSecret)
	if len(secret) == 0 {
		secret = make([]byte, 32)
		if _, err := rand.Read(secret); err != nil {
			return nil, fmt.Errorf("failed to generate JWT secret: %w", err)
		}
	}
	ttl := c.TokenTTL
	if ttl <= 0 {
		ttl = defaultTokenTTL
	}
	ops := make(map[string]Operator, len(c.Operators))
	for _, op := range c.Operators {
		if op.Role == "" {
			op.Role = RoleViewer
		}
		ops[op.Name] = op
	}
	return &Service{operators: ops, jwtSecret: secret, tokenTTL: ttl, now: time.Now}, nil
}

// HashPassword returns the bcrypt hash to put in an operator entry.
func HashPassword(password string) (string, error) {
	if password == "" {
		return "", errors.New("password must not be empty")
	}
	h, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(h), nil
}

// Login checks a name and password and issues a token.
func (s *Service) Login(name, password string) (*Result, error) {
	op, err := s.verify(name, password)
	if err != nil {
		return nil, err
	}
	tok, err := s.issue(op)
	if err != nil {
		return nil, err
	}
	return &Result{Operator: op.Name, Role: op.Role, Token: tok}, nil
}

// Basic authenticates HTTP basic credentials without issuing a token.
func (s *Service) Basic(name, password string) (*Result, error) {
	op, err := s.verify(name, password)
	if err != nil {
		return nil, err
	}
	return &Result{Operator: op.Name, Role: op.Role}, nil
}

func (s *Service) verify(name, password string) (Operator, error) {
	op, ok := s.operators[name]
	if !ok || password == "" {
		return Operator{}, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(op.PasswordHash), []byte(password)); err != nil {
		return Operator{}, ErrInvalidCredentials
	}
	return op, nil
}

func (s *Service) issue(op Operator) (*Token, error) {
	now := s.now()
	exp := now.Add(s.tokenTTL)
	claims := Claims{
		Role: op.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   op.Name,
			Issuer:    "walletvisor",
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.jwtSecret)
	if err != nil {
		return nil, fmt.Errorf("failed to sign token: %w", err)
	}
	return &Token{Type: "Bearer", Value: signed, ExpiresAt: exp}, nil
}

// Verify validates a bearer token. Operators removed from the config lose
// access even while their tokens are unexpired.
func (s *Service) Verify(token string) (*Result, error) {
	if token == "" {
		return nil, ErrInvalidCredentials
	}
	parsed, err := jwt.ParseWithClaims(token, &Claims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.jwtSecret, nil
	}, jwt.WithTimeFunc(s.now), jwt.WithIssuer("walletvisor"))
	if err != nil {
		return nil, ErrInvalidCredentials
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, ErrInvalidCredentials
	}
	op, ok := s.operators[claims.Subject]
	if !ok || subtle.ConstantTimeCompare([]byte(op.Role), []byte(claims.Role)) != 1 {
		return nil, ErrInvalidCredentials
	}
	return &Result{Operator: op.Name, Role: op.Role}, nil
}

// Allowed reports whether role may perform action.
func Allowed(role, action string) bool {
	switch role {
	case RoleAdmin:
		return true
	case RoleViewer:
		return action == ActionRead
	default:
		return false
	}
}
