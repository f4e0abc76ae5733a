package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// DefaultAccessTokenTTL is used when no token lifetime is configured.
const DefaultAccessTokenTTL = time.Hour

var (
	// ErrMissingSecret is returned when the signer is built without a secret.
	ErrMissingSecret = errors.New("auth: token secret must be provided")
	// ErrMissingSubject is returned when a token is issued or parsed without a user id.
	ErrMissingSubject = errors.New("auth: token subject is required")
)

// TokenConfig configures a TokenIssuer.
type TokenConfig struct {
	Secret string
	Issuer string
	TTL    time.Duration
	Clock  func() time.Time
}

// Claims are the claims carried by access tokens.
type Claims struct {
	UserID string `json:"uid"`
	Email  string `json:"email,omitempty"`
	jwt.RegisteredClaims
}

// IssuedToken is a signed token together with its expiry.
type IssuedToken struct {
	AccessToken string    `json:"access_token"`
	TokenType   string    `json:"token_type"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// TokenIssuer signs and verifies HS256 access tokens.
type TokenIssuer struct {
	secret []byte
	issuer string
	ttl    time.Duration
	now    func() time.Time
}

// NewTokenIssuer validates cfg and returns an issuer.
func NewTokenIssuer(cfg TokenConfig) (*TokenIssuer, error) {
	if strings.TrimSpace(cfg.Secret) == "" {
		return nil, ErrMissingSecret
	}
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = DefaultAccessTokenTTL
	}
	now := time.Now
	if cfg.Clock != nil {
		now = cfg.Clock
	}
	return &TokenIssuer{secret: []byte(cfg.Secret), issuer: cfg.Issuer, ttl: ttl, now: now}, nil
}

// Issue signs an access token for the user.
func (s *TokenIssuer) Issue(userID, email string) (IssuedToken, error) {
	if strings.TrimSpace(userID) == "" {
		return IssuedToken{}, ErrMissingSubject
	}

	now := s.now()
	expiresAt := now.Add(s.ttl)
	claims := &Claims{
		UserID: userID,
		Email:  email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			Issuer:    s.issuer,
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return IssuedToken{}, fmt.Errorf("auth: sign token: %w", err)
	}
	return IssuedToken{AccessToken: signed, TokenType: "Bearer", ExpiresAt: expiresAt}, nil
}

// Verify parses a signed token and returns its claims.
func (s *TokenIssuer) Verify(token string) (*Claims, error) {
	if token == "" {
		return nil, errors.New("auth: token is empty")
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(s.now),
	}
	if s.issuer != "" {
		opts = append(opts, jwt.WithIssuer(s.issuer))
	}
	parser := jwt.NewParser(opts...)

	var claims Claims
	if _, err := parser.ParseWithClaims(token, &claims, func(*jwt.Token) (interface{}, error) {
		return s.secret, nil
	}); err != nil {
		return nil, fmt.Errorf("auth: parse token: %w", err)
	}
	if claims.UserID == "" {
		return nil, ErrMissingSubject
	}
	return &claims, nil
}
