package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"mediagate/internal/model"
)

var (
	ErrInvalidToken        = errors.New("invalid token")
	ErrExpiredToken        = errors.New("token has expired")
	ErrInvalidTokenType    = errors.New("invalid token type")
	ErrTokenSigningFailed  = errors.New("failed to sign token")
	ErrInvalidSecretLength = errors.New("JWT secret must be at least 32 characters")
)

// TokenType separates session tokens from per-media stream grants.
type TokenType string

const (
	TokenTypeSession TokenType = "session"
	TokenTypeGrant   TokenType = "media_grant"
)

// Claims is the JWT payload. Subject carries the account id.
type Claims struct {
	jwt.RegisteredClaims
	Role    model.Role `json:"role"`
	Type    TokenType  `json:"typ"`
	MediaID string     `json:"media,omitempty"`
}

// TokenConfig configures TokenService.
type TokenConfig struct {
	Secret   string
	Issuer   string
	TokenTTL time.Duration
	GrantTTL time.Duration
}

// TokenService issues and validates HS256 tokens.
type TokenService struct {
	cfg TokenConfig
	now func() time.Time
}

// NewTokenService validates cfg and applies defaults.
func NewTokenService(cfg TokenConfig) (*TokenService, error) {
	if len(cfg.Secret) < 32 {
		return nil, ErrInvalidSecretLength
	}
	if cfg.Issuer == "" {
		cfg.Issuer = "mediagate"
	}
	if cfg.TokenTTL <= 0 {
		cfg.TokenTTL = 24 * time.Hour
	}
	if cfg.GrantTTL <= 0 {
		cfg.GrantTTL = 5 * time.Minute
	}
	return &TokenService{cfg: cfg, now: time.Now}, nil
}

// IssueSession returns a bearer token for an authenticated account.
func (s *TokenService) IssueSession(subject string, role model.Role) (string, error) {
	return s.sign(&Claims{
		RegisteredClaims: s.registered(subject, s.cfg.TokenTTL),
		Role:             role,
		Type:             TokenTypeSession,
	})
}

// IssueGrant returns a short-lived token that authorizes subject to
// stream a single media item.
func (s *TokenService) IssueGrant(subject, mediaID string) (string, error) {
	return s.sign(&Claims{
		RegisteredClaims: s.registered(subject, s.cfg.GrantTTL),
		Role:             model.RoleUser,
		Type:             TokenTypeGrant,
		MediaID:          mediaID,
	})
}

// ValidateSession parses a bearer token and checks that it is a session token.
func (s *TokenService) ValidateSession(tokenString string) (*Claims, error) {
	claims, err := s.parse(tokenString)
	if err != nil {
		return nil, err
	}
	if claims.Type != TokenTypeSession {
		return nil, ErrInvalidTokenType
	}
	return claims, nil
}

// ValidateGrant checks that tokenString is a grant for (subject, mediaID).
func (s *TokenService) ValidateGrant(tokenString, subject, mediaID string) error {
	claims, err := s.parse(tokenString)
	if err != nil {
		return err
	}
	if claims.Type != TokenTypeGrant {
		return ErrInvalidTokenType
	}
	if claims.Subject != subject || claims.MediaID != mediaID {
		return ErrInvalidToken
	}
	return nil
}

func (s *TokenService) registered(subject string, ttl time.Duration) jwt.RegisteredClaims {
	now := s.now()
	return jwt.RegisteredClaims{
		Issuer:    s.cfg.Issuer,
		Subject:   subject,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
}

func (s *TokenService) sign(claims *Claims) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(s.cfg.Secret))
	if err != nil {
		return "", ErrTokenSigningFailed
	}
	return signed, nil
}

func (s *TokenService) parse(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(s.cfg.Secret), nil
	},
		jwt.WithIssuer(s.cfg.Issuer),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.Subject == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
