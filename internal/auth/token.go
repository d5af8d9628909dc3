package auth

import (
	"errors"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"

	"github.com/spec-kit/helpdesk/internal/domain"
)

// TokenManager handles issuing and validating JWT tokens.
type TokenManager struct {
	secret []byte
	ttl    time.Duration
}

// NewTokenManager builds a new manager.
func NewTokenManager(secret string, ttlMinutes int) *TokenManager {
	if ttlMinutes <= 0 {
		ttlMinutes = 60
	}
	return &TokenManager{secret: []byte(secret), ttl: time.Duration(ttlMinutes) * time.Minute}
}

// Claims describes JWT payload. The identity provider owns these values; the service
// trusts them as the acting identity.
type Claims struct {
	Role   domain.UserRole `json:"role"`
	Team   domain.Team     `json:"team,omitempty"`
	Sector string          `json:"sector,omitempty"`
	jwt.RegisteredClaims
}

// Actor converts the claims into the acting identity.
func (c *Claims) Actor() domain.Actor {
	return domain.Actor{ID: c.Subject, Role: c.Role, Team: c.Team, Sector: c.Sector}
}

// GenerateToken builds and signs a JWT for the actor.
func (tm *TokenManager) GenerateToken(actor domain.Actor) (string, time.Time, error) {
	now := time.Now()
	expiresAt := now.Add(tm.ttl)
	claims := &Claims{
		Role:   actor.Role,
		Team:   actor.Team,
		Sector: actor.Sector,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   actor.ID,
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString(tm.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return tokenString, expiresAt, nil
}

// ParseToken validates and returns claims.
func (tm *TokenManager) ParseToken(tokenStr string) (*Claims, error) {
	parsed, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if token.Method != jwt.SigningMethodHS256 {
			return nil, errors.New("unexpected signing method")
		}
		return tm.secret, nil
	})
	if err != nil {
		return nil, err
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, errors.New("invalid token claims")
	}
	if claims.Subject == "" {
		return nil, errors.New("token without subject")
	}
	switch claims.Role {
	case domain.RoleUser, domain.RoleSupport, domain.RoleAdmin:
	default:
		return nil, errors.New("unknown role")
	}
	return claims, nil
}
