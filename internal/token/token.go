// Package token issues and verifies the signed session tokens used by the
// API and the realtime channel. The service is stateless: verification is a
// pure function of the signing key loaded at startup, safe for any number
// of concurrent callers.
package token

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"mentorhub/entity"
)

const issuer = "mentorhub"

// Claims carried inside the signed token.
type Claims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

type Service struct {
	secret []byte
	ttl    time.Duration
}

// New creates a token service. TTL bounds session lifetime; the default of
// seven days is applied by the caller from config.
func New(secret string, ttl time.Duration) (*Service, error) {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return nil, errors.New("auth secret is not configured")
	}
	if ttl <= 0 {
		return nil, errors.New("token ttl must be greater than zero")
	}
	return &Service{secret: []byte(secret), ttl: ttl}, nil
}

// Issue signs a token for the subject with HS256.
func (s *Service) Issue(subjectID string, role entity.Role) (string, error) {
	subjectID = strings.TrimSpace(subjectID)
	if subjectID == "" {
		return "", errors.New("subject id is required")
	}

	now := time.Now().UTC()
	claims := Claims{
		Role: string(role),
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   subjectID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Verify checks signature and expiry and reconstructs the session.
// Failure modes: entity.ErrTokenExpired past the embedded expiry,
// entity.ErrTokenUnsupported for a non-HS256 signature scheme and
// entity.ErrTokenMalformed for everything else.
func (s *Service) Verify(tokenString string) (*entity.Session, error) {
	tokenString = strings.TrimSpace(tokenString)
	if tokenString == "" {
		return nil, entity.ErrTokenMalformed
	}

	parsed, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(t *jwt.Token) (any, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, entity.ErrTokenUnsupported
		}
		return s.secret, nil
	})
	if err != nil {
		switch {
		case errors.Is(err, entity.ErrTokenUnsupported):
			return nil, entity.ErrTokenUnsupported
		case errors.Is(err, jwt.ErrTokenExpired):
			return nil, entity.ErrTokenExpired
		default:
			return nil, entity.ErrTokenMalformed
		}
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, entity.ErrTokenMalformed
	}
	if claims.Issuer != issuer || strings.TrimSpace(claims.Subject) == "" {
		return nil, entity.ErrTokenMalformed
	}
	if claims.IssuedAt == nil || claims.ExpiresAt == nil {
		return nil, entity.ErrTokenMalformed
	}

	return &entity.Session{
		SubjectID: claims.Subject,
		Role:      entity.ParseRole(claims.Role),
		IssuedAt:  claims.IssuedAt.Time,
		ExpiresAt: claims.ExpiresAt.Time,
	}, nil
}
