// Package identity issues and verifies the bearer tokens field apps present.
// A token names the subject, the partitions it may use and whether it is
// privileged.
package identity

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	dErrors "voterstore/pkg/domain-errors"
	authmw "voterstore/pkg/platform/middleware/auth"
)

// Claims are the access token claims.
type Claims struct {
	Partitions []string `json:"partitions,omitempty"`
	Privileged bool     `json:"privileged,omitempty"`
	jwt.RegisteredClaims
}

// Service signs and validates HS256 tokens.
type Service struct {
	signingKey []byte
	issuer     string
	now        func() time.Time
}

// NewService constructs a token service.
func NewService(signingKey, issuer string) *Service {
	return &Service{signingKey: []byte(signingKey), issuer: issuer, now: time.Now}
}

// Issue signs a token for id valid for ttl. Used by operator tooling and tests.
func (s *Service) Issue(id authmw.Identity, ttl time.Duration) (string, error) {
	if id.Subject == "" {
		return "", dErrors.New(dErrors.CodeValidation, "subject is required")
	}
	now := s.now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		Partitions: id.Partitions,
		Privileged: id.Privileged,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   id.Subject,
			Issuer:    s.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			ID:        uuid.NewString(),
		},
	})
	signed, err := token.SignedString(s.signingKey)
	if err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeInternal, "failed to sign token")
	}
	return signed, nil
}

// Validate verifies signature, issuer and expiry and returns the claims.
func (s *Service) Validate(tokenString string) (*Claims, error) {
	parsed, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrTokenUnverifiable
		}
		return s.signingKey, nil
	},
		jwt.WithIssuer(s.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, dErrors.New(dErrors.CodeUnauthorized, "token has expired")
		}
		return nil, dErrors.New(dErrors.CodeUnauthorized, "invalid token")
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid || claims.Subject == "" {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "invalid token claims")
	}
	return claims, nil
}

// ValidateToken adapts Validate to the bearer middleware.
func (s *Service) ValidateToken(tokenString string) (*authmw.Identity, error) {
	claims, err := s.Validate(tokenString)
	if err != nil {
		return nil, err
	}
	return &authmw.Identity{
		Subject:    claims.Subject,
		Partitions: claims.Partitions,
		Privileged: claims.Privileged,
	}, nil
}
