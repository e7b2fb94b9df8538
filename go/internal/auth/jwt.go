package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/mcdev12/breakroom/go/internal/gameerr"
)

const (
	AccessTokenExpiry = 12 * time.Hour
	Issuer            = "breakroom"
)

// Claims are the token claims. Role is not trusted from the token; it is loaded from profiles.
type Claims struct {
	Email string `json:"email"`
	jwt.RegisteredClaims
}

// UserID returns the subject as a uuid.
func (c *Claims) UserID() (uuid.UUID, error) {
	id, err := uuid.Parse(c.Subject)
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: invalid subject", gameerr.ErrUnauthenticated)
	}
	return id, nil
}

// Signer issues and validates HS256 access tokens.
type Signer struct {
	secret []byte
	now    func() time.Time
}

func NewSigner(secret string) *Signer {
	return &Signer{secret: []byte(secret), now: time.Now}
}

// GenerateAccessToken issues a token for the given user.
func (s *Signer) GenerateAccessToken(userID uuid.UUID, email string, ttl time.Duration) (string, error) {
	now := s.now()
	claims := Claims{
		Email: email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID.String(),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    Issuer,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}

// ValidateAccessToken parses and verifies a token. Every failure wraps ErrUnauthenticated.
func (s *Signer) ValidateAccessToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return s.secret, nil
	}, jwt.WithIssuer(Issuer), jwt.WithTimeFunc(s.now))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", gameerr.ErrUnauthenticated, err)
	}

	if claims, ok := token.Claims.(*Claims); ok && token.Valid {
		return claims, nil
	}
	return nil, fmt.Errorf("%w: invalid token", gameerr.ErrUnauthenticated)
}

// BearerToken extracts the token from an Authorization header value.
func BearerToken(header string) (string, error) {
	if header == "" {
		return "", fmt.Errorf("%w: authorization header required", gameerr.ErrUnauthenticated)
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" || parts[1] == "" {
		return "", fmt.Errorf("%w: invalid authorization header format", gameerr.ErrUnauthenticated)
	}
	return parts[1], nil
}
