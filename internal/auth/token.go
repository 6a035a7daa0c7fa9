package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/example/order-pipeline/internal/domain"
	"github.com/golang-jwt/jwt/v5"
)

// Tokens issues and verifies HS256 bearer tokens carrying a userId claim.
type Tokens struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

type claims struct {
	UserID string `json:"userId"`
	jwt.RegisteredClaims
}

func NewTokens(secret string, ttl time.Duration) *Tokens {
	return &Tokens{secret: []byte(secret), ttl: ttl, now: time.Now}
}

func (t *Tokens) Issue(userID string) (string, error) {
	now := t.now()
	c := claims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(t.ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(t.secret)
}

// Verify returns the userId of a valid, unexpired token. All failures wrap domain.ErrAuth.
func (t *Tokens) Verify(token string) (string, error) {
	if token == "" {
		return "", fmt.Errorf("%w: missing token", domain.ErrAuth)
	}
	var c claims
	_, err := jwt.ParseWithClaims(token, &c, func(*jwt.Token) (any, error) { return t.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(t.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", fmt.Errorf("%w: token expired", domain.ErrAuth)
		}
		return "", fmt.Errorf("%w: %v", domain.ErrAuth, err)
	}
	if c.UserID == "" {
		return "", fmt.Errorf("%w: invalid token", domain.ErrAuth)
	}
	return c.UserID, nil
}
