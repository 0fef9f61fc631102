// Package auth issues and verifies bearer tokens and models who may take part
// in group buys.
package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var ErrInvalidToken = errors.New("auth: invalid token")

// Kind discriminates users. Only customers create or join teams; sellers manage
// the catalog.
type Kind string

const (
	KindCustomer Kind = "customer"
	KindSeller   Kind = "seller"
)

func (k Kind) Valid() bool { return k == KindCustomer || k == KindSeller }

type User struct {
	ID   string
	Kind Kind
}

func (u User) CanParticipate() bool { return u.Kind == KindCustomer }

type Claims struct {
	UserID string `json:"uid"`
	Kind   Kind   `json:"kind"`
	jwt.RegisteredClaims
}

func (c *Claims) User() User { return User{ID: c.UserID, Kind: c.Kind} }

// GenerateToken signs an HS256 token for u valid for ttl from now.
func GenerateToken(secret []byte, u User, ttl time.Duration, now time.Time) (string, error) {
	if u.ID == "" || !u.Kind.Valid() {
		return "", fmt.Errorf("auth: invalid user %q/%q", u.ID, u.Kind)
	}
	claims := Claims{
		UserID: u.ID,
		Kind:   u.Kind,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   u.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}

// Parse verifies signature and expiry and returns the claims.
func Parse(secret []byte, raw string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
		return secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil || !token.Valid {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if claims.UserID == "" || !claims.Kind.Valid() || claims.ID == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// Revoker remembers revoked token ids until the token would have expired anyway.
type Revoker interface {
	Revoke(ctx context.Context, tokenID string, until time.Time) error
	Revoked(ctx context.Context, tokenID string) (bool, error)
}
