package service

import (
	"errors"
	"fmt"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"

	"github.com/axs360/access-engine/internal/axs/types"
)

const DefaultTokenTTL = 5 * time.Minute

type passClaims struct {
	PassID  string `json:"pass_id"`
	OwnerID string `json:"owner_id"`
	jwt.RegisteredClaims
}

// TokenIssuer signs the short-lived tokens rendered as QR codes.  A token
// names a pass; it does not grant access by itself.
type TokenIssuer struct {
	secret []byte
	ttl    time.Duration
	now    Clock
}

func NewTokenIssuer(secret string, ttl time.Duration) *TokenIssuer {
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	return &TokenIssuer{secret: []byte(secret), ttl: ttl, now: SystemClock}
}

func (i *TokenIssuer) WithClock(c Clock) *TokenIssuer {
	i.now = c
	return i
}

// Issue signs a token for p.  It expires after the TTL or when the pass does,
// whichever is first.
func (i *TokenIssuer) Issue(p types.Pass) (types.TokenResponse, error) {
	now := i.now()
	if !p.IsValidAt(now) {
		return types.TokenResponse{}, ErrPassInvalid
	}
	exp := now.Add(i.ttl)
	if p.ValidUntil != nil && p.ValidUntil.Before(exp) {
		exp = *p.ValidUntil
	}

	claims := passClaims{
		PassID:  p.ID,
		OwnerID: p.OwnerID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   p.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
	if err != nil {
		return types.TokenResponse{}, fmt.Errorf("sign pass token: %w", err)
	}
	return types.TokenResponse{Token: signed, PassID: p.ID, ExpiresAt: exp.Truncate(time.Second)}, nil
}

// Resolve verifies a token and returns the pass id it names.
func (i *TokenIssuer) Resolve(token string) (string, error) {
	t, err := jwt.ParseWithClaims(token, &passClaims{}, func(t *jwt.Token) (interface{}, error) {
		return i.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(i.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", fmt.Errorf("%w: expired", ErrInvalidToken)
		}
		return "", ErrInvalidToken
	}
	c, ok := t.Claims.(*passClaims)
	if !ok || !t.Valid || c.PassID == "" {
		return "", ErrInvalidToken
	}
	return c.PassID, nil
}
