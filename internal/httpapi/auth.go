package httpapi

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"

	"github.com/axs360/access-engine/internal/axs/types"
)

var errUnauthenticated = errors.New("unauthenticated")

// Claims are the bearer-token claims asserted by the identity service.
type Claims struct {
	Role       string `json:"role"`
	BusinessID string `json:"business_id,omitempty"`
	jwt.RegisteredClaims
}

// Authenticator verifies HS256 bearer tokens.  Token issuance belongs to the
// identity service; Sign exists for dev tooling and tests.
type Authenticator struct {
	secret []byte
}

func NewAuthenticator(secret string) *Authenticator {
	return &Authenticator{secret: []byte(secret)}
}

func (a *Authenticator) Principal(token string) (types.Principal, error) {
	t, err := jwt.ParseWithClaims(token, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		return a.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return types.Principal{}, fmt.Errorf("%w: %v", errUnauthenticated, err)
	}
	c, ok := t.Claims.(*Claims)
	if !ok || !t.Valid || c.Subject == "" {
		return types.Principal{}, errUnauthenticated
	}

	role := types.Role(c.Role)
	switch role {
	case types.RoleUser, types.RoleBusiness, types.RoleAdmin, types.RoleScanner:
	default:
		return types.Principal{}, fmt.Errorf("%w: unknown role %q", errUnauthenticated, c.Role)
	}
	return types.Principal{UserID: c.Subject, BusinessID: c.BusinessID, Role: role}, nil
}

func (a *Authenticator) Sign(p types.Principal, ttl time.Duration) (string, error) {
	claims := Claims{
		Role:       string(p.Role),
		BusinessID: p.BusinessID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   p.UserID,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
}

func bearerToken(r *http.Request) (string, bool) {
	h := r.Header.Get("Authorization")
	if !strings.HasPrefix(h, "Bearer ") {
		return "", false
	}
	tok := strings.TrimSpace(strings.TrimPrefix(h, "Bearer "))
	return tok, tok != ""
}
