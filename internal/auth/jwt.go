package auth

import (
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

// Claims is the identity the rest of the backend trusts. It is never
// re-derived past this point.
type Claims struct {
	UserID string
	Role   string
}

type tokenClaims struct {
	UserID string `json:"user_id"`
	Role   string `json:"role"`
	jwt.RegisteredClaims
}

// ParseToken validates an HS256 bearer token and extracts the identity.
func ParseToken(secret, tokenStr string) (*Claims, error) {
	var tc tokenClaims
	token, err := jwt.ParseWithClaims(tokenStr, &tc, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return []byte(secret), nil
	})
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, errors.New("invalid token")
	}
	if tc.UserID == "" {
		return nil, errors.New("token missing user_id")
	}
	return &Claims{UserID: tc.UserID, Role: tc.Role}, nil
}

// SignToken issues a token for the given identity. The auth service owns
// issuing in production; this exists for tooling and tests.
func SignToken(secret, userID, role string) (string, error) {
	tc := tokenClaims{UserID: userID, Role: role}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, tc)
	return token.SignedString([]byte(secret))
}
