package session

import (
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

// The cookie carries the raw session token as the jti of an HS256 JWT signed
// with the session secret. Expiry is enforced by the session row, not the JWT.

func (m *Manager) signToken(token string) (string, error) {
	claims := jwt.RegisteredClaims{
		ID:       token,
		IssuedAt: jwt.NewNumericDate(m.now()),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
	if err != nil {
		return "", fmt.Errorf("error signing session cookie: %w", err)
	}
	return signed, nil
}

func (m *Manager) parseToken(value string) (string, error) {
	claims := &jwt.RegisteredClaims{}
	token, err := jwt.ParseWithClaims(value, claims, func(t *jwt.Token) (interface{}, error) {
		return m.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuedAt(),
		jwt.WithTimeFunc(m.now),
	)
	if err != nil || !token.Valid || claims.ID == "" {
		return "", ErrNoSession
	}
	return claims.ID, nil
}
