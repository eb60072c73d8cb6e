package auth

import (
	"fmt"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const csrfAudience = "csrf"

// NewCSRFNonce returns a fresh value for the csrf cookie.
func NewCSRFNonce() string {
	return uuid.NewString()
}

// CSRFToken signs nonce into the token embedded in forms. A form post is
// accepted only when its token matches the nonce in the caller's cookie.
func (s *Signer) CSRFToken(nonce string) (string, error) {
	claims := jwt.RegisteredClaims{
		Subject:  nonce,
		Audience: jwt.ClaimStrings{csrfAudience},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.key)
	if err != nil {
		return "", fmt.Errorf("failed to sign csrf token: %w", err)
	}
	return token, nil
}

// CheckCSRF reports whether token was issued for nonce.
func (s *Signer) CheckCSRF(nonce, token string) bool {
	if nonce == "" || token == "" {
		return false
	}
	claims := &jwt.RegisteredClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		return s.key, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithAudience(csrfAudience),
	)
	return err == nil && parsed.Valid && claims.Subject == nonce
}
