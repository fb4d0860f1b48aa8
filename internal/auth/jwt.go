// Package auth validates bearer tokens for the narrow API boundary
// (internal/api). Task creation/cancellation need a user_id; the engine
// does not own an identity provider, so this package only verifies
// HMAC-signed tokens against a configured shared secret.
package auth

import (
	"encoding/base64"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

// Claims is the subset of JWT claims the engine relies on: the subject
// becomes Task.user_id.
type Claims struct {
	UserID string
}

// ValidateToken verifies tokenString against secret and extracts the
// subject claim used as the task's user_id.
func ValidateToken(tokenString, secret string) (*Claims, error) {
	if secret == "" {
		return nil, fmt.Errorf("auth: no JWT secret configured")
	}
	key, err := decodeSecret(secret)
	if err != nil {
		return nil, err
	}

	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return key, nil
	})
	if err != nil {
		return nil, fmt.Errorf("token validation failed: %w", err)
	}
	if !token.Valid {
		return nil, fmt.Errorf("token is not valid")
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, fmt.Errorf("invalid claims type")
	}
	sub, _ := claims["sub"].(string)
	if sub == "" {
		return nil, fmt.Errorf("token missing subject claim")
	}
	return &Claims{UserID: sub}, nil
}

func decodeSecret(secret string) ([]byte, error) {
	if decoded, err := base64.URLEncoding.DecodeString(secret); err == nil {
		return decoded, nil
	}
	if decoded, err := base64.StdEncoding.DecodeString(secret); err == nil {
		return decoded, nil
	}
	return []byte(secret), nil
}
