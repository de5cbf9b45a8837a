package identity

import (
	"errors"
	"fmt"
	"time"

	"auction-engine/internal/domain"

	"github.com/golang-jwt/jwt/v5"
)

type AccessToken struct {
	Token     string    `json:"access_token"`
	ExpiresAt time.Time `json:"expires_at"`
}

func NewAccessToken(secret string, user domain.UserHandle, now time.Time, ttl time.Duration) (AccessToken, error) {
	exp := now.Add(ttl)
	claims := jwt.MapClaims{
		"sub":  user.ID,
		"name": user.DisplayName,
		"role": string(user.Role),
		"iat":  now.Unix(),
		"exp":  exp.Unix(),
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		return AccessToken{}, fmt.Errorf("sign token: %w", err)
	}
	return AccessToken{Token: signed, ExpiresAt: exp}, nil
}

// ParseAccessToken validates raw against secret and returns the handle in its claims.
func ParseAccessToken(secret, raw string, now time.Time) (domain.UserHandle, error) {
	tok, err := jwt.Parse(raw, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return []byte(secret), nil
	}, jwt.WithTimeFunc(func() time.Time { return now }))
	if err != nil || !tok.Valid {
		return domain.UserHandle{}, fmt.Errorf("invalid token: %w", errors.Join(domain.ErrUnauthorized, err))
	}

	claims, ok := tok.Claims.(jwt.MapClaims)
	if !ok {
		return domain.UserHandle{}, fmt.Errorf("invalid claims: %w", domain.ErrUnauthorized)
	}

	sub, _ := claims["sub"].(string)
	name, _ := claims["name"].(string)
	role, _ := claims["role"].(string)
	if sub == "" || !domain.Role(role).Valid() {
		return domain.UserHandle{}, fmt.Errorf("invalid claims: %w", domain.ErrUnauthorized)
	}

	return domain.UserHandle{ID: sub, DisplayName: name, Role: domain.Role(role)}, nil
}
