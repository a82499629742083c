package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/angelmondragon/carrental-backend/pkg/config"
)

// Clock skew tolerated between the token issuer and this service.
const clockLeeway = 30 * time.Second

var signingMethod = jwt.SigningMethodHS256

var errNoSecret = errors.New("jwt secret is required")

// MintAccessToken signs an HS256 token valid from now for cfg.Expiration().
// Production tokens come from the identity provider; this mints the same
// shape for local tooling and tests.
func MintAccessToken(cfg config.JWTConfig, now time.Time, payload AccessTokenPayload) (string, error) {
	switch {
	case cfg.Secret == "":
		return "", errNoSecret
	case cfg.Issuer == "":
		return "", errors.New("jwt issuer is required")
	}

	claims := AccessTokenClaims{
		UserID: payload.UserID,
		Role:   payload.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    cfg.Issuer,
			Subject:   payload.UserID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(cfg.Expiration())),
			ID:        strings.TrimSpace(payload.JTI),
		},
	}
	if err := claims.Validate(); err != nil {
		return "", err
	}
	if claims.ID == "" {
		claims.ID = uuid.NewString()
	}

	signed, err := jwt.NewWithClaims(signingMethod, claims).SignedString([]byte(cfg.Secret))
	if err != nil {
		return "", fmt.Errorf("signing jwt: %w", err)
	}
	return signed, nil
}

// ParseAccessToken verifies signature, issuer and expiry, then the identity claims.
func ParseAccessToken(cfg config.JWTConfig, raw string) (*AccessTokenClaims, error) {
	if cfg.Secret == "" {
		return nil, errNoSecret
	}
	key := []byte(cfg.Secret)

	claims := &AccessTokenClaims{}
	_, err := jwt.ParseWithClaims(raw, claims,
		func(*jwt.Token) (any, error) { return key, nil },
		jwt.WithValidMethods([]string{signingMethod.Alg()}),
		jwt.WithIssuer(cfg.Issuer),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(clockLeeway),
	)
	if err != nil {
		return nil, err
	}
	return claims, nil
}
