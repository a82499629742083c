package auth

import (
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/angelmondragon/carrental-backend/pkg/enums"
)

// AccessTokenPayload is the identity baked into a new token. An empty JTI gets a random one.
type AccessTokenPayload struct {
	UserID uuid.UUID
	Role   enums.Role
	JTI    string
}

// AccessTokenClaims is the JWT body. The identity provider is external; this
// service only checks what it signed.
type AccessTokenClaims struct {
	UserID uuid.UUID  `json:"user_id"`
	Role   enums.Role `json:"role"`
	jwt.RegisteredClaims
}

// Validate runs after the registered claims pass, via jwt.ClaimsValidator.
func (c AccessTokenClaims) Validate() error {
	if c.UserID == uuid.Nil {
		return errors.New("token missing user id")
	}
	if !c.Role.IsValid() {
		return fmt.Errorf("token carries invalid role %q", c.Role)
	}
	if c.Subject != "" && c.Subject != c.UserID.String() {
		return errors.New("token subject does not match user id")
	}
	return nil
}

