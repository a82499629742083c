package auth

import (
	"github.com/google/uuid"

	"github.com/angelmondragon/carrental-backend/pkg/enums"
)

// Actor is the authenticated caller passed explicitly into service operations.
type Actor struct {
	UserID uuid.UUID
	Role   enums.Role
}

// ActorFromClaims builds the actor carried by a verified access token.
func ActorFromClaims(claims *AccessTokenClaims) Actor {
	if claims == nil {
		return Actor{}
	}
	return Actor{UserID: claims.UserID, Role: claims.Role}
}

func (a Actor) IsAdmin() bool {
	return a.Role == enums.RoleAdmin
}

// CanAccess reports whether the actor owns the resource or is an admin.
func (a Actor) CanAccess(ownerID uuid.UUID) bool {
	if a.UserID == uuid.Nil {
		return false
	}
	return a.IsAdmin() || a.UserID == ownerID
}
