package auth

import (
	"github.com/google/uuid"

	"github.com/cinerent/cinerent-backend/pkg/enums"
)

// Actor is the authenticated principal a core operation runs on behalf of.
// System jobs use SystemActor.
type Actor struct {
	UserID uuid.UUID
	Role   enums.Role
}

// SystemActor marks work started by the scheduler or the gateway rather than a person.
var SystemActor = Actor{Role: enums.RoleAdmin}

func (a Actor) IsAdmin() bool { return a.Role == enums.RoleAdmin }

// CanAccess reports whether the actor may act on a resource owned by ownerID.
func (a Actor) CanAccess(ownerID uuid.UUID) bool {
	if a.IsAdmin() {
		return true
	}
	return a.UserID != uuid.Nil && a.UserID == ownerID
}

// FromClaims resolves the actor carried by a parsed access token.
func FromClaims(claims *AccessTokenClaims) Actor {
	if claims == nil {
		return Actor{}
	}
	return Actor{UserID: claims.UserID, Role: claims.Role}
}
