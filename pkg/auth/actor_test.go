package auth

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"github.com/cinerent/cinerent-backend/pkg/enums"
)

func TestActorCanAccess(t *testing.T) {
	owner := uuid.New()

	renter := Actor{UserID: owner, Role: enums.RoleRenter}
	assert.True(t, renter.CanAccess(owner))
	assert.False(t, renter.CanAccess(uuid.New()))

	admin := Actor{UserID: uuid.New(), Role: enums.RoleAdmin}
	assert.True(t, admin.CanAccess(owner))

	assert.False(t, Actor{Role: enums.RoleRenter}.CanAccess(uuid.Nil))
}

func TestFromClaims(t *testing.T) {
	id := uuid.New()
	actor := FromClaims(&AccessTokenClaims{UserID: id, Role: enums.RoleRenter})
	assert.Equal(t, Actor{UserID: id, Role: enums.RoleRenter}, actor)
	assert.Equal(t, Actor{}, FromClaims(nil))
}
