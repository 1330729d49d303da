package disputes

import (
	"context"

	"github.com/linesmerrill/chama-disputes-api/models"
)

// Role is a capability a caller holds with respect to one chama
type Role string

// Roles checked by lifecycle operations
const (
	RoleChamaMember   Role = "chama_member"
	RoleChamaOfficer  Role = "chama_officer"
	RolePlatformAdmin Role = "platform_admin"
)

// Actor identifies the caller of an operation. PlatformAdmin comes from the
// authenticated token, never from the request body.
type Actor struct {
	UserID        string
	PlatformAdmin bool
}

// SystemActorID is recorded as the actor of scanner-driven transitions
const SystemActorID = "system"

// Capabilities is the resolved role set of an actor within a chama
type Capabilities struct {
	roles     map[Role]bool
	chamaRole string
}

// Has reports whether the capability set includes r
func (c Capabilities) Has(r Role) bool {
	return c.roles[r]
}

// ChamaAdmin reports whether the actor is the chama's admin (not just any
// officer). Only chama admins and platform admins may override status.
func (c Capabilities) ChamaAdmin() bool {
	return c.roles[RoleChamaMember] && c.chamaRole == models.ChamaRoleAdmin
}

// Primary returns the strongest role held, for audit rows
func (c Capabilities) Primary() Role {
	switch {
	case c.Has(RolePlatformAdmin):
		return RolePlatformAdmin
	case c.Has(RoleChamaOfficer):
		return RoleChamaOfficer
	case c.Has(RoleChamaMember):
		return RoleChamaMember
	}
	return ""
}

// IsOfficerRole reports whether a chama role string is an officer role
func IsOfficerRole(chamaRole string) bool {
	switch chamaRole {
	case models.ChamaRoleAdmin, models.ChamaRoleTreasurer, models.ChamaRoleSecretary:
		return true
	}
	return false
}

// capabilities resolves the actor's role set once per operation
func (s *Service) capabilities(ctx context.Context, chamaID string, actor Actor) (Capabilities, error) {
	c := Capabilities{roles: map[Role]bool{}}
	if actor.PlatformAdmin {
		c.roles[RolePlatformAdmin] = true
	}
	if actor.UserID == "" {
		return c, nil
	}

	active, err := s.Members.IsActiveMember(ctx, chamaID, actor.UserID)
	if err != nil {
		return c, unavailable("membership lookup", err)
	}
	if !active {
		return c, nil
	}
	c.roles[RoleChamaMember] = true

	role, err := s.Members.Role(ctx, chamaID, actor.UserID)
	if err != nil {
		return c, unavailable("role lookup", err)
	}
	c.chamaRole = role
	if IsOfficerRole(role) {
		c.roles[RoleChamaOfficer] = true
	}
	return c, nil
}
