package shared

import (
	"slices"

	"github.com/google/uuid"
)

// Actor is the authenticated caller of a core operation
type Actor struct {
	ID       uuid.UUID
	TenantID uuid.UUID
	RoleIDs  []uuid.UUID
}

// HasRole reports whether the actor holds roleID
func (a Actor) HasRole(roleID uuid.UUID) bool {
	return slices.Contains(a.RoleIDs, roleID)
}

// Validate rejects actors without identity or tenant
func (a Actor) Validate() error {
	if a.ID == uuid.Nil {
		return NewPermissionDeniedError("UNAUTHENTICATED", "Actor is required")
	}
	if a.TenantID == uuid.Nil {
		return NewPermissionDeniedError("UNAUTHENTICATED", "Tenant is required")
	}
	return nil
}
