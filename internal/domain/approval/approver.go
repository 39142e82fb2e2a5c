package approval

import (
	"github.com/erp/stockflow/internal/domain/shared"
	"github.com/google/uuid"
)

// ApproverType tags the Approver union in storage and transport
type ApproverType string

const (
	ApproverTypeRole ApproverType = "ROLE"
	ApproverTypeUser ApproverType = "USER"
)

// Approver is either a RoleApprover or a UserApprover
type Approver interface {
	Type() ApproverType
	SubjectID() uuid.UUID
	// Allows reports whether actor satisfies this approver
	Allows(actor shared.Actor) bool
}

// RoleApprover is satisfied by any actor holding the role
type RoleApprover struct {
	RoleID uuid.UUID
}

func (a RoleApprover) Type() ApproverType             { return ApproverTypeRole }
func (a RoleApprover) SubjectID() uuid.UUID           { return a.RoleID }
func (a RoleApprover) Allows(actor shared.Actor) bool { return actor.HasRole(a.RoleID) }

// UserApprover is satisfied only by one specific actor
type UserApprover struct {
	UserID uuid.UUID
}

func (a UserApprover) Type() ApproverType             { return ApproverTypeUser }
func (a UserApprover) SubjectID() uuid.UUID           { return a.UserID }
func (a UserApprover) Allows(actor shared.Actor) bool { return actor.ID == a.UserID }

// NewApprover rebuilds an approver from its stored tag and id
func NewApprover(t ApproverType, id uuid.UUID) (Approver, error) {
	var a Approver
	switch t {
	case ApproverTypeRole:
		a = RoleApprover{RoleID: id}
	case ApproverTypeUser:
		a = UserApprover{UserID: id}
	default:
		return nil, ErrInvalidApprover
	}
	return a, validateApprover(a)
}

func validateApprover(a Approver) error {
	if a == nil || a.SubjectID() == uuid.Nil {
		return ErrInvalidApprover
	}
	return nil
}
