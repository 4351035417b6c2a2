package enums

import "fmt"

// ActorRole is the role identity resolves a user to.
type ActorRole string

const (
	ActorRoleSupervisor ActorRole = "supervisor"
	ActorRoleManager    ActorRole = "manager"
	ActorRoleAdmin      ActorRole = "admin"
	ActorRoleFarmer     ActorRole = "farmer"
)

var validActorRoles = []ActorRole{
	ActorRoleSupervisor,
	ActorRoleManager,
	ActorRoleAdmin,
	ActorRoleFarmer,
}

// ApprovalRoles lists the roles owning an approval slot, lowest first.
var ApprovalRoles = []ActorRole{
	ActorRoleSupervisor,
	ActorRoleManager,
	ActorRoleAdmin,
}

func (r ActorRole) String() string {
	return string(r)
}

// IsValid reports whether the value is a known role.
func (r ActorRole) IsValid() bool {
	for _, candidate := range validActorRoles {
		if candidate == r {
			return true
		}
	}
	return false
}

// IsStaff reports whether the role owns an approval slot.
func (r ActorRole) IsStaff() bool {
	for _, candidate := range ApprovalRoles {
		if candidate == r {
			return true
		}
	}
	return false
}

// ParseActorRole converts raw input into ActorRole.
func ParseActorRole(value string) (ActorRole, error) {
	for _, candidate := range validActorRoles {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid actor role %q", value)
}

// ApprovalAction is the decision a staff member records on a slot.
type ApprovalAction string

const (
	ApprovalActionApprove ApprovalAction = "approve"
	ApprovalActionReject  ApprovalAction = "reject"
)

func (a ApprovalAction) IsValid() bool {
	return a == ApprovalActionApprove || a == ApprovalActionReject
}

// ParseApprovalAction converts raw input into ApprovalAction.
func ParseApprovalAction(value string) (ApprovalAction, error) {
	action := ApprovalAction(value)
	if !action.IsValid() {
		return "", fmt.Errorf("invalid approval action %q", value)
	}
	return action, nil
}
