package auth

// Action is an operation on a task.
type Action string

const (
	ActionRead   Action = "read"
	ActionCreate Action = "create"
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
)

// DefaultAdminRole is the realm role allowed to modify any task.
const DefaultAdminRole = "admin"

// Owned is anything with an owning username.
type Owned interface {
	OwnerName() string
}

// Decision is the result of a policy evaluation.
type Decision struct {
	Allowed bool
	Reason  string
}

// Permit allows the action.
func Permit() Decision { return Decision{Allowed: true} }

// Deny refuses the action for reason.
func Deny(reason string) Decision { return Decision{Reason: reason} }

// Policy grants reads and creates to any authenticated caller and restricts
// updates and deletes to the owner or holders of AdminRole.
type Policy struct {
	AdminRole string
}

// DefaultPolicy returns a Policy using DefaultAdminRole.
func DefaultPolicy() Policy {
	return Policy{AdminRole: DefaultAdminRole}
}

// Authorize decides whether id may perform action on target. Existence of
// the target must be resolved by the caller; a nil target on a mutation is
// denied.
func (p Policy) Authorize(id Identity, action Action, target Owned) Decision {
	switch action {
	case ActionRead, ActionCreate:
		return Permit()
	case ActionUpdate, ActionDelete:
		if target == nil {
			return Deny("unknown target")
		}
		if id.Username != "" && id.Username == target.OwnerName() {
			return Permit()
		}
		if p.AdminRole != "" && id.HasRole(p.AdminRole) {
			return Permit()
		}
		return Deny("not owner or admin")
	default:
		return Deny("unsupported action")
	}
}
