package models

// Principal is the authenticated caller attached to a request. Handlers get
// a copy; mutating it has no effect on the account.
type Principal struct {
	AccountID   string
	Email       string
	Role        Role
	Permissions PermissionMatrix
}

// NewPrincipal snapshots acc.
func NewPrincipal(acc *Account) Principal {
	return Principal{
		AccountID:   acc.ID.Hex(),
		Email:       acc.Email,
		Role:        acc.Role,
		Permissions: acc.Permissions.Clone(),
	}
}

func (p Principal) Can(resource Resource, action Action) bool {
	return Allows(p.Role, p.Permissions, resource, action)
}

func (p Principal) IsSuperAdmin() bool {
	return p.Role == RoleSuperAdmin
}
