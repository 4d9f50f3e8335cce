package models

type Resource string

type Action string

const (
	ResourceCourses  Resource = "courses"
	ResourceProjects Resource = "projects"
	ResourceAlumni   Resource = "alumni"
	ResourcePages    Resource = "pages"
	ResourceAdmin    Resource = "admin"
)

const (
	ActionCreate Action = "create"
	ActionRead   Action = "read"
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
)

var (
	Resources = []Resource{ResourceCourses, ResourceProjects, ResourceAlumni, ResourcePages, ResourceAdmin}
	Actions   = []Action{ActionCreate, ActionRead, ActionUpdate, ActionDelete}
)

// PermissionMatrix maps resource -> action -> granted.
type PermissionMatrix map[Resource]map[Action]bool

var (
	fullAccess = map[Action]bool{ActionCreate: true, ActionRead: true, ActionUpdate: true, ActionDelete: true}
	editAccess = map[Action]bool{ActionCreate: false, ActionRead: true, ActionUpdate: true, ActionDelete: false}
	readOnly   = map[Action]bool{ActionCreate: false, ActionRead: true, ActionUpdate: false, ActionDelete: false}
)

// DefaultPermissions is the role -> default matrix table. New resources and
// roles are added here, nowhere else. super-admin has no entry: it is
// allowed everything regardless of its stored matrix.
var DefaultPermissions = map[Role]PermissionMatrix{
	RoleAdmin: {
		ResourceCourses:  fullAccess,
		ResourceProjects: fullAccess,
		ResourceAlumni:   fullAccess,
		ResourcePages:    fullAccess,
		ResourceAdmin:    readOnly,
	},
	RoleModerator: {
		ResourceCourses:  editAccess,
		ResourceProjects: editAccess,
		ResourceAlumni:   editAccess,
		ResourcePages:    editAccess,
		ResourceAdmin:    readOnly,
	},
}

// DefaultPermissionsFor returns an independent copy of role's defaults.
func DefaultPermissionsFor(role Role) PermissionMatrix {
	return DefaultPermissions[role].Clone()
}

// Clone deep-copies m. A nil matrix clones to an empty one.
func (m PermissionMatrix) Clone() PermissionMatrix {
	out := make(PermissionMatrix, len(m))
	for res, actions := range m {
		cp := make(map[Action]bool, len(actions))
		for act, ok := range actions {
			cp[act] = ok
		}
		out[res] = cp
	}
	return out
}

// Merge returns a copy of m with every entry in overrides applied on top.
func (m PermissionMatrix) Merge(overrides PermissionMatrix) PermissionMatrix {
	out := m.Clone()
	for res, actions := range overrides {
		if out[res] == nil {
			out[res] = make(map[Action]bool, len(actions))
		}
		for act, ok := range actions {
			out[res][act] = ok
		}
	}
	return out
}

// Allows is the single authorization predicate. Unknown resources and
// actions are denied.
func Allows(role Role, perms PermissionMatrix, resource Resource, action Action) bool {
	if role == RoleSuperAdmin {
		return true
	}
	actions, ok := perms[resource]
	if !ok {
		return false
	}
	return actions[action]
}
