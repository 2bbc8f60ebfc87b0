package rbac

// Permission is a namespaced capability string in resource:action form.
type Permission string

const (
	PermProductRead    Permission = "product:read"
	PermProductCreate  Permission = "product:create"
	PermProductUpdate  Permission = "product:update"
	PermProductDelete  Permission = "product:delete"
	PermCategoryCreate Permission = "category:create"
	PermCategoryUpdate Permission = "category:update"
	PermCategoryDelete Permission = "category:delete"
	PermOrderRead      Permission = "order:read"
	PermOrderUpdate    Permission = "order:update"
	PermUserRead       Permission = "user:read"
	PermUserCreate     Permission = "user:create"
	PermUserUpdate     Permission = "user:update"
	PermUserDelete     Permission = "user:delete"
	PermAuditRead      Permission = "audit:read"
)

// rolePermissions grants capabilities per role. Each tier is a strict
// superset of the tier below it, matching the management hierarchy.
var rolePermissions = map[Role][]Permission{
	RoleUser: {
		PermProductRead,
	},
	RoleStaff: {
		PermProductRead,
		PermProductCreate,
		PermProductUpdate,
		PermCategoryCreate,
		PermCategoryUpdate,
		PermOrderRead,
		PermUserCreate,
	},
	RoleManager: {
		PermProductRead,
		PermProductCreate,
		PermProductUpdate,
		PermProductDelete,
		PermCategoryCreate,
		PermCategoryUpdate,
		PermCategoryDelete,
		PermOrderRead,
		PermOrderUpdate,
		PermUserRead,
		PermUserCreate,
		PermUserUpdate,
	},
	RoleAdmin: {
		PermProductRead,
		PermProductCreate,
		PermProductUpdate,
		PermProductDelete,
		PermCategoryCreate,
		PermCategoryUpdate,
		PermCategoryDelete,
		PermOrderRead,
		PermOrderUpdate,
		PermUserRead,
		PermUserCreate,
		PermUserUpdate,
		PermUserDelete,
		PermAuditRead,
	},
}

// HasPermission reports whether the role is granted the permission.
// Unknown roles hold nothing.
func HasPermission(role Role, permission Permission) bool {
	for _, granted := range rolePermissions[role] {
		if granted == permission {
			return true
		}
	}
	return false
}

// RolePermissions returns a copy of the role's grant set. Unknown roles
// yield an empty slice.
func RolePermissions(role Role) []Permission {
	granted := rolePermissions[role]
	out := make([]Permission, len(granted))
	copy(out, granted)
	return out
}

// HasAllPermissions reports whether the role holds every listed permission.
func HasAllPermissions(role Role, permissions []Permission) bool {
	for _, permission := range permissions {
		if !HasPermission(role, permission) {
			return false
		}
	}
	return true
}

// HasAnyPermission reports whether the role holds at least one listed
// permission. An empty list grants nothing.
func HasAnyPermission(role Role, permissions []Permission) bool {
	for _, permission := range permissions {
		if HasPermission(role, permission) {
			return true
		}
	}
	return false
}
