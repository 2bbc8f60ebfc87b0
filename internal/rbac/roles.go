package rbac

import (
	"errors"
	"fmt"
	"strings"
)

// Role is the closed set of account roles. The zero value is not a valid
// role; untrusted input must pass through ParseRole before use.
type Role string

const (
	RoleUser    Role = "user"
	RoleStaff   Role = "staff"
	RoleManager Role = "manager"
	RoleAdmin   Role = "admin"
)

// ErrUnknownRole indicates the supplied text does not name a declared role.
var ErrUnknownRole = errors.New("rbac.unknown_role")

// roleRank orders roles by seniority. Higher rank manages lower ranks and
// inherits every permission granted below it.
var roleRank = map[Role]int{
	RoleUser:    0,
	RoleStaff:   1,
	RoleManager: 2,
	RoleAdmin:   3,
}

// Roles lists every declared role from most junior to most senior.
func Roles() []Role {
	return []Role{RoleUser, RoleStaff, RoleManager, RoleAdmin}
}

// ParseRole canonicalizes untrusted role text into a Role.
func ParseRole(text string) (Role, error) {
	candidate := Role(strings.ToLower(strings.TrimSpace(text)))
	if _, ok := roleRank[candidate]; !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownRole, text)
	}
	return candidate, nil
}

// Valid reports whether the role is one of the declared roles.
func (role Role) Valid() bool {
	_, ok := roleRank[role]
	return ok
}

// String returns the canonical lowercase name.
func (role Role) String() string {
	return string(role)
}

// AtLeast reports whether role is the minimum role or senior to it.
// Unknown roles on either side rank below everything.
func (role Role) AtLeast(minimum Role) bool {
	roleValue, okRole := roleRank[role]
	minimumValue, okMinimum := roleRank[minimum]
	if !okRole || !okMinimum {
		return false
	}
	return roleValue >= minimumValue
}

// ManageableRoles returns the roles strictly junior to the given role, which
// are the roles its holder may administer. Unknown roles manage nothing.
func ManageableRoles(role Role) []Role {
	rank, ok := roleRank[role]
	if !ok {
		return nil
	}
	var manageable []Role
	for _, candidate := range Roles() {
		if roleRank[candidate] < rank {
			manageable = append(manageable, candidate)
		}
	}
	return manageable
}

// CanManage reports whether actor may administer accounts holding target.
// The check is strict: a role never manages its own tier or above.
func CanManage(actor Role, target Role) bool {
	actorRank, okActor := roleRank[actor]
	targetRank, okTarget := roleRank[target]
	if !okActor || !okTarget {
		return false
	}
	return actorRank > targetRank
}
