package rbac

import (
	"testing"
)

func TestParseRoleCanonicalizesCase(t *testing.T) {
	t.Parallel()

	role, err := ParseRole("  STAFF ")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if role != RoleStaff {
		t.Fatalf("expected %q, got %q", RoleStaff, role)
	}
}

func TestParseRoleRejectsUnknown(t *testing.T) {
	t.Parallel()

	if _, err := ParseRole("superuser"); err == nil {
		t.Fatalf("expected error for unknown role")
	}
}

func TestHasPermissionMatchesRolePermissions(t *testing.T) {
	t.Parallel()

	allPermissions := map[Permission]struct{}{}
	for _, role := range Roles() {
		for _, permission := range RolePermissions(role) {
			allPermissions[permission] = struct{}{}
		}
	}
	for _, role := range Roles() {
		granted := map[Permission]struct{}{}
		for _, permission := range RolePermissions(role) {
			granted[permission] = struct{}{}
		}
		for permission := range allPermissions {
			_, inSet := granted[permission]
			if HasPermission(role, permission) != inSet {
				t.Fatalf("role %q permission %q: HasPermission disagrees with RolePermissions", role, permission)
			}
		}
	}
}

func TestGrantsAreMonotonicUpTheHierarchy(t *testing.T) {
	t.Parallel()

	ordered := Roles()
	for index := 1; index < len(ordered); index++ {
		junior := ordered[index-1]
		senior := ordered[index]
		for _, permission := range RolePermissions(junior) {
			if !HasPermission(senior, permission) {
				t.Fatalf("role %q lacks %q granted to junior role %q", senior, permission, junior)
			}
		}
	}
}

func TestUnknownRoleHoldsNothing(t *testing.T) {
	t.Parallel()

	if HasPermission(Role("ghost"), PermProductRead) {
		t.Fatalf("unknown role must fail closed")
	}
	if got := RolePermissions(Role("ghost")); len(got) != 0 {
		t.Fatalf("expected empty permission set, got %v", got)
	}
}

func TestHasAnyAndAllPermissions(t *testing.T) {
	t.Parallel()

	if !HasAllPermissions(RoleManager, []Permission{PermProductCreate, PermProductDelete}) {
		t.Fatalf("manager should hold both product permissions")
	}
	if HasAllPermissions(RoleStaff, []Permission{PermProductCreate, PermProductDelete}) {
		t.Fatalf("staff must not hold product:delete")
	}
	if !HasAnyPermission(RoleStaff, []Permission{PermProductDelete, PermProductCreate}) {
		t.Fatalf("staff should hold product:create")
	}
	if HasAnyPermission(RoleUser, nil) {
		t.Fatalf("empty permission list must grant nothing")
	}
}

func TestManageableRoles(t *testing.T) {
	t.Parallel()

	cases := []struct {
		role     Role
		expected []Role
	}{
		{RoleAdmin, []Role{RoleUser, RoleStaff, RoleManager}},
		{RoleManager, []Role{RoleUser, RoleStaff}},
		{RoleStaff, []Role{RoleUser}},
		{RoleUser, nil},
		{Role("ghost"), nil},
	}
	for _, testCase := range cases {
		got := ManageableRoles(testCase.role)
		if len(got) != len(testCase.expected) {
			t.Fatalf("role %q: expected %v, got %v", testCase.role, testCase.expected, got)
		}
		for index := range got {
			if got[index] != testCase.expected[index] {
				t.Fatalf("role %q: expected %v, got %v", testCase.role, testCase.expected, got)
			}
		}
	}
}

func TestCanManageIsStrict(t *testing.T) {
	t.Parallel()

	if !CanManage(RoleStaff, RoleUser) {
		t.Fatalf("staff should manage user")
	}
	if CanManage(RoleStaff, RoleStaff) {
		t.Fatalf("staff must not manage staff")
	}
	if CanManage(RoleManager, RoleAdmin) {
		t.Fatalf("manager must not manage admin")
	}
	if CanManage(Role("ghost"), RoleUser) {
		t.Fatalf("unknown actor must manage nothing")
	}
}

func TestAtLeast(t *testing.T) {
	t.Parallel()

	if !RoleAdmin.AtLeast(RoleManager) {
		t.Fatalf("admin ranks above manager")
	}
	if !RoleStaff.AtLeast(RoleStaff) {
		t.Fatalf("a role satisfies its own minimum")
	}
	if RoleUser.AtLeast(RoleStaff) {
		t.Fatalf("user must not satisfy a staff minimum")
	}
	if Role("ghost").AtLeast(RoleUser) {
		t.Fatalf("unknown role must rank below everything")
	}
}
