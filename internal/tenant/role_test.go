package tenant

import (
	"errors"
	"testing"
)

func TestRoleOrdering(t *testing.T) {
	tests := []struct {
		role                    Role
		manage, write, readable bool
	}{
		{RoleOwner, true, true, true},
		{RoleAdmin, true, true, true},
		{RoleMember, false, true, true},
		{RoleViewer, false, false, true},
		{Role("guest"), false, false, false},
	}
	for _, tt := range tests {
		if got := tt.role.CanManage(); got != tt.manage {
			t.Errorf("%s CanManage = %v, want %v", tt.role, got, tt.manage)
		}
		if got := tt.role.CanWrite(); got != tt.write {
			t.Errorf("%s CanWrite = %v, want %v", tt.role, got, tt.write)
		}
		if got := tt.role.CanRead(); got != tt.readable {
			t.Errorf("%s CanRead = %v, want %v", tt.role, got, tt.readable)
		}
	}

	if !RoleOwner.Includes(RoleViewer) || RoleViewer.Includes(RoleMember) {
		t.Fatal("role inclusion is not ordered")
	}
}

func TestParseRole(t *testing.T) {
	r, err := ParseRole(" Admin ")
	if err != nil || r != RoleAdmin {
		t.Fatalf("ParseRole(Admin) = %q, %v", r, err)
	}
	if _, err := ParseRole("superuser"); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
}
