package tenant

import (
	"fmt"
	"strings"
)

// Role is the capability level of a user within a tenant.
// Owner includes Admin, which includes Member, which includes Viewer.
type Role string

const (
	RoleOwner  Role = "owner"
	RoleAdmin  Role = "admin"
	RoleMember Role = "member"
	RoleViewer Role = "viewer"
)

var roleRank = map[Role]int{
	RoleViewer: 1,
	RoleMember: 2,
	RoleAdmin:  3,
	RoleOwner:  4,
}

// ParseRole parses a role name case-insensitively.
func ParseRole(s string) (Role, error) {
	r := Role(strings.ToLower(strings.TrimSpace(s)))
	if !r.Valid() {
		return "", fmt.Errorf("unknown role %q: %w", s, ErrValidation)
	}
	return r, nil
}

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	_, ok := roleRank[r]
	return ok
}

// Includes reports whether r grants at least the capabilities of other.
func (r Role) Includes(other Role) bool {
	return r.Valid() && other.Valid() && roleRank[r] >= roleRank[other]
}

// CanManage reports whether the role may administer the tenant (api keys,
// memberships, quotas).
func (r Role) CanManage() bool { return r.Includes(RoleAdmin) }

// CanWrite reports whether the role may create, update or delete resources.
func (r Role) CanWrite() bool { return r.Includes(RoleMember) }

// CanRead reports whether the role may read resources.
func (r Role) CanRead() bool { return r.Valid() }
