package model

import "fmt"

// Role is an account's access level. The set of roles is closed: roles are
// ordered by rank, and a higher-ranked role implies every lower-ranked one.
type Role string

const (
	RoleAdmin     Role = "admin"
	RoleDeveloper Role = "developer"
	RoleUser      Role = "user"
	RoleReadOnly  Role = "read_only"
)

// roleRank orders roles for the Implies relation. Unknown roles rank below
// every valid role.
var roleRank = map[Role]int{
	RoleReadOnly:  1,
	RoleUser:      2,
	RoleDeveloper: 3,
	RoleAdmin:     4,
}

// rolePermissions maps each role to its allowed actions per resource.
// Admin is handled as a wildcard in Allows and has no entry here.
var rolePermissions = map[Role]map[string][]string{
	RoleDeveloper: {
		"models":   {"read", "write", "delete"},
		"generate": {"read", "write"},
		"chat":     {"read", "write"},
		"api_keys": {"read", "write", "delete"},
	},
	RoleUser: {
		"models":   {"read"},
		"generate": {"read", "write"},
		"chat":     {"read", "write"},
		"api_keys": {"read", "write"},
	},
	RoleReadOnly: {
		"models":   {"read"},
		"generate": {"read"},
		"chat":     {"read"},
	},
}

// ParseRole validates a role name from external input.
func ParseRole(s string) (Role, error) {
	r := Role(s)
	if !r.Valid() {
		return "", fmt.Errorf("unknown role %q", s)
	}
	return r, nil
}

// Valid reports whether r is one of the defined roles.
func (r Role) Valid() bool {
	_, ok := roleRank[r]
	return ok
}

// Implies reports whether r grants at least the access level of other.
// Invalid roles imply nothing.
func (r Role) Implies(other Role) bool {
	rr, ok := roleRank[r]
	if !ok {
		return false
	}
	or, ok := roleRank[other]
	if !ok {
		return false
	}
	return rr >= or
}

// Allows reports whether r may perform action on resource. Admin is allowed
// everything; all other roles are checked against the static permission table.
func (r Role) Allows(resource, action string) bool {
	if r == RoleAdmin {
		return true
	}
	actions, ok := rolePermissions[r][resource]
	if !ok {
		return false
	}
	for _, a := range actions {
		if a == action {
			return true
		}
	}
	return false
}

// Permissions returns the full resource → actions table for r. Admin gets a
// single wildcard entry. The result is a copy safe for the caller to modify.
func (r Role) Permissions() map[string][]string {
	if r == RoleAdmin {
		return map[string][]string{"*": {"*"}}
	}
	perms := make(map[string][]string, len(rolePermissions[r]))
	for resource, actions := range rolePermissions[r] {
		perms[resource] = append([]string(nil), actions...)
	}
	return perms
}
