package core

import "strings"

// Role is the coarse permission claim supplied by the identity collaborator.
type Role string

const (
	RoleAdmin     Role = "admin"
	RoleModerator Role = "moderator"
	RoleMember    Role = "member"
)

// ParseRole parses a role claim, case-insensitively.
func ParseRole(s string) (Role, bool) {
	switch r := Role(strings.ToLower(strings.TrimSpace(s))); r {
	case RoleAdmin, RoleModerator, RoleMember:
		return r, true
	}
	return "", false
}

// Principal is the acting identity, passed explicitly into every call.
// The registry trusts it verbatim and never authenticates.
type Principal struct {
	ID   string `json:"id"`
	Role Role   `json:"role"`
}

// Valid reports whether p carries an id and a known role.
func (p Principal) Valid() bool {
	_, ok := ParseRole(string(p.Role))
	return p.ID != "" && ok
}

// HasAnyRole reports whether p holds one of roles.
func (p Principal) HasAnyRole(roles ...Role) bool {
	for _, r := range roles {
		if p.Role == r {
			return true
		}
	}
	return false
}

var (
	adminOnly      = []Role{RoleAdmin}
	moderatorRoles = []Role{RoleAdmin, RoleModerator}
	anyRole        = []Role{RoleAdmin, RoleModerator, RoleMember}
)

// authorize rejects p unless it is valid and holds one of roles.
func authorize(op string, p Principal, roles []Role) error {
	if !p.Valid() {
		return &Error{Kind: KindForbidden, Code: CodeUnauthorized, Op: op, Message: "missing or invalid principal"}
	}
	if !p.HasAnyRole(roles...) {
		return Forbidden(op, "role "+string(p.Role)+" may not perform this operation")
	}
	return nil
}
