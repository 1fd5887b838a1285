package chat

import "sort"

// Role is a coarse permission profile for a session's agent.
type Role string

const (
	// RolePlanner may only use read capabilities.
	RolePlanner Role = "planner"

	// RoleActor may use the full capability set, subject to each tool's
	// own approval flag.
	RoleActor Role = "actor"
)

// RolePolicy maps roles to allowed permission sets. It is immutable after
// construction; the agent loop applies the same filter when advertising
// tools and again before executing any parsed call, so a mid-session role
// switch cannot leave stale calls executable.
type RolePolicy struct {
	allowed map[Role]map[Permission]bool
}

// NewRolePolicy builds a policy from explicit role grants.
func NewRolePolicy(grants map[Role][]Permission) *RolePolicy {
	allowed := make(map[Role]map[Permission]bool, len(grants))
	for role, perms := range grants {
		set := make(map[Permission]bool, len(perms))
		for _, p := range perms {
			set[p] = true
		}
		allowed[role] = set
	}
	return &RolePolicy{allowed: allowed}
}

// DefaultRolePolicy grants Planner read-only access and Actor everything.
func DefaultRolePolicy() *RolePolicy {
	return NewRolePolicy(map[Role][]Permission{
		RolePlanner: {PermissionRead},
		RoleActor:   {PermissionRead, PermissionWrite, PermissionExecute},
	})
}

// IsPermitted reports whether the named tool may be used by the role:
// every permission the tool declares must be granted. Unknown tools and
// unknown roles are never permitted.
func (p *RolePolicy) IsPermitted(reg *Registry, role Role, toolName string) bool {
	c := reg.Get(toolName)
	if c == nil {
		return false
	}
	grants, ok := p.allowed[role]
	if !ok {
		return false
	}
	for _, perm := range c.Permissions() {
		if !grants[perm] {
			return false
		}
	}
	return true
}

// PermittedTools returns the sorted names of every registered tool the
// role may use. The agent loop advertises exactly this set.
func (p *RolePolicy) PermittedTools(reg *Registry, role Role) []string {
	var names []string
	for _, name := range reg.Names() {
		if p.IsPermitted(reg, role, name) {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}
