package chat

import (
	"context"
	"encoding/json"
	"testing"
)

func testCapability(name string, perms []Permission, approval bool) *FuncCapability {
	return &FuncCapability{
		CapName:        name,
		CapDescription: name + " test capability",
		CapParameters:  map[string]any{"type": "object"},
		CapPermissions: perms,
		NeedsApproval:  approval,
		Fn: func(ctx context.Context, args json.RawMessage) (string, error) {
			return "ok", nil
		},
	}
}

func TestRolePolicyPlannerIsReadOnly(t *testing.T) {
	reg := NewRegistry()
	reg.Register(testCapability("read_file", []Permission{PermissionRead}, false))
	reg.Register(testCapability("write_file", []Permission{PermissionRead, PermissionWrite}, false))
	reg.Register(testCapability("execute_command", []Permission{PermissionExecute}, true))

	policy := DefaultRolePolicy()

	if !policy.IsPermitted(reg, RolePlanner, "read_file") {
		t.Error("planner should be permitted read_file")
	}
	// The approval flag is irrelevant: permission filtering comes first.
	if policy.IsPermitted(reg, RolePlanner, "write_file") {
		t.Error("planner must not be permitted write_file")
	}
	if policy.IsPermitted(reg, RolePlanner, "execute_command") {
		t.Error("planner must not be permitted execute_command")
	}

	for _, name := range []string{"read_file", "write_file", "execute_command"} {
		if !policy.IsPermitted(reg, RoleActor, name) {
			t.Errorf("actor should be permitted %s", name)
		}
	}
}

func TestRolePolicyPermittedToolsMatchesIsPermitted(t *testing.T) {
	reg := NewRegistry()
	reg.Register(testCapability("read_file", []Permission{PermissionRead}, false))
	reg.Register(testCapability("write_file", []Permission{PermissionWrite}, false))

	policy := DefaultRolePolicy()

	// Advertising and execution must use the same filter.
	for _, role := range []Role{RolePlanner, RoleActor} {
		advertised := policy.PermittedTools(reg, role)
		seen := make(map[string]bool, len(advertised))
		for _, name := range advertised {
			seen[name] = true
			if !policy.IsPermitted(reg, role, name) {
				t.Errorf("role %s: advertised %s but execution would refuse it", role, name)
			}
		}
		for _, name := range reg.Names() {
			if policy.IsPermitted(reg, role, name) && !seen[name] {
				t.Errorf("role %s: %s executable but not advertised", role, name)
			}
		}
	}
}

func TestRolePolicyUnknownToolAndRole(t *testing.T) {
	reg := NewRegistry()
	policy := DefaultRolePolicy()
	if policy.IsPermitted(reg, RoleActor, "nope") {
		t.Error("unknown tool must not be permitted")
	}
	reg.Register(testCapability("read_file", []Permission{PermissionRead}, false))
	if policy.IsPermitted(reg, Role("auditor"), "read_file") {
		t.Error("unknown role must not be permitted")
	}
}
