package permission

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestForRole(t *testing.T) {
	tests := []struct {
		name string
		role string
		want []Permission
	}{
		{name: "admin gets everything", role: "ADMIN", want: All},
		{name: "lower case lookup", role: "admin", want: All},
		{name: "mixed case lookup", role: "Citizen", want: []Permission{ViewActivities}},
		{name: "unknown role fails closed", role: "SUPERUSER", want: []Permission{}},
		{name: "empty role fails closed", role: "", want: []Permission{}},
		{name: "isibo leader", role: "isibo_leader", want: table[RoleIsiboLeader]},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ForRole(tt.role))
		})
	}
}

func TestForRole_deterministicAndImmutable(t *testing.T) {
	for _, role := range Roles {
		first := ForRole(string(role))
		second := ForRole(string(role))
		assert.Equal(t, first, second, role)

		if len(first) > 0 {
			first[0] = "tampered"
			assert.NotEqual(t, Permission("tampered"), ForRole(string(role))[0], role)
		}
	}
}

func TestForRole_adminFollowsEnumeration(t *testing.T) {
	orig := All
	defer func() { All = orig }()

	All = append(append([]Permission{}, orig...), Permission("manage_drones"))

	assert.True(t, Has("ADMIN", "manage_drones"))
	assert.False(t, Has("CELL_LEADER", "manage_drones"))
	assert.Len(t, ForRole("ADMIN"), len(orig)+1)
}

func TestHas(t *testing.T) {
	assert.True(t, Has("village_leader", CreateReports))
	assert.False(t, Has("CITIZEN", ManageUsers))
	assert.False(t, Has("nobody", ViewActivities))
	for _, p := range All {
		assert.True(t, Has("ADMIN", p), p)
	}
	assert.True(t, HasAny("CITIZEN", ManageUsers, ViewActivities))
	assert.False(t, HasAny("CITIZEN", ManageUsers, ViewAnalytics))
}

func TestTableOnlyGrantsDeclaredPermissions(t *testing.T) {
	declared := make(map[Permission]bool, len(All))
	for _, p := range All {
		declared[p] = true
	}
	for role, perms := range table {
		for _, p := range perms {
			assert.True(t, declared[p], "%s grants undeclared %s", role, p)
		}
	}
}

func TestParseRole(t *testing.T) {
	r, ok := ParseRole(" cell_leader ")
	assert.True(t, ok)
	assert.Equal(t, RoleCellLeader, r)

	_, ok = ParseRole("mayor")
	assert.False(t, ok)
}
