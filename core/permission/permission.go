// Package permission is the static role → capability table used to gate API endpoints.
package permission

import (
	"sort"
	"strings"
)

type Role string

const (
	RoleAdmin               Role = "ADMIN"
	RoleCellLeader          Role = "CELL_LEADER"
	RoleVillageLeader       Role = "VILLAGE_LEADER"
	RoleIsiboLeader         Role = "ISIBO_LEADER"
	RoleHouseRepresentative Role = "HOUSE_REPRESENTATIVE"
	RoleCitizen             Role = "CITIZEN"
)

// Roles lists every role, highest authority first.
var Roles = []Role{
	RoleAdmin,
	RoleCellLeader,
	RoleVillageLeader,
	RoleIsiboLeader,
	RoleHouseRepresentative,
	RoleCitizen,
}

type Permission string

const (
	ViewDashboard    Permission = "view_dashboard"
	ManageUsers      Permission = "manage_users"
	ViewUsers        Permission = "view_users"
	ManageLocations  Permission = "manage_locations"
	ViewLocations    Permission = "view_locations"
	AssignLeaders    Permission = "assign_leaders"
	ManageHouses     Permission = "manage_houses"
	ManageActivities Permission = "manage_activities"
	ViewActivities   Permission = "view_activities"
	ManageTasks      Permission = "manage_tasks"
	ViewTasks        Permission = "view_tasks"
	CreateReports    Permission = "create_reports"
	ViewReports      Permission = "view_reports"
	UploadFiles      Permission = "upload_files"
	ViewAnalytics    Permission = "view_analytics"
	ExportReports    Permission = "export_reports"
	ManageSettings   Permission = "manage_settings"
)

// All is every declared permission, in declaration order.
// New permissions must be appended here; ADMIN picks them up automatically.
var All = []Permission{
	ViewDashboard,
	ManageUsers,
	ViewUsers,
	ManageLocations,
	ViewLocations,
	AssignLeaders,
	ManageHouses,
	ManageActivities,
	ViewActivities,
	ManageTasks,
	ViewTasks,
	CreateReports,
	ViewReports,
	UploadFiles,
	ViewAnalytics,
	ExportReports,
	ManageSettings,
}

// table holds explicit grants; ADMIN is absent on purpose, see ForRole.
var table = map[Role][]Permission{
	RoleCellLeader: {
		ViewDashboard, ViewUsers, ManageLocations, ViewLocations, AssignLeaders, ManageHouses,
		ManageActivities, ViewActivities, ManageTasks, ViewTasks,
		ViewReports, ViewAnalytics, ExportReports,
	},
	RoleVillageLeader: {
		ViewDashboard, ViewUsers, ViewLocations, AssignLeaders, ManageHouses,
		ManageActivities, ViewActivities, ManageTasks, ViewTasks,
		CreateReports, ViewReports, UploadFiles, ViewAnalytics, ExportReports,
	},
	RoleIsiboLeader: {
		ViewDashboard, ViewLocations, ManageHouses, ViewActivities, ViewTasks,
		CreateReports, ViewReports, UploadFiles,
	},
	RoleHouseRepresentative: {
		ViewDashboard, ViewLocations, ViewActivities, ViewTasks, ViewReports,
	},
	RoleCitizen: {
		ViewActivities,
	},
}

// ParseRole upper-cases s and reports whether it names a known role.
func ParseRole(s string) (Role, bool) {
	r := Role(strings.ToUpper(strings.TrimSpace(s)))
	for _, known := range Roles {
		if r == known {
			return r, true
		}
	}
	return r, false
}

func IsValidRole(s string) bool {
	_, ok := ParseRole(s)
	return ok
}

// ForRole returns the permissions granted to role. The lookup is case-insensitive,
// unknown roles get an empty set and the returned slice is always a fresh copy.
func ForRole(role string) []Permission {
	r, ok := ParseRole(role)
	if !ok {
		return []Permission{}
	}
	var src []Permission
	if r == RoleAdmin {
		src = All
	} else {
		src = table[r]
	}
	perms := make([]Permission, len(src))
	copy(perms, src)
	return perms
}

// Has reports whether role is granted p.
func Has(role string, p Permission) bool {
	for _, granted := range ForRole(role) {
		if granted == p {
			return true
		}
	}
	return false
}

// HasAny reports whether role is granted at least one of perms.
func HasAny(role string, perms ...Permission) bool {
	for _, p := range perms {
		if Has(role, p) {
			return true
		}
	}
	return false
}

// Strings returns the permission values, sorted; handy for JSON responses.
func Strings(perms []Permission) []string {
	out := make([]string, 0, len(perms))
	for _, p := range perms {
		out = append(out, string(p))
	}
	sort.Strings(out)
	return out
}
