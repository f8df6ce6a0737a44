package auth

import (
	"strings"

	"github.com/potholewatch/backend/internal/jurisdiction"
)

const (
	RoleUser      = "user"
	RoleAdmin     = "admin"
	RoleAdminTMC  = "admin-tmc"
	RoleAdminBMC  = "admin-bmc"
	RoleAdminNMMC = "admin-nmmc"
)

var scopedAdmins = map[string]jurisdiction.Authority{
	RoleAdminTMC:  jurisdiction.TMC,
	RoleAdminBMC:  jurisdiction.BMC,
	RoleAdminNMMC: jurisdiction.NMMC,
}

// NormalizeRole lower-cases and trims a role name.
func NormalizeRole(role string) string {
	return strings.ToLower(strings.TrimSpace(role))
}

// ScopedAuthority returns the authority an admin role is restricted to.
func ScopedAuthority(role string) (jurisdiction.Authority, bool) {
	a, ok := scopedAdmins[NormalizeRole(role)]
	return a, ok
}

// IsAdmin reports whether the role is the unscoped admin or a scoped one.
func IsAdmin(role string) bool {
	role = NormalizeRole(role)
	if role == RoleAdmin {
		return true
	}
	_, ok := scopedAdmins[role]
	return ok
}

// IsKnownRole reports whether accounts may be created with the role.
func IsKnownRole(role string) bool {
	role = NormalizeRole(role)
	return role == RoleUser || IsAdmin(role)
}
