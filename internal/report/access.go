package report

import (
	"strings"

	"github.com/potholewatch/backend/internal/auth"
	"github.com/potholewatch/backend/internal/jurisdiction"
)

// Caller is the identity a request acts as. All fields may be empty for
// anonymous callers.
type Caller struct {
	UserID    string
	Role      string
	Authority jurisdiction.Authority
	Name      string
}

// FilterFor decides which reports a caller can see. Scoped admins see their
// authority, plain users see their own reports, everyone else sees all.
// Unknown roles fall through to the last case.
func FilterFor(caller Caller) Query {
	if authority, ok := auth.ScopedAuthority(caller.Role); ok {
		return Query{Authority: &authority}
	}

	userID := strings.TrimSpace(caller.UserID)
	if userID != "" && !auth.IsAdmin(caller.Role) {
		return Query{ReporterID: userID}
	}

	return Query{}
}

// canModify reports whether caller may resolve or delete r. Reporters may
// only delete; resolution is reserved to admins.
func canModify(caller Caller, r *Report, allowReporter bool) bool {
	if authority, ok := auth.ScopedAuthority(caller.Role); ok {
		return r.Authority == authority
	}
	if auth.NormalizeRole(caller.Role) == auth.RoleAdmin {
		return true
	}
	if allowReporter && caller.UserID != "" && caller.UserID == r.ReporterID {
		return true
	}
	return false
}
