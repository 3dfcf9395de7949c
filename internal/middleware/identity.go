package middleware

import (
	"strconv"

	"github.com/labstack/echo/v4"
)

// Roles accepted in the "role" claim.
const (
	RoleBusiness = "BUSINESS"
	RoleClient   = "CLIENT"
)

const identityKey = "identity"

// Identity is the authenticated caller, set by JWTAuth.
type Identity struct {
	UserID   uint64
	Role     string
	BranchID uint64 // zero: not scoped to a branch
}

// IsBusiness reports whether the caller is restaurant staff.
func (i Identity) IsBusiness() bool { return i.Role == RoleBusiness }

// CanAccessBranch reports whether staff may act on branchID.
func (i Identity) CanAccessBranch(branchID uint64) bool {
	return i.IsBusiness() && (i.BranchID == 0 || i.BranchID == branchID)
}

// IdentityFrom returns the identity stored by JWTAuth.
func IdentityFrom(c echo.Context) (Identity, bool) {
	id, ok := c.Get(identityKey).(Identity)
	return id, ok
}

// userKey is the rate-limit key part for the caller; "guest" when
// unauthenticated.
func userKey(c echo.Context) string {
	if id, ok := IdentityFrom(c); ok {
		return strconv.FormatUint(id.UserID, 10)
	}
	return "guest"
}
