package types

import "github.com/samber/lo"

// Role is an internal operator role
type Role string

const (
	RoleSuperAdmin   Role = "superadmin"
	RoleSupportAgent Role = "supportagent"
	RoleBillingOps   Role = "billingops"
)

// IsValidRole reports whether the role belongs to the operator role set
func IsValidRole(role string) bool {
	return lo.Contains([]Role{RoleSuperAdmin, RoleSupportAgent, RoleBillingOps}, Role(role))
}
