package claims

import (
	"slices"

	"github.com/HoNfigurator-Portal/NEXUS-ReBIRTH/models"
)

// Scopes granted through role claims.
const (
	ScopeUser          = "user"
	ScopeAdministrator = "administrator"
)

var roleClaimSets = map[models.RoleName][]Claim{
	models.RoleAdministrator: {
		stringClaim(TypeRole, string(models.RoleAdministrator)),
		stringClaim(TypeScope, ScopeUser),
		stringClaim(TypeScope, ScopeAdministrator),
	},
	models.RoleUser: {
		stringClaim(TypeRole, string(models.RoleUser)),
		stringClaim(TypeScope, ScopeUser),
	},
}

// RoleClaims returns the claims granted by role. Every value of
// models.RoleNames has a set; unknown names are rejected earlier by
// models.ParseRoleName.
func RoleClaims(role models.RoleName) []Claim {
	return slices.Clone(roleClaimSets[role])
}
