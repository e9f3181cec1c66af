// Package claims builds and signs the bearer tokens the account API issues
// on login.
package claims

import (
	"cmp"
	"slices"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/HoNfigurator-Portal/NEXUS-ReBIRTH/models"
)

// Claim types carried by an issued token.
const (
	TypeSubject       = "sub"
	TypeIssuedAt      = "iat"
	TypeAuthTime      = "auth_time"
	TypeNonce         = "nonce"
	TypeJWTID         = "jti"
	TypeEmail         = "email"
	TypeRole          = "role"
	TypeScope         = "scope"
	TypeUserID        = "user_id"
	TypeAccountID     = "account_id"
	TypeAccountIsMain = "account_is_main"
	TypeClanName      = "clan_name"
	TypeClanTag       = "clan_tag"
)

// Value types tell the signer how to encode a claim value.
const (
	ValueTypeString  = "string"
	ValueTypeInteger = "integer"
	ValueTypeBoolean = "boolean"
)

// Claim is a single typed assertion about the token subject.
type Claim struct {
	Type      string
	Value     string
	ValueType string
}

func stringClaim(typ, value string) Claim {
	return Claim{Type: typ, Value: value, ValueType: ValueTypeString}
}

func integerClaim(typ string, value int64) Claim {
	return Claim{Type: typ, Value: strconv.FormatInt(value, 10), ValueType: ValueTypeInteger}
}

func booleanClaim(typ string, value bool) Claim {
	return Claim{Type: typ, Value: strconv.FormatBool(value), ValueType: ValueTypeBoolean}
}

// Subject is the state a token is issued for.
type Subject struct {
	User    *models.User
	Account *models.Account
	Role    models.RoleName
}

// Build returns the full, ordered claim set for subject. Only iat, auth_time,
// nonce and jti depend on anything besides subject.
func Build(subject Subject, now time.Time) ([]Claim, error) {
	nonce, err := uuid.NewV7()
	if err != nil {
		return nil, err
	}
	jti, err := uuid.NewV7()
	if err != nil {
		return nil, err
	}

	registered := []Claim{
		stringClaim(TypeSubject, subject.Account.Name),
		integerClaim(TypeIssuedAt, now.Unix()),
		integerClaim(TypeAuthTime, now.Unix()),
		stringClaim(TypeNonce, nonce.String()),
		stringClaim(TypeJWTID, jti.String()),
		stringClaim(TypeEmail, subject.User.EmailAddress),
	}

	custom := []Claim{
		integerClaim(TypeUserID, int64(subject.User.ID)),
		integerClaim(TypeAccountID, int64(subject.Account.ID)),
		booleanClaim(TypeAccountIsMain, subject.Account.IsMain),
		stringClaim(TypeClanName, subject.Account.ClanName()),
		stringClaim(TypeClanTag, subject.Account.ClanTag()),
	}

	return Union(registered, RoleClaims(subject.Role), custom), nil
}

// Union merges claim sets, dropping duplicates by type and value, and orders
// the result by type with value as the tiebreaker.
func Union(sets ...[]Claim) []Claim {
	seen := make(map[[2]string]struct{})
	var out []Claim
	for _, set := range sets {
		for _, c := range set {
			key := [2]string{c.Type, c.Value}
			if _, ok := seen[key]; ok {
				continue
			}
			seen[key] = struct{}{}
			out = append(out, c)
		}
	}

	slices.SortStableFunc(out, func(a, b Claim) int {
		if n := cmp.Compare(a.Type, b.Type); n != 0 {
			return n
		}
		return cmp.Compare(a.Value, b.Value)
	})
	return out
}

// Values returns every value of the given claim type, in order.
func Values(set []Claim, typ string) []string {
	var out []string
	for _, c := range set {
		if c.Type == typ {
			out = append(out, c.Value)
		}
	}
	return out
}
