package domain

import "strings"

// Role is one of the three disjoint access categories.
type Role string

const (
	RoleUnresolved Role = ""
	RoleAdmin      Role = "admin"
	RoleShopOwner  Role = "shop_owner"
	RoleStudent    Role = "student"
)

// rolePriority orders roles for tie-breaking when an identity appears in several collections.
// Lower index wins.
var rolePriority = []Role{RoleAdmin, RoleShopOwner, RoleStudent}

// RolePriority returns the tie-break order, highest priority first.
func RolePriority() []Role {
	out := make([]Role, len(rolePriority))
	copy(out, rolePriority)
	return out
}

// ParseRole normalises a role string; unknown values map to RoleUnresolved.
func ParseRole(value string) Role {
	switch Role(strings.ToLower(strings.TrimSpace(value))) {
	case RoleAdmin:
		return RoleAdmin
	case RoleShopOwner:
		return RoleShopOwner
	case RoleStudent:
		return RoleStudent
	}
	return RoleUnresolved
}

// Principal is a resolved identity variant. Exactly one of AdminPrincipal,
// ShopOwnerPrincipal, or StudentPrincipal.
type Principal interface {
	Role() Role
	UID() string
	DisplayName() string
}

// AdminPrincipal is an identity found in the administrators collection.
type AdminPrincipal struct {
	ID    string
	Name  string
	Email string
}

func (p AdminPrincipal) Role() Role          { return RoleAdmin }
func (p AdminPrincipal) UID() string         { return p.ID }
func (p AdminPrincipal) DisplayName() string { return p.Name }

// ShopOwnerPrincipal is an identity found in the shop owners collection. It doubles as
// the shop profile used when enriching orders.
type ShopOwnerPrincipal struct {
	ID       string
	ShopName string
	Email    string
	Phone    string
	Address  string
}

func (p ShopOwnerPrincipal) Role() Role          { return RoleShopOwner }
func (p ShopOwnerPrincipal) UID() string         { return p.ID }
func (p ShopOwnerPrincipal) DisplayName() string { return p.ShopName }

// Details converts the principal into the snapshot stored on orders.
func (p ShopOwnerPrincipal) Details() ShopDetails {
	return ShopDetails{
		OwnerID:  p.ID,
		ShopName: p.ShopName,
		Phone:    p.Phone,
		Email:    p.Email,
		Address:  p.Address,
	}
}

// StudentPrincipal is an identity found in the users collection.
type StudentPrincipal struct {
	ID    string
	Name  string
	Email string
	Phone string
}

func (p StudentPrincipal) Role() Role          { return RoleStudent }
func (p StudentPrincipal) UID() string         { return p.ID }
func (p StudentPrincipal) DisplayName() string { return p.Name }

// Details converts the principal into the snapshot stored on orders and bookings.
func (p StudentPrincipal) Details() UserDetails {
	return UserDetails{UID: p.ID, Name: p.Name, Email: p.Email, Phone: p.Phone}
}

// ResolvePrincipal picks the highest priority principal from the matches returned by an
// identity lookup. It returns nil when there are no matches.
func ResolvePrincipal(matches []Principal) Principal {
	for _, role := range rolePriority {
		for _, candidate := range matches {
			if candidate != nil && candidate.Role() == role {
				return candidate
			}
		}
	}
	return nil
}

// FindPrincipal returns the match with the requested role, if any.
func FindPrincipal[T Principal](matches []Principal) (T, bool) {
	var zero T
	for _, candidate := range matches {
		if typed, ok := candidate.(T); ok {
			return typed, true
		}
	}
	return zero, false
}

// HomePath is where a guard sends a principal with the given role. Unresolved identities
// are sent to the login page.
func HomePath(role Role) string {
	switch role {
	case RoleAdmin:
		return "/admin"
	case RoleShopOwner:
		return "/shop"
	case RoleStudent:
		return "/"
	}
	return "/login"
}
