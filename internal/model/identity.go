package model

import (
	"slices"
	"sort"
)

// Identity is the fully resolved caller of a request: the local user, the
// GitHub identity linked to it, and the names of every permission it holds.
//
// A nil *Identity means the request is anonymous. All methods are nil-safe.
type Identity struct {
	User        User
	External    ExternalIdentity
	Permissions []string // sorted, no duplicates
}

// NewIdentity builds an Identity from the raw permission grants.
func NewIdentity(user User, ext ExternalIdentity, grants []PermissionGrant) *Identity {
	names := make([]string, 0, len(grants))
	for _, g := range grants {
		names = append(names, g.Name)
	}
	sort.Strings(names)
	return &Identity{
		User:        user,
		External:    ext,
		Permissions: slices.Compact(names),
	}
}

// HasPermission reports whether the identity holds the named permission.
func (i *Identity) HasPermission(name string) bool {
	if i == nil {
		return false
	}
	_, found := slices.BinarySearch(i.Permissions, name)
	return found
}

// IsAdmin reports whether the identity holds the "admin" permission.
// Anonymous callers are never admins.
func (i *Identity) IsAdmin() bool {
	return i.HasPermission(PermissionAdmin)
}

// SessionUser is the public view of a logged in user.
type SessionUser struct {
	ID         int64  `json:"id"`
	ExternalID int64  `json:"externalId"`
	Login      string `json:"login"`
}

// SessionView is what session queries return to clients.
type SessionView struct {
	User        *SessionUser `json:"user"`
	Permissions []string     `json:"permissions"`
}

// View renders the identity for clients. Anonymous callers get a null user
// and an empty permission list.
func (i *Identity) View() SessionView {
	if i == nil {
		return SessionView{Permissions: []string{}}
	}
	perms := i.Permissions
	if perms == nil {
		perms = []string{}
	}
	return SessionView{
		User: &SessionUser{
			ID:         i.User.ID,
			ExternalID: i.External.ExternalID,
			Login:      i.External.Login,
		},
		Permissions: perms,
	}
}
