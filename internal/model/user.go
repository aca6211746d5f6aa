// Package model defines the data structures used throughout the application.
package model

// User is a local account. The id is assigned by the store and never reused;
// it is also the value kept in the session credential.
//
// PreferredName is a display placeholder until users can pick their own.
type User struct {
	ID            int64  `json:"id"            db:"id"`
	PreferredName string `json:"preferredName" db:"preferred_name"`
}

// ExternalIdentity is our cached copy of GitHub's view of a person.
//
// ExternalID is GitHub's numeric user id. It survives renames on GitHub's side,
// so it is the durable join key; Login is only a mutable handle.
// Every ExternalIdentity points at exactly one existing User.
type ExternalIdentity struct {
	ExternalID int64  `json:"externalId" db:"external_id"`
	UserID     int64  `json:"userId"     db:"user_id"`
	Login      string `json:"login"      db:"login"`
	AvatarURL  string `json:"avatarUrl"  db:"avatar_url"`
	ProfileURL string `json:"profileUrl" db:"profile_url"`
}

// PermissionGrant attaches a named capability to a user. Names are
// case-sensitive and free-form; "admin" is the only one the core interprets.
type PermissionGrant struct {
	ID     int64  `json:"id"     db:"id"`
	UserID int64  `json:"userId" db:"user_id"`
	Name   string `json:"name"   db:"name"`
}

// PermissionAdmin is the permission name that unlocks administrative routes.
const PermissionAdmin = "admin"
