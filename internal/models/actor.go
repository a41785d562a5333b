package models

import "github.com/golang-jwt/jwt/v5"

// Actor is the already-authenticated caller of every engine operation.
type Actor struct {
	Email   string `json:"email"`
	Name    string `json:"name,omitempty"`
	IsAdmin bool   `json:"isAdmin"`
}

// IdentityClaims is the payload of tokens issued by the external identity provider.
type IdentityClaims struct {
	Email   string `json:"email"`
	Name    string `json:"name,omitempty"`
	IsAdmin bool   `json:"is_admin"`
	jwt.RegisteredClaims
}

// Actor converts verified claims into an Actor.
func (c *IdentityClaims) Actor() *Actor {
	return &Actor{Email: c.Email, Name: c.Name, IsAdmin: c.IsAdmin}
}

// Preferences holds per-recipient delivery settings.
type Preferences struct {
	EmailNotifications bool `json:"emailNotifications"`
}

// DefaultPreferences applies when a recipient has stored nothing.
func DefaultPreferences() Preferences {
	return Preferences{EmailNotifications: true}
}
