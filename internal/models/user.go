package models

import "strings"

// AllCategories in a grant matches every vector, categorized or not
const AllCategories = "*"

// User is an authenticated identity supplied by the caller.
// There is no default user: a nil *User means "anonymous" and sees nothing.
type User struct {
	ID      string `json:"id" yaml:"id" validate:"required"`
	Email   string `json:"email,omitempty" yaml:"email,omitempty" validate:"omitempty,email"`
	Name    string `json:"name,omitempty" yaml:"name,omitempty"`
	Picture string `json:"picture,omitempty" yaml:"picture,omitempty"`
}

// DisplayName falls back to the id when no name is known
func (u User) DisplayName() string {
	if strings.TrimSpace(u.Name) != "" {
		return u.Name
	}
	return u.ID
}

// UserGrant assigns a user ownership of every vector in the listed categories
type UserGrant struct {
	User       User     `json:"user" yaml:"user" validate:"required"`
	Categories []string `json:"categories" yaml:"categories" validate:"required,min=1"`
}

// Matches reports whether this grant covers a vector of the given category
func (g UserGrant) Matches(category string) bool {
	for _, c := range g.Categories {
		if c == AllCategories || c == category {
			return true
		}
	}
	return false
}

// OwnershipAssignment lists the users to grant after an ingestion run
type OwnershipAssignment struct {
	Users []UserGrant `json:"users" yaml:"users" validate:"dive"`
}
