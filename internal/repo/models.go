package repo

import "time"

// User is an account that can sign in. Role is one of the auth role names;
// HomeAuthority is informational for scoped admins.
type User struct {
	ID            string
	Name          string
	Email         string
	PasswordHash  string
	Role          string
	HomeAuthority string
	CreatedAt     time.Time
}

// NewUser carries the fields needed to create an account.
type NewUser struct {
	Name          string
	Email         string
	PasswordHash  string
	Role          string
	HomeAuthority string
}
