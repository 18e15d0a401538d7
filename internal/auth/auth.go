// Package auth decides whether a provider accepts a login identity.
package auth

import (
	"crypto/subtle"
	"errors"
	"fmt"
)

var ErrUnauthorized = errors.New("auth: unauthorized")

// Identity is what a consumer presents on the login stream.
type Identity struct {
	UserName      string
	ApplicationID string
	Position      string
}

// Validator accepts or refuses a login identity.
type Validator interface {
	Validate(id Identity) error
}

// AllowAll accepts every identity with a user name.
type AllowAll struct{}

func (AllowAll) Validate(id Identity) error {
	if id.UserName == "" {
		return fmt.Errorf("%w: empty user name", ErrUnauthorized)
	}
	return nil
}

// UserList accepts the listed user names, optionally restricted to one
// application id. An empty list refuses everyone.
type UserList struct {
	Users         []string
	ApplicationID string
}

func (u UserList) Validate(id Identity) error {
	if u.ApplicationID != "" && !equal(u.ApplicationID, id.ApplicationID) {
		return fmt.Errorf("%w: application %q", ErrUnauthorized, id.ApplicationID)
	}
	for _, user := range u.Users {
		if equal(user, id.UserName) {
			return nil
		}
	}
	return fmt.Errorf("%w: user %q", ErrUnauthorized, id.UserName)
}

func equal(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

// FuncValidator adapts a function into a Validator.
type FuncValidator func(id Identity) error

func (f FuncValidator) Validate(id Identity) error {
	return f(id)
}
