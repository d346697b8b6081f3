// Package session carries the authenticated caller through every store and
// service call.
package session

import (
	"errors"

	"github.com/google/uuid"
)

var ErrNoSession = errors.New("no authenticated session")

// Session identifies the signed-in user. AccessToken is the bearer token
// issued by the hosted platform and is forwarded to it unchanged.
type Session struct {
	UserID      uuid.UUID
	Email       string
	AccessToken string
}

// Valid reports whether the session names a user.
func (s Session) Valid() bool {
	return s.UserID != uuid.Nil
}
