// Package auth holds the bearer token of a user context and drives the password, OTP login, signup
// and forgot-password flows against the corpus API.
package auth

import (
	"github.com/swecha/corpus-contrib/network"
)

// Session is the credential state of one interactive user context. It is not safe for concurrent use.
type Session struct {
	Authenticated bool
	// Token is the bearer token, "" if none is held.
	Token string
	User  *network.User

	tokens TokenStore
}

// NewSession returns an empty, unauthenticated session that is not persisted.
func NewSession() *Session {
	return &Session{}
}

// NewPersistentSession returns an empty session whose token is kept in tokens.
// tokens must not be shared with another session.
func NewPersistentSession(tokens TokenStore) *Session {
	return &Session{tokens: tokens}
}

// HasToken ...
func (s *Session) HasToken() bool {
	return s.Token != ""
}

// UserID returns the id of the authenticated identity, or "".
func (s *Session) UserID() string {
	if s.User == nil {
		return ""
	}
	return s.User.ID
}

func (s *Session) store() TokenStore {
	if s.tokens == nil {
		return NopTokenStore{}
	}
	return s.tokens
}

func (s *Session) clear() {
	s.Authenticated = false
	s.Token = ""
	s.User = nil
}

func (s *Session) authenticate(token string, user network.User) {
	s.Token = token
	s.User = &user
	s.Authenticated = true
}
