package store

import (
	"github.com/vyrodovalexey/statestore/internal/model"
	"github.com/vyrodovalexey/statestore/internal/state"
)

// SessionState is the persisted state of the session store.
type SessionState struct {
	User *model.Session `json:"user"`
}

// SessionStore holds the logged-in user. With a persister configured the
// session survives restarts under SessionStorageKey.
type SessionStore struct {
	c *state.Container[SessionState]
}

// NewSessionStore creates a session store, hydrating it when a persister is
// configured.
func NewSessionStore(opts ...Option) *SessionStore {
	o := newOptions(opts)
	return &SessionStore{
		c: state.New(UserStoreName, SessionState{}, o.containerOptions(SessionStorageKey, true)...),
	}
}

// SetUser logs a user in.
func (s *SessionStore) SetUser(name, email string) (model.Session, error) {
	session, err := model.NewSession(name, email)
	if err != nil {
		return model.Session{}, err
	}

	s.c.Set(state.Named("setUser"), func(SessionState) SessionState {
		return SessionState{User: session}
	})

	return *session, nil
}

// Logout clears the session.
func (s *SessionStore) Logout() {
	s.c.Set(state.Named("logout"), func(SessionState) SessionState {
		return SessionState{}
	})
}

// Current returns the logged-in user, or false when nobody is logged in.
func (s *SessionStore) Current() (model.Session, bool) {
	st := s.c.Get()
	if st.User == nil {
		return model.Session{}, false
	}
	return *st.User, true
}

// Container exposes the underlying state container.
func (s *SessionStore) Container() *state.Container[SessionState] {
	return s.c
}
