package service

import (
	"context"
	"sync"
)

// SessionListener observes sign-in state. It receives nil after sign-out.
type SessionListener func(identity *Identity)

// AuthSession is the sign-in state of one dashboard client. Listeners are
// notified on every change and once immediately on registration.
type AuthSession struct {
	credentials CredentialService

	mu        sync.Mutex
	current   *Identity
	listeners map[int]SessionListener
	nextID    int
}

// NewAuthSession creates a signed-out session.
func NewAuthSession(credentials CredentialService) *AuthSession {
	return &AuthSession{
		credentials: credentials,
		listeners:   make(map[int]SessionListener),
	}
}

// SignIn verifies the credentials and makes the identity current.
func (a *AuthSession) SignIn(ctx context.Context, email, password string) (Identity, error) {
	identity, err := a.credentials.Verify(ctx, email, password)
	if err != nil {
		return Identity{}, err
	}

	a.set(&identity)
	return identity, nil
}

// SignOut clears the current identity. Signing out twice notifies only once.
func (a *AuthSession) SignOut() {
	a.mu.Lock()
	signedIn := a.current != nil
	a.mu.Unlock()

	if signedIn {
		a.set(nil)
	}
}

// Current returns the signed-in identity.
func (a *AuthSession) Current() (Identity, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.current == nil {
		return Identity{}, false
	}
	return *a.current, true
}

// OnSessionChange registers listener and returns its unsubscribe function.
func (a *AuthSession) OnSessionChange(listener SessionListener) func() {
	a.mu.Lock()
	id := a.nextID
	a.nextID++
	a.listeners[id] = listener
	current := copyIdentity(a.current)
	a.mu.Unlock()

	listener(current)

	var once sync.Once
	return func() {
		once.Do(func() {
			a.mu.Lock()
			defer a.mu.Unlock()
			delete(a.listeners, id)
		})
	}
}

func (a *AuthSession) set(identity *Identity) {
	a.mu.Lock()
	a.current = copyIdentity(identity)
	listeners := make([]SessionListener, 0, len(a.listeners))
	for _, listener := range a.listeners {
		listeners = append(listeners, listener)
	}
	a.mu.Unlock()

	for _, listener := range listeners {
		listener(copyIdentity(identity))
	}
}

func copyIdentity(identity *Identity) *Identity {
	if identity == nil {
		return nil
	}
	out := *identity
	return &out
}
