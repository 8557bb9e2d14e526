// Package credentials supplies bearer tokens to outbound requests.
//
// A TokenSource is consulted on every request attempt, so rotating or clearing a token
// takes effect on the next call without rebuilding the client.
package credentials

import (
	"context"
	"os"
	"strings"
	"sync"
)

// TokenSource returns the current bearer token. ok is false when no token is available,
// in which case no Authorization header is sent.
type TokenSource interface {
	Token(ctx context.Context) (token string, ok bool)
}

// Store is an in-memory token holder shared by the parts of an application that log in,
// refresh or log out. It is safe for concurrent use.
type Store struct {
	mu    sync.RWMutex
	token string
}

var _ TokenSource = (*Store)(nil)

// NewStore returns an empty Store.
func NewStore() *Store {
	return &Store{}
}

// Set replaces the stored token. An empty or blank token clears the store.
func (s *Store) Set(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = strings.TrimSpace(token)
}

// Clear removes the stored token.
func (s *Store) Clear() {
	s.Set("")
}

// Token implements TokenSource.
func (s *Store) Token(_ context.Context) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token, s.token != ""
}

type staticSource string

// Static returns a TokenSource that always yields token. A blank token yields nothing.
func Static(token string) TokenSource {
	return staticSource(strings.TrimSpace(token))
}

func (s staticSource) Token(_ context.Context) (string, bool) {
	return string(s), s != ""
}

// Func adapts a function to TokenSource.
type Func func(ctx context.Context) (string, bool)

// Token implements TokenSource.
func (f Func) Token(ctx context.Context) (string, bool) {
	if f == nil {
		return "", false
	}
	token, ok := f(ctx)
	token = strings.TrimSpace(token)
	return token, ok && token != ""
}

type envSource string

// Env returns a TokenSource that reads the named environment variable on every call.
func Env(name string) TokenSource {
	return envSource(name)
}

func (e envSource) Token(_ context.Context) (string, bool) {
	token := strings.TrimSpace(os.Getenv(string(e)))
	return token, token != ""
}

// None is a TokenSource that never yields a token.
var None TokenSource = Static("")
