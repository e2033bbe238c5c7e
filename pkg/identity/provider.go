package identity

import (
	"context"
	"sync"

	"github.com/pkg/errors"
)

// Provider is the external auth provider contract. Subscribe delivers the
// current identity immediately and again on every sign-in, sign-out or
// session expiry. Credential returns a short-lived bearer token for the
// current identity, or an empty string when unauthenticated.
type Provider interface {
	Subscribe(fn func(*Identity)) func()
	Credential(ctx context.Context) (string, error)
}

// StaticProvider is a Provider backed by a fixed identity and token. It is
// used by the CLI (which reads both from configuration) and by tests, where
// SignIn and SignOut drive transitions by hand.
type StaticProvider struct {
	mu          sync.Mutex
	current     *Identity
	token       string
	credErr     error
	subscribers map[int]func(*Identity)
	nextID      int
}

var _ Provider = (*StaticProvider)(nil)

type StaticProviderOption func(*StaticProvider)

func WithIdentity(ident *Identity) StaticProviderOption {
	return func(p *StaticProvider) {
		p.current = ident
	}
}

func WithToken(token string) StaticProviderOption {
	return func(p *StaticProvider) {
		p.token = token
	}
}

// WithCredentialError makes Credential fail, to exercise the resolver's
// fail-silent path.
func WithCredentialError(err error) StaticProviderOption {
	return func(p *StaticProvider) {
		p.credErr = err
	}
}

func NewStaticProvider(options ...StaticProviderOption) *StaticProvider {
	ret := &StaticProvider{
		subscribers: make(map[int]func(*Identity)),
	}
	for _, option := range options {
		option(ret)
	}
	return ret
}

func (p *StaticProvider) Subscribe(fn func(*Identity)) func() {
	p.mu.Lock()
	id := p.nextID
	p.nextID++
	p.subscribers[id] = fn
	current := p.current
	p.mu.Unlock()

	// providers report the current state on subscription, not only on change
	fn(current)

	return func() {
		p.mu.Lock()
		defer p.mu.Unlock()
		delete(p.subscribers, id)
	}
}

func (p *StaticProvider) Credential(_ context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.credErr != nil {
		return "", p.credErr
	}
	if p.current == nil {
		return "", errors.New("no identity signed in")
	}
	return p.token, nil
}

// SignIn sets the current identity and notifies subscribers.
func (p *StaticProvider) SignIn(ident *Identity, token string) {
	p.mu.Lock()
	p.current = ident
	p.token = token
	subs := p.snapshotSubscribersLocked()
	p.mu.Unlock()

	for _, fn := range subs {
		fn(ident)
	}
}

// SignOut clears the current identity and notifies subscribers.
func (p *StaticProvider) SignOut() {
	p.mu.Lock()
	p.current = nil
	p.token = ""
	subs := p.snapshotSubscribersLocked()
	p.mu.Unlock()

	for _, fn := range subs {
		fn(nil)
	}
}

func (p *StaticProvider) snapshotSubscribersLocked() []func(*Identity) {
	ret := make([]func(*Identity), 0, len(p.subscribers))
	for _, fn := range p.subscribers {
		ret = append(ret, fn)
	}
	return ret
}
