package identity

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"
)

// Resolver tracks the provider's identity state and hands out bearer
// credentials on demand. It starts in StateUnknown and moves to
// StateAnonymous or StateAuthenticated as the provider reports; it never
// transitions on its own.
type Resolver struct {
	mu          sync.Mutex
	provider    Provider
	state       State
	current     *Identity
	subscribers map[int]func(*Identity)
	nextID      int
	unsubscribe func()
}

func NewResolver(provider Provider) *Resolver {
	ret := &Resolver{
		provider:    provider,
		state:       StateUnknown,
		subscribers: make(map[int]func(*Identity)),
	}
	ret.unsubscribe = provider.Subscribe(ret.onProviderChange)
	return ret
}

func (r *Resolver) onProviderChange(ident *Identity) {
	r.mu.Lock()
	r.current = ident
	if ident != nil {
		r.state = StateAuthenticated
	} else {
		r.state = StateAnonymous
	}
	state := r.state
	subs := make([]func(*Identity), 0, len(r.subscribers))
	for _, fn := range r.subscribers {
		subs = append(subs, fn)
	}
	r.mu.Unlock()

	userID := ""
	if ident != nil {
		userID = ident.ID
	}
	log.Debug().Str("user_id", userID).Str("state", string(state)).Msg("identity changed")

	for _, fn := range subs {
		fn(ident)
	}
}

func (r *Resolver) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Current returns a copy of the current identity, or nil when signed out.
func (r *Resolver) Current() *Identity {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.current == nil {
		return nil
	}
	ident := *r.current
	return &ident
}

// AcquireCredential returns a fresh bearer token for the current identity,
// or an empty string when none is obtainable. Failures are logged rather
// than returned; absence of a credential is the signal callers act on.
func (r *Resolver) AcquireCredential(ctx context.Context) string {
	r.mu.Lock()
	if r.current == nil {
		r.mu.Unlock()
		return ""
	}
	r.mu.Unlock()

	token, err := r.provider.Credential(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("failed to acquire credential")
		return ""
	}
	return token
}

// Subscribe registers fn for identity transitions and returns an unsubscribe
// function. fn is not called with the current state; use Current for that.
func (r *Resolver) Subscribe(fn func(*Identity)) func() {
	r.mu.Lock()
	defer r.mu.Unlock()
	id := r.nextID
	r.nextID++
	r.subscribers[id] = fn
	return func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		delete(r.subscribers, id)
	}
}

func (r *Resolver) Close() {
	if r.unsubscribe != nil {
		r.unsubscribe()
		r.unsubscribe = nil
	}
}
