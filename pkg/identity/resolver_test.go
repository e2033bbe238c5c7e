package identity

import (
	"context"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolverStartsAnonymousWithEmptyProvider(t *testing.T) {
	r := NewResolver(NewStaticProvider())
	defer r.Close()

	assert.Equal(t, StateAnonymous, r.State())
	assert.Nil(t, r.Current())
}

func TestResolverPicksUpInitialIdentity(t *testing.T) {
	p := NewStaticProvider(
		WithIdentity(&Identity{ID: "user-1", Email: "one@example.com"}),
		WithToken("tok-1"),
	)
	r := NewResolver(p)
	defer r.Close()

	require.Equal(t, StateAuthenticated, r.State())
	ident := r.Current()
	require.NotNil(t, ident)
	assert.Equal(t, "user-1", ident.ID)
}

func TestResolverFollowsSignInAndSignOut(t *testing.T) {
	p := NewStaticProvider()
	r := NewResolver(p)
	defer r.Close()

	var seen []*Identity
	unsubscribe := r.Subscribe(func(ident *Identity) {
		seen = append(seen, ident)
	})
	defer unsubscribe()

	p.SignIn(&Identity{ID: "user-1"}, "tok-1")
	require.Equal(t, StateAuthenticated, r.State())

	p.SignOut()
	require.Equal(t, StateAnonymous, r.State())
	assert.Nil(t, r.Current())

	require.Len(t, seen, 2)
	require.NotNil(t, seen[0])
	assert.Equal(t, "user-1", seen[0].ID)
	assert.Nil(t, seen[1])
}

func TestAcquireCredentialReturnsToken(t *testing.T) {
	p := NewStaticProvider(WithIdentity(&Identity{ID: "user-1"}), WithToken("tok-1"))
	r := NewResolver(p)
	defer r.Close()

	assert.Equal(t, "tok-1", r.AcquireCredential(context.Background()))
}

func TestAcquireCredentialFailsSilently(t *testing.T) {
	p := NewStaticProvider(
		WithIdentity(&Identity{ID: "user-1"}),
		WithCredentialError(errors.New("provider is down")),
	)
	r := NewResolver(p)
	defer r.Close()

	assert.Equal(t, "", r.AcquireCredential(context.Background()))
}

func TestAcquireCredentialEmptyWhenSignedOut(t *testing.T) {
	r := NewResolver(NewStaticProvider())
	defer r.Close()

	assert.Equal(t, "", r.AcquireCredential(context.Background()))
}

func TestCurrentReturnsACopy(t *testing.T) {
	p := NewStaticProvider(WithIdentity(&Identity{ID: "user-1"}))
	r := NewResolver(p)
	defer r.Close()

	ident := r.Current()
	require.NotNil(t, ident)
	ident.ID = "mutated"

	assert.Equal(t, "user-1", r.Current().ID)
}

func TestUnsubscribeStopsNotifications(t *testing.T) {
	p := NewStaticProvider()
	r := NewResolver(p)
	defer r.Close()

	calls := 0
	unsubscribe := r.Subscribe(func(*Identity) { calls++ })
	p.SignIn(&Identity{ID: "user-1"}, "tok")
	unsubscribe()
	p.SignOut()

	assert.Equal(t, 1, calls)
}
