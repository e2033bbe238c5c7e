package prefs

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/go-go-golems/parley/pkg/identity"
)

// LayeredStore puts the file cache in front of the remote store. Load
// prefers the remote copy when a credential is available and falls back to
// the cache; Save writes through to both. Remote failures never surface.
// Preference sync is best effort and the cache is authoritative for the
// local session.
type LayeredStore struct {
	cache    Store
	remote   Remote
	resolver *identity.Resolver
}

var _ Store = (*LayeredStore)(nil)

func NewLayeredStore(cache Store, remote Remote, resolver *identity.Resolver) *LayeredStore {
	return &LayeredStore{
		cache:    cache,
		remote:   remote,
		resolver: resolver,
	}
}

func (s *LayeredStore) Load(ctx context.Context, userID string) (Preferences, error) {
	cached, err := s.cache.Load(ctx, userID)
	if err != nil {
		log.Warn().Err(err).Str("user_id", userID).Msg("failed to load cached preferences")
		cached = DefaultPreferences()
	}

	token := s.resolver.AcquireCredential(ctx)
	if token == "" {
		return cached, nil
	}

	remote, found, err := s.remote.FetchPreferences(ctx, userID, token)
	if err != nil {
		log.Warn().Err(err).Str("user_id", userID).Msg("failed to fetch remote preferences")
		return cached, nil
	}
	if !found {
		// seed the remote store with what we have locally
		if err := s.remote.SavePreferences(ctx, userID, token, cached); err != nil {
			log.Warn().Err(err).Str("user_id", userID).Msg("failed to seed remote preferences")
		}
		return cached, nil
	}

	if err := s.cache.Save(ctx, userID, remote); err != nil {
		log.Warn().Err(err).Str("user_id", userID).Msg("failed to update preferences cache")
	}
	return remote, nil
}

func (s *LayeredStore) Save(ctx context.Context, userID string, p Preferences) error {
	if err := s.cache.Save(ctx, userID, p); err != nil {
		return err
	}

	token := s.resolver.AcquireCredential(ctx)
	if token == "" {
		return nil
	}
	if err := s.remote.SavePreferences(ctx, userID, token, p); err != nil {
		log.Warn().Err(err).Str("user_id", userID).Msg("failed to save remote preferences")
	}
	return nil
}
