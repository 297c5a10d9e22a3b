package auth

import (
	"context"
	"fmt"
	"time"

	"github.com/Andre-tech671/secrets-google-signup-webapp/cryptoutil"
	"github.com/allegro/bigcache/v3"
)

// stateStore remembers issued OAuth states and their PKCE verifiers until
// the provider calls back. Each state can be consumed once.
type stateStore struct {
	cache *bigcache.BigCache
}

func newStateStore(ctx context.Context, ttl time.Duration) (*stateStore, error) {
	cfg := bigcache.DefaultConfig(ttl)
	cfg.Shards = 16
	cfg.Verbose = false
	cache, err := bigcache.New(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("error creating oauth state cache: %w", err)
	}
	return &stateStore{cache: cache}, nil
}

func (s *stateStore) Issue() (state string, verifier string, err error) {
	state, err = cryptoutil.CreateState()
	if err != nil {
		return "", "", err
	}
	verifier, err = cryptoutil.CreateCodeVerifier()
	if err != nil {
		return "", "", err
	}
	if err := s.cache.Set(state, []byte(verifier)); err != nil {
		return "", "", fmt.Errorf("error storing oauth state: %w", err)
	}
	return state, verifier, nil
}

func (s *stateStore) Consume(state string) (string, bool) {
	verifier, err := s.cache.Get(state)
	if err != nil {
		return "", false
	}
	if err := s.cache.Delete(state); err != nil {
		return "", false
	}
	return string(verifier), true
}

func (s *stateStore) Close() error {
	return s.cache.Close()
}
