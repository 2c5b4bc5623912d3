// Package token caches provider access tokens and arbitrates credential
// refresh. Refreshes for one provider are serialized behind an in-process
// mutex and a cross-process advisory lock, so a fleet of switch instances
// performs exactly one login against the external provider per expiry.
package token

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/paynet-transfer-switch/internal/domain/provider"
	"github.com/paynet-transfer-switch/internal/platform/persistence"
)

// DefaultTTL is how long a token loaded from provider settings is trusted
// before the cache re-reads it.
const DefaultTTL = 2 * time.Minute

// LoginFunc performs the provider-specific login and returns a fresh token
type LoginFunc func(ctx context.Context) (string, error)

type cachedToken struct {
	value     string
	expiresAt time.Time
}

// Service caches and refreshes provider access tokens
type Service struct {
	providers provider.Repository
	locker    persistence.Locker
	logger    *slog.Logger
	ttl       time.Duration

	mu      sync.Mutex
	cache   map[int64]cachedToken
	refresh map[int64]*sync.Mutex // per-provider refresh serialization
}

// NewService creates a token service over the provider store and the
// cross-process locker
func NewService(providers provider.Repository, locker persistence.Locker, logger *slog.Logger) *Service {
	return &Service{
		providers: providers,
		locker:    locker,
		logger:    logger,
		ttl:       DefaultTTL,
		cache:     make(map[int64]cachedToken),
		refresh:   make(map[int64]*sync.Mutex),
	}
}

// GetAccessToken serves the cached token for the provider, loading persisted
// settings on a miss. Returns empty when the provider holds no token yet.
func (s *Service) GetAccessToken(ctx context.Context, providerID int64) (string, error) {
	s.mu.Lock()
	if entry, ok := s.cache[providerID]; ok && time.Now().Before(entry.expiresAt) {
		s.mu.Unlock()
		return entry.value, nil
	}
	s.mu.Unlock()

	p, err := s.providers.GetByID(ctx, providerID)
	if err != nil {
		return "", fmt.Errorf("failed to load provider settings: %w", err)
	}
	if p.Settings.Token == "" {
		return "", nil
	}

	s.mu.Lock()
	s.cache[providerID] = cachedToken{value: p.Settings.Token, expiresAt: time.Now().Add(s.ttl)}
	s.mu.Unlock()
	return p.Settings.Token, nil
}

// RefreshOn401 replaces the provider's token after an authorization failure.
// badToken is the token the provider just rejected. The stale cache entry is
// evicted immediately so concurrent readers don't serve a token known to be
// bad; the login itself runs under the per-provider mutex and the
// cross-process lock, with a double-check against freshly persisted settings
// so late arrivals reuse the winner's token instead of logging in again.
func (s *Service) RefreshOn401(ctx context.Context, providerID int64, badToken string, login LoginFunc) (string, error) {
	s.evict(providerID)

	mu := s.refreshMutex(providerID)
	mu.Lock()
	defer mu.Unlock()

	var token string
	lockKey := "provider-token-" + strconv.FormatInt(providerID, 10)
	err := s.locker.WithLock(ctx, lockKey, func(ctx context.Context) error {
		// Double-check: another instance may have refreshed while we waited.
		p, err := s.providers.GetByID(ctx, providerID)
		if err != nil {
			return fmt.Errorf("failed to re-read provider settings: %w", err)
		}
		if p.Settings.Token != "" && p.Settings.Token != badToken {
			token = p.Settings.Token
			return nil
		}

		fresh, err := login(ctx)
		if err != nil {
			return fmt.Errorf("provider login failed: %w", err)
		}
		if err := s.providers.UpdateToken(ctx, providerID, fresh, time.Now()); err != nil {
			return fmt.Errorf("failed to persist refreshed token: %w", err)
		}
		token = fresh
		return nil
	})
	if err != nil {
		return "", err
	}

	s.mu.Lock()
	s.cache[providerID] = cachedToken{value: token, expiresAt: time.Now().Add(s.ttl)}
	s.mu.Unlock()

	s.logger.Info("provider token refreshed", "provider_id", providerID)
	return token, nil
}

func (s *Service) evict(providerID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.cache, providerID)
}

func (s *Service) refreshMutex(providerID int64) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	mu, ok := s.refresh[providerID]
	if !ok {
		mu = &sync.Mutex{}
		s.refresh[providerID] = mu
	}
	return mu
}
