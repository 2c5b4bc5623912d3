package token

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/paynet-transfer-switch/internal/domain/provider"
)

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

// fakeProviderRepo is an in-memory provider.Repository guarding its state the
// way the database row would.
type fakeProviderRepo struct {
	mu       sync.Mutex
	provider *provider.Provider
	getErr   error
}

func (f *fakeProviderRepo) GetByID(ctx context.Context, id int64) (*provider.Provider, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return nil, f.getErr
	}
	cp := *f.provider
	return &cp, nil
}

func (f *fakeProviderRepo) ExistsEnabled(ctx context.Context, id int64) (bool, error) {
	return true, nil
}

func (f *fakeProviderRepo) UpdateToken(ctx context.Context, id int64, token string, obtainedAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.provider.Settings.Token = token
	f.provider.Settings.TokenObtainedAt = &obtainedAt
	return nil
}

func (f *fakeProviderRepo) WithTx(tx pgx.Tx) provider.Repository { return f }

// fakeLocker serializes callbacks per key, mimicking the advisory lock
type fakeLocker struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newFakeLocker() *fakeLocker {
	return &fakeLocker{locks: make(map[string]*sync.Mutex)}
}

func (l *fakeLocker) WithLock(ctx context.Context, key string, fn func(ctx context.Context) error) error {
	l.mu.Lock()
	m, ok := l.locks[key]
	if !ok {
		m = &sync.Mutex{}
		l.locks[key] = m
	}
	l.mu.Unlock()

	m.Lock()
	defer m.Unlock()
	return fn(ctx)
}

func newTestService(repo *fakeProviderRepo) *Service {
	return NewService(repo, newFakeLocker(), newTestLogger())
}

func TestService_GetAccessToken(t *testing.T) {
	t.Run("LoadsPersistedToken", func(t *testing.T) {
		repo := &fakeProviderRepo{provider: &provider.Provider{
			ID:       1,
			Settings: provider.Settings{Token: "persisted-token"},
		}}
		svc := newTestService(repo)

		token, err := svc.GetAccessToken(context.Background(), 1)
		require.NoError(t, err)
		assert.Equal(t, "persisted-token", token)
	})

	t.Run("EmptyWhenNoToken", func(t *testing.T) {
		repo := &fakeProviderRepo{provider: &provider.Provider{ID: 1}}
		svc := newTestService(repo)

		token, err := svc.GetAccessToken(context.Background(), 1)
		require.NoError(t, err)
		assert.Empty(t, token)
	})

	t.Run("ServesFromCache", func(t *testing.T) {
		repo := &fakeProviderRepo{provider: &provider.Provider{
			ID:       1,
			Settings: provider.Settings{Token: "v1"},
		}}
		svc := newTestService(repo)

		_, err := svc.GetAccessToken(context.Background(), 1)
		require.NoError(t, err)

		// a store-side change is invisible until the cache expires
		repo.mu.Lock()
		repo.provider.Settings.Token = "v2"
		repo.mu.Unlock()

		token, err := svc.GetAccessToken(context.Background(), 1)
		require.NoError(t, err)
		assert.Equal(t, "v1", token)
	})

	t.Run("RepoError", func(t *testing.T) {
		repo := &fakeProviderRepo{getErr: errors.New("db down")}
		svc := newTestService(repo)

		_, err := svc.GetAccessToken(context.Background(), 1)
		assert.Error(t, err)
	})
}

func TestService_RefreshOn401(t *testing.T) {
	t.Run("LoginAndPersist", func(t *testing.T) {
		repo := &fakeProviderRepo{provider: &provider.Provider{
			ID:       1,
			Settings: provider.Settings{Token: "stale"},
		}}
		svc := newTestService(repo)

		token, err := svc.RefreshOn401(context.Background(), 1, "stale", func(ctx context.Context) (string, error) {
			return "fresh", nil
		})
		require.NoError(t, err)
		assert.Equal(t, "fresh", token)

		repo.mu.Lock()
		assert.Equal(t, "fresh", repo.provider.Settings.Token)
		assert.NotNil(t, repo.provider.Settings.TokenObtainedAt)
		repo.mu.Unlock()
	})

	t.Run("ReusesTokenRefreshedElsewhere", func(t *testing.T) {
		// Settings already hold a token different from the rejected one:
		// another instance won the refresh race.
		repo := &fakeProviderRepo{provider: &provider.Provider{
			ID:       1,
			Settings: provider.Settings{Token: "winner-token"},
		}}
		svc := newTestService(repo)

		var logins int32
		token, err := svc.RefreshOn401(context.Background(), 1, "rejected-token", func(ctx context.Context) (string, error) {
			atomic.AddInt32(&logins, 1)
			return "should-not-happen", nil
		})
		require.NoError(t, err)
		assert.Equal(t, "winner-token", token)
		assert.Zero(t, atomic.LoadInt32(&logins), "no login when settings already hold a fresh token")
	})

	t.Run("LoginFailure", func(t *testing.T) {
		repo := &fakeProviderRepo{provider: &provider.Provider{
			ID:       1,
			Settings: provider.Settings{Token: "stale"},
		}}
		svc := newTestService(repo)

		_, err := svc.RefreshOn401(context.Background(), 1, "stale", func(ctx context.Context) (string, error) {
			return "", errors.New("credentials rejected")
		})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "provider login failed")
	})

	t.Run("ConcurrentRefreshLogsInOnce", func(t *testing.T) {
		repo := &fakeProviderRepo{provider: &provider.Provider{
			ID:       1,
			Settings: provider.Settings{Token: "stale"},
		}}
		svc := newTestService(repo)

		var logins int32
		login := func(ctx context.Context) (string, error) {
			n := atomic.AddInt32(&logins, 1)
			time.Sleep(10 * time.Millisecond) // widen the race window
			return fmt.Sprintf("fresh-%d", n), nil
		}

		const workers = 8
		tokens := make([]string, workers)
		var wg sync.WaitGroup
		for i := 0; i < workers; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				token, err := svc.RefreshOn401(context.Background(), 1, "stale", login)
				assert.NoError(t, err)
				tokens[i] = token
			}(i)
		}
		wg.Wait()

		assert.Equal(t, int32(1), atomic.LoadInt32(&logins), "exactly one login across concurrent refreshes")
		for _, token := range tokens {
			assert.Equal(t, "fresh-1", token, "every caller gets the winner's token")
		}
	})

	t.Run("CacheUpdatedAfterRefresh", func(t *testing.T) {
		repo := &fakeProviderRepo{provider: &provider.Provider{
			ID:       1,
			Settings: provider.Settings{Token: "stale"},
		}}
		svc := newTestService(repo)

		_, err := svc.RefreshOn401(context.Background(), 1, "stale", func(ctx context.Context) (string, error) {
			return "fresh", nil
		})
		require.NoError(t, err)

		token, err := svc.GetAccessToken(context.Background(), 1)
		require.NoError(t, err)
		assert.Equal(t, "fresh", token)
	})
}
