package feed

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/br0z1/social-media-app/internal/geo"
	"github.com/br0z1/social-media-app/internal/models"
	"github.com/br0z1/social-media-app/internal/repository"
)

func newTestManager(t *testing.T, repo *repository.MemoryPostRepository, cfg ManagerConfig) *Manager {
	t.Helper()
	m := NewManager(newActiveSession(t), newTestSampler(repo, fixedRandom(0)), repo, cfg)
	t.Cleanup(m.Stop)
	return m
}

func TestManagerNextPostsResolvesPosts(t *testing.T) {
	repo := repository.NewMemoryPostRepository()
	seedPosts(t, repo, 10, minutes, models.EngagementLow)
	m := newTestManager(t, repo, ManagerConfig{})

	posts, exhausted, err := m.NextPosts(context.Background(), 7)
	require.NoError(t, err)
	assert.False(t, exhausted)
	require.Len(t, posts, 7)
	assert.Equal(t, "edgar", posts[0].AuthorUsername)

	delivered := m.Delivered()
	for i, p := range posts {
		assert.Equal(t, delivered[i], p.PostID)
	}
	assert.Len(t, m.CachedPostIDs(), 7)
}

// failingResolver fails the first fail lookups and then defers to repo.
type failingResolver struct {
	repo *repository.MemoryPostRepository
	fail atomic.Int32
}

func (r *failingResolver) GetPosts(ctx context.Context, postIDs []string) ([]models.Post, error) {
	if r.fail.Add(-1) >= 0 {
		return nil, errors.New("store unavailable")
	}
	return r.repo.GetPosts(ctx, postIDs)
}

func TestManagerRetriesPostsAfterResolveError(t *testing.T) {
	repo := repository.NewMemoryPostRepository()
	seedPosts(t, repo, 10, minutes, models.EngagementLow)
	resolver := &failingResolver{repo: repo}
	resolver.fail.Store(1)
	m := NewManager(newActiveSession(t), newTestSampler(repo, fixedRandom(0)), resolver, ManagerConfig{})
	t.Cleanup(m.Stop)

	posts, exhausted, err := m.NextPosts(context.Background(), 7)
	require.Error(t, err)
	assert.Empty(t, posts)
	assert.False(t, exhausted)
	assert.Empty(t, m.Delivered())
	require.Len(t, m.Session().OnDeck(), 7)
	pending := m.Session().OnDeck()

	posts, _, err = m.NextPosts(context.Background(), 7)
	require.NoError(t, err)
	require.Len(t, posts, 7)
	for i, p := range posts {
		assert.Equal(t, pending[i], p.PostID)
	}
	assert.Equal(t, pending, m.Delivered())
}

func TestManagerEvictsPostsOutsideVisibleRange(t *testing.T) {
	repo := repository.NewMemoryPostRepository()
	seedPosts(t, repo, 30, minutes, models.EngagementLow)
	m := newTestManager(t, repo, ManagerConfig{})

	for i := 0; i < 2; i++ {
		_, _, err := m.NextPosts(context.Background(), 7)
		require.NoError(t, err)
	}
	delivered := m.Delivered()
	require.Len(t, delivered, 14)

	require.NoError(t, m.UpdateVisibleRange(10, 11))
	assert.ElementsMatch(t, delivered[9:13], m.CachedPostIDs())
}

func TestManagerTrimsOldestPosts(t *testing.T) {
	repo := repository.NewMemoryPostRepository()
	seedPosts(t, repo, 10, minutes, models.EngagementLow)
	m := newTestManager(t, repo, ManagerConfig{MaxPostCache: 5})

	_, _, err := m.NextPosts(context.Background(), 7)
	require.NoError(t, err)

	delivered := m.Delivered()
	assert.ElementsMatch(t, delivered[2:], m.CachedPostIDs())
}

func TestManagerRejectsInvalidVisibleRange(t *testing.T) {
	m := newTestManager(t, repository.NewMemoryPostRepository(), ManagerConfig{})
	assert.ErrorIs(t, m.UpdateVisibleRange(5, 2), ErrInvalidRange)
	assert.ErrorIs(t, m.UpdateVisibleRange(-1, 2), ErrInvalidRange)
}

func TestManagerReportsNoMorePosts(t *testing.T) {
	repo := repository.NewMemoryPostRepository()
	seedPosts(t, repo, 3, func(int) time.Duration { return time.Minute }, models.EngagementLow)

	var calls atomic.Int32
	var reported atomic.Value
	m := newTestManager(t, repo, ManagerConfig{
		MaxEmptyRefills: 3,
		OnNoMorePosts: func(sessionID string) {
			calls.Add(1)
			reported.Store(sessionID)
		},
	})
	m.Start(context.Background())

	posts, _, err := m.NextPosts(context.Background(), 7)
	require.NoError(t, err)
	assert.Len(t, posts, 3)

	m.Pause()
	for i := 0; i < 4; i++ {
		posts, _, err := m.NextPosts(context.Background(), 7)
		require.NoError(t, err)
		assert.Empty(t, posts)
		m.Pause()
	}

	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, "test-session", reported.Load())
	assert.False(t, m.IsActive())
}

func TestManagerGoesStationaryAfterInactivity(t *testing.T) {
	repo := repository.NewMemoryPostRepository()
	seedPosts(t, repo, 10, minutes, models.EngagementLow)
	m := newTestManager(t, repo, ManagerConfig{
		InactivityTimeout: 30 * time.Millisecond,
		TickInterval:      5 * time.Millisecond,
	})

	m.Start(context.Background())
	assert.False(t, m.IsStationary())
	assert.Eventually(t, m.IsStationary, time.Second, 5*time.Millisecond)

	m.OnUserActivity()
	assert.False(t, m.IsStationary())
	assert.True(t, m.IsActive())
}

func TestManagerBackgroundLoopRefillsAndPreloads(t *testing.T) {
	repo := repository.NewMemoryPostRepository()
	seedPosts(t, repo, 10, minutes, models.EngagementLow)
	m := newTestManager(t, repo, ManagerConfig{
		TickInterval: 5 * time.Millisecond,
		PreloadCount: 3,
	})

	m.Start(context.Background())
	assert.Eventually(t, func() bool {
		return len(m.Session().OnDeck()) == TargetOnDeck && len(m.CachedPostIDs()) == 3
	}, time.Second, 5*time.Millisecond)
}

func TestManagerPauseAndResume(t *testing.T) {
	m := newTestManager(t, repository.NewMemoryPostRepository(), ManagerConfig{})
	m.Start(context.Background())

	m.Pause()
	assert.True(t, m.IsStationary())
	m.Resume()
	assert.False(t, m.IsStationary())
}

func TestManagerSetSphereForgetsDeliveries(t *testing.T) {
	repo := repository.NewMemoryPostRepository()
	seedPosts(t, repo, 10, minutes, models.EngagementLow)
	m := newTestManager(t, repo, ManagerConfig{})

	_, _, err := m.NextPosts(context.Background(), 7)
	require.NoError(t, err)
	require.NotEmpty(t, m.Delivered())

	assert.ErrorIs(t, m.SetSphere(geo.Sphere{Radius: 0}), geo.ErrInvalidSphere)
	assert.NotEmpty(t, m.Delivered())

	require.NoError(t, m.SetSphere(testSphere))
	assert.Empty(t, m.Delivered())
	assert.Empty(t, m.CachedPostIDs())
}
