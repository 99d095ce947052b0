package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/br0z1/social-media-app/internal/logger"
	"github.com/br0z1/social-media-app/internal/metrics"
	"github.com/br0z1/social-media-app/internal/models"
)

const postCacheName = "posts"

// DefaultPostTTL is how long a resolved post stays cached.
const DefaultPostTTL = 10 * time.Minute

// PostStore is the source of truth behind the cache.
type PostStore interface {
	CreatePost(ctx context.Context, post *models.Post) error
	GetPost(ctx context.Context, postID string) (*models.Post, error)
	GetPosts(ctx context.Context, postIDs []string) ([]models.Post, error)
}

// PostCache is a read-through Redis cache in front of a PostStore. Redis
// failures degrade to direct store reads.
type PostCache struct {
	store PostStore
	redis *RedisClient
	ttl   time.Duration
}

// NewPostCache wraps store with a Redis cache
func NewPostCache(store PostStore, redis *RedisClient, ttl time.Duration) *PostCache {
	if ttl <= 0 {
		ttl = DefaultPostTTL
	}
	return &PostCache{store: store, redis: redis, ttl: ttl}
}

func postKey(postID string) string {
	return "post:" + postID
}

// CreatePost writes through to the store and primes the cache
func (pc *PostCache) CreatePost(ctx context.Context, post *models.Post) error {
	if err := pc.store.CreatePost(ctx, post); err != nil {
		return err
	}
	pc.put(ctx, map[string]models.Post{post.PostID: *post})
	return nil
}

// GetPost returns a post from Redis, falling back to the store
func (pc *PostCache) GetPost(ctx context.Context, postID string) (*models.Post, error) {
	timer := time.Now()
	raw, err := pc.redis.Get(ctx, postKey(postID))
	metrics.Get().CacheOperationDuration.WithLabelValues("get", postCacheName).Observe(time.Since(timer).Seconds())

	if err == nil {
		var post models.Post
		if jsonErr := json.Unmarshal([]byte(raw), &post); jsonErr == nil {
			metrics.Get().CacheHitsTotal.WithLabelValues(postCacheName).Inc()
			return &post, nil
		}
	} else if !errors.Is(err, redis.Nil) {
		logger.Log.Warn("Post cache read failed", logger.WithPostID(postID), zap.Error(err))
	}
	metrics.Get().CacheMissesTotal.WithLabelValues(postCacheName).Inc()

	post, err := pc.store.GetPost(ctx, postID)
	if err != nil {
		return nil, err
	}
	pc.put(ctx, map[string]models.Post{post.PostID: *post})
	return post, nil
}

// GetPosts resolves many posts with one MGET and one store query for the
// misses. Order follows postIDs; unknown ids are skipped.
func (pc *PostCache) GetPosts(ctx context.Context, postIDs []string) ([]models.Post, error) {
	if len(postIDs) == 0 {
		return []models.Post{}, nil
	}

	found := make(map[string]models.Post, len(postIDs))
	keys := make([]string, len(postIDs))
	for i, id := range postIDs {
		keys[i] = postKey(id)
	}

	timer := time.Now()
	values, err := pc.redis.MGet(ctx, keys...)
	metrics.Get().CacheOperationDuration.WithLabelValues("mget", postCacheName).Observe(time.Since(timer).Seconds())
	if err != nil {
		logger.Log.Warn("Post cache batch read failed", zap.Error(err))
		values = nil
	}

	for i, v := range values {
		raw, ok := v.(string)
		if !ok {
			continue
		}
		var post models.Post
		if json.Unmarshal([]byte(raw), &post) == nil {
			found[postIDs[i]] = post
		}
	}

	var missing []string
	for _, id := range postIDs {
		if _, ok := found[id]; !ok {
			missing = append(missing, id)
		}
	}
	metrics.Get().CacheHitsTotal.WithLabelValues(postCacheName).Add(float64(len(postIDs) - len(missing)))
	metrics.Get().CacheMissesTotal.WithLabelValues(postCacheName).Add(float64(len(missing)))

	if len(missing) > 0 {
		fetched, err := pc.store.GetPosts(ctx, missing)
		if err != nil {
			return nil, err
		}
		fresh := make(map[string]models.Post, len(fetched))
		for _, p := range fetched {
			found[p.PostID] = p
			fresh[p.PostID] = p
		}
		pc.put(ctx, fresh)
	}

	out := make([]models.Post, 0, len(postIDs))
	seen := make(map[string]bool, len(postIDs))
	for _, id := range postIDs {
		if p, ok := found[id]; ok && !seen[id] {
			seen[id] = true
			out = append(out, p)
		}
	}
	return out, nil
}

// Invalidate drops cached copies of posts
func (pc *PostCache) Invalidate(ctx context.Context, postIDs ...string) error {
	if len(postIDs) == 0 {
		return nil
	}
	keys := make([]string, len(postIDs))
	for i, id := range postIDs {
		keys[i] = postKey(id)
	}
	return pc.redis.Del(ctx, keys...)
}

func (pc *PostCache) put(ctx context.Context, posts map[string]models.Post) {
	values := make(map[string]interface{}, len(posts))
	for id, p := range posts {
		data, err := json.Marshal(p)
		if err != nil {
			continue
		}
		values[postKey(id)] = data
	}
	if err := pc.redis.SetManyEx(ctx, values, pc.ttl); err != nil {
		logger.Log.Warn("Post cache write failed", zap.Int("posts", len(values)), zap.Error(err))
	}
}
