package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/br0z1/social-media-app/internal/models"
)

// MemoryPostRepository keeps posts in process. It backs tests and the
// DB_DRIVER=memory mode.
type MemoryPostRepository struct {
	mu      sync.RWMutex
	posts   map[string]models.Post
	buckets map[string][]string // post ids, newest first
	now     func() time.Time
}

// NewMemoryPostRepository creates an empty in-memory repository
func NewMemoryPostRepository() *MemoryPostRepository {
	return &MemoryPostRepository{
		posts:   make(map[string]models.Post),
		buckets: make(map[string][]string),
		now:     time.Now,
	}
}

func (r *MemoryPostRepository) QueryBucketTimeRange(ctx context.Context, bucket string, startMs, endMs int64, limit int, minEngagement models.EngagementLevel) ([]models.PostSummary, error) {
	if err := ctx.Err(); err != nil {
		return nil, Classify(err)
	}
	if limit <= 0 {
		return nil, ErrInvalidInput
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []models.PostSummary
	for _, id := range r.buckets[bucket] {
		p := r.posts[id]
		if p.SortKey < startMs || p.SortKey > endMs {
			continue
		}
		if minEngagement > models.EngagementAny && p.EngagementLevel < minEngagement {
			continue
		}
		out = append(out, p.Summary())
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (r *MemoryPostRepository) BucketExistsAnyTime(ctx context.Context, bucket string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, Classify(err)
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.buckets[bucket]) > 0, nil
}

func (r *MemoryPostRepository) CreatePost(ctx context.Context, post *models.Post) error {
	if post == nil {
		return ErrInvalidInput
	}
	if err := ctx.Err(); err != nil {
		return Classify(err)
	}

	post.Normalize(r.now())
	now := r.now().UTC()
	if post.CreatedAt.IsZero() {
		post.CreatedAt = now
	}
	post.UpdatedAt = now

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.posts[post.PostID]; !exists {
		ids := append(r.buckets[post.PartitionKey], post.PostID)
		sort.SliceStable(ids, func(i, j int) bool {
			return r.sortKeyOf(ids[i], post) > r.sortKeyOf(ids[j], post)
		})
		r.buckets[post.PartitionKey] = ids
	}
	r.posts[post.PostID] = *post
	return nil
}

// sortKeyOf resolves a sort key while the new post is not yet in the map.
func (r *MemoryPostRepository) sortKeyOf(id string, pending *models.Post) int64 {
	if id == pending.PostID {
		return pending.SortKey
	}
	return r.posts[id].SortKey
}

func (r *MemoryPostRepository) GetPost(ctx context.Context, postID string) (*models.Post, error) {
	if err := ctx.Err(); err != nil {
		return nil, Classify(err)
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.posts[postID]
	if !ok {
		return nil, ErrPostNotFound
	}
	return &p, nil
}

func (r *MemoryPostRepository) GetPosts(ctx context.Context, postIDs []string) ([]models.Post, error) {
	if err := ctx.Err(); err != nil {
		return nil, Classify(err)
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]models.Post, 0, len(postIDs))
	seen := make(map[string]bool, len(postIDs))
	for _, id := range postIDs {
		if p, ok := r.posts[id]; ok && !seen[id] {
			seen[id] = true
			out = append(out, p)
		}
	}
	return out, nil
}

func (r *MemoryPostRepository) CountBucket(ctx context.Context, bucket string) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, Classify(err)
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return int64(len(r.buckets[bucket])), nil
}

// Len returns the number of stored posts.
func (r *MemoryPostRepository) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.posts)
}

var _ PostRepository = (*MemoryPostRepository)(nil)
