package repository

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/br0z1/social-media-app/internal/models"
)

var (
	ErrPostNotFound = errors.New("post not found")
	ErrInvalidInput = errors.New("invalid input")
)

// PostRepository handles persistence of posts and the bucket/time queries
// the feed sampler issues.
type PostRepository interface {
	// Bucket sampling
	QueryBucketTimeRange(ctx context.Context, bucket string, startMs, endMs int64, limit int, minEngagement models.EngagementLevel) ([]models.PostSummary, error)
	BucketExistsAnyTime(ctx context.Context, bucket string) (bool, error)

	// Post CRUD
	CreatePost(ctx context.Context, post *models.Post) error
	GetPost(ctx context.Context, postID string) (*models.Post, error)
	GetPosts(ctx context.Context, postIDs []string) ([]models.Post, error)
	CountBucket(ctx context.Context, bucket string) (int64, error)
}

type postRepository struct {
	db *gorm.DB
}

// NewPostRepository creates a gorm-backed post repository
func NewPostRepository(db *gorm.DB) PostRepository {
	return &postRepository{db: db}
}

// QueryBucketTimeRange returns posts of one bucket with a sort key in
// [startMs, endMs], newest first. A zero minEngagement matches every level.
func (r *postRepository) QueryBucketTimeRange(ctx context.Context, bucket string, startMs, endMs int64, limit int, minEngagement models.EngagementLevel) ([]models.PostSummary, error) {
	if limit <= 0 {
		return nil, ErrInvalidInput
	}

	query := r.db.WithContext(ctx).
		Model(&models.Post{}).
		Where("partition_key = ? AND sort_key BETWEEN ? AND ?", bucket, startMs, endMs)
	if minEngagement > models.EngagementAny {
		query = query.Where("engagement_level >= ?", minEngagement)
	}

	var posts []models.Post
	err := query.
		Select("post_id", "partition_key", "sort_key", "coord_lat", "coord_lng", "engagement_level").
		Order("sort_key DESC").
		Limit(limit).
		Find(&posts).Error
	if err != nil {
		return nil, Classify(fmt.Errorf("query bucket %s: %w", bucket, err))
	}

	summaries := make([]models.PostSummary, 0, len(posts))
	for i := range posts {
		summaries = append(summaries, posts[i].Summary())
	}
	return summaries, nil
}

// BucketExistsAnyTime probes for a single post in the bucket
func (r *postRepository) BucketExistsAnyTime(ctx context.Context, bucket string) (bool, error) {
	var ids []string
	err := r.db.WithContext(ctx).
		Model(&models.Post{}).
		Where("partition_key = ?", bucket).
		Limit(1).
		Pluck("post_id", &ids).Error
	if err != nil {
		return false, Classify(fmt.Errorf("probe bucket %s: %w", bucket, err))
	}
	return len(ids) > 0, nil
}

// CreatePost inserts a post, filling its keys first
func (r *postRepository) CreatePost(ctx context.Context, post *models.Post) error {
	if post == nil {
		return ErrInvalidInput
	}
	return r.db.WithContext(ctx).Create(post).Error
}

// GetPost gets a post by ID
func (r *postRepository) GetPost(ctx context.Context, postID string) (*models.Post, error) {
	var post models.Post
	err := r.db.WithContext(ctx).Where("post_id = ?", postID).First(&post).Error

	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrPostNotFound
	}
	if err != nil {
		return nil, Classify(err)
	}
	return &post, nil
}

// GetPosts returns the posts that exist among postIDs, in the order asked.
func (r *postRepository) GetPosts(ctx context.Context, postIDs []string) ([]models.Post, error) {
	if len(postIDs) == 0 {
		return []models.Post{}, nil
	}

	var posts []models.Post
	if err := r.db.WithContext(ctx).Where("post_id IN ?", postIDs).Find(&posts).Error; err != nil {
		return nil, Classify(err)
	}
	return orderByIDs(posts, postIDs), nil
}

// CountBucket counts every post in a bucket
func (r *postRepository) CountBucket(ctx context.Context, bucket string) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.Post{}).Where("partition_key = ?", bucket).Count(&count).Error
	return count, Classify(err)
}

func orderByIDs(posts []models.Post, ids []string) []models.Post {
	byID := make(map[string]models.Post, len(posts))
	for _, p := range posts {
		byID[p.PostID] = p
	}
	ordered := make([]models.Post, 0, len(posts))
	for _, id := range ids {
		if p, ok := byID[id]; ok {
			ordered = append(ordered, p)
			delete(byID, id)
		}
	}
	return ordered
}
