package cache

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/br0z1/social-media-app/internal/models"
	"github.com/br0z1/social-media-app/internal/repository"
)

// PostCacheSuite needs a reachable Redis; it is skipped otherwise.
type PostCacheSuite struct {
	suite.Suite
	redis *RedisClient
	repo  *repository.MemoryPostRepository
	cache *PostCache
	ctx   context.Context
}

func (s *PostCacheSuite) SetupSuite() {
	client, err := NewRedisClient(os.Getenv("REDIS_HOST"), os.Getenv("REDIS_PORT"), os.Getenv("REDIS_PASSWORD"))
	if err != nil {
		s.T().Skipf("redis unavailable: %v", err)
	}
	s.redis = client
}

func (s *PostCacheSuite) TearDownSuite() {
	if s.redis != nil {
		_ = s.redis.Close()
	}
}

func (s *PostCacheSuite) SetupTest() {
	s.ctx = context.Background()
	s.repo = repository.NewMemoryPostRepository()
	s.cache = NewPostCache(s.repo, s.redis, time.Minute)
}

func (s *PostCacheSuite) newPost(content string) *models.Post {
	post := &models.Post{
		Coordinates:    models.Coordinates{Lat: 40.7831, Lng: -73.9712},
		AuthorID:       "edgar",
		AuthorUsername: "edgar",
		Content:        content,
	}
	s.Require().NoError(s.cache.CreatePost(s.ctx, post))
	s.T().Cleanup(func() { _ = s.cache.Invalidate(context.Background(), post.PostID) })
	return post
}

func (s *PostCacheSuite) TestCreatePrimesCache() {
	post := s.newPost("hello")

	raw, err := s.redis.Get(s.ctx, postKey(post.PostID))
	s.Require().NoError(err)
	s.Contains(raw, "hello")
}

func (s *PostCacheSuite) TestGetPostServesFromCache() {
	post := s.newPost("cached")

	// A fresh store without the post proves the read came from Redis.
	detached := NewPostCache(repository.NewMemoryPostRepository(), s.redis, time.Minute)
	got, err := detached.GetPost(s.ctx, post.PostID)
	s.Require().NoError(err)
	s.Equal("cached", got.Content)
}

func (s *PostCacheSuite) TestGetPostMissReadsThrough() {
	post := &models.Post{Coordinates: models.Coordinates{Lat: 1, Lng: 1}, AuthorID: "a", AuthorUsername: "a", Content: "direct"}
	s.Require().NoError(s.repo.CreatePost(s.ctx, post))
	s.T().Cleanup(func() { _ = s.cache.Invalidate(context.Background(), post.PostID) })

	got, err := s.cache.GetPost(s.ctx, post.PostID)
	s.Require().NoError(err)
	s.Equal("direct", got.Content)

	_, err = s.redis.Get(s.ctx, postKey(post.PostID))
	s.NoError(err)

	_, err = s.cache.GetPost(s.ctx, "missing-post")
	s.ErrorIs(err, repository.ErrPostNotFound)
}

func (s *PostCacheSuite) TestGetPostsMixesHitsAndMisses() {
	cached := s.newPost("one")
	uncached := &models.Post{Coordinates: models.Coordinates{Lat: 1, Lng: 1}, AuthorID: "a", AuthorUsername: "a", Content: "two"}
	s.Require().NoError(s.repo.CreatePost(s.ctx, uncached))
	s.T().Cleanup(func() { _ = s.cache.Invalidate(context.Background(), uncached.PostID) })

	posts, err := s.cache.GetPosts(s.ctx, []string{uncached.PostID, "missing", cached.PostID})
	s.Require().NoError(err)
	s.Require().Len(posts, 2)
	s.Equal(uncached.PostID, posts[0].PostID)
	s.Equal(cached.PostID, posts[1].PostID)
}

func TestPostCacheSuite(t *testing.T) {
	suite.Run(t, new(PostCacheSuite))
}
