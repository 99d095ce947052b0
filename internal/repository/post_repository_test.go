package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/br0z1/social-media-app/internal/models"
)

// PostRepositorySuite runs the same contract against every implementation.
type PostRepositorySuite struct {
	suite.Suite
	newRepo func() PostRepository
	repo    PostRepository
	ctx     context.Context
	base    int64
}

func (s *PostRepositorySuite) SetupTest() {
	s.repo = s.newRepo()
	s.ctx = context.Background()
	s.base = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC).UnixMilli()
}

func (s *PostRepositorySuite) seed(id, bucket string, offset time.Duration, level models.EngagementLevel) {
	err := s.repo.CreatePost(s.ctx, &models.Post{
		PostID:          id,
		PartitionKey:    bucket,
		SortKey:         s.base + offset.Milliseconds(),
		Coordinates:     models.Coordinates{Lat: 40.78, Lng: -73.97},
		AuthorID:        "edgar",
		AuthorUsername:  "edgar",
		Content:         "post " + id,
		EngagementLevel: level,
		MediaURLs:       models.MediaList{"https://cdn.example.com/" + id + ".jpg"},
	})
	s.Require().NoError(err)
}

func (s *PostRepositorySuite) TestQueryBucketTimeRangeNewestFirst() {
	s.seed("a", "dr5ru", 0, models.EngagementLow)
	s.seed("b", "dr5ru", time.Hour, models.EngagementHigh)
	s.seed("c", "dr5ru", 2*time.Hour, models.EngagementMedium)
	s.seed("other", "dr72h", time.Hour, models.EngagementHigh)

	posts, err := s.repo.QueryBucketTimeRange(s.ctx, "dr5ru", s.base, s.base+3*time.Hour.Milliseconds(), 100, models.EngagementAny)
	s.Require().NoError(err)
	s.Require().Len(posts, 3)
	s.Equal([]string{"c", "b", "a"}, ids(posts))
	s.Equal("dr5ru", posts[0].PartitionKey)
}

func (s *PostRepositorySuite) TestQueryBucketTimeRangeBounds() {
	s.seed("early", "dr5ru", -time.Hour, models.EngagementLow)
	s.seed("start", "dr5ru", 0, models.EngagementLow)
	s.seed("end", "dr5ru", time.Hour, models.EngagementLow)
	s.seed("late", "dr5ru", 2*time.Hour, models.EngagementLow)

	posts, err := s.repo.QueryBucketTimeRange(s.ctx, "dr5ru", s.base, s.base+time.Hour.Milliseconds(), 100, models.EngagementAny)
	s.Require().NoError(err)
	s.ElementsMatch([]string{"start", "end"}, ids(posts))
}

func (s *PostRepositorySuite) TestQueryBucketTimeRangeEngagementFloor() {
	s.seed("low", "dr5ru", 0, models.EngagementLow)
	s.seed("medium", "dr5ru", time.Minute, models.EngagementMedium)
	s.seed("high", "dr5ru", 2*time.Minute, models.EngagementHigh)

	posts, err := s.repo.QueryBucketTimeRange(s.ctx, "dr5ru", s.base, s.base+time.Hour.Milliseconds(), 100, models.EngagementMedium)
	s.Require().NoError(err)
	s.ElementsMatch([]string{"medium", "high"}, ids(posts))
}

func (s *PostRepositorySuite) TestQueryBucketTimeRangeLimit() {
	for i := 0; i < 5; i++ {
		s.seed(string(rune('a'+i)), "dr5ru", time.Duration(i)*time.Minute, models.EngagementLow)
	}

	posts, err := s.repo.QueryBucketTimeRange(s.ctx, "dr5ru", s.base, s.base+time.Hour.Milliseconds(), 2, models.EngagementAny)
	s.Require().NoError(err)
	s.Equal([]string{"e", "d"}, ids(posts))

	_, err = s.repo.QueryBucketTimeRange(s.ctx, "dr5ru", s.base, s.base, 0, models.EngagementAny)
	s.ErrorIs(err, ErrInvalidInput)
}

func (s *PostRepositorySuite) TestBucketExistsAnyTime() {
	s.seed("old", "dr5ru", -300*24*time.Hour, models.EngagementLow)

	exists, err := s.repo.BucketExistsAnyTime(s.ctx, "dr5ru")
	s.Require().NoError(err)
	s.True(exists)

	exists, err = s.repo.BucketExistsAnyTime(s.ctx, "dr5rv")
	s.Require().NoError(err)
	s.False(exists)
}

func (s *PostRepositorySuite) TestGetPost() {
	s.seed("a", "dr5ru", 0, models.EngagementLow)

	post, err := s.repo.GetPost(s.ctx, "a")
	s.Require().NoError(err)
	s.Equal("post a", post.Content)
	s.Equal(models.MediaList{"https://cdn.example.com/a.jpg"}, post.MediaURLs)

	_, err = s.repo.GetPost(s.ctx, "missing")
	s.ErrorIs(err, ErrPostNotFound)
}

func (s *PostRepositorySuite) TestGetPostsKeepsRequestOrder() {
	s.seed("a", "dr5ru", 0, models.EngagementLow)
	s.seed("b", "dr5ru", time.Minute, models.EngagementLow)

	posts, err := s.repo.GetPosts(s.ctx, []string{"b", "missing", "a"})
	s.Require().NoError(err)
	s.Require().Len(posts, 2)
	s.Equal("b", posts[0].PostID)
	s.Equal("a", posts[1].PostID)

	posts, err = s.repo.GetPosts(s.ctx, nil)
	s.Require().NoError(err)
	s.Empty(posts)
}

func (s *PostRepositorySuite) TestCreatePostFillsKeys() {
	post := &models.Post{
		Coordinates:    models.Coordinates{Lat: 40.7831, Lng: -73.9712},
		AuthorID:       "edgar",
		AuthorUsername: "edgar",
	}
	s.Require().NoError(s.repo.CreatePost(s.ctx, post))

	s.NotEmpty(post.PostID)
	s.Len(post.PartitionKey, 5)
	s.NotZero(post.SortKey)
	s.Equal(models.EngagementLow, post.EngagementLevel)

	count, err := s.repo.CountBucket(s.ctx, post.PartitionKey)
	s.Require().NoError(err)
	s.Equal(int64(1), count)

	s.ErrorIs(s.repo.CreatePost(s.ctx, nil), ErrInvalidInput)
}

func TestMemoryPostRepository(t *testing.T) {
	suite.Run(t, &PostRepositorySuite{newRepo: func() PostRepository {
		return NewMemoryPostRepository()
	}})
}

func TestGormPostRepository(t *testing.T) {
	open := func() (*gorm.DB, error) {
		db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
		if err != nil {
			return nil, err
		}
		sqlDB, err := db.DB()
		if err != nil {
			return nil, err
		}
		sqlDB.SetMaxOpenConns(1)
		return db, db.AutoMigrate(&models.Post{})
	}

	if _, err := open(); err != nil {
		t.Skipf("sqlite unavailable: %v", err)
	}

	suite.Run(t, &PostRepositorySuite{newRepo: func() PostRepository {
		db, err := open()
		require.NoError(t, err)
		return NewPostRepository(db)
	}})
}

func TestClassify(t *testing.T) {
	assert.NoError(t, Classify(nil))

	timeout := Classify(context.DeadlineExceeded)
	assert.ErrorIs(t, timeout, ErrStorageTimeout)
	assert.ErrorIs(t, timeout, context.DeadlineExceeded)

	unavailable := Classify(assert.AnError)
	assert.ErrorIs(t, unavailable, ErrStorageUnavailable)
	assert.Same(t, unavailable, Classify(unavailable))
}

func TestMemoryRepositoryHonorsCanceledContext(t *testing.T) {
	repo := NewMemoryPostRepository()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := repo.QueryBucketTimeRange(ctx, "dr5ru", 0, 1, 10, models.EngagementAny)
	assert.ErrorIs(t, err, ErrStorageUnavailable)

	ctx, cancel = context.WithDeadline(context.Background(), time.Now().Add(-time.Second))
	defer cancel()
	_, err = repo.BucketExistsAnyTime(ctx, "dr5ru")
	assert.ErrorIs(t, err, ErrStorageTimeout)
}

func ids(posts []models.PostSummary) []string {
	out := make([]string, len(posts))
	for i, p := range posts {
		out[i] = p.PostID
	}
	return out
}
