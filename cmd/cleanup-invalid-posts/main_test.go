package main

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/br0z1/social-media-app/internal/models"
)

type recordingInvalidator struct {
	mu      sync.Mutex
	evicted []string
}

func (r *recordingInvalidator) Invalidate(_ context.Context, postIDs ...string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.evicted = append(r.evicted, postIDs...)
	return nil
}

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		t.Skipf("sqlite unavailable: %v", err)
	}
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, db.AutoMigrate(&models.Post{}))

	posts := []models.Post{
		{PostID: "ok", PartitionKey: "dr5ru", Coordinates: models.Coordinates{Lat: 40.7549, Lng: -73.9840}},
		{PostID: "stale", PartitionKey: "dr72h", Coordinates: models.Coordinates{Lat: 40.7549, Lng: -73.9840}},
		{PostID: "broken", PartitionKey: "zzzzz", Coordinates: models.Coordinates{Lat: 91, Lng: 0}},
	}
	for i := range posts {
		require.NoError(t, db.Create(&posts[i]).Error)
	}
	return db
}

func TestCleanupDryRunLeavesPostsAndCache(t *testing.T) {
	db := openTestDB(t)
	inv := &recordingInvalidator{}

	sum, err := cleanup(context.Background(), db, inv, false)
	require.NoError(t, err)
	assert.Equal(t, summary{scanned: 3, rebucketed: 1, deleted: 1}, sum)
	assert.Empty(t, inv.evicted)

	var count int64
	require.NoError(t, db.Model(&models.Post{}).Count(&count).Error)
	assert.Equal(t, int64(3), count)
}

func TestCleanupApplyEvictsChangedPosts(t *testing.T) {
	db := openTestDB(t)
	inv := &recordingInvalidator{}

	sum, err := cleanup(context.Background(), db, inv, true)
	require.NoError(t, err)
	assert.Equal(t, summary{scanned: 3, rebucketed: 1, deleted: 1}, sum)
	assert.ElementsMatch(t, []string{"stale", "broken"}, inv.evicted)

	var stale models.Post
	require.NoError(t, db.First(&stale, "post_id = ?", "stale").Error)
	assert.Equal(t, "dr5ru", stale.PartitionKey)

	var count int64
	require.NoError(t, db.Model(&models.Post{}).Where("post_id = ?", "broken").Count(&count).Error)
	assert.Zero(t, count)
}

func TestCleanupWithoutCache(t *testing.T) {
	db := openTestDB(t)

	sum, err := cleanup(context.Background(), db, nil, true)
	require.NoError(t, err)
	assert.Equal(t, 1, sum.rebucketed)
}

func TestInspect(t *testing.T) {
	tests := []struct {
		name   string
		post   models.Post
		want   verdict
		bucket string
	}{
		{
			name:   "matching key",
			post:   models.Post{PartitionKey: "dr5ru", Coordinates: models.Coordinates{Lat: 40.7549, Lng: -73.9840}},
			want:   postOK,
			bucket: "dr5ru",
		},
		{
			name:   "stale key",
			post:   models.Post{PartitionKey: "dr72h", Coordinates: models.Coordinates{Lat: 40.7549, Lng: -73.9840}},
			want:   postRebucket,
			bucket: "dr5ru",
		},
		{
			name: "latitude out of range",
			post: models.Post{PartitionKey: "zzzzz", Coordinates: models.Coordinates{Lat: 91, Lng: 0}},
			want: postDelete,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, bucket := inspect(&tt.post)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.bucket, bucket)
		})
	}
}
