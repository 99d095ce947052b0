package database

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/br0z1/social-media-app/internal/config"
	"github.com/br0z1/social-media-app/internal/models"
)

func TestInitializeRejectsMemoryDriver(t *testing.T) {
	err := Initialize(config.DatabaseConfig{Driver: config.DriverMemory}, false)
	assert.ErrorContains(t, err, "no SQL connection")
}

func TestHealthWithoutConnection(t *testing.T) {
	saved := DB
	DB = nil
	t.Cleanup(func() { DB = saved })

	assert.Error(t, Health())
	assert.Error(t, Migrate())
	assert.NoError(t, Close())
}

func TestSQLiteInitializeAndMigrate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "spheres.db")
	if err := Initialize(config.DatabaseConfig{Driver: config.DriverSQLite, SQLitePath: path}, false); err != nil {
		t.Skipf("sqlite unavailable: %v", err)
	}
	t.Cleanup(func() {
		_ = Close()
		DB = nil
	})

	require.NoError(t, Migrate())
	require.NoError(t, Health())

	assert.True(t, DB.Migrator().HasTable(&models.Post{}))
	assert.True(t, DB.Migrator().HasIndex(&models.Post{}, "idx_posts_bucket_time"))
	assert.True(t, DB.Migrator().HasIndex(&models.Post{}, "idx_posts_bucket_engagement"))
}
