package main

import (
	"context"
	"flag"
	"fmt"
	"log"

	"gorm.io/gorm"

	"github.com/br0z1/social-media-app/internal/cache"
	"github.com/br0z1/social-media-app/internal/config"
	"github.com/br0z1/social-media-app/internal/database"
	"github.com/br0z1/social-media-app/internal/geo"
	"github.com/br0z1/social-media-app/internal/models"
	"github.com/br0z1/social-media-app/internal/repository"
)

type verdict int

const (
	postOK verdict = iota
	postRebucket
	postDelete
)

// postInvalidator drops cached copies of changed posts.
type postInvalidator interface {
	Invalidate(ctx context.Context, postIDs ...string) error
}

type summary struct {
	scanned    int
	rebucketed int
	deleted    int
}

// inspect decides what to do with a stored post. Posts outside valid
// coordinates can never be sampled; a partition key that disagrees with the
// coordinates hides the post from the feed for that area.
func inspect(p *models.Post) (verdict, string) {
	if err := p.Coordinates.Point().Validate(); err != nil {
		return postDelete, ""
	}
	bucket := geo.BucketFor(p.Coordinates.Point())
	if p.PartitionKey != bucket {
		return postRebucket, bucket
	}
	return postOK, bucket
}

// cleanup scans every post and, when apply is set, fixes or removes the bad
// ones and evicts them from the post cache. A nil cache is skipped.
func cleanup(ctx context.Context, db *gorm.DB, postCache postInvalidator, apply bool) (summary, error) {
	var sum summary
	var posts []models.Post
	if err := db.WithContext(ctx).Select("post_id", "partition_key", "coord_lat", "coord_lng").Find(&posts).Error; err != nil {
		return sum, fmt.Errorf("failed to query posts: %w", err)
	}
	sum.scanned = len(posts)

	var changed []string
	for i := range posts {
		p := &posts[i]
		action, bucket := inspect(p)
		switch action {
		case postRebucket:
			log.Printf("  ↪ %s: %s -> %s", p.PostID, p.PartitionKey, bucket)
			sum.rebucketed++
			if apply {
				if err := db.WithContext(ctx).Model(&models.Post{}).Where("post_id = ?", p.PostID).Update("partition_key", bucket).Error; err != nil {
					return sum, fmt.Errorf("failed to update %s: %w", p.PostID, err)
				}
				changed = append(changed, p.PostID)
			}
		case postDelete:
			log.Printf("  ✗ %s: invalid coordinates %.5f,%.5f", p.PostID, p.Coordinates.Lat, p.Coordinates.Lng)
			sum.deleted++
			if apply {
				if err := db.WithContext(ctx).Where("post_id = ?", p.PostID).Delete(&models.Post{}).Error; err != nil {
					return sum, fmt.Errorf("failed to delete %s: %w", p.PostID, err)
				}
				changed = append(changed, p.PostID)
			}
		}
	}

	if postCache != nil && len(changed) > 0 {
		if err := postCache.Invalidate(ctx, changed...); err != nil {
			return sum, fmt.Errorf("failed to invalidate cached posts: %w", err)
		}
		log.Printf("🗑️  Evicted %d posts from the cache", len(changed))
	}
	return sum, nil
}

func main() {
	apply := flag.Bool("apply", false, "Write changes (default is a dry run)")
	flag.Parse()

	log.Println("🧹 Cleaning up invalid posts")
	log.Println("============================")

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("❌ Failed to load config: %v", err)
	}
	if cfg.Database.Driver == config.DriverMemory {
		log.Fatalf("❌ DB_DRIVER=%s has no stored posts", config.DriverMemory)
	}

	log.Println("🔄 Connecting to database...")
	if err := database.Initialize(cfg.Database, false); err != nil {
		log.Fatalf("❌ Failed to connect to database: %v", err)
	}
	defer database.Close()
	log.Println("✅ Database connected")

	var postCache postInvalidator
	if *apply && cfg.Redis.Host != "" {
		redisClient, err := cache.NewRedisClient(cfg.Redis.Host, cfg.Redis.Port, cfg.Redis.Password)
		if err != nil {
			log.Fatalf("❌ Failed to connect to Redis: %v", err)
		}
		defer redisClient.Close()
		postCache = cache.NewPostCache(repository.NewPostRepository(database.DB), redisClient, cfg.Redis.PostTTL)
		log.Println("✅ Redis connected")
	}

	sum, err := cleanup(context.Background(), database.DB, postCache, *apply)
	if err != nil {
		log.Fatalf("❌ %v", err)
	}

	log.Printf("📊 Scanned %d posts: %d to rebucket, %d to delete", sum.scanned, sum.rebucketed, sum.deleted)
	if !*apply && sum.rebucketed+sum.deleted > 0 {
		log.Println("💡 Dry run; pass --apply to write changes")
	}
}
