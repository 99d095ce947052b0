package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/br0z1/social-media-app/internal/config"
	"github.com/br0z1/social-media-app/internal/database"
	"github.com/br0z1/social-media-app/internal/logger"
	"github.com/br0z1/social-media-app/internal/models"
	"github.com/br0z1/social-media-app/internal/repository"
	"github.com/br0z1/social-media-app/internal/seed"
)

const postsPerBucket = 25

func main() {
	command := "dev"
	if len(os.Args) > 1 {
		command = os.Args[1]
	}

	switch command {
	case "dev", "test", "clean", "verify":
	default:
		fmt.Println("Usage: seed [dev|test|clean|verify]")
		fmt.Println("  dev   - Seed NYC neighborhoods and the test geohashes")
		fmt.Println("  test  - Seed only the test geohashes")
		fmt.Println("  clean  - Remove all posts (use with caution)")
		fmt.Println("  verify - Print post counts for the test geohashes")
		os.Exit(1)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("❌ Failed to load config: %v", err)
	}
	if cfg.Database.Driver == config.DriverMemory {
		log.Fatalf("❌ DB_DRIVER=%s has nothing to seed into", config.DriverMemory)
	}
	if err := logger.Initialize(cfg.LogLevel, "seed.log"); err != nil {
		log.Fatalf("❌ Failed to initialize logger: %v", err)
	}
	defer logger.Close()

	if err := database.Initialize(cfg.Database, false); err != nil {
		log.Fatalf("❌ Failed to connect to database: %v", err)
	}
	defer database.Close()
	if err := database.Migrate(); err != nil {
		log.Fatalf("❌ Failed to migrate database: %v", err)
	}
	log.Println("✅ Database connected")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	repo := repository.NewPostRepository(database.DB)
	seeder := seed.NewSeeder(repo, uint64(time.Now().UnixNano()))

	switch command {
	case "dev":
		log.Println("🌱 Seeding development database...")
		n, err := seeder.SeedNeighborhoods(ctx, seed.NYCNeighborhoods, 10)
		if err != nil {
			log.Fatalf("❌ Seeding failed after %d posts: %v", n, err)
		}
		m, err := seeder.SeedGeohashes(ctx, seed.TestGeohashes, postsPerBucket)
		if err != nil {
			log.Fatalf("❌ Seeding failed after %d posts: %v", n+m, err)
		}
		log.Printf("✅ Seeded %d posts", n+m)
	case "test":
		log.Println("🧪 Seeding test geohashes...")
		n, err := seeder.SeedGeohashes(ctx, seed.TestGeohashes, postsPerBucket)
		if err != nil {
			log.Fatalf("❌ Seeding failed after %d posts: %v", n, err)
		}
		log.Printf("✅ Seeded %d posts", n)
	case "clean":
		log.Println("🧹 Removing all posts...")
		res := database.DB.WithContext(ctx).Where("1 = 1").Delete(&models.Post{})
		if res.Error != nil {
			log.Fatalf("❌ Clean failed: %v", res.Error)
		}
		log.Printf("✅ Removed %d posts", res.RowsAffected)
	case "verify":
		verify(ctx, repo)
	}
}

func verify(ctx context.Context, repo repository.PostRepository) {
	fmt.Println("🔍 Verifying seed data...")
	fmt.Println()

	var total int64
	for _, bucket := range seed.TestGeohashes {
		count, err := repo.CountBucket(ctx, bucket)
		if err != nil {
			log.Fatalf("❌ Failed to count %s: %v", bucket, err)
		}
		total += count

		status := "✅"
		if count < postsPerBucket {
			status = "⚠️ "
		}
		fmt.Printf("  %s %s: %d posts\n", status, bucket, count)
	}
	fmt.Println()

	var sample []models.Post
	if err := database.DB.WithContext(ctx).Order("sort_key DESC").Limit(3).Find(&sample).Error; err != nil {
		log.Fatalf("❌ Failed to sample posts: %v", err)
	}
	fmt.Println("📝 Newest posts:")
	for _, p := range sample {
		fmt.Printf("  - @%s [%s] %s\n", p.AuthorUsername, p.PartitionKey, p.Content)
	}
	fmt.Println()
	fmt.Printf("📊 %d posts across %d test buckets\n", total, len(seed.TestGeohashes))
}
