package main

import (
	"fmt"
	"log"
	"os"

	"github.com/br0z1/social-media-app/internal/config"
	"github.com/br0z1/social-media-app/internal/database"
)

func main() {
	command := "up"
	if len(os.Args) > 1 {
		command = os.Args[1]
	}

	switch command {
	case "up":
		runMigrationsUp()
	default:
		fmt.Println("Usage: migrate [up]")
		fmt.Println("  up - Create or update the posts table and its bucket indexes")
		os.Exit(1)
	}
}

func runMigrationsUp() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("❌ Failed to load config: %v", err)
	}
	if cfg.Database.Driver == config.DriverMemory {
		log.Println("✅ In-memory store needs no migrations")
		return
	}

	log.Println("🔄 Connecting to database...")
	if err := database.Initialize(cfg.Database, false); err != nil {
		log.Fatalf("❌ Failed to connect to database: %v", err)
	}
	defer database.Close()

	log.Println("✅ Database connected")
	log.Println("📈 Running migrations...")

	if err := database.Migrate(); err != nil {
		log.Fatalf("❌ Migration failed: %v", err)
	}

	log.Println("✅ All migrations completed successfully!")
}
