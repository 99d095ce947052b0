package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/fatih/color"
	json "github.com/json-iterator/go"

	"github.com/br0z1/social-media-app/internal/models"
)

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printPosts(posts []models.Post) error {
	if format() == "json" {
		return printJSON(posts)
	}
	if len(posts) == 0 {
		fmt.Println("No posts.")
		return nil
	}

	bold := color.New(color.Bold).SprintFunc()
	faint := color.New(color.Faint).SprintFunc()
	for _, p := range posts {
		created := time.UnixMilli(p.SortKey)
		fmt.Printf("%s %s %s\n",
			bold("@"+p.AuthorUsername),
			faint(humanizeAge(time.Since(created))+" ago"),
			engagementBadge(p.EngagementLevel),
		)
		if p.Content != "" {
			fmt.Printf("  %s\n", p.Content)
		}
		if len(p.MediaURLs) > 0 {
			fmt.Printf("  %s %s\n", color.BlueString("media:"), strings.Join(p.MediaURLs, ", "))
		}
		fmt.Printf("  %s\n\n", faint(fmt.Sprintf("%s  %s  %.5f,%.5f", p.PostID, p.PartitionKey, p.Coordinates.Lat, p.Coordinates.Lng)))
	}
	return nil
}

func engagementBadge(level models.EngagementLevel) string {
	switch level {
	case models.EngagementHigh:
		return color.RedString("●●●")
	case models.EngagementMedium:
		return color.YellowString("●●○")
	default:
		return color.GreenString("●○○")
	}
}

func humanizeAge(d time.Duration) string {
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%dm", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh", int(d.Hours()))
	case d < 365*24*time.Hour:
		return fmt.Sprintf("%dd", int(d.Hours()/24))
	default:
		return fmt.Sprintf("%dy", int(d.Hours()/24/365))
	}
}
