package main

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/br0z1/social-media-app/internal/cli/client"
	"github.com/br0z1/social-media-app/internal/geo"
	"github.com/br0z1/social-media-app/internal/models"
)

var (
	postContent    string
	postAuthorID   string
	postAuthor     string
	postLat        float64
	postLng        float64
	postEngagement string
	postCategory   string
	postMedia      []string
)

var postCmd = &cobra.Command{
	Use:   "post",
	Short: "Post commands",
}

var postGetCmd = &cobra.Command{
	Use:   "get <post-id> [post-id...]",
	Short: "Show one or more posts",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c := apiClient()
		if len(args) == 1 {
			post, err := c.GetPost(cmd.Context(), args[0])
			if err != nil {
				return fmt.Errorf("failed to fetch post: %w", err)
			}
			return printPosts([]models.Post{*post})
		}
		posts, err := c.GetPosts(cmd.Context(), args)
		if err != nil {
			return fmt.Errorf("failed to fetch posts: %w", err)
		}
		return printPosts(posts)
	},
}

var postCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Publish a post at a location",
	Long: `Publish a post at a location, optionally with up to four media files.

Examples:
  spheres post create --author-id u1 --author edgar --lat 40.7158 --lng -73.997 --content "dumplings"
  spheres post create --author-id u1 --author edgar --lat 40.7158 --lng -73.997 --media photo.jpg`,
	RunE: func(cmd *cobra.Command, args []string) error {
		point := geo.Point{Lat: postLat, Lng: postLng}
		if err := point.Validate(); err != nil {
			return err
		}

		post, err := apiClient().CreatePost(cmd.Context(), client.NewPost{
			Content:         postContent,
			AuthorID:        postAuthorID,
			AuthorUsername:  postAuthor,
			Point:           point,
			EngagementLevel: postEngagement,
			Category:        postCategory,
			MediaPaths:      postMedia,
		})
		if err != nil {
			return fmt.Errorf("failed to create post: %w", err)
		}

		color.Green("✓ Created post %s in bucket %s", post.PostID, post.PartitionKey)
		return nil
	},
}

func init() {
	postCreateCmd.Flags().StringVarP(&postContent, "content", "c", "", "Post text")
	postCreateCmd.Flags().StringVar(&postAuthorID, "author-id", "", "Author id")
	postCreateCmd.Flags().StringVar(&postAuthor, "author", "", "Author username")
	postCreateCmd.Flags().Float64Var(&postLat, "lat", 0, "Latitude")
	postCreateCmd.Flags().Float64Var(&postLng, "lng", 0, "Longitude")
	postCreateCmd.Flags().StringVar(&postEngagement, "engagement", "", "Engagement level: low, medium or high")
	postCreateCmd.Flags().StringVar(&postCategory, "category", "", "Subject category")
	postCreateCmd.Flags().StringSliceVar(&postMedia, "media", nil, "Media files to attach")
	_ = postCreateCmd.MarkFlagRequired("author-id")
	_ = postCreateCmd.MarkFlagRequired("author")
	_ = postCreateCmd.MarkFlagRequired("lat")
	_ = postCreateCmd.MarkFlagRequired("lng")

	postCmd.AddCommand(postGetCmd)
	postCmd.AddCommand(postCreateCmd)
}
