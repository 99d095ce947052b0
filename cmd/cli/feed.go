package main

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/br0z1/social-media-app/internal/cli/client"
	"github.com/br0z1/social-media-app/internal/cli/config"
	"github.com/br0z1/social-media-app/internal/cli/logger"
	"github.com/br0z1/social-media-app/internal/geo"
)

var (
	feedLat     float64
	feedLng     float64
	feedRadius  float64
	feedCount   int
	feedSession string
	feedSphere  string
	feedPages   int
)

var feedCmd = &cobra.Command{
	Use:   "feed",
	Short: "Feed commands",
	Long:  "Page through the posts around a location",
}

var feedNextCmd = &cobra.Command{
	Use:   "next",
	Short: "Fetch the next batch of posts",
	Long: `Fetch the next batch of posts for a viewing session.

The session id is remembered in the config file, so repeated calls keep
paging without repeats. Pass --lat/--lng to start (or move) the sphere;
omit them to continue with the session's current sphere.

Examples:
  spheres feed next --lat 40.7265 --lng -73.9815 --radius 1500
  spheres feed next
  spheres feed next --pages 3`,
	RunE: func(cmd *cobra.Command, args []string) error {
		req := client.NextBatchRequest{
			SessionID: feedSession,
			SphereID:  feedSphere,
			Count:     feedCount,
		}
		if req.SessionID == "" {
			req.SessionID = config.GetString("session.id")
		}
		if req.Count == 0 {
			req.Count = config.GetInt("feed.count")
		}
		if cmd.Flags().Changed("lat") || cmd.Flags().Changed("lng") {
			radius := feedRadius
			if radius == 0 {
				radius = config.GetFloat("feed.radius")
			}
			req.Sphere = &geo.Sphere{Center: geo.Point{Lat: feedLat, Lng: feedLng}, Radius: radius}
		}

		c := apiClient()
		for page := 0; page < feedPages; page++ {
			batch, err := c.NextBatch(cmd.Context(), req)
			if err != nil {
				return fmt.Errorf("failed to fetch next batch: %w", err)
			}
			if batch.SessionID != "" && batch.SessionID != req.SessionID {
				req.SessionID = batch.SessionID
				if err := config.Set("session.id", batch.SessionID); err != nil {
					logger.Warn("Could not remember session", "err", err)
				}
			}
			// Later pages continue on the same sphere.
			req.Sphere = nil

			if err := printPosts(batch.Posts); err != nil {
				return err
			}
			if batch.Exhausted {
				color.Yellow("No more posts in this sphere.")
				return nil
			}
		}
		return nil
	},
}

var feedEndCmd = &cobra.Command{
	Use:   "end",
	Short: "End the remembered feed session",
	RunE: func(cmd *cobra.Command, args []string) error {
		id := feedSession
		if id == "" {
			id = config.GetString("session.id")
		}
		if id == "" {
			fmt.Println("No active session.")
			return nil
		}
		if err := apiClient().EndSession(cmd.Context(), id); err != nil {
			return fmt.Errorf("failed to end session: %w", err)
		}
		if err := config.Set("session.id", ""); err != nil {
			logger.Warn("Could not clear session", "err", err)
		}
		color.Green("✓ Session %s ended", id)
		return nil
	},
}

func init() {
	feedNextCmd.Flags().Float64Var(&feedLat, "lat", 0, "Latitude of the sphere center")
	feedNextCmd.Flags().Float64Var(&feedLng, "lng", 0, "Longitude of the sphere center")
	feedNextCmd.Flags().Float64VarP(&feedRadius, "radius", "r", 0, "Sphere radius in meters (default feed.radius)")
	feedNextCmd.Flags().IntVarP(&feedCount, "count", "n", 0, "Posts per batch, 1-7 (default feed.count)")
	feedNextCmd.Flags().StringVar(&feedSphere, "sphere-id", "", "Client sphere id; changing it resets the session")
	feedNextCmd.Flags().IntVar(&feedPages, "pages", 1, "Number of batches to fetch")
	feedCmd.PersistentFlags().StringVar(&feedSession, "session", "", "Session id (default: remembered session)")

	feedCmd.AddCommand(feedNextCmd)
	feedCmd.AddCommand(feedEndCmd)
}
