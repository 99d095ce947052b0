package main

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/br0z1/social-media-app/internal/geo"
)

var (
	geoLat    float64
	geoLng    float64
	geoRadius float64
)

var geoCmd = &cobra.Command{
	Use:   "geo",
	Short: "Inspect geohash buckets",
	Long:  "Local helpers for the precision-5 geohash buckets posts are partitioned by",
}

var geoBucketCmd = &cobra.Command{
	Use:   "bucket",
	Short: "Show the bucket a point falls in",
	RunE: func(cmd *cobra.Command, args []string) error {
		p := geo.Point{Lat: geoLat, Lng: geoLng}
		if err := p.Validate(); err != nil {
			return err
		}
		bucket := geo.BucketFor(p)
		if format() == "json" {
			return printJSON(map[string]interface{}{"bucket": bucket, "center": geo.Decode(bucket)})
		}
		center := geo.Decode(bucket)
		fmt.Printf("%s  center %.5f,%.5f\n", color.CyanString(bucket), center.Lat, center.Lng)
		return nil
	},
}

var geoCoveringCmd = &cobra.Command{
	Use:   "covering",
	Short: "List the buckets a feed sphere samples from",
	RunE: func(cmd *cobra.Command, args []string) error {
		sphere := geo.Sphere{Center: geo.Point{Lat: geoLat, Lng: geoLng}, Radius: geoRadius}
		buckets, err := geo.CoveringBuckets(sphere)
		if err != nil {
			return err
		}
		if format() == "json" {
			return printJSON(buckets)
		}

		home := geo.BucketFor(sphere.Center)
		for _, b := range buckets {
			d := geo.HaversineDistance(sphere.Center, geo.Decode(b))
			name := b
			if b == home {
				name = color.GreenString(b)
			}
			fmt.Printf("%s  %6.0fm\n", name, d)
		}
		fmt.Println(color.New(color.Faint).Sprintf("%d buckets", len(buckets)))
		return nil
	},
}

func init() {
	for _, c := range []*cobra.Command{geoBucketCmd, geoCoveringCmd} {
		c.Flags().Float64Var(&geoLat, "lat", 0, "Latitude")
		c.Flags().Float64Var(&geoLng, "lng", 0, "Longitude")
		_ = c.MarkFlagRequired("lat")
		_ = c.MarkFlagRequired("lng")
	}
	geoCoveringCmd.Flags().Float64VarP(&geoRadius, "radius", "r", 2000, "Sphere radius in meters")

	geoCmd.AddCommand(geoBucketCmd)
	geoCmd.AddCommand(geoCoveringCmd)
}
