package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/br0z1/social-media-app/internal/cli/client"
	"github.com/br0z1/social-media-app/internal/cli/config"
	"github.com/br0z1/social-media-app/internal/cli/logger"
)

var (
	verbose    bool
	configPath string
	outputFmt  string
	apiURL     string
)

var rootCmd = &cobra.Command{
	Use:   "spheres",
	Short: "Spheres CLI - browse location-anchored feeds",
	Long: `Spheres CLI talks to a spheres server: page through the feed of posts
around a point, publish posts, and inspect the geohash buckets a feed
sphere covers.`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if err := config.Init(configPath); err != nil {
			fmt.Fprintf(os.Stderr, "Error initializing config: %v\n", err)
			os.Exit(1)
		}
		logger.Init(verbose, config.GetString("log.file"))
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to config file (default: ~/.config/spheres/cli/config.toml)")
	rootCmd.PersistentFlags().StringVarP(&outputFmt, "output", "o", "", "Output format: text or json")
	rootCmd.PersistentFlags().StringVar(&apiURL, "api", "", "API server URL (overrides api.base_url)")

	rootCmd.AddCommand(feedCmd)
	rootCmd.AddCommand(postCmd)
	rootCmd.AddCommand(geoCmd)
}

// apiClient builds a client from flags and config
func apiClient() *client.Client {
	base := apiURL
	if base == "" {
		base = config.GetString("api.base_url")
	}
	timeout := time.Duration(config.GetInt("api.timeout")) * time.Second
	return client.New(base, timeout)
}

func format() string {
	if outputFmt != "" {
		return outputFmt
	}
	return config.GetString("output.format")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
