package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var imagesCmd = &cobra.Command{
	Use:   "images <query>",
	Short: "Search images the way lesson enrichment does",
	Long: `Images runs the multi-backend image search for a query and prints the
accepted results, best first. Nothing is printed when every backend fails.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		n, _ := cmd.Flags().GetInt("n")
		if n < 1 {
			return fmt.Errorf("-n must be at least 1")
		}
		query := strings.Join(args, " ")

		provider, results := current.pipeline.Images.SearchImages(cmd.Context(), query, n)
		return printJSON(cmd.OutOrStdout(), map[string]interface{}{
			"query":    query,
			"provider": provider,
			"results":  results,
		})
	},
}

var videosCmd = &cobra.Command{
	Use:   "videos <topic>",
	Short: "Search educational videos for a topic",
	Long: `Videos queries the YouTube Data API when a key is configured and its quota
allows, and falls back to scraping the public results page otherwise.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		topic := strings.Join(args, " ")
		results := current.pipeline.Videos.SearchVideos(cmd.Context(), topic)
		return printJSON(cmd.OutOrStdout(), map[string]interface{}{
			"topic":   topic,
			"results": results,
		})
	},
}

func init() {
	imagesCmd.Flags().IntP("n", "n", 5, "number of results")

	rootCmd.AddCommand(imagesCmd)
	rootCmd.AddCommand(videosCmd)
}
