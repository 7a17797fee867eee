// Command lessongen runs the lesson generation pipeline from a terminal.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/surajweb2603/ai-course-sub000/internal/config"
	"github.com/surajweb2603/ai-course-sub000/internal/database"
	"github.com/surajweb2603/ai-course-sub000/internal/logger"
	"github.com/surajweb2603/ai-course-sub000/internal/services"
)

// app is built once per invocation, before the subcommand runs.
type app struct {
	log      *logger.Logger
	redis    *database.RedisClients
	pipeline *services.Pipeline
}

var current app

var rootCmd = &cobra.Command{
	Use:   "lessongen",
	Short: "Generate lesson content and probe the media search engines",
	Long: `lessongen generates a complete lesson (theory, example, exercise, takeaways,
quiz and resolved media) with the same providers and search engines the API
server uses. Configuration comes from the environment or a .env file.

Quota state is kept in memory unless REDIS_URL is set.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.Load()
		verbose, _ := cmd.Flags().GetBool("verbose")

		log := logger.Nop()
		if verbose {
			l, err := logger.New(cfg.Env)
			if err != nil {
				return err
			}
			log = l
		}
		current.log = log

		ctx := cmd.Context()
		if cfg.RedisURL != "" {
			rc, err := database.NewRedisClients(ctx, cfg.RedisURL)
			if err != nil {
				return err
			}
			current.redis = rc
		}

		current.pipeline = services.NewPipeline(ctx, cfg, current.redisPubSub(), log)
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		current.close()
	},
}

func (a *app) redisPubSub() *redis.Client {
	if a.redis == nil {
		return nil
	}
	return a.redis.PubSub
}

func (a *app) close() {
	if a.pipeline != nil {
		a.pipeline.Close()
	}
	if a.redis != nil {
		a.redis.Close()
	}
	a.log.Sync()
}

func init() {
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "log pipeline progress to stderr")
}

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(v)
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
