package main

import (
	"github.com/spf13/cobra"

	"github.com/surajweb2603/ai-course-sub000/internal/models"
)

var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Generate one lesson and print it as JSON",
	Long: `Generate runs the provider chain (primary, then secondary) and the media
enrichment stage for a single lesson, then prints the lesson JSON to stdout.`,
	Example: `  lessongen generate --course "Data Structures" --module Trees \
    --lesson "Binary Search Trees" --level beginner`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		req := models.GenerateLessonRequest{}
		req.CourseTitle, _ = cmd.Flags().GetString("course")
		req.ModuleTitle, _ = cmd.Flags().GetString("module")
		req.LessonTitle, _ = cmd.Flags().GetString("lesson")
		req.LessonSummary, _ = cmd.Flags().GetString("summary")
		req.AudienceLevel, _ = cmd.Flags().GetString("level")
		req.Language, _ = cmd.Flags().GetString("language")

		content, err := current.pipeline.Lessons.GenerateLessonContent(cmd.Context(), req)
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), content)
	},
}

func init() {
	generateCmd.Flags().String("course", "", "course title (required)")
	generateCmd.Flags().String("module", "", "module title")
	generateCmd.Flags().String("lesson", "", "lesson title (required)")
	generateCmd.Flags().String("summary", "", "short lesson summary")
	generateCmd.Flags().String("level", "beginner", "audience level: beginner, intermediate or advanced")
	generateCmd.Flags().String("language", "en", "language the lesson is written in")
	generateCmd.MarkFlagRequired("course")
	generateCmd.MarkFlagRequired("lesson")

	rootCmd.AddCommand(generateCmd)
}
