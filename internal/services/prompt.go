package services

import (
	"fmt"
	"strings"

	"github.com/surajweb2603/ai-course-sub000/internal/models"
)

const lessonSystemPrompt = "You are an expert instructional designer who writes accurate, engaging lessons. " +
	"You always answer with a single valid JSON object and nothing else: no preamble, no markdown fences, no commentary."

// BuildLessonPrompt returns the system preamble and the instruction text for
// one lesson. The same pair is sent to every provider.
func BuildLessonPrompt(spec models.LessonSpec) (system, prompt string) {
	var b strings.Builder

	// Layer 1 — Role and context
	b.WriteString(fmt.Sprintf("Write the lesson \"%s\"", spec.LessonTitle))
	if spec.ModuleTitle != "" {
		b.WriteString(fmt.Sprintf(" from the module \"%s\"", spec.ModuleTitle))
	}
	b.WriteString(fmt.Sprintf(" of the course \"%s\".\n", spec.CourseTitle))
	if spec.LessonSummary != "" {
		b.WriteString(fmt.Sprintf("Lesson summary: %s\n", spec.LessonSummary))
	}
	b.WriteString("\n")

	// Layer 2 — Audience
	switch spec.AudienceLevel {
	case models.LevelAdvanced:
		b.WriteString("Audience: advanced learners. Assume solid fundamentals, go deep on trade-offs, edge cases and internals.\n\n")
	case models.LevelIntermediate:
		b.WriteString("Audience: intermediate learners. Briefly recap basics, then focus on applying concepts to realistic problems.\n\n")
	default:
		b.WriteString("Audience: beginners. Define every term before using it and build intuition with analogies.\n\n")
	}

	// Layer 3 — Language
	if spec.Language != "" && spec.Language != "en" {
		b.WriteString(fmt.Sprintf("Language: Write every text field entirely in %s. Keep the JSON keys in English.\n\n", spec.Language))
	}

	// Layer 4 — Section rules
	b.WriteString(fmt.Sprintf(`Section rules:
- theoryMd: markdown explanation with headings, under %d words
- exampleMd: one worked, concrete example in markdown, under %d words
- exerciseMd: a hands-on exercise with clear steps, under %d words
- keyTakeaways: %d to %d short statements, each under %d words
- quiz.questions: %d to %d multiple-choice questions; each has exactly 4 options, answerIndex 0-3, and a rationale under %d words
- media: 1 to 3 image items that would help a learner; "prompt" is a concise image-search query specific to this lesson, "url" is always null
- estimatedMinutes: an integer between %d and %d
`,
		theoryWordLimit, exampleWordLimit, exerciseWordLimit,
		minTakeaways, maxTakeaways, takeawayWordLimit,
		minQuestions, maxQuestions, rationaleWordLimit,
		minEstimatedMinutes, maxEstimatedMinutes))

	// Layer 5 — Output contract
	b.WriteString(`
Return ONLY this JSON object:
{"theoryMd": "string", "exampleMd": "string", "exerciseMd": "string", "keyTakeaways": ["string"], "media": [{"type": "image", "url": null, "alt": "string", "prompt": "string", "title": "string"}], "quiz": {"questions": [{"stem": "string", "options": ["a","b","c","d"], "answerIndex": 0, "rationale": "string"}]}, "estimatedMinutes": 20}
`)

	return lessonSystemPrompt, b.String()
}
