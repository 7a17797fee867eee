package models

import (
	"time"

	"github.com/google/uuid"
)

type AudienceLevel string

const (
	LevelBeginner     AudienceLevel = "beginner"
	LevelIntermediate AudienceLevel = "intermediate"
	LevelAdvanced     AudienceLevel = "advanced"
)

func (l AudienceLevel) Valid() bool {
	switch l {
	case LevelBeginner, LevelIntermediate, LevelAdvanced:
		return true
	}
	return false
}

// LessonSpec is the immutable input of one generation request.
type LessonSpec struct {
	CourseTitle   string        `json:"course_title"`
	ModuleTitle   string        `json:"module_title"`
	LessonTitle   string        `json:"lesson_title"`
	LessonSummary string        `json:"lesson_summary,omitempty"`
	AudienceLevel AudienceLevel `json:"audience_level"`
	Language      string        `json:"language"`
}

type MediaType string

const (
	MediaImage MediaType = "image"
	MediaVideo MediaType = "video"
)

// MediaItem keeps the exact wire shape persisted into a lesson's content
// field. URL stays nil until the enrichment stage resolves it.
type MediaItem struct {
	Type   MediaType `json:"type"`
	URL    *string   `json:"url"`
	Alt    string    `json:"alt"`
	Prompt string    `json:"prompt"`
	Title  string    `json:"title"`
}

type QuizQuestion struct {
	Stem        string   `json:"stem"`
	Options     []string `json:"options"`
	AnswerIndex int      `json:"answerIndex"`
	Rationale   string   `json:"rationale"`
}

type Quiz struct {
	Questions []QuizQuestion `json:"questions"`
}

type LessonContent struct {
	TheoryMd         string      `json:"theoryMd"`
	ExampleMd        string      `json:"exampleMd"`
	ExerciseMd       string      `json:"exerciseMd"`
	KeyTakeaways     []string    `json:"keyTakeaways"`
	Media            []MediaItem `json:"media"`
	Quiz             Quiz        `json:"quiz"`
	EstimatedMinutes int         `json:"estimatedMinutes"`
}

// Clone returns a deep copy so enrichment never mutates the caller's value.
func (c *LessonContent) Clone() *LessonContent {
	if c == nil {
		return nil
	}
	out := *c
	out.KeyTakeaways = append([]string(nil), c.KeyTakeaways...)
	out.Media = make([]MediaItem, len(c.Media))
	for i, m := range c.Media {
		out.Media[i] = m
		if m.URL != nil {
			u := *m.URL
			out.Media[i].URL = &u
		}
	}
	out.Quiz.Questions = make([]QuizQuestion, len(c.Quiz.Questions))
	for i, q := range c.Quiz.Questions {
		out.Quiz.Questions[i] = q
		out.Quiz.Questions[i].Options = append([]string(nil), q.Options...)
	}
	return &out
}

// Lesson is the plain record the regeneration worker reads and writes.
type Lesson struct {
	ID          uuid.UUID  `json:"id"`
	ModuleID    uuid.UUID  `json:"module_id"`
	OwnerID     uuid.UUID  `json:"owner_id"`
	Title       string     `json:"title"`
	Summary     *string    `json:"summary"`
	ModuleTitle string     `json:"module_title"`
	CourseTitle string     `json:"course_title"`
	Level       string     `json:"level"`
	Language    string     `json:"language"`
	UpdatedAt   *time.Time `json:"updated_at"`
}

func (l *Lesson) Spec() LessonSpec {
	spec := LessonSpec{
		CourseTitle:   l.CourseTitle,
		ModuleTitle:   l.ModuleTitle,
		LessonTitle:   l.Title,
		AudienceLevel: AudienceLevel(l.Level),
		Language:      l.Language,
	}
	if l.Summary != nil {
		spec.LessonSummary = *l.Summary
	}
	return spec
}

type GenerateLessonRequest struct {
	CourseTitle   string `json:"courseTitle"`
	Language      string `json:"language"`
	ModuleTitle   string `json:"moduleTitle"`
	LessonTitle   string `json:"lessonTitle"`
	LessonSummary string `json:"lessonSummary,omitempty"`
	AudienceLevel string `json:"audienceLevel,omitempty"`
}
