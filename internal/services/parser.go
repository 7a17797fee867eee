package services

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"unicode"

	"github.com/xeipuuv/gojsonschema"

	"github.com/surajweb2603/ai-course-sub000/internal/models"
)

// Lesson shape bounds. Word limits are repaired by truncation, count limits
// above the maximum are cut, anything below a minimum is rejected.
const (
	theoryWordLimit    = 900
	exampleWordLimit   = 600
	exerciseWordLimit  = 450
	takeawayWordLimit  = 40
	stemWordLimit      = 60
	rationaleWordLimit = 30

	minTakeaways = 5
	maxTakeaways = 8
	minQuestions = 4
	maxQuestions = 6
	quizOptions  = 4

	minEstimatedMinutes     = 15
	maxEstimatedMinutes     = 45
	defaultEstimatedMinutes = 30

	maxImageProposals = 4

	ellipsis = "…"
)

const lessonSchema = `{
  "type": "object",
  "required": ["theoryMd", "exampleMd", "exerciseMd", "keyTakeaways", "quiz"],
  "properties": {
    "theoryMd":   {"type": "string"},
    "exampleMd":  {"type": "string"},
    "exerciseMd": {"type": "string"},
    "keyTakeaways": {"type": "array", "items": {"type": "string"}},
    "media": {
      "type": "array",
      "items": {
        "type": "object",
        "properties": {
          "type":   {"type": "string"},
          "url":    {"type": ["string", "null"]},
          "alt":    {"type": ["string", "null"]},
          "prompt": {"type": ["string", "null"]},
          "title":  {"type": ["string", "null"]}
        }
      }
    },
    "quiz": {
      "type": "object",
      "required": ["questions"],
      "properties": {
        "questions": {
          "type": "array",
          "items": {
            "type": "object",
            "required": ["stem", "options", "answerIndex", "rationale"],
            "properties": {
              "stem":        {"type": "string"},
              "options":     {"type": "array", "items": {"type": "string"}},
              "answerIndex": {"type": "integer"},
              "rationale":   {"type": "string"}
            }
          }
        }
      }
    },
    "estimatedMinutes": {"type": ["number", "null"]}
  }
}`

var lessonSchemaLoader = gojsonschema.NewStringLoader(lessonSchema)

// Loose decode targets: numbers may arrive as 2.0 and optional strings as null.
type rawMedia struct {
	Type   string  `json:"type"`
	URL    *string `json:"url"`
	Alt    *string `json:"alt"`
	Prompt *string `json:"prompt"`
	Title  *string `json:"title"`
}

type rawQuestion struct {
	Stem        string   `json:"stem"`
	Options     []string `json:"options"`
	AnswerIndex float64  `json:"answerIndex"`
	Rationale   string   `json:"rationale"`
}

type rawLesson struct {
	TheoryMd     string     `json:"theoryMd"`
	ExampleMd    string     `json:"exampleMd"`
	ExerciseMd   string     `json:"exerciseMd"`
	KeyTakeaways []string   `json:"keyTakeaways"`
	Media        []rawMedia `json:"media"`
	Quiz         struct {
		Questions []rawQuestion `json:"questions"`
	} `json:"quiz"`
	EstimatedMinutes *float64 `json:"estimatedMinutes"`
}

// ParseLessonContent turns raw provider text into validated lesson content.
// Malformed JSON yields a *ParseError, a broken contract a *ValidationError.
// Over-long text fields are truncated rather than rejected.
func ParseLessonContent(raw string) (*models.LessonContent, error) {
	body := stripCodeFence(raw)
	if body == "" {
		return nil, &ParseError{Err: errors.New("empty response")}
	}
	if !json.Valid([]byte(body)) {
		return nil, &ParseError{Err: errors.New("response is not valid JSON")}
	}

	result, err := gojsonschema.Validate(lessonSchemaLoader, gojsonschema.NewStringLoader(body))
	if err != nil {
		return nil, &ParseError{Err: err}
	}
	if !result.Valid() {
		first := result.Errors()[0]
		return nil, &ValidationError{Field: first.Field(), Reason: first.Description()}
	}

	var rl rawLesson
	if err := json.Unmarshal([]byte(body), &rl); err != nil {
		return nil, &ParseError{Err: err}
	}

	content := &models.LessonContent{}

	sections := []struct {
		field string
		text  string
		limit int
		dst   *string
	}{
		{"theoryMd", rl.TheoryMd, theoryWordLimit, &content.TheoryMd},
		{"exampleMd", rl.ExampleMd, exampleWordLimit, &content.ExampleMd},
		{"exerciseMd", rl.ExerciseMd, exerciseWordLimit, &content.ExerciseMd},
	}
	for _, s := range sections {
		text := strings.TrimSpace(s.text)
		if text == "" {
			return nil, &ValidationError{Field: s.field, Reason: "must not be empty"}
		}
		*s.dst = truncateWords(text, s.limit)
	}

	takeaways, err := repairTakeaways(rl.KeyTakeaways)
	if err != nil {
		return nil, err
	}
	content.KeyTakeaways = takeaways

	questions, err := repairQuestions(rl.Quiz.Questions)
	if err != nil {
		return nil, err
	}
	content.Quiz.Questions = questions

	content.Media = normalizeMediaProposals(rl.Media)
	content.EstimatedMinutes = clampMinutes(rl.EstimatedMinutes)

	return content, nil
}

// stripCodeFence removes a markdown fence around the payload and anything
// outside the outermost JSON object.
func stripCodeFence(raw string) string {
	text := strings.TrimSpace(raw)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```JSON")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")
	text = strings.TrimSpace(text)

	if start := strings.Index(text, "{"); start != -1 {
		if end := strings.LastIndex(text, "}"); end > start {
			text = text[start : end+1]
		}
	}
	return strings.TrimSpace(text)
}

func repairTakeaways(in []string) ([]string, error) {
	out := make([]string, 0, len(in))
	for _, t := range in {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		out = append(out, truncateWords(t, takeawayWordLimit))
	}
	if len(out) < minTakeaways {
		return nil, &ValidationError{
			Field:  "keyTakeaways",
			Reason: fmt.Sprintf("got %d, need at least %d", len(out), minTakeaways),
		}
	}
	if len(out) > maxTakeaways {
		out = out[:maxTakeaways]
	}
	return out, nil
}

func repairQuestions(in []rawQuestion) ([]models.QuizQuestion, error) {
	if len(in) > maxQuestions {
		in = in[:maxQuestions]
	}
	if len(in) < minQuestions {
		return nil, &ValidationError{
			Field:  "quiz.questions",
			Reason: fmt.Sprintf("got %d, need at least %d", len(in), minQuestions),
		}
	}

	out := make([]models.QuizQuestion, 0, len(in))
	for i, q := range in {
		field := fmt.Sprintf("quiz.questions[%d]", i)

		stem := strings.TrimSpace(q.Stem)
		if stem == "" {
			return nil, &ValidationError{Field: field + ".stem", Reason: "must not be empty"}
		}
		if len(q.Options) != quizOptions {
			return nil, &ValidationError{
				Field:  field + ".options",
				Reason: fmt.Sprintf("got %d options, need exactly %d", len(q.Options), quizOptions),
			}
		}
		options := make([]string, quizOptions)
		for j, opt := range q.Options {
			opt = strings.TrimSpace(opt)
			if opt == "" {
				return nil, &ValidationError{Field: fmt.Sprintf("%s.options[%d]", field, j), Reason: "must not be empty"}
			}
			options[j] = opt
		}
		if q.AnswerIndex != math.Trunc(q.AnswerIndex) || q.AnswerIndex < 0 || q.AnswerIndex >= quizOptions {
			return nil, &ValidationError{
				Field:  field + ".answerIndex",
				Reason: fmt.Sprintf("%v is outside [0,%d]", q.AnswerIndex, quizOptions-1),
			}
		}
		rationale := strings.TrimSpace(q.Rationale)
		if rationale == "" {
			return nil, &ValidationError{Field: field + ".rationale", Reason: "must not be empty"}
		}

		out = append(out, models.QuizQuestion{
			Stem:        truncateWords(stem, stemWordLimit),
			Options:     options,
			AnswerIndex: int(q.AnswerIndex),
			Rationale:   truncateWords(rationale, rationaleWordLimit),
		})
	}
	return out, nil
}

// normalizeMediaProposals keeps image and video proposals with a usable
// search prompt. URLs proposed by the model are never trusted.
func normalizeMediaProposals(in []rawMedia) []models.MediaItem {
	out := make([]models.MediaItem, 0, len(in))
	images := 0
	for _, m := range in {
		mt := models.MediaType(strings.ToLower(strings.TrimSpace(m.Type)))
		if mt != models.MediaImage && mt != models.MediaVideo {
			continue
		}
		alt, title := deref(m.Alt), deref(m.Title)
		prompt := deref(m.Prompt)
		if prompt == "" {
			prompt = alt
		}
		if prompt == "" {
			prompt = title
		}
		if prompt == "" {
			continue
		}
		if mt == models.MediaImage {
			if images == maxImageProposals {
				continue
			}
			images++
		}
		out = append(out, models.MediaItem{
			Type:   mt,
			URL:    nil,
			Alt:    alt,
			Prompt: prompt,
			Title:  title,
		})
	}
	return out
}

func clampMinutes(v *float64) int {
	if v == nil || *v <= 0 {
		return defaultEstimatedMinutes
	}
	m := int(math.Round(*v))
	if m < minEstimatedMinutes {
		return minEstimatedMinutes
	}
	if m > maxEstimatedMinutes {
		return maxEstimatedMinutes
	}
	return m
}

// truncateWords cuts text after limit whitespace-separated words and marks
// the cut with an ellipsis on the last kept word. Formatting inside the kept
// part is untouched, and text at or under the limit is returned unchanged.
func truncateWords(text string, limit int) string {
	if limit <= 0 {
		return text
	}
	count := 0
	inWord := false
	for i, r := range text {
		if unicode.IsSpace(r) {
			inWord = false
			continue
		}
		if inWord {
			continue
		}
		inWord = true
		count++
		if count > limit {
			kept := strings.TrimRightFunc(text[:i], unicode.IsSpace)
			if strings.HasSuffix(kept, ellipsis) {
				return kept
			}
			return kept + ellipsis
		}
	}
	return text
}

func wordCount(text string) int {
	return len(strings.Fields(text))
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return strings.TrimSpace(*s)
}
