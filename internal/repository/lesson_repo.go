package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/surajweb2603/ai-course-sub000/internal/models"
)

type LessonRepo struct {
	pool *pgxpool.Pool
}

func NewLessonRepo(pool *pgxpool.Pool) *LessonRepo {
	return &LessonRepo{pool: pool}
}

// GetByID loads a lesson with the module and course fields generation needs.
func (r *LessonRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Lesson, error) {
	l := &models.Lesson{}
	query := `SELECT l.id, l.module_id, c.owner_id, l.title, l.summary, m.title, c.title, c.level, c.language, l.updated_at
		FROM lessons l
		JOIN modules m ON m.id = l.module_id
		JOIN courses c ON c.id = m.course_id
		WHERE l.id = $1`

	err := r.pool.QueryRow(ctx, query, id).Scan(
		&l.ID, &l.ModuleID, &l.OwnerID, &l.Title, &l.Summary,
		&l.ModuleTitle, &l.CourseTitle, &l.Level, &l.Language, &l.UpdatedAt,
	)
	if err != nil {
		return nil, notFound(err)
	}
	return l, nil
}

func (r *LessonRepo) GetSpec(ctx context.Context, id uuid.UUID) (models.LessonSpec, error) {
	l, err := r.GetByID(ctx, id)
	if err != nil {
		return models.LessonSpec{}, err
	}
	return l.Spec(), nil
}

// UpdateContent stores content verbatim in the lesson's JSONB column.
func (r *LessonRepo) UpdateContent(ctx context.Context, id uuid.UUID, content *models.LessonContent) error {
	payload, err := json.Marshal(content)
	if err != nil {
		return fmt.Errorf("encode lesson content: %w", err)
	}
	tag, err := r.pool.Exec(ctx,
		"UPDATE lessons SET content = $1, updated_at = NOW() WHERE id = $2",
		payload, id,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *LessonRepo) GetContent(ctx context.Context, id uuid.UUID) (*models.LessonContent, error) {
	var raw []byte
	err := r.pool.QueryRow(ctx, "SELECT content FROM lessons WHERE id = $1", id).Scan(&raw)
	if err != nil {
		return nil, notFound(err)
	}
	if len(raw) == 0 {
		return nil, ErrNotFound
	}
	content := &models.LessonContent{}
	if err := json.Unmarshal(raw, content); err != nil {
		return nil, fmt.Errorf("decode lesson content: %w", err)
	}
	return content, nil
}
