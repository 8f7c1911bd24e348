package store

import (
	"context"
	"time"

	"github.com/uptrace/bun"
)

func (s *Store) CreateCategory(ctx context.Context, c *Category) (*Category, error) {
	if _, err := s.db.NewInsert().Model(c).Exec(ctx); err != nil {
		return nil, mapError(err)
	}
	return c, nil
}

func (s *Store) GetCategory(ctx context.Context, id int64) (*Category, error) {
	c := new(Category)
	if err := s.db.NewSelect().Model(c).Where("?TableAlias.id = ?", id).Scan(ctx); err != nil {
		return nil, mapError(err)
	}
	return c, nil
}

func (s *Store) ListCategories(ctx context.Context, page Page) ([]*Category, error) {
	page = page.normalize()
	categories := make([]*Category, 0)
	err := s.db.NewSelect().
		Model(&categories).
		OrderExpr("?TableAlias.id ASC").
		Offset(page.Skip).
		Limit(page.Limit).
		Scan(ctx)
	if err != nil {
		return nil, mapError(err)
	}
	return categories, nil
}

// CreateSurvey inserts the survey and its questions in one transaction and
// returns the stored document.
func (s *Store) CreateSurvey(ctx context.Context, survey *Survey, questions []*Question) (*Survey, error) {
	if survey.CreatedAt.IsZero() {
		survey.CreatedAt = time.Now().UTC()
	}

	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if _, err := tx.NewInsert().Model(survey).Exec(ctx); err != nil {
			return err
		}
		if len(questions) == 0 {
			return nil
		}
		for _, q := range questions {
			q.SurveyID = survey.ID
		}
		_, err := tx.NewInsert().Model(&questions).Exec(ctx)
		return err
	})
	if err != nil {
		return nil, mapError(err)
	}
	return s.GetSurvey(ctx, survey.ID)
}

// SurveyPatch carries the mutable survey fields. Nil fields are left as is.
type SurveyPatch struct {
	Title       *string
	Description *string
	CategoryID  *int64
}

func (p SurveyPatch) empty() bool {
	return p.Title == nil && p.Description == nil && p.CategoryID == nil
}

// UpdateSurvey applies patch and returns the stored document.
func (s *Store) UpdateSurvey(ctx context.Context, id int64, patch SurveyPatch) (*Survey, error) {
	if patch.empty() {
		return s.GetSurvey(ctx, id)
	}

	q := s.db.NewUpdate().Model((*Survey)(nil)).Where("id = ?", id)
	if patch.Title != nil {
		q = q.Set("title = ?", *patch.Title)
	}
	if patch.Description != nil {
		q = q.Set("description = ?", *patch.Description)
	}
	if patch.CategoryID != nil {
		q = q.Set("category_id = ?", *patch.CategoryID)
	}

	res, err := q.Exec(ctx)
	if err != nil {
		return nil, mapError(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, ErrNotFound
	}
	return s.GetSurvey(ctx, id)
}

func orderedQuestions(q *bun.SelectQuery) *bun.SelectQuery {
	return q.OrderExpr("?TableAlias.order_number ASC, ?TableAlias.id ASC")
}

// GetSurvey returns the survey with its category and ordered questions.
func (s *Store) GetSurvey(ctx context.Context, id int64) (*Survey, error) {
	survey := new(Survey)
	err := s.db.NewSelect().
		Model(survey).
		Relation("Category").
		Relation("Questions", orderedQuestions).
		Where("?TableAlias.id = ?", id).
		Scan(ctx)
	if err != nil {
		return nil, mapError(err)
	}
	return survey, nil
}

// SurveyExists reports whether a survey row exists.
func (s *Store) SurveyExists(ctx context.Context, id int64) (bool, error) {
	ok, err := s.db.NewSelect().Model((*Survey)(nil)).Where("?TableAlias.id = ?", id).Exists(ctx)
	if err != nil {
		return false, mapError(err)
	}
	return ok, nil
}

func (s *Store) ListSurveys(ctx context.Context, page Page) ([]*Survey, error) {
	page = page.normalize()
	surveys := make([]*Survey, 0)
	err := s.db.NewSelect().
		Model(&surveys).
		Relation("Category").
		Relation("Questions", orderedQuestions).
		OrderExpr("?TableAlias.id ASC").
		Offset(page.Skip).
		Limit(page.Limit).
		Scan(ctx)
	if err != nil {
		return nil, mapError(err)
	}
	return surveys, nil
}

func (s *Store) GetQuestion(ctx context.Context, id int64) (*Question, error) {
	q := new(Question)
	if err := s.db.NewSelect().Model(q).Where("?TableAlias.id = ?", id).Scan(ctx); err != nil {
		return nil, mapError(err)
	}
	return q, nil
}
