package store

import (
	"context"
	"time"

	"github.com/uptrace/bun"
)

func (s *Store) CreateAnswer(ctx context.Context, a *Answer) (*Answer, error) {
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}
	if _, err := s.db.NewInsert().Model(a).Exec(ctx); err != nil {
		return nil, mapError(err)
	}
	return a, nil
}

func (s *Store) ListAnswersByUser(ctx context.Context, userID int64, page Page) ([]*Answer, error) {
	page = page.normalize()
	answers := make([]*Answer, 0)
	err := s.db.NewSelect().
		Model(&answers).
		Where("?TableAlias.user_id = ?", userID).
		OrderExpr("?TableAlias.id ASC").
		Offset(page.Skip).
		Limit(page.Limit).
		Scan(ctx)
	if err != nil {
		return nil, mapError(err)
	}
	return answers, nil
}

// ListAnswersForSurvey returns every answer given to a question of the
// survey, oldest first, joined with the question text.
func (s *Store) ListAnswersForSurvey(ctx context.Context, surveyID int64) ([]AnswerRow, error) {
	answers := make([]*Answer, 0)
	err := s.db.NewSelect().
		Model(&answers).
		Relation("Question").
		Where("question.survey_id = ?", surveyID).
		OrderExpr("?TableAlias.id ASC").
		Scan(ctx)
	if err != nil {
		return nil, mapError(err)
	}

	rows := make([]AnswerRow, 0, len(answers))
	for _, a := range answers {
		row := AnswerRow{
			QuestionID: a.QuestionID,
			AnswerText: a.Text,
			IsCorrect:  a.IsCorrect,
			UserID:     a.UserID,
			CreatedAt:  a.CreatedAt,
		}
		if a.Question != nil {
			row.QuestionText = a.Question.Text
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// CreateResult inserts the result and its answers in one transaction and
// returns the stored result.
func (s *Store) CreateResult(ctx context.Context, r *Result, answers []*ResultAnswer) (*Result, error) {
	if r.SubmittedAt.IsZero() {
		r.SubmittedAt = time.Now().UTC()
	}

	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if _, err := tx.NewInsert().Model(r).Exec(ctx); err != nil {
			return err
		}
		if len(answers) == 0 {
			return nil
		}
		for _, ra := range answers {
			ra.ResultID = r.ID
		}
		_, err := tx.NewInsert().Model(&answers).Exec(ctx)
		return err
	})
	if err != nil {
		return nil, mapError(err)
	}
	return s.GetResultForUser(ctx, r.ID, r.UserID)
}

func orderedResultAnswers(q *bun.SelectQuery) *bun.SelectQuery {
	return q.OrderExpr("?TableAlias.id ASC")
}

// GetResultForUser returns a result only when it belongs to userID.
func (s *Store) GetResultForUser(ctx context.Context, id, userID int64) (*Result, error) {
	r := new(Result)
	err := s.db.NewSelect().
		Model(r).
		Relation("ResultAnswers", orderedResultAnswers).
		Where("?TableAlias.id = ?", id).
		Where("?TableAlias.user_id = ?", userID).
		Scan(ctx)
	if err != nil {
		return nil, mapError(err)
	}
	return r, nil
}

func (s *Store) ListResultsByUser(ctx context.Context, userID int64, page Page) ([]*Result, error) {
	page = page.normalize()
	results := make([]*Result, 0)
	err := s.db.NewSelect().
		Model(&results).
		Relation("ResultAnswers", orderedResultAnswers).
		Where("?TableAlias.user_id = ?", userID).
		OrderExpr("?TableAlias.id ASC").
		Offset(page.Skip).
		Limit(page.Limit).
		Scan(ctx)
	if err != nil {
		return nil, mapError(err)
	}
	return results, nil
}

// ListResultsForSurvey returns the results userID submitted for a survey.
func (s *Store) ListResultsForSurvey(ctx context.Context, surveyID, userID int64) ([]*Result, error) {
	results := make([]*Result, 0)
	err := s.db.NewSelect().
		Model(&results).
		Relation("ResultAnswers", orderedResultAnswers).
		Where("?TableAlias.survey_id = ?", surveyID).
		Where("?TableAlias.user_id = ?", userID).
		OrderExpr("?TableAlias.id ASC").
		Scan(ctx)
	if err != nil {
		return nil, mapError(err)
	}
	return results, nil
}
