// Package jobs implements the background jobs run by the task workers:
// survey reports, completion emails and CSV exports.
//
// Jobs read the store through their own sessions and never touch the shared
// cache. Every job may run more than once for the same arguments; re-runs
// recompute the same report, resend the same email, or write a new export
// file under a fresh timestamped name.
package jobs

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/goliatone/go-survey-service/internal/export"
	"github.com/goliatone/go-survey-service/internal/notify"
	"github.com/goliatone/go-survey-service/internal/report"
	"github.com/goliatone/go-survey-service/internal/store"
	"github.com/goliatone/go-survey-service/internal/tasks"
)

// ErrNotFound reports that a job argument references a missing row.
var ErrNotFound = errors.New("jobs: not found")

// Store is the read side the jobs need.
type Store interface {
	GetSurvey(ctx context.Context, id int64) (*store.Survey, error)
	GetUser(ctx context.Context, id int64) (*store.User, error)
	ListAnswersForSurvey(ctx context.Context, surveyID int64) ([]store.AnswerRow, error)
}

// Jobs holds the dependencies shared by every job.
type Jobs struct {
	Store  Store
	Mailer notify.Mailer
	Sink   export.Sink
	Logger *zap.Logger
	// Clock stamps export filenames. Defaults to time.Now.
	Clock func() time.Time
}

func (j *Jobs) logger() *zap.Logger {
	if j.Logger == nil {
		return zap.NewNop()
	}
	return j.Logger
}

func (j *Jobs) now() time.Time {
	if j.Clock == nil {
		return time.Now()
	}
	return j.Clock()
}

// Register binds the three jobs to reg.
func (j *Jobs) Register(reg *tasks.Registry) error {
	handlers := map[string]tasks.HandlerFunc{
		tasks.GenerateSurveyReport: func(ctx context.Context, t tasks.Task) ([]byte, error) {
			return encode(j.GenerateSurveyReport(ctx, t.Arg(0)))
		},
		tasks.SendSurveyNotification: func(ctx context.Context, t tasks.Task) ([]byte, error) {
			return encode(j.SendSurveyNotification(ctx, t.Arg(0), t.Arg(1)))
		},
		tasks.ExportSurveyData: func(ctx context.Context, t tasks.Task) ([]byte, error) {
			return encode(j.ExportSurveyData(ctx, t.Arg(0)))
		},
	}
	for name, h := range handlers {
		if err := reg.Register(name, h); err != nil {
			return err
		}
	}
	return nil
}

func encode[T any](v T, err error) ([]byte, error) {
	if err != nil {
		return nil, err
	}
	return json.Marshal(v)
}

func (j *Jobs) survey(ctx context.Context, id int64) (*store.Survey, error) {
	s, err := j.Store.GetSurvey(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("%w: survey %d", ErrNotFound, id)
	}
	return s, err
}

// GenerateSurveyReport computes the statistics of a survey.
func (j *Jobs) GenerateSurveyReport(ctx context.Context, surveyID int64) (*report.Stats, error) {
	if _, err := j.survey(ctx, surveyID); err != nil {
		return nil, err
	}
	rows, err := j.Store.ListAnswersForSurvey(ctx, surveyID)
	if err != nil {
		return nil, fmt.Errorf("jobs: load answers: %w", err)
	}

	stats := report.Compute(surveyID, rows)
	j.logger().Info("survey report generated",
		zap.Int64("survey_id", surveyID),
		zap.Int("total_responses", stats.TotalResponses),
	)
	return stats, nil
}

// NotificationResult is returned by a sent notification.
type NotificationResult struct {
	Status string `json:"status"`
}

// CompletionMessage renders the survey completion email.
func CompletionMessage(user *store.User, survey *store.Survey) notify.Message {
	return notify.Message{
		To:      user.Email,
		Subject: "Survey Completion: " + survey.Title,
		Body: fmt.Sprintf("Dear %s,\n\n"+
			"Thank you for completing the survey \"%s\".\n"+
			"Your responses have been recorded successfully.\n\n"+
			"Best regards,\n"+
			"Survey Team\n", user.Username, survey.Title),
	}
}

// SendSurveyNotification emails userID about the completion of surveyID.
// Transport errors fail the task.
func (j *Jobs) SendSurveyNotification(ctx context.Context, surveyID, userID int64) (*NotificationResult, error) {
	user, err := j.Store.GetUser(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("%w: user %d", ErrNotFound, userID)
	}
	if err != nil {
		return nil, err
	}
	survey, err := j.survey(ctx, surveyID)
	if err != nil {
		return nil, err
	}

	if err := j.Mailer.Send(ctx, CompletionMessage(user, survey)); err != nil {
		return nil, err
	}
	j.logger().Info("survey notification sent",
		zap.Int64("survey_id", surveyID),
		zap.Int64("user_id", userID),
	)
	return &NotificationResult{Status: "Email sent successfully"}, nil
}

// ExportSurveyData writes every answer of a survey as CSV to the sink.
func (j *Jobs) ExportSurveyData(ctx context.Context, surveyID int64) (*export.Result, error) {
	if _, err := j.survey(ctx, surveyID); err != nil {
		return nil, err
	}
	rows, err := j.Store.ListAnswersForSurvey(ctx, surveyID)
	if err != nil {
		return nil, fmt.Errorf("jobs: load answers: %w", err)
	}

	var buf bytes.Buffer
	if err := export.WriteCSV(&buf, rows); err != nil {
		return nil, err
	}

	filename := export.Filename(surveyID, j.now())
	key := export.ObjectKey(filename)
	location, err := j.Sink.Put(ctx, key, buf.Bytes(), export.ContentType)
	if err != nil {
		return nil, err
	}

	j.logger().Info("survey exported",
		zap.Int64("survey_id", surveyID),
		zap.String("key", key),
		zap.Int("rows", len(rows)),
	)
	return &export.Result{
		Status:   export.StatusCompleted,
		Filename: filename,
		S3Path:   key,
		Location: location,
		Rows:     len(rows),
	}, nil
}
