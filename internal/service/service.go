// Package service implements the survey API operations.
//
// Every write follows the same sequence: validate the request, commit the
// store mutation, invalidate the cache entries the mutation could have made
// stale, then dispatch background tasks. Invalidation runs strictly after the
// commit and strictly before the operation returns, so a caller that saw a
// successful write never reads the previous cached value afterwards. Reads of
// cached resources go through the cache first and repopulate it on a miss.
//
// Background tasks are dispatched in one of two modes. Fire-and-forget
// dispatches (completion emails, reports after a result submission) log a
// submission failure and never fail the already committed write. Awaited
// dispatches (exports and on-demand reports) return the task handle to the
// caller and fail the operation when the queue rejects the task.
package service

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/goliatone/go-survey-service/cache"
	"github.com/goliatone/go-survey-service/internal/auth"
	"github.com/goliatone/go-survey-service/internal/store"
	"github.com/goliatone/go-survey-service/internal/tasks"
	"github.com/goliatone/go-survey-service/surveycache"
)

// Store is the relational store as used by the service.
type Store interface {
	CreateUser(ctx context.Context, u *store.User) (*store.User, error)
	SetUserActive(ctx context.Context, id int64, active bool) error

	CreateCategory(ctx context.Context, c *store.Category) (*store.Category, error)
	GetCategory(ctx context.Context, id int64) (*store.Category, error)
	ListCategories(ctx context.Context, page store.Page) ([]*store.Category, error)

	CreateSurvey(ctx context.Context, s *store.Survey, questions []*store.Question) (*store.Survey, error)
	UpdateSurvey(ctx context.Context, id int64, patch store.SurveyPatch) (*store.Survey, error)
	GetSurvey(ctx context.Context, id int64) (*store.Survey, error)
	SurveyExists(ctx context.Context, id int64) (bool, error)
	ListSurveys(ctx context.Context, page store.Page) ([]*store.Survey, error)
	GetQuestion(ctx context.Context, id int64) (*store.Question, error)

	CreateAnswer(ctx context.Context, a *store.Answer) (*store.Answer, error)
	ListAnswersByUser(ctx context.Context, userID int64, page store.Page) ([]*store.Answer, error)

	CreateResult(ctx context.Context, r *store.Result, answers []*store.ResultAnswer) (*store.Result, error)
	GetResultForUser(ctx context.Context, id, userID int64) (*store.Result, error)
	ListResultsByUser(ctx context.Context, userID int64, page store.Page) ([]*store.Result, error)
	ListResultsForSurvey(ctx context.Context, surveyID, userID int64) ([]*store.Result, error)
}

// Deps are the collaborators of a Service.
type Deps struct {
	Store      Store
	Cache      *surveycache.Manager
	Dispatcher tasks.Dispatcher
	Auth       *auth.Service
	Logger     *zap.Logger
}

// Service exposes the survey operations.
type Service struct {
	store  Store
	cache  *surveycache.Manager
	tasks  tasks.Dispatcher
	auth   *auth.Service
	logger *zap.Logger
}

func New(d Deps) (*Service, error) {
	switch {
	case d.Store == nil:
		return nil, errors.New("service: store is required")
	case d.Cache == nil:
		return nil, errors.New("service: cache manager is required")
	case d.Dispatcher == nil:
		return nil, errors.New("service: task dispatcher is required")
	case d.Auth == nil:
		return nil, errors.New("service: auth is required")
	}
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	return &Service{
		store:  d.Store,
		cache:  d.Cache,
		tasks:  d.Dispatcher,
		auth:   d.Auth,
		logger: d.Logger,
	}, nil
}

// Identify resolves the principal behind a bearer token.
func (s *Service) Identify(ctx context.Context, token string) (*store.User, error) {
	return s.auth.CurrentIdentity(ctx, token)
}

// Login exchanges a username and password for an access token.
func (s *Service) Login(ctx context.Context, username, password string) (auth.Token, error) {
	u, err := s.auth.Authenticate(ctx, username, password)
	if err != nil {
		return auth.Token{}, err
	}
	return s.auth.IssueToken(u.Username)
}

// CreateUser registers an active account. A taken username or email is a
// conflict.
func (s *Service) CreateUser(ctx context.Context, req UserCreate) (*store.User, error) {
	if err := validate(req); err != nil {
		return nil, err
	}
	hash, err := s.auth.HashPassword(req.Password)
	if err != nil {
		return nil, err
	}
	u, err := s.store.CreateUser(ctx, &store.User{
		Email:          req.Email,
		Username:       req.Username,
		HashedPassword: hash,
		IsActive:       true,
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("user created", zap.Int64("user_id", u.ID), zap.String("username", u.Username))
	return u, nil
}

// DeactivateUser closes the principal's own account. The memoized identity is
// dropped so the account's tokens stop working on this process at once.
func (s *Service) DeactivateUser(ctx context.Context, principal *store.User) (*store.User, error) {
	if principal == nil {
		return nil, ErrUnauthenticated
	}
	if err := s.store.SetUserActive(ctx, principal.ID, false); err != nil {
		return nil, notFound(err, "User", principal.ID)
	}
	if err := s.auth.Forget(ctx, principal.Username); err != nil {
		return nil, fmt.Errorf("forget principal %q: %w", principal.Username, err)
	}
	s.logger.Info("user deactivated", zap.Int64("user_id", principal.ID), zap.String("username", principal.Username))

	u := *principal
	u.IsActive = false
	return &u, nil
}

func (s *Service) CreateCategory(ctx context.Context, req CategoryCreate) (*store.Category, error) {
	if err := validate(req); err != nil {
		return nil, err
	}
	return s.store.CreateCategory(ctx, &store.Category{Name: req.Name, Description: req.Description})
}

func (s *Service) ListCategories(ctx context.Context, page store.Page) ([]*store.Category, error) {
	return s.store.ListCategories(ctx, page)
}

// CreateSurvey stores a survey with its questions for the principal.
func (s *Service) CreateSurvey(ctx context.Context, principal *store.User, req SurveyCreate) (*store.Survey, error) {
	if err := validate(req); err != nil {
		return nil, err
	}
	if _, err := s.store.GetCategory(ctx, req.CategoryID); err != nil {
		return nil, notFound(err, "category", req.CategoryID)
	}

	questions := make([]*store.Question, 0, len(req.Questions))
	for _, q := range req.Questions {
		questions = append(questions, &store.Question{
			Text:         q.Text,
			QuestionType: q.QuestionType,
			OrderNumber:  q.OrderNumber,
		})
	}

	survey, err := s.store.CreateSurvey(ctx, &store.Survey{
		Title:       req.Title,
		Description: req.Description,
		UserID:      principal.ID,
		CategoryID:  req.CategoryID,
	}, questions)
	if err != nil {
		return nil, err
	}

	if err := s.cache.InvalidateSurvey(ctx, survey.ID); err != nil {
		return nil, fmt.Errorf("service: invalidate survey %d: %w", survey.ID, err)
	}
	return survey, nil
}

// UpdateSurvey changes a survey owned by the principal.
func (s *Service) UpdateSurvey(ctx context.Context, principal *store.User, id int64, req SurveyUpdate) (*store.Survey, error) {
	if err := validate(req); err != nil {
		return nil, err
	}
	current, err := s.store.GetSurvey(ctx, id)
	if err != nil {
		return nil, notFound(err, "survey", id)
	}
	if current.UserID != principal.ID {
		return nil, fmt.Errorf("%w: survey %d belongs to another user", ErrForbidden, id)
	}
	if req.CategoryID != nil {
		if _, err := s.store.GetCategory(ctx, *req.CategoryID); err != nil {
			return nil, notFound(err, "category", *req.CategoryID)
		}
	}

	survey, err := s.store.UpdateSurvey(ctx, id, store.SurveyPatch{
		Title:       req.Title,
		Description: req.Description,
		CategoryID:  req.CategoryID,
	})
	if err != nil {
		return nil, notFound(err, "survey", id)
	}

	if err := s.cache.InvalidateSurvey(ctx, id); err != nil {
		return nil, fmt.Errorf("service: invalidate survey %d: %w", id, err)
	}
	return survey, nil
}

func (s *Service) ListSurveys(ctx context.Context, page store.Page) ([]*store.Survey, error) {
	return s.store.ListSurveys(ctx, page)
}

// GetSurvey returns the survey document, from the cache when present.
func (s *Service) GetSurvey(ctx context.Context, id int64) (*store.Survey, error) {
	return surveycache.CachedSurvey[*store.Survey](ctx, s.cache, id, func(ctx context.Context) (*store.Survey, error) {
		survey, err := s.store.GetSurvey(ctx, id)
		if err != nil {
			return nil, notFound(err, "survey", id)
		}
		return survey, nil
	})
}

// CreateAnswer records the principal's answer to a question, invalidates the
// caches of the question's survey and schedules the completion email.
func (s *Service) CreateAnswer(ctx context.Context, principal *store.User, req AnswerCreate) (*store.Answer, error) {
	if err := validate(req); err != nil {
		return nil, err
	}
	q, err := s.store.GetQuestion(ctx, req.QuestionID)
	if err != nil {
		return nil, notFound(err, "question", req.QuestionID)
	}

	answer, err := s.store.CreateAnswer(ctx, &store.Answer{
		QuestionID: q.ID,
		UserID:     principal.ID,
		Text:       req.Text,
		IsCorrect:  req.IsCorrect,
	})
	if err != nil {
		return nil, err
	}

	if err := s.cache.InvalidateAll(ctx, q.SurveyID); err != nil {
		return nil, fmt.Errorf("service: invalidate survey %d: %w", q.SurveyID, err)
	}

	tasks.FireAndForget(ctx, s.tasks, tasks.NotificationTask(q.SurveyID, principal.ID), s.logger)
	return answer, nil
}

func (s *Service) ListAnswers(ctx context.Context, principal *store.User, page store.Page) ([]*store.Answer, error) {
	return s.store.ListAnswersByUser(ctx, principal.ID, page)
}

// CreateResult records a survey submission, invalidates the survey caches and
// schedules the report and the completion email.
func (s *Service) CreateResult(ctx context.Context, principal *store.User, req ResultCreate) (*store.Result, error) {
	if err := validate(req); err != nil {
		return nil, err
	}
	if err := s.requireSurvey(ctx, req.SurveyID); err != nil {
		return nil, err
	}

	answers := make([]*store.ResultAnswer, 0, len(req.ResultAnswers))
	for _, a := range req.ResultAnswers {
		answers = append(answers, &store.ResultAnswer{
			QuestionID: a.QuestionID,
			AnswerID:   a.AnswerID,
			AnswerText: a.AnswerText,
		})
	}

	result, err := s.store.CreateResult(ctx, &store.Result{
		UserID:          principal.ID,
		SurveyID:        req.SurveyID,
		ResponsesNumber: req.ResponsesNumber,
	}, answers)
	if err != nil {
		return nil, err
	}

	if err := s.cache.InvalidateAll(ctx, req.SurveyID); err != nil {
		return nil, fmt.Errorf("service: invalidate survey %d: %w", req.SurveyID, err)
	}

	tasks.FireAndForget(ctx, s.tasks, tasks.ReportTask(req.SurveyID), s.logger)
	tasks.FireAndForget(ctx, s.tasks, tasks.NotificationTask(req.SurveyID, principal.ID), s.logger)
	return result, nil
}

func (s *Service) ListResults(ctx context.Context, principal *store.User, page store.Page) ([]*store.Result, error) {
	return s.store.ListResultsByUser(ctx, principal.ID, page)
}

// GetResult returns one of the principal's results.
func (s *Service) GetResult(ctx context.Context, principal *store.User, id int64) (*store.Result, error) {
	r, err := s.store.GetResultForUser(ctx, id, principal.ID)
	if err != nil {
		return nil, notFound(err, "result", id)
	}
	return r, nil
}

// GetSurveyResults returns the principal's results for a survey through the
// survey_results cache. Unless the cache manager scopes results by user, the
// cached list is shared by every principal reading the same survey.
func (s *Service) GetSurveyResults(ctx context.Context, principal *store.User, surveyID int64) ([]*store.Result, error) {
	return surveycache.CachedSurveyResults[[]*store.Result](ctx, s.cache, surveyID, principal.ID, func(ctx context.Context) ([]*store.Result, error) {
		if err := s.requireSurvey(ctx, surveyID); err != nil {
			return nil, err
		}
		return s.store.ListResultsForSurvey(ctx, surveyID, principal.ID)
	})
}

// RequestExport queues a CSV export of the survey and returns its task id.
func (s *Service) RequestExport(ctx context.Context, surveyID int64) (TaskAccepted, error) {
	return s.submit(ctx, surveyID, tasks.ExportTask(surveyID), "Export started")
}

// RequestReport queues a report of the survey and returns its task id.
func (s *Service) RequestReport(ctx context.Context, surveyID int64) (TaskAccepted, error) {
	return s.submit(ctx, surveyID, tasks.ReportTask(surveyID), "Report generation started")
}

func (s *Service) submit(ctx context.Context, surveyID int64, t tasks.Task, message string) (TaskAccepted, error) {
	if err := s.requireSurvey(ctx, surveyID); err != nil {
		return TaskAccepted{}, err
	}
	h, err := s.tasks.Dispatch(ctx, t)
	if err != nil {
		return TaskAccepted{}, err
	}
	s.logger.Info("task accepted", zap.String("task", t.Name()), zap.String("task_id", h.ID))
	return TaskAccepted{Message: message, TaskID: h.ID}, nil
}

func (s *Service) requireSurvey(ctx context.Context, id int64) error {
	ok, err := s.store.SurveyExists(ctx, id)
	if err != nil {
		return err
	}
	if !ok {
		return &NotFoundError{Entity: "survey", ID: id}
	}
	return nil
}

// IsCacheUnavailable reports whether err comes from an unreachable cache.
func IsCacheUnavailable(err error) bool {
	return errors.Is(err, cache.ErrUnavailable)
}
