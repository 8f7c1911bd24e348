// Package httpapi serves the survey API over HTTP.
package httpapi

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/goliatone/go-survey-service/internal/auth"
	"github.com/goliatone/go-survey-service/internal/metrics"
	"github.com/goliatone/go-survey-service/internal/service"
	"github.com/goliatone/go-survey-service/internal/store"
)

// Service is the part of *service.Service the handlers call.
type Service interface {
	Identify(ctx context.Context, token string) (*store.User, error)
	Login(ctx context.Context, username, password string) (auth.Token, error)
	CreateUser(ctx context.Context, req service.UserCreate) (*store.User, error)
	DeactivateUser(ctx context.Context, principal *store.User) (*store.User, error)

	CreateCategory(ctx context.Context, req service.CategoryCreate) (*store.Category, error)
	ListCategories(ctx context.Context, page store.Page) ([]*store.Category, error)

	CreateSurvey(ctx context.Context, principal *store.User, req service.SurveyCreate) (*store.Survey, error)
	UpdateSurvey(ctx context.Context, principal *store.User, id int64, req service.SurveyUpdate) (*store.Survey, error)
	ListSurveys(ctx context.Context, page store.Page) ([]*store.Survey, error)
	GetSurvey(ctx context.Context, id int64) (*store.Survey, error)
	GetSurveyResults(ctx context.Context, principal *store.User, surveyID int64) ([]*store.Result, error)
	RequestExport(ctx context.Context, surveyID int64) (service.TaskAccepted, error)
	RequestReport(ctx context.Context, surveyID int64) (service.TaskAccepted, error)

	CreateAnswer(ctx context.Context, principal *store.User, req service.AnswerCreate) (*store.Answer, error)
	ListAnswers(ctx context.Context, principal *store.User, page store.Page) ([]*store.Answer, error)

	CreateResult(ctx context.Context, principal *store.User, req service.ResultCreate) (*store.Result, error)
	ListResults(ctx context.Context, principal *store.User, page store.Page) ([]*store.Result, error)
	GetResult(ctx context.Context, principal *store.User, id int64) (*store.Result, error)
}

var _ Service = (*service.Service)(nil)

// Deps wires the router. Metrics and Health are optional.
type Deps struct {
	Service Service
	Metrics *metrics.Metrics
	Health  func(ctx context.Context) error
	Logger  *zap.Logger
}

// API holds the handlers.
type API struct {
	svc     Service
	metrics *metrics.Metrics
	health  func(ctx context.Context) error
	logger  *zap.Logger
}

func New(d Deps) *API {
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	return &API{
		svc:     d.Service,
		metrics: d.Metrics,
		health:  d.Health,
		logger:  d.Logger,
	}
}

// Handler builds the route tree.
func (a *API) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(echoRequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(requestLogger(a.logger))
	if a.metrics != nil {
		r.Use(observe(a.metrics))
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(a.metrics.Registry(), promhttp.HandlerOpts{}))
	}

	r.Get("/health", a.healthCheck)

	r.Post("/token", a.login)
	r.Post("/users/", a.createUser)
	r.Get("/categories/", a.listCategories)

	r.Group(func(r chi.Router) {
		r.Use(a.authenticate)

		r.Get("/users/me/", a.me)
		r.Delete("/users/me/", a.deactivateMe)

		r.Post("/surveys/", a.createSurvey)
		r.Get("/surveys/", a.listSurveys)
		r.Get("/surveys/{id}", a.getSurvey)
		r.Patch("/surveys/{id}", a.updateSurvey)
		r.Get("/surveys/{id}/results", a.surveyResults)
		r.Post("/surveys/{id}/export", a.requestExport)
		r.Get("/surveys/{id}/report", a.requestReport)

		r.Post("/categories/", a.createCategory)

		r.Post("/answers/", a.createAnswer)
		r.Get("/answers/", a.listAnswers)

		r.Post("/results/", a.createResult)
		r.Get("/results/", a.listResults)
		r.Get("/results/{id}", a.getResult)
	})

	return r
}

func (a *API) healthCheck(w http.ResponseWriter, r *http.Request) {
	if a.health != nil {
		if err := a.health(r.Context()); err != nil {
			a.logger.Warn("health check failed", zap.Error(err))
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
