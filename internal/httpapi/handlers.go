package httpapi

import (
	"errors"
	"net/http"

	"github.com/goliatone/go-survey-service/internal/service"
)

func (a *API) login(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		a.writeError(w, r, &service.ValidationError{Err: err})
		return
	}
	token, err := a.svc.Login(r.Context(), r.PostForm.Get("username"), r.PostForm.Get("password"))
	if errors.Is(err, service.ErrUnauthenticated) {
		unauthorized(w, "Incorrect username or password")
		return
	}
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, token)
}

func (a *API) createUser(w http.ResponseWriter, r *http.Request) {
	var req service.UserCreate
	if err := decode(r, &req); err != nil {
		a.writeError(w, r, err)
		return
	}
	u, err := a.svc.CreateUser(r.Context(), req)
	if errors.Is(err, service.ErrConflict) {
		writeDetail(w, http.StatusBadRequest, "Username already registered")
		return
	}
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, u)
}

func (a *API) me(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, principal(r))
}

func (a *API) deactivateMe(w http.ResponseWriter, r *http.Request) {
	u, err := a.svc.DeactivateUser(r.Context(), principal(r))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, u)
}

func (a *API) createCategory(w http.ResponseWriter, r *http.Request) {
	var req service.CategoryCreate
	if err := decode(r, &req); err != nil {
		a.writeError(w, r, err)
		return
	}
	c, err := a.svc.CreateCategory(r.Context(), req)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (a *API) listCategories(w http.ResponseWriter, r *http.Request) {
	p, err := page(r)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	out, err := a.svc.ListCategories(r.Context(), p)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(out))
}

func (a *API) createSurvey(w http.ResponseWriter, r *http.Request) {
	var req service.SurveyCreate
	if err := decode(r, &req); err != nil {
		a.writeError(w, r, err)
		return
	}
	s, err := a.svc.CreateSurvey(r.Context(), principal(r), req)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s)
}

func (a *API) listSurveys(w http.ResponseWriter, r *http.Request) {
	p, err := page(r)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	out, err := a.svc.ListSurveys(r.Context(), p)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(out))
}

func (a *API) getSurvey(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	s, err := a.svc.GetSurvey(r.Context(), id)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s)
}

func (a *API) updateSurvey(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	var req service.SurveyUpdate
	if err := decode(r, &req); err != nil {
		a.writeError(w, r, err)
		return
	}
	s, err := a.svc.UpdateSurvey(r.Context(), principal(r), id, req)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s)
}

func (a *API) surveyResults(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	out, err := a.svc.GetSurveyResults(r.Context(), principal(r), id)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(out))
}

func (a *API) requestExport(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	accepted, err := a.svc.RequestExport(r.Context(), id)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, accepted)
}

func (a *API) requestReport(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	accepted, err := a.svc.RequestReport(r.Context(), id)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, accepted)
}

func (a *API) createAnswer(w http.ResponseWriter, r *http.Request) {
	var req service.AnswerCreate
	if err := decode(r, &req); err != nil {
		a.writeError(w, r, err)
		return
	}
	ans, err := a.svc.CreateAnswer(r.Context(), principal(r), req)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ans)
}

func (a *API) listAnswers(w http.ResponseWriter, r *http.Request) {
	p, err := page(r)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	out, err := a.svc.ListAnswers(r.Context(), principal(r), p)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(out))
}

func (a *API) createResult(w http.ResponseWriter, r *http.Request) {
	var req service.ResultCreate
	if err := decode(r, &req); err != nil {
		a.writeError(w, r, err)
		return
	}
	res, err := a.svc.CreateResult(r.Context(), principal(r), req)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (a *API) listResults(w http.ResponseWriter, r *http.Request) {
	p, err := page(r)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	out, err := a.svc.ListResults(r.Context(), principal(r), p)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(out))
}

func (a *API) getResult(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	res, err := a.svc.GetResult(r.Context(), principal(r), id)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// nonNil keeps empty lists encoding as [] rather than null.
func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
