package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	validation "github.com/go-ozzo/ozzo-validation/v4"
	"go.uber.org/zap"

	"github.com/goliatone/go-survey-service/internal/service"
	"github.com/goliatone/go-survey-service/internal/store"
	"github.com/goliatone/go-survey-service/internal/tasks"
)

// errorBody is the shape of every error response.
type errorBody struct {
	Detail any `json:"detail"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeDetail(w http.ResponseWriter, status int, detail any) {
	writeJSON(w, status, errorBody{Detail: detail})
}

func unauthorized(w http.ResponseWriter, detail string) {
	w.Header().Set("WWW-Authenticate", "Bearer")
	writeDetail(w, http.StatusUnauthorized, detail)
}

// writeError maps a service error to a status code.
func (a *API) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		nf *service.NotFoundError
		ve *service.ValidationError
	)
	switch {
	case errors.As(err, &ve):
		var fields validation.Errors
		if errors.As(ve.Err, &fields) {
			writeDetail(w, http.StatusUnprocessableEntity, fields)
			return
		}
		writeDetail(w, http.StatusUnprocessableEntity, ve.Err.Error())
	case errors.As(err, &nf):
		writeDetail(w, http.StatusNotFound, capitalize(nf.Entity)+" not found")
	case errors.Is(err, service.ErrNotFound):
		writeDetail(w, http.StatusNotFound, "Not found")
	case errors.Is(err, service.ErrConflict):
		writeDetail(w, http.StatusBadRequest, "Already registered")
	case errors.Is(err, service.ErrUnauthenticated):
		unauthorized(w, "Could not validate credentials")
	case errors.Is(err, service.ErrForbidden):
		writeDetail(w, http.StatusForbidden, "Not enough permissions")
	case service.IsCacheUnavailable(err):
		a.logger.Error("cache unavailable", zap.Error(err), zap.String("path", r.URL.Path))
		writeDetail(w, http.StatusServiceUnavailable, "Cache unavailable")
	case errors.Is(err, tasks.ErrSubmission):
		a.logger.Error("task submission failed", zap.Error(err), zap.String("path", r.URL.Path))
		writeDetail(w, http.StatusServiceUnavailable, "Task queue unavailable")
	default:
		a.logger.Error("request failed", zap.Error(err), zap.String("path", r.URL.Path))
		writeDetail(w, http.StatusInternalServerError, "Internal server error")
	}
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

func decode(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return &service.ValidationError{Err: errors.New("malformed JSON body")}
	}
	return nil
}

func pathID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id < 1 {
		return 0, &service.ValidationError{Err: validation.Errors{"id": errors.New("must be a positive integer")}}
	}
	return id, nil
}

// page reads skip and limit. Missing values fall back to 0 and
// store.DefaultLimit.
func page(r *http.Request) (store.Page, error) {
	p := store.Page{Limit: store.DefaultLimit}
	errs := validation.Errors{}
	q := r.URL.Query()
	if v := q.Get("skip"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			errs["skip"] = errors.New("must be a non-negative integer")
		}
		p.Skip = n
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			errs["limit"] = errors.New("must be a positive integer")
		}
		p.Limit = n
	}
	if len(errs) > 0 {
		return store.Page{}, &service.ValidationError{Err: errs}
	}
	return p, nil
}
