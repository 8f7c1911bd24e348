package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/goliatone/go-survey-service/cache"
	"github.com/goliatone/go-survey-service/internal/auth"
	"github.com/goliatone/go-survey-service/internal/cacheinfra"
	"github.com/goliatone/go-survey-service/internal/metrics"
	"github.com/goliatone/go-survey-service/internal/service"
	"github.com/goliatone/go-survey-service/internal/tasks"
	"github.com/goliatone/go-survey-service/pkg/testsupport"
	"github.com/goliatone/go-survey-service/surveycache"
)

type fixture struct {
	handler    http.Handler
	dispatcher *testsupport.RecordingDispatcher
	metrics    *metrics.Metrics
	healthErr  error
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	db := testsupport.NewTestStore(t)
	m, err := metrics.New(nil)
	require.NoError(t, err)

	ttl, err := cache.NewTTLCache(cacheinfra.NewMemoryBackend(0), cache.DefaultConfig(), cache.WithObserver(m))
	require.NoError(t, err)
	t.Cleanup(func() { _ = ttl.Close(context.Background()) })
	manager, err := surveycache.NewManager(ttl)
	require.NoError(t, err)

	authCfg := auth.DefaultConfig()
	authCfg.Secret = "0123456789abcdef0123456789abcdef"
	authCfg.BcryptCost = bcrypt.MinCost
	authSvc, err := auth.New(db, authCfg)
	require.NoError(t, err)

	f := &fixture{dispatcher: &testsupport.RecordingDispatcher{}, metrics: m}
	svc, err := service.New(service.Deps{Store: db, Cache: manager, Dispatcher: f.dispatcher, Auth: authSvc})
	require.NoError(t, err)

	f.handler = New(Deps{
		Service: svc,
		Metrics: m,
		Health:  func(context.Context) error { return f.healthErr },
	}).Handler()
	return f
}

func (f *fixture) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var rdr io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		rdr = strings.NewReader(string(raw))
	}
	req := httptest.NewRequest(method, path, rdr)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

// signup registers a user and returns a bearer token for it.
func (f *fixture) signup(t *testing.T, username string) string {
	t.Helper()
	rec := f.do(t, http.MethodPost, "/users/", "", map[string]string{
		"email": username + "@example.com", "username": username, "password": "secret",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	form := url.Values{"username": {username}, "password": {"secret"}}
	req := httptest.NewRequest(http.MethodPost, "/token", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	tok := httptest.NewRecorder()
	f.handler.ServeHTTP(tok, req)
	require.Equal(t, http.StatusOK, tok.Code, tok.Body.String())

	var out auth.Token
	require.NoError(t, json.Unmarshal(tok.Body.Bytes(), &out))
	require.NotEmpty(t, out.AccessToken)
	return out.AccessToken
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func detail(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	body := decodeBody[map[string]any](t, rec)
	s, _ := body["detail"].(string)
	return s
}

func (f *fixture) createSurvey(t *testing.T, token string) map[string]any {
	t.Helper()
	rec := f.do(t, http.MethodPost, "/categories/", token, map[string]string{"name": "General"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	cat := decodeBody[map[string]any](t, rec)

	rec = f.do(t, http.MethodPost, "/surveys/", token, map[string]any{
		"title":       "Team pulse",
		"category_id": cat["id"],
		"questions": []map[string]any{
			{"text": "Do you like Go?", "question_type": "yes_no", "order_number": 1},
		},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	return decodeBody[map[string]any](t, rec)
}

func idOf(v map[string]any) string {
	return strconv.FormatInt(int64(v["id"].(float64)), 10)
}

func TestAPI_SurveyFlow(t *testing.T) {
	f := newFixture(t)
	token := f.signup(t, "alice")

	me := f.do(t, http.MethodGet, "/users/me/", token, nil)
	require.Equal(t, http.StatusOK, me.Code)
	assert.Equal(t, "alice", decodeBody[map[string]any](t, me)["username"])
	assert.NotContains(t, me.Body.String(), "hashed_password")

	survey := f.createSurvey(t, token)
	sid := idOf(survey)

	rec := f.do(t, http.MethodGet, "/surveys/"+sid, token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	got := decodeBody[map[string]any](t, rec)
	assert.Equal(t, "Team pulse", got["title"])
	questions := got["questions"].([]any)
	require.Len(t, questions, 1)
	qid := questions[0].(map[string]any)["id"]

	rec = f.do(t, http.MethodPost, "/answers/", token, map[string]any{"question_id": qid, "text": "yes", "is_correct": true})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = f.do(t, http.MethodGet, "/answers/", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decodeBody[[]any](t, rec), 1)

	rec = f.do(t, http.MethodPatch, "/surveys/"+sid, token, map[string]any{"title": "Team pulse v2"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "Team pulse v2", decodeBody[map[string]any](t, rec)["title"])

	rec = f.do(t, http.MethodPost, "/surveys/"+sid+"/export", token, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	accepted := decodeBody[service.TaskAccepted](t, rec)
	assert.Equal(t, "Export started", accepted.Message)
	assert.NotEmpty(t, accepted.TaskID)

	rec = f.do(t, http.MethodGet, "/surveys/"+sid+"/report", token, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "Report generation started", decodeBody[service.TaskAccepted](t, rec).Message)

	var names []string
	for _, task := range f.dispatcher.Tasks() {
		names = append(names, task.Name())
	}
	assert.Equal(t, []string{tasks.SendSurveyNotification, tasks.ExportSurveyData, tasks.GenerateSurveyReport}, names)
}

func TestAPI_Results(t *testing.T) {
	f := newFixture(t)
	token := f.signup(t, "bob")
	survey := f.createSurvey(t, token)
	sid := idOf(survey)

	rec := f.do(t, http.MethodPost, "/results/", token, map[string]any{
		"survey_id":        survey["id"],
		"responses_number": 0,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	rid := idOf(decodeBody[map[string]any](t, rec))

	rec = f.do(t, http.MethodGet, "/results/"+rid, token, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(t, http.MethodGet, "/results/", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decodeBody[[]any](t, rec), 1)

	rec = f.do(t, http.MethodGet, "/surveys/"+sid+"/results", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decodeBody[[]any](t, rec), 1)

	rec = f.do(t, http.MethodGet, "/results/999", token, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "Result not found", detail(t, rec))
}

func TestAPI_Auth(t *testing.T) {
	f := newFixture(t)
	f.signup(t, "carol")

	rec := f.do(t, http.MethodPost, "/users/", "", map[string]string{
		"email": "other@example.com", "username": "carol", "password": "x",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Username already registered", detail(t, rec))

	form := url.Values{"username": {"carol"}, "password": {"wrong"}}
	req := httptest.NewRequest(http.MethodPost, "/token", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	bad := httptest.NewRecorder()
	f.handler.ServeHTTP(bad, req)
	assert.Equal(t, http.StatusUnauthorized, bad.Code)
	assert.Equal(t, "Bearer", bad.Header().Get("WWW-Authenticate"))
	assert.Equal(t, "Incorrect username or password", detail(t, bad))

	rec = f.do(t, http.MethodGet, "/surveys/", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "Not authenticated", detail(t, rec))

	rec = f.do(t, http.MethodGet, "/surveys/", "not-a-token", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "Could not validate credentials", detail(t, rec))

	// categories are listed without a principal
	rec = f.do(t, http.MethodGet, "/categories/", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())
}

func TestAPI_DeactivateAccount(t *testing.T) {
	f := newFixture(t)
	token := f.signup(t, "dave")

	rec := f.do(t, http.MethodDelete, "/users/me/", token, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	body := decodeBody[map[string]any](t, rec)
	assert.Equal(t, "dave", body["username"])
	assert.Equal(t, false, body["is_active"])

	rec = f.do(t, http.MethodGet, "/users/me/", token, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = f.do(t, http.MethodDelete, "/users/me/", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAPI_ErrorMapping(t *testing.T) {
	f := newFixture(t)
	owner := f.signup(t, "dave")
	other := f.signup(t, "erin")
	sid := idOf(f.createSurvey(t, owner))

	tests := []struct {
		name   string
		method string
		path   string
		token  string
		body   any
		status int
	}{
		{"missing survey", http.MethodGet, "/surveys/999", owner, nil, http.StatusNotFound},
		{"bad id", http.MethodGet, "/surveys/abc", owner, nil, http.StatusUnprocessableEntity},
		{"bad skip", http.MethodGet, "/surveys/?skip=-1", owner, nil, http.StatusUnprocessableEntity},
		{"bad limit", http.MethodGet, "/answers/?limit=zero", owner, nil, http.StatusUnprocessableEntity},
		{"invalid survey", http.MethodPost, "/surveys/", owner, map[string]any{"title": ""}, http.StatusUnprocessableEntity},
		{"not owner", http.MethodPatch, "/surveys/" + sid, other, map[string]any{"title": "mine"}, http.StatusForbidden},
		{"answer to missing question", http.MethodPost, "/answers/", owner, map[string]any{"question_id": 999, "text": "x"}, http.StatusNotFound},
		{"export missing survey", http.MethodPost, "/surveys/999/export", owner, nil, http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := f.do(t, tt.method, tt.path, tt.token, tt.body)
			assert.Equal(t, tt.status, rec.Code, rec.Body.String())
		})
	}

	rec := f.do(t, http.MethodGet, "/surveys/999", owner, nil)
	assert.Equal(t, "Survey not found", detail(t, rec))

	req := httptest.NewRequest(http.MethodPost, "/surveys/", strings.NewReader("{"))
	req.Header.Set("Authorization", "Bearer "+owner)
	malformed := httptest.NewRecorder()
	f.handler.ServeHTTP(malformed, req)
	assert.Equal(t, http.StatusUnprocessableEntity, malformed.Code)
}

func TestAPI_TaskQueueDown(t *testing.T) {
	f := newFixture(t)
	token := f.signup(t, "frank")
	sid := idOf(f.createSurvey(t, token))

	f.dispatcher.Err = errors.New("broker unreachable")

	rec := f.do(t, http.MethodPost, "/surveys/"+sid+"/export", token, nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	// fire-and-forget dispatch failures do not fail the write
	rec = f.do(t, http.MethodPost, "/results/", token, map[string]any{"survey_id": mustInt(t, sid)})
	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

func mustInt(t *testing.T, s string) int64 {
	t.Helper()
	n, err := strconv.ParseInt(s, 10, 64)
	require.NoError(t, err)
	return n
}

func TestAPI_HealthAndMetrics(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get(RequestIDHeader))

	f.healthErr = errors.New("db down")
	rec = f.do(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	rec = f.do(t, http.MethodGet, "/metrics", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `survey_http_requests_total{method="GET",route="/health",status="200"} 1`)
	assert.Contains(t, rec.Body.String(), `survey_http_requests_total{method="GET",route="/health",status="503"} 1`)
}

func TestRequestID_Propagated(t *testing.T) {
	f := newFixture(t)
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set(RequestIDHeader, "req-42")
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	assert.Equal(t, "req-42", rec.Header().Get(RequestIDHeader))
}
