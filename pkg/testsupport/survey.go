package testsupport

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/goliatone/go-survey-service/internal/export"
	"github.com/goliatone/go-survey-service/internal/notify"
	"github.com/goliatone/go-survey-service/internal/store"
	"github.com/goliatone/go-survey-service/internal/tasks"
)

// NewTestStore opens a private in-memory SQLite store with the schema in
// place. It is closed when the test ends.
func NewTestStore(t testing.TB) *store.Store {
	t.Helper()

	s, err := store.Open(store.Config{
		Driver:       store.DriverSQLite,
		DSN:          fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString()),
		MaxOpenConns: 1,
	})
	if err != nil {
		t.Fatalf("failed to open test store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })

	if err := s.CreateSchema(context.Background()); err != nil {
		t.Fatalf("failed to create schema: %v", err)
	}
	return s
}

// NewMiniredis starts an in-process Redis server and returns it together with
// a client connected to it.
func NewMiniredis(t testing.TB) (*miniredis.Miniredis, redis.UniversalClient) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

// Seed is the data created by SeedSurvey.
type Seed struct {
	Owner     *store.User
	Survey    *store.Survey
	Questions []*store.Question
}

// SeedUser inserts an active user named name.
func SeedUser(t testing.TB, s *store.Store, name string) *store.User {
	t.Helper()

	u, err := s.CreateUser(context.Background(), &store.User{
		Email:          name + "@example.com",
		Username:       name,
		HashedPassword: "not-a-hash",
		IsActive:       true,
	})
	if err != nil {
		t.Fatalf("failed to seed user %s: %v", name, err)
	}
	return u
}

// SeedSurvey inserts an owner, a category and a two question survey.
func SeedSurvey(t testing.TB, s *store.Store) Seed {
	t.Helper()
	ctx := context.Background()

	owner := SeedUser(t, s, "owner-"+uuid.NewString()[:8])
	cat, err := s.CreateCategory(ctx, &store.Category{Name: "category-" + uuid.NewString()[:8]})
	if err != nil {
		t.Fatalf("failed to seed category: %v", err)
	}

	survey, err := s.CreateSurvey(ctx, &store.Survey{
		Title:       "Team pulse",
		Description: "Quarterly check-in",
		UserID:      owner.ID,
		CategoryID:  cat.ID,
	}, []*store.Question{
		{Text: "Do you like Go?", QuestionType: store.QuestionYesNo, OrderNumber: 1},
		{Text: "Favorite feature", QuestionType: store.QuestionOpenEnded, OrderNumber: 2},
	})
	if err != nil {
		t.Fatalf("failed to seed survey: %v", err)
	}

	return Seed{Owner: owner, Survey: survey, Questions: survey.Questions}
}

// RecordingDispatcher records dispatched tasks instead of queueing them.
type RecordingDispatcher struct {
	mu    sync.Mutex
	tasks []tasks.Task
	// Err, when set, is returned from every Dispatch call.
	Err error
}

var _ tasks.Dispatcher = (*RecordingDispatcher)(nil)

func (d *RecordingDispatcher) Dispatch(ctx context.Context, t tasks.Task) (tasks.Handle, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.Err != nil {
		return tasks.Handle{}, &tasks.SubmissionError{Task: t.Name(), Err: d.Err}
	}
	d.tasks = append(d.tasks, t)
	return tasks.Handle{
		ID:    fmt.Sprintf("task-%d", len(d.tasks)),
		Name:  t.Name(),
		Queue: "recording",
		State: tasks.StatePending,
	}, nil
}

// Tasks returns the dispatched tasks in order.
func (d *RecordingDispatcher) Tasks() []tasks.Task {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]tasks.Task(nil), d.tasks...)
}

// RecordingMailer keeps every message it is asked to send.
type RecordingMailer struct {
	mu       sync.Mutex
	messages []notify.Message
	Err      error
}

var _ notify.Mailer = (*RecordingMailer)(nil)

func (m *RecordingMailer) Send(ctx context.Context, msg notify.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	m.messages = append(m.messages, msg)
	return nil
}

func (m *RecordingMailer) Messages() []notify.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]notify.Message(nil), m.messages...)
}

// NewMemorySink returns an in-memory export sink.
func NewMemorySink() *export.MemorySink {
	return export.NewMemorySink()
}
