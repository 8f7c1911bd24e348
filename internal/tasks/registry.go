package tasks

import (
	"context"
	"fmt"
	"sort"

	"github.com/puzpuzpuz/xsync/v3"
)

// HandlerFunc runs one task. The returned bytes are stored as the task result.
type HandlerFunc func(ctx context.Context, t Task) ([]byte, error)

// Registry maps job names to handlers. It is safe for concurrent use.
type Registry struct {
	handlers *xsync.MapOf[string, HandlerFunc]
}

func NewRegistry() *Registry {
	return &Registry{handlers: xsync.NewMapOf[string, HandlerFunc]()}
}

// Register binds h to a known job name.
func (r *Registry) Register(name string, h HandlerFunc) error {
	if !Known(name) {
		return fmt.Errorf("%w: %q", ErrUnknownTask, name)
	}
	if h == nil {
		return fmt.Errorf("tasks: nil handler for %s", name)
	}
	r.handlers.Store(name, h)
	return nil
}

func (r *Registry) Lookup(name string) (HandlerFunc, bool) {
	return r.handlers.Load(name)
}

// Names returns the registered job names in sorted order.
func (r *Registry) Names() []string {
	names := make([]string, 0, r.handlers.Size())
	r.handlers.Range(func(name string, _ HandlerFunc) bool {
		names = append(names, name)
		return true
	})
	sort.Strings(names)
	return names
}

// Execute validates t and runs its handler.
func (r *Registry) Execute(ctx context.Context, t Task) ([]byte, error) {
	if err := t.Validate(); err != nil {
		return nil, err
	}
	h, ok := r.Lookup(t.Name())
	if !ok {
		return nil, fmt.Errorf("%w: no handler for %s", ErrUnknownTask, t.Name())
	}
	return h(ctx, t)
}
