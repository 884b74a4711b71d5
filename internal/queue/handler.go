package queue

import (
	"context"
	"fmt"
)

// Handler binds a job name to its run function and, optionally, the hook
// invoked once retries are exhausted.
type Handler struct {
	Name        string
	MaxAttempts int
	Run         func(ctx context.Context, args []any) error
	// OnExhausted fires after the final failed attempt marks the job dead.
	// Optional; errors raised inside it must be contained by the hook itself.
	OnExhausted func(ctx context.Context, msg Message)
}

// UnknownHandlerError is returned when a stored job names a handler the
// registry was not built with.
type UnknownHandlerError struct {
	Name string
}

func (e *UnknownHandlerError) Error() string {
	return fmt.Sprintf("no handler registered for job '%s'", e.Name)
}

// Registry is a closed map of job names to handlers, assembled once at
// startup. Unknown names are a typed error, never a dynamic lookup.
type Registry struct {
	handlers map[string]Handler
}

func NewRegistry(handlers ...Handler) (*Registry, error) {
	r := &Registry{handlers: make(map[string]Handler, len(handlers))}
	for _, h := range handlers {
		if h.Name == "" {
			return nil, fmt.Errorf("handler with empty name")
		}
		if h.Run == nil {
			return nil, fmt.Errorf("handler '%s' has no run function", h.Name)
		}
		if _, exists := r.handlers[h.Name]; exists {
			return nil, fmt.Errorf("handler '%s' already registered", h.Name)
		}
		if h.MaxAttempts <= 0 {
			h.MaxAttempts = 1
		}
		r.handlers[h.Name] = h
	}
	return r, nil
}

func (r *Registry) Lookup(name string) (Handler, error) {
	h, exists := r.handlers[name]
	if !exists {
		return Handler{}, &UnknownHandlerError{Name: name}
	}
	return h, nil
}

func (r *Registry) Exists(name string) bool {
	_, exists := r.handlers[name]
	return exists
}

func (r *Registry) List() []string {
	names := make([]string, 0, len(r.handlers))
	for name := range r.handlers {
		names = append(names, name)
	}
	return names
}
