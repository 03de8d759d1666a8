package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
)

type entry struct {
	run          func(ctx context.Context, t Task) (interface{}, error)
	onFailure    func(ctx context.Context, t Task, err error)
	decodeTask   func(raw []byte) (Task, error)
	decodeResult func(raw []byte) (interface{}, error)
}

// Registry maps a task kind to its handler. It is shared by the API process
// (local fallback) and the queue workers.
type Registry struct {
	mu      sync.RWMutex
	entries map[Kind]entry
}

func NewRegistry() *Registry {
	return &Registry{entries: make(map[Kind]entry)}
}

// Register binds the handler for task type T. onFailure may be nil; it runs
// after run returned an error or panicked.
func Register[T Task, R any](r *Registry, run func(context.Context, T) (R, error), onFailure func(context.Context, T, error)) error {
	if run == nil {
		return fmt.Errorf("nil handler")
	}
	var zero T
	kind := zero.Kind()

	e := entry{
		run: func(ctx context.Context, t Task) (interface{}, error) {
			typed, ok := t.(T)
			if !ok {
				return nil, fmt.Errorf("task %T is not %T", t, zero)
			}
			return run(ctx, typed)
		},
		decodeTask: func(raw []byte) (Task, error) {
			var t T
			if err := json.Unmarshal(raw, &t); err != nil {
				return nil, err
			}
			return t, nil
		},
		decodeResult: func(raw []byte) (interface{}, error) {
			var res R
			if err := json.Unmarshal(raw, &res); err != nil {
				return nil, err
			}
			return res, nil
		},
	}
	if onFailure != nil {
		e.onFailure = func(ctx context.Context, t Task, err error) {
			if typed, ok := t.(T); ok {
				onFailure(ctx, typed, err)
			}
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.entries[kind]; exists {
		return fmt.Errorf("handler already registered for kind=%s", kind)
	}
	r.entries[kind] = e
	return nil
}

func (r *Registry) get(kind Kind) (entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[kind]
	return e, ok
}

// DecodeTask rebuilds a task from its queued payload.
func (r *Registry) DecodeTask(kind Kind, raw []byte) (Task, error) {
	e, ok := r.get(kind)
	if !ok {
		return nil, &missingHandlerError{Kind: kind}
	}
	return e.decodeTask(raw)
}

// execute runs the handler with the failure boundary: errors and panics are
// returned as err, never propagated, and the failure hook has run by then.
func (e entry) execute(ctx context.Context, t Task) (result interface{}, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			result, err = nil, &panicError{Val: rec}
		}
		if err != nil && e.onFailure != nil {
			func() {
				defer func() { _ = recover() }()
				e.onFailure(ctx, t, err)
			}()
		}
	}()
	return e.run(ctx, t)
}

type missingHandlerError struct{ Kind Kind }

func (e *missingHandlerError) Error() string {
	return "no handler registered for kind=" + string(e.Kind)
}

type panicError struct{ Val interface{} }

func (e *panicError) Error() string { return fmt.Sprintf("panic: %v", e.Val) }
