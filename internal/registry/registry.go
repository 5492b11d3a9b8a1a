package registry

import (
	"sort"
	"sync"

	"github.com/bjpl/inteljobs/internal/domain"
	"github.com/bjpl/inteljobs/internal/job"
)

// Factory builds a runnable job for one registered type. Extra options are
// appended after the factory's own defaults, so callers (the queue worker in
// particular) can pin the job ID of an envelope being reconstructed.
type Factory func(params job.Params, opts ...job.Option) (*job.Job, error)

// FactoryFor wraps a fixed Executor with per-type default options.
func FactoryFor(jobType string, exec job.Executor, defaults ...job.Option) Factory {
	return func(params job.Params, opts ...job.Option) (*job.Job, error) {
		all := make([]job.Option, 0, len(defaults)+len(opts))
		all = append(all, defaults...)
		all = append(all, opts...)
		return job.New(jobType, exec, params, all...), nil
	}
}

// Registry maps job-type names to their factories.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// New creates an empty Registry.
func New() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// Register adds a factory under name. The last registration for a name wins.
// Safe to call concurrently.
func (r *Registry) Register(name string, f Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[name] = f
}

// Get returns the factory for the given job type.
// Returns UnknownJobTypeError if not registered.
func (r *Registry) Get(name string) (Factory, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	f, ok := r.factories[name]
	if !ok {
		return nil, &domain.UnknownJobTypeError{JobType: name}
	}
	return f, nil
}

// Create instantiates a job of the named type with the given parameters.
func (r *Registry) Create(name string, params job.Params, opts ...job.Option) (*job.Job, error) {
	f, err := r.Get(name)
	if err != nil {
		return nil, err
	}
	return f(params, opts...)
}

// Types lists all registered job-type names, sorted.
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Clear empties the table. Test support.
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories = make(map[string]Factory)
}
