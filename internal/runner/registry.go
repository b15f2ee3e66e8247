package runner

import (
	"context"
	"sync"
)

// DefaultRegistryLimit is how many runs a Registry remembers.
const DefaultRegistryLimit = 100

// Registry tracks runs by id and allows one active run per key (a folder or
// project). Finished runs beyond the limit are forgotten oldest first.
type Registry struct {
	mu      sync.Mutex
	factory func() *Controller
	limit   int
	runs    map[string]*Controller
	active  map[string]*Controller
	order   []string
}

func NewRegistry(factory func() *Controller, limit int) *Registry {
	if limit <= 0 {
		limit = DefaultRegistryLimit
	}
	return &Registry{
		factory: factory,
		limit:   limit,
		runs:    make(map[string]*Controller),
		active:  make(map[string]*Controller),
	}
}

// Start begins a new run for key. It fails with ErrAlreadyRunning when the
// previous run for key has not finished yet.
func (r *Registry) Start(ctx context.Context, key string, opts Options) (*Controller, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if prev, ok := r.active[key]; ok && prev.Status().State == StateRunning {
		return nil, ErrAlreadyRunning
	}

	c := r.factory()
	if err := c.Start(ctx, opts); err != nil {
		return nil, err
	}

	id := c.Status().ID
	r.runs[id] = c
	r.active[key] = c
	r.order = append(r.order, id)
	r.pruneLocked()
	return c, nil
}

// Wait blocks until every run started through r has finished.
func (r *Registry) Wait() {
	r.mu.Lock()
	pending := make([]*Controller, 0, len(r.active))
	for _, c := range r.active {
		pending = append(pending, c)
	}
	r.mu.Unlock()

	for _, c := range pending {
		c.Wait()
	}
}

// Get returns the run with the given id.
func (r *Registry) Get(id string) (*Controller, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.runs[id]
	return c, ok
}

func (r *Registry) pruneLocked() {
	for len(r.order) > r.limit {
		evicted := false
		for i, id := range r.order {
			c := r.runs[id]
			if c.Status().State == StateRunning {
				continue
			}
			delete(r.runs, id)
			for key, active := range r.active {
				if active == c {
					delete(r.active, key)
				}
			}
			r.order = append(r.order[:i], r.order[i+1:]...)
			evicted = true
			break
		}
		if !evicted {
			return
		}
	}
}
