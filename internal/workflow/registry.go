package workflow

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mlauria/lexflow/internal/observability"
	"github.com/mlauria/lexflow/internal/research"
	"github.com/mlauria/lexflow/internal/session"
)

var ErrWorkflowNotFound = errors.New("workflow not found")

// Registry owns the live workflow controllers. Idle workflows are shut
// down by the janitor; their persisted sessions stay intact so a later
// Open with the same id resumes where they left off.
type Registry struct {
	client      research.Client
	persistence *session.Persistence
	metrics     *observability.Metrics
	debounce    time.Duration
	idleAfter   time.Duration

	mu        sync.Mutex
	workflows map[string]*Controller
	stop      chan struct{}
	stopOnce  sync.Once
}

func NewRegistry(client research.Client, persistence *session.Persistence, metrics *observability.Metrics, debounce, idleAfter time.Duration) *Registry {
	return &Registry{
		client:      client,
		persistence: persistence,
		metrics:     metrics,
		debounce:    debounce,
		idleAfter:   idleAfter,
		workflows:   make(map[string]*Controller),
		stop:        make(chan struct{}),
	}
}

// Create starts a fresh workflow and returns its controller.
func (r *Registry) Create() *Controller {
	c := NewController(uuid.NewString(), r.client, r.persistence, r.metrics, r.debounce)
	r.mu.Lock()
	r.workflows[c.ID()] = c
	n := len(r.workflows)
	r.mu.Unlock()
	r.metrics.SetActiveWorkflows(n)
	return c
}

// Get returns the live controller for id.
func (r *Registry) Get(id string) (*Controller, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.workflows[id]
	if !ok {
		return nil, ErrWorkflowNotFound
	}
	return c, nil
}

// Open returns the live controller for id, reviving it from the session
// store when it is not in memory.
func (r *Registry) Open(ctx context.Context, id string) (*Controller, error) {
	r.mu.Lock()
	if c, ok := r.workflows[id]; ok {
		r.mu.Unlock()
		return c, nil
	}
	c := NewController(id, r.client, r.persistence, r.metrics, r.debounce)
	r.workflows[id] = c
	n := len(r.workflows)
	r.mu.Unlock()
	r.metrics.SetActiveWorkflows(n)

	if err := c.Restore(ctx); err != nil {
		log.Printf("workflow %s: restore: %v", id, err)
	}
	return c, nil
}

// Remove discards the workflow entirely: state, persisted session, queue.
func (r *Registry) Remove(ctx context.Context, id string) error {
	r.mu.Lock()
	c, ok := r.workflows[id]
	if ok {
		delete(r.workflows, id)
	}
	n := len(r.workflows)
	r.mu.Unlock()
	if !ok {
		return ErrWorkflowNotFound
	}
	r.metrics.SetActiveWorkflows(n)
	return c.CloseSession(ctx)
}

// StartJanitor sweeps idle workflows in the background until Close.
func (r *Registry) StartJanitor() {
	interval := r.idleAfter / 4
	if interval < time.Minute {
		interval = time.Minute
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				r.sweep()
			case <-r.stop:
				return
			}
		}
	}()
}

func (r *Registry) sweep() {
	cutoff := time.Now().Add(-r.idleAfter)
	var expired []*Controller
	r.mu.Lock()
	for id, c := range r.workflows {
		if c.LastActivity().Before(cutoff) {
			delete(r.workflows, id)
			expired = append(expired, c)
		}
	}
	n := len(r.workflows)
	r.mu.Unlock()

	if len(expired) == 0 {
		return
	}
	r.metrics.SetActiveWorkflows(n)
	for _, c := range expired {
		c.Shutdown()
		log.Printf("workflow %s: expired after idle timeout", c.ID())
	}
}

// Close stops the janitor and shuts down every live workflow. Persisted
// sessions are untouched.
func (r *Registry) Close() {
	r.stopOnce.Do(func() { close(r.stop) })
	r.mu.Lock()
	workflows := make([]*Controller, 0, len(r.workflows))
	for _, c := range r.workflows {
		workflows = append(workflows, c)
	}
	r.workflows = make(map[string]*Controller)
	r.mu.Unlock()

	for _, c := range workflows {
		c.Shutdown()
	}
	r.metrics.SetActiveWorkflows(0)
}
