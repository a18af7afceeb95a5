package cron

import (
	"context"
	"fmt"
	"time"
)

// Job is one unit of scheduled rental maintenance.
type Job interface {
	Name() string
	Run(ctx context.Context) error
}

// Deadliner is implemented by jobs that need a budget other than the
// service-wide job timeout.
type Deadliner interface {
	Deadline() time.Duration
}

// Registry holds jobs keyed by name, preserving registration order.
type Registry struct {
	order []string
	byKey map[string]Job
}

// NewRegistry registers jobs in order. Nil jobs are ignored; a duplicate name
// is an error since both jobs would report under the same metric label.
func NewRegistry(jobs ...Job) (*Registry, error) {
	r := &Registry{byKey: make(map[string]Job, len(jobs))}
	for _, job := range jobs {
		if err := r.Register(job); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Register appends job. Registering nil is a no-op.
func (r *Registry) Register(job Job) error {
	if job == nil {
		return nil
	}
	if r.byKey == nil {
		r.byKey = map[string]Job{}
	}
	name := job.Name()
	if name == "" {
		return fmt.Errorf("cron job name required")
	}
	if _, dup := r.byKey[name]; dup {
		return fmt.Errorf("cron job %q registered twice", name)
	}
	r.byKey[name] = job
	r.order = append(r.order, name)
	return nil
}

// Lookup returns the job registered under name.
func (r *Registry) Lookup(name string) (Job, bool) {
	job, ok := r.byKey[name]
	return job, ok
}

// Jobs returns a copy of the registered jobs in registration order.
func (r *Registry) Jobs() []Job {
	out := make([]Job, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.byKey[name])
	}
	return out
}

// Len reports the number of registered jobs.
func (r *Registry) Len() int { return len(r.order) }
