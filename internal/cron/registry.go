package cron

import (
	"context"
	"time"
)

// Job is one scheduled task run by the cron worker.
type Job interface {
	Name() string
	Run(ctx context.Context) error
}

// Periodic is implemented by jobs that should run less often than every
// cycle. Every is measured from the job's last attempt on this replica.
type Periodic interface {
	Every() time.Duration
}

// Registry keeps jobs in registration order, keyed by name.
type Registry struct {
	jobs   []Job
	byName map[string]int
}

func NewRegistry(jobs ...Job) *Registry {
	r := &Registry{byName: map[string]int{}}
	for _, job := range jobs {
		r.Register(job)
	}
	return r
}

// Register adds job. Nil jobs are ignored so optional constructors can be
// passed straight through; a second job with the same name replaces the
// first in place.
func (r *Registry) Register(job Job) {
	if job == nil {
		return
	}
	if i, ok := r.byName[job.Name()]; ok {
		r.jobs[i] = job
		return
	}
	r.byName[job.Name()] = len(r.jobs)
	r.jobs = append(r.jobs, job)
}

func (r *Registry) Jobs() []Job {
	out := make([]Job, len(r.jobs))
	copy(out, r.jobs)
	return out
}

func (r *Registry) Names() []string {
	out := make([]string, len(r.jobs))
	for i, job := range r.jobs {
		out[i] = job.Name()
	}
	return out
}

func (r *Registry) Lookup(name string) (Job, bool) {
	i, ok := r.byName[name]
	if !ok {
		return nil, false
	}
	return r.jobs[i], true
}

// due lists the jobs whose cadence has elapsed at now, given the time each
// job last ran.
func (r *Registry) due(lastRun map[string]time.Time, now time.Time) []Job {
	var out []Job
	for _, job := range r.jobs {
		p, ok := job.(Periodic)
		last, ran := lastRun[job.Name()]
		if !ok || !ran || now.Sub(last) >= p.Every() {
			out = append(out, job)
		}
	}
	return out
}
