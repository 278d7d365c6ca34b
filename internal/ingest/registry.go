package ingest

import (
	"context"
	"sync"
)

type jobKey struct{ vectorStoreID, fileID string }

type job struct {
	cancel    context.CancelCauseFunc
	cancelled bool
	done      chan struct{}
}

func newJob() *job { return &job{done: make(chan struct{})} }

// registry tracks running ingestions so they can be cancelled by id.
// A cancel that arrives before the job starts running is remembered.
type registry struct {
	mu   sync.Mutex
	jobs map[jobKey]*job
}

func newRegistry() *registry {
	return &registry{jobs: make(map[jobKey]*job)}
}

// add registers a pending job. It reports false, leaving the registry
// unchanged, while another job for k has not been removed.
func (r *registry) add(k jobKey) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.jobs[k]; ok {
		return false
	}
	r.jobs[k] = newJob()
	return true
}

// attach binds cancel to the job and fires it at once when a cancel
// already arrived.
func (r *registry) attach(k jobKey, cancel context.CancelCauseFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	j, ok := r.jobs[k]
	if !ok {
		j = newJob()
		r.jobs[k] = j
	}
	j.cancel = cancel
	if j.cancelled {
		cancel(errCancelRequested)
	}
}

// cancel requests cancellation. It returns a channel closed once the job
// is removed, or false when no job was found.
func (r *registry) cancel(k jobKey) (<-chan struct{}, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	j, ok := r.jobs[k]
	if !ok {
		return nil, false
	}
	j.cancelled = true
	if j.cancel != nil {
		j.cancel(errCancelRequested)
	}
	return j.done, true
}

func (r *registry) remove(k jobKey) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if j, ok := r.jobs[k]; ok {
		close(j.done)
		delete(r.jobs, k)
	}
}

func (r *registry) running() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.jobs)
}
