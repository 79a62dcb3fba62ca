package registry

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/fedutinova/lectary/internal/common"
	"github.com/fedutinova/lectary/internal/job"
)

// Registry is the single source of truth for in-flight jobs. Implementations
// must guarantee that a Snapshot never observes a torn write from a
// concurrent Mutate.
type Registry interface {
	Create(id string, j *job.Job) error
	Snapshot(id string) (*job.Job, bool)
	Mutate(id string, fn func(*job.Job)) (*job.Job, bool)
	Delete(id string) (*job.Job, bool)
	CountActiveForUser(uid string) int
	DeleteForUser(uid string) int
	SweepTerminal(olderThan time.Duration) int
}

type memRegistry struct {
	mu   sync.RWMutex
	jobs map[string]*job.Job
}

func NewMemory() Registry {
	return &memRegistry{jobs: make(map[string]*job.Job)}
}

func (r *memRegistry) Create(id string, j *job.Job) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.jobs[id]; ok {
		return common.ErrDuplicateJob
	}
	stored := j.Clone()
	stored.ID = id
	r.jobs[id] = stored
	return nil
}

func (r *memRegistry) Snapshot(id string) (*job.Job, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	j, ok := r.jobs[id]
	if !ok {
		return nil, false
	}
	return j.Clone(), true
}

// Mutate applies fn to the live record under the lock and returns a copy of
// the result. fn must not block on I/O: the lock serializes every poller.
func (r *memRegistry) Mutate(id string, fn func(*job.Job)) (*job.Job, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	j, ok := r.jobs[id]
	if !ok {
		return nil, false
	}
	fn(j)
	return j.Clone(), true
}

func (r *memRegistry) Delete(id string) (*job.Job, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	j, ok := r.jobs[id]
	if !ok {
		return nil, false
	}
	delete(r.jobs, id)
	return j, true
}

func (r *memRegistry) CountActiveForUser(uid string) int {
	if uid == "" {
		return 0
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	count := 0
	for _, j := range r.jobs {
		if j.UserID == uid && j.Status.Active() {
			count++
		}
	}
	return count
}

// DeleteForUser removes every job belonging to uid and returns how many
// were removed. Used by account deletion.
func (r *memRegistry) DeleteForUser(uid string) int {
	if uid == "" {
		return 0
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	removed := 0
	for id, j := range r.jobs {
		if j.UserID == uid {
			delete(r.jobs, id)
			removed++
		}
	}
	return removed
}

// SweepTerminal evicts complete/error jobs whose terminal timestamp is older
// than olderThan, so an abandoned poller cannot grow the map forever.
func (r *memRegistry) SweepTerminal(olderThan time.Duration) int {
	cutoff := time.Now().Add(-olderThan)
	r.mu.Lock()
	defer r.mu.Unlock()
	evicted := 0
	for id, j := range r.jobs {
		if !j.Status.Terminal() {
			continue
		}
		finished := j.FinishedAt
		if finished.IsZero() {
			finished = j.StartedAt
		}
		if finished.Before(cutoff) {
			delete(r.jobs, id)
			evicted++
		}
	}
	return evicted
}

// StartSweeper runs SweepTerminal every interval until ctx is canceled.
func StartSweeper(ctx context.Context, r Registry, interval, ttl time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if n := r.SweepTerminal(ttl); n > 0 {
					slog.Info("evicted expired jobs", "count", n)
				}
			}
		}
	}()
}
