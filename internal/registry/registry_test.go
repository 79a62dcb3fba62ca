package registry

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/fedutinova/lectary/internal/common"
	"github.com/fedutinova/lectary/internal/job"
)

func newJob(uid string, status job.Status) *job.Job {
	return &job.Job{
		Status:    status,
		Mode:      job.ModeLectureNotes,
		UserID:    uid,
		StartedAt: time.Now(),
	}
}

func TestCreate_DuplicateRejected(t *testing.T) {
	r := NewMemory()
	if err := r.Create("a", newJob("u1", job.StatusStarting)); err != nil {
		t.Fatalf("Create error: %v", err)
	}
	err := r.Create("a", newJob("u1", job.StatusStarting))
	if !errors.Is(err, common.ErrDuplicateJob) {
		t.Fatalf("expected ErrDuplicateJob, got %v", err)
	}
}

func TestSnapshot_IsACopy(t *testing.T) {
	r := NewMemory()
	j := newJob("u1", job.StatusStarting)
	j.Flashcards = []job.Flashcard{{Front: "q", Back: "a"}}
	if err := r.Create("a", j); err != nil {
		t.Fatalf("Create error: %v", err)
	}

	snap, ok := r.Snapshot("a")
	if !ok {
		t.Fatalf("expected job to exist")
	}
	snap.Status = job.StatusError
	snap.Flashcards[0].Front = "mutated"

	again, _ := r.Snapshot("a")
	if again.Status != job.StatusStarting {
		t.Fatalf("snapshot mutation leaked into registry: %s", again.Status)
	}
	if again.Flashcards[0].Front != "q" {
		t.Fatalf("snapshot slice aliases registry state")
	}
}

func TestSnapshot_AbsentReturnsFalse(t *testing.T) {
	r := NewMemory()
	if _, ok := r.Snapshot("missing"); ok {
		t.Fatalf("expected ok=false for absent job")
	}
	if _, ok := r.Mutate("missing", func(*job.Job) {}); ok {
		t.Fatalf("expected ok=false for absent mutate")
	}
	if _, ok := r.Delete("missing"); ok {
		t.Fatalf("expected ok=false for absent delete")
	}
}

func TestMutate_ConcurrentUpdatesNotLost(t *testing.T) {
	r := NewMemory()
	if err := r.Create("a", newJob("u1", job.StatusProcessing)); err != nil {
		t.Fatalf("Create error: %v", err)
	}

	const workers = 8
	const perWorker = 250
	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			for k := 0; k < perWorker; k++ {
				r.Mutate("a", func(j *job.Job) {
					j.Step++
				})
			}
		}()
	}
	wg.Wait()

	snap, _ := r.Snapshot("a")
	if snap.Step != workers*perWorker {
		t.Fatalf("lost updates: expected %d, got %d", workers*perWorker, snap.Step)
	}
}

func TestCountActiveForUser(t *testing.T) {
	r := NewMemory()
	r.Create("a", newJob("u1", job.StatusStarting))
	r.Create("b", newJob("u1", job.StatusProcessing))
	r.Create("c", newJob("u1", job.StatusComplete))
	r.Create("d", newJob("u2", job.StatusProcessing))

	if got := r.CountActiveForUser("u1"); got != 2 {
		t.Fatalf("expected 2 active jobs for u1, got %d", got)
	}
	if got := r.CountActiveForUser(""); got != 0 {
		t.Fatalf("expected 0 for empty uid, got %d", got)
	}
}

func TestSweepTerminal(t *testing.T) {
	r := NewMemory()
	old := newJob("u1", job.StatusComplete)
	old.FinishedAt = time.Now().Add(-2 * time.Hour)
	r.Create("old", old)

	fresh := newJob("u1", job.StatusComplete)
	fresh.FinishedAt = time.Now()
	r.Create("fresh", fresh)

	running := newJob("u1", job.StatusProcessing)
	running.StartedAt = time.Now().Add(-3 * time.Hour)
	r.Create("running", running)

	if n := r.SweepTerminal(time.Hour); n != 1 {
		t.Fatalf("expected 1 eviction, got %d", n)
	}
	if _, ok := r.Snapshot("old"); ok {
		t.Fatalf("expected old job to be evicted")
	}
	if _, ok := r.Snapshot("fresh"); !ok {
		t.Fatalf("fresh terminal job should survive")
	}
	if _, ok := r.Snapshot("running"); !ok {
		t.Fatalf("non-terminal job must never be swept")
	}
}

func TestDeleteForUser(t *testing.T) {
	r := NewMemory()
	r.Create("a", newJob("u1", job.StatusComplete))
	r.Create("b", newJob("u1", job.StatusProcessing))
	r.Create("c", newJob("u2", job.StatusProcessing))

	if n := r.DeleteForUser("u1"); n != 2 {
		t.Fatalf("expected 2 deletions, got %d", n)
	}
	if got := r.CountActiveForUser("u2"); got != 1 {
		t.Fatalf("u2 jobs must be untouched")
	}
}
