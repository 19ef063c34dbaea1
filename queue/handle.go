package queue

import (
	"context"
	"sync"

	"github.com/nixxel-company-limited/escpos-dispatcher/job"
)

// Handle is the completion handle of a submitted job. It resolves exactly
// once.
type Handle struct {
	ID string

	once   sync.Once
	done   chan struct{}
	result job.Result
}

func newHandle(id string) *Handle {
	return &Handle{ID: id, done: make(chan struct{})}
}

// resolve reports whether this call resolved the handle.
func (h *Handle) resolve(r job.Result) bool {
	resolved := false
	h.once.Do(func() {
		h.result = r
		close(h.done)
		resolved = true
	})
	return resolved
}

// Done is closed once the job reached a terminal state.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Result blocks until the job finished and returns its result.
func (h *Handle) Result() job.Result {
	<-h.done
	return h.result
}

// Wait is Result bounded by ctx.
func (h *Handle) Wait(ctx context.Context) (job.Result, error) {
	select {
	case <-h.done:
		return h.result, nil
	case <-ctx.Done():
		return job.Result{}, ctx.Err()
	}
}
