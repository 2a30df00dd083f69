// Package dispatch runs keyed background jobs with bounded concurrency and
// per-key cancellation.
package dispatch

import (
	"context"
	"errors"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/hupe1980/octoterra/resource"
)

// Dispatcher runs one job per key. A job that fails cancels the jobs still
// running; a job canceled through Cancel does not.
type Dispatcher[K comparable] struct {
	g   *errgroup.Group
	ctx context.Context
	rc  *resource.Controller

	mu   sync.Mutex
	jobs map[K]*job
}

type job struct {
	cancel   context.CancelFunc
	canceled bool
}

// New returns a Dispatcher running at most limit jobs at once. When rc is
// non-nil every job also holds one of its worker slots.
func New[K comparable](ctx context.Context, limit int, rc *resource.Controller) *Dispatcher[K] {
	g, gctx := errgroup.WithContext(ctx)
	if limit > 0 {
		g.SetLimit(limit)
	}
	return &Dispatcher[K]{
		g:    g,
		ctx:  gctx,
		rc:   rc,
		jobs: make(map[K]*job),
	}
}

// Go schedules fn under key. It blocks while the concurrency limit is
// reached. When key is scheduled twice, Cancel reaches the later job only.
func (d *Dispatcher[K]) Go(key K, fn func(ctx context.Context) error) {
	ctx, cancel := context.WithCancel(d.ctx)
	j := &job{cancel: cancel}

	d.mu.Lock()
	d.jobs[key] = j
	d.mu.Unlock()

	d.g.Go(func() error {
		defer d.finish(key, j)

		if err := ctx.Err(); err != nil {
			return d.filter(j, err)
		}
		if err := d.rc.AcquireWorker(ctx); err != nil {
			return d.filter(j, err)
		}
		defer d.rc.ReleaseWorker()

		return d.filter(j, fn(ctx))
	})
}

// Cancel stops the job scheduled under key. It returns false when no such
// job is pending or running.
func (d *Dispatcher[K]) Cancel(key K) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	j, ok := d.jobs[key]
	if !ok {
		return false
	}
	j.canceled = true
	j.cancel()
	return true
}

// Wait blocks until every job finished and returns the first failure.
func (d *Dispatcher[K]) Wait() error {
	return d.g.Wait()
}

func (d *Dispatcher[K]) finish(key K, j *job) {
	j.cancel()
	d.mu.Lock()
	if d.jobs[key] == j {
		delete(d.jobs, key)
	}
	d.mu.Unlock()
}

// filter drops the cancellation error of a job stopped through Cancel.
func (d *Dispatcher[K]) filter(j *job, err error) error {
	if err == nil {
		return nil
	}
	d.mu.Lock()
	canceled := j.canceled
	d.mu.Unlock()
	if canceled && errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
