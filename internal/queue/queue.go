// Package queue serializes submissions per requester. Each requester owns an
// independent FIFO line; distinct requesters run fully in parallel.
package queue

import (
	"context"
	"fmt"
	"sync"

	"photobot/internal/infra"
)

// Job is one unit of submission work.
type Job func(ctx context.Context) error

// Dispatcher maintains a registry of per-requester lines. The first enqueue on
// an idle requester starts a drain goroutine; the goroutine exits once the
// line is empty, so a later enqueue starts a fresh one. At most one job per
// requester executes at any instant.
type Dispatcher struct {
	mu    sync.Mutex
	lines map[int64]*line

	logger  infra.Logger
	onError func(requesterID int64, err error)

	wg sync.WaitGroup
}

type line struct {
	jobs     []Job
	draining bool
}

// New creates a dispatcher. onError is called once per failed job, after the
// failure has been logged; it may be nil.
func New(logger infra.Logger, onError func(requesterID int64, err error)) *Dispatcher {
	return &Dispatcher{
		lines:   make(map[int64]*line),
		logger:  logger,
		onError: onError,
	}
}

// Enqueue appends the job to the requester's line and starts a drain goroutine
// if none is running for that requester.
func (d *Dispatcher) Enqueue(ctx context.Context, requesterID int64, job Job) {
	d.mu.Lock()
	ln, ok := d.lines[requesterID]
	if !ok {
		ln = &line{}
		d.lines[requesterID] = ln
	}
	ln.jobs = append(ln.jobs, job)
	depth := len(ln.jobs)
	start := !ln.draining
	if start {
		ln.draining = true
	}
	d.mu.Unlock()

	d.logger.Debug().Int64("requester_id", requesterID).Int("depth", depth).Msg("queue: job enqueued")

	if start {
		d.wg.Add(1)
		go d.drain(ctx, requesterID)
	}
}

// Pending reports the number of jobs still queued for the requester.
func (d *Dispatcher) Pending(requesterID int64) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	ln, ok := d.lines[requesterID]
	if !ok {
		return 0
	}
	return len(ln.jobs)
}

// Wait blocks until every drain goroutine started so far has exited. Intended
// for shutdown and tests.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

func (d *Dispatcher) drain(ctx context.Context, requesterID int64) {
	defer d.wg.Done()
	for {
		d.mu.Lock()
		ln := d.lines[requesterID]
		if ln == nil || len(ln.jobs) == 0 {
			// Line exhausted: drop the registry entry so the next enqueue
			// starts a fresh worker.
			delete(d.lines, requesterID)
			d.mu.Unlock()
			return
		}
		job := ln.jobs[0]
		ln.jobs = ln.jobs[1:]
		d.mu.Unlock()

		if err := d.run(ctx, job); err != nil {
			d.logger.Error().Err(err).Int64("requester_id", requesterID).Msg("queue: job failed")
			if d.onError != nil {
				d.onError(requesterID, err)
			}
		}
	}
}

// run executes one job with a panic boundary so a misbehaving job cannot take
// the drain goroutine down with it.
func (d *Dispatcher) run(ctx context.Context, job Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job panic: %v", r)
		}
	}()
	return job(ctx)
}
