package db

import (
	"context"
	"database/sql"
	"sync/atomic"
)

type TxFn func(ctx context.Context, tx *sql.Tx) error

const (
	jobPending int32 = iota
	jobRunning
	jobAbandoned
)

type job struct {
	ctx   context.Context
	fn    TxFn
	ch    chan error
	state atomic.Int32
}

// Worker funnels every write through one goroutine so that SQLite sees a
// single writer and each TxFn runs in isolation.
type Worker struct {
	db   *sql.DB
	jobs chan *job
	done chan struct{}
}

func NewWorker(db *sql.DB) *Worker {
	w := &Worker{
		db:   db,
		jobs: make(chan *job, 256),
		done: make(chan struct{}),
	}
	go w.loop()
	return w
}

func (w *Worker) Close() {
	close(w.jobs)
	<-w.done
}

// Do runs fn in its own transaction on the writer goroutine.
//
// A job that has not started when ctx expires is abandoned and never runs, so
// Do returning ctx.Err() means nothing was written.  Once the worker has
// claimed the job, Do waits for the commit or rollback and returns its
// outcome even if ctx has expired in the meantime.
func (w *Worker) Do(ctx context.Context, fn TxFn) error {
	j := &job{ctx: ctx, fn: fn, ch: make(chan error, 1)}

	select {
	case w.jobs <- j:
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case err := <-j.ch:
		return err
	case <-ctx.Done():
		if j.state.CompareAndSwap(jobPending, jobAbandoned) {
			return ctx.Err()
		}
		return <-j.ch
	}
}

func (w *Worker) loop() {
	defer close(w.done)

	for j := range w.jobs {
		if !j.state.CompareAndSwap(jobPending, jobRunning) {
			continue
		}
		j.ch <- w.run(j)
	}
}

func (w *Worker) run(j *job) error {
	// Claimed jobs run to completion; the caller is waiting on the result.
	ctx := context.WithoutCancel(j.ctx)

	tx, err := w.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := j.fn(ctx, tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}
