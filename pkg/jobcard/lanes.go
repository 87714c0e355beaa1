package jobcard

import (
	"context"
	"sync"
	"sync/atomic"
)

const (
	jobQueued int32 = iota
	jobRunning
	jobCancelled
)

type laneJob struct {
	ctx   context.Context
	fn    func(context.Context)
	state atomic.Int32
	done  chan struct{}
}

// lanes runs submitted work one job at a time per job card, in submission
// order. Different job cards run concurrently.
type lanes struct {
	ctx    context.Context
	cancel context.CancelFunc
	logger Logger
	depth  int
	queues map[string]chan *laneJob
	closed bool
	mu     sync.Mutex
	wg     sync.WaitGroup
}

func newLanes(depth int, logger Logger) *lanes {
	if depth <= 0 {
		depth = 16
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &lanes{
		ctx:    ctx,
		cancel: cancel,
		logger: logger,
		depth:  depth,
		queues: make(map[string]chan *laneJob),
	}
}

// Do queues fn on the lane of id and waits for it. If ctx ends before fn
// starts, fn is skipped and ctx.Err() is returned; once fn has started Do
// waits for it to finish.
func (l *lanes) Do(ctx context.Context, id string, fn func(context.Context)) error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return ErrClosed
	}
	q, ok := l.queues[id]
	if !ok {
		q = make(chan *laneJob, l.depth)
		l.queues[id] = q
		l.wg.Add(1)
		go l.worker(id, q)
	}
	l.mu.Unlock()

	job := &laneJob{ctx: ctx, fn: fn, done: make(chan struct{})}
	select {
	case q <- job:
	case <-ctx.Done():
		return ctx.Err()
	case <-l.ctx.Done():
		return ErrClosed
	}

	select {
	case <-job.done:
		return nil
	case <-ctx.Done():
		if job.state.CompareAndSwap(jobQueued, jobCancelled) {
			return ctx.Err()
		}
		<-job.done
		return nil
	case <-l.ctx.Done():
		if job.state.CompareAndSwap(jobQueued, jobCancelled) {
			return ErrClosed
		}
		<-job.done
		return nil
	}
}

func (l *lanes) worker(id string, q <-chan *laneJob) {
	defer l.wg.Done()
	for {
		select {
		case <-l.ctx.Done():
			return
		case job := <-q:
			if !job.state.CompareAndSwap(jobQueued, jobRunning) {
				l.logger.Infof("Skipping cancelled transition on job card %s", id)
				close(job.done)
				continue
			}
			job.fn(job.ctx)
			close(job.done)
		}
	}
}

// Close stops accepting work and waits for running jobs to finish.
func (l *lanes) Close() {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return
	}
	l.closed = true
	l.mu.Unlock()
	l.cancel()
	l.wg.Wait()
}
