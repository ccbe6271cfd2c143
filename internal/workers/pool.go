// Package workers provides the bounded worker pool shared by a whole scan.
// Jobs are queued without limit and started in submission order, while at most
// Size of them execute at any moment. Jobs may submit further jobs and wait for
// them through a Group without exhausting the pool.
package workers

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/atomic"
	"golang.org/x/sync/semaphore"

	"github.com/anstrom/netscanner/internal/errors"
	"github.com/anstrom/netscanner/internal/logging"
	"github.com/anstrom/netscanner/internal/metrics"
)

// Job represents a unit of work to be executed by the pool.
type Job interface {
	// Execute performs the job and returns an error if it fails.
	Execute(ctx context.Context) error
	// ID returns a unique identifier for the job.
	ID() string
	// Type returns the job type for metrics and logging.
	Type() string
}

// completer is implemented by jobs that must be notified once the pool is done
// with them, whether they ran or were dropped.
type completer interface {
	complete()
}

// Config holds configuration for the worker pool.
type Config struct {
	// Size is the maximum number of jobs executing at once.
	Size int
	// ShutdownTimeout is the maximum time to wait for queued work on Shutdown.
	ShutdownTimeout time.Duration
	// Metrics receives pool occupancy updates. Nil disables them.
	Metrics *metrics.PrometheusMetrics
}

// DefaultConfig returns a default worker pool configuration.
func DefaultConfig() Config {
	return Config{
		Size:            512,
		ShutdownTimeout: 30 * time.Second,
	}
}

// Stats is a point-in-time view of the pool.
type Stats struct {
	Active    int64
	Queued    int64
	Completed int64
	Failed    int64
	Peak      int64
	// PeakQueued is the longest the queue has been.
	PeakQueued int64
}

// Pool runs jobs with bounded concurrency.
type Pool struct {
	config Config
	sem    *semaphore.Weighted
	ctx    context.Context
	cancel context.CancelFunc

	mu         sync.Mutex
	cond       *sync.Cond
	queue      []Job
	stopping   bool
	pending    int
	peakQueued int
	idle       chan struct{}

	active    *atomic.Int64
	peak      *atomic.Int64
	completed *atomic.Int64
	failed    *atomic.Int64
	closed    *atomic.Bool

	startOnce  sync.Once
	dispatched chan struct{}
}

// New creates a new worker pool with the given configuration. A non-positive
// Size is treated as 1.
func New(config Config) *Pool {
	if config.Size < 1 {
		config.Size = 1
	}
	if config.ShutdownTimeout <= 0 {
		config.ShutdownTimeout = DefaultConfig().ShutdownTimeout
	}

	ctx, cancel := context.WithCancel(context.Background())
	idle := make(chan struct{})
	close(idle)

	pool := &Pool{
		config:     config,
		sem:        semaphore.NewWeighted(int64(config.Size)),
		ctx:        ctx,
		cancel:     cancel,
		idle:       idle,
		active:     atomic.NewInt64(0),
		peak:       atomic.NewInt64(0),
		completed:  atomic.NewInt64(0),
		failed:     atomic.NewInt64(0),
		closed:     atomic.NewBool(false),
		dispatched: make(chan struct{}),
	}
	pool.cond = sync.NewCond(&pool.mu)
	return pool
}

// Size returns the pool capacity.
func (p *Pool) Size() int {
	return p.config.Size
}

// Start begins dispatching queued jobs.
func (p *Pool) Start() {
	p.startOnce.Do(func() {
		logging.Debug("Starting worker pool", "size", p.config.Size)
		go p.dispatch()
	})
}

// Submit enqueues a job. It never blocks; the queue is unbounded.
func (p *Pool) Submit(job Job) error {
	if p.closed.Load() {
		return errors.NewScanError(errors.CodePoolClosed, "worker pool is shut down").
			WithContext("job_id", job.ID())
	}

	p.mu.Lock()
	if p.pending == 0 {
		p.idle = make(chan struct{})
	}
	p.pending++
	p.queue = append(p.queue, job)
	p.peakQueued = max(p.peakQueued, len(p.queue))
	p.mu.Unlock()
	p.cond.Signal()

	if m := p.config.Metrics; m != nil {
		m.AddPoolQueued(1)
	}
	return nil
}

// Join blocks until every submitted job, including jobs submitted by other
// jobs, has finished, or ctx is done.
func (p *Pool) Join(ctx context.Context) error {
	p.mu.Lock()
	idle := p.idle
	p.mu.Unlock()

	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Shutdown stops accepting jobs, waits up to ShutdownTimeout for outstanding
// work, then cancels whatever is left.
func (p *Pool) Shutdown() error {
	if !p.closed.CompareAndSwap(false, true) {
		return nil
	}
	p.Start()

	ctx, cancel := context.WithTimeout(context.Background(), p.config.ShutdownTimeout)
	defer cancel()

	var err error
	if joinErr := p.Join(ctx); joinErr != nil {
		logging.Warn("Worker pool shutdown timeout, cancelling remaining jobs")
		err = errors.WrapScanError(errors.CodeTimeout, "worker pool shutdown timed out", joinErr)
	}

	p.cancel()
	p.mu.Lock()
	p.stopping = true
	p.mu.Unlock()
	p.cond.Broadcast()
	<-p.dispatched

	logging.Debug("Worker pool shutdown completed",
		"completed", p.completed.Load(),
		"failed", p.failed.Load())
	return err
}

// Stats returns current pool counters.
func (p *Pool) Stats() Stats {
	p.mu.Lock()
	queued := int64(len(p.queue))
	peakQueued := int64(p.peakQueued)
	p.mu.Unlock()

	return Stats{
		Active:     p.active.Load(),
		Queued:     queued,
		Completed:  p.completed.Load(),
		Failed:     p.failed.Load(),
		Peak:       p.peak.Load(),
		PeakQueued: peakQueued,
	}
}

// dispatch starts queued jobs in FIFO order as slots become free.
func (p *Pool) dispatch() {
	defer close(p.dispatched)

	for {
		job, ok := p.next()
		if !ok {
			return
		}
		if err := p.sem.Acquire(p.ctx, 1); err != nil {
			p.finish(job, err, 0)
			continue
		}
		p.trackActive(1)
		go p.run(job)
	}
}

func (p *Pool) next() (Job, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for len(p.queue) == 0 && !p.stopping {
		p.cond.Wait()
	}
	if len(p.queue) == 0 {
		return nil, false
	}

	job := p.queue[0]
	p.queue[0] = nil
	p.queue = p.queue[1:]

	if m := p.config.Metrics; m != nil {
		m.AddPoolQueued(-1)
	}
	return job, true
}

func (p *Pool) run(job Job) {
	s := &slot{pool: p, held: true}
	ctx := context.WithValue(p.ctx, slotKey{}, s)

	start := time.Now()
	err := job.Execute(ctx)
	duration := time.Since(start)

	s.release()
	p.finish(job, err, duration)
}

func (p *Pool) finish(job Job, err error, duration time.Duration) {
	status := "success"
	if err != nil {
		status = "error"
		p.failed.Inc()
		logging.Debug("Job failed",
			"job_id", job.ID(),
			"job_type", job.Type(),
			"error", err)
	} else {
		p.completed.Inc()
		logging.Debug("Job completed",
			"job_id", job.ID(),
			"job_type", job.Type(),
			"duration", duration)
	}
	if m := p.config.Metrics; m != nil {
		m.IncrementJobsCompleted(job.Type(), status)
	}

	if c, ok := job.(completer); ok {
		c.complete()
	}

	p.mu.Lock()
	p.pending--
	if p.pending == 0 {
		close(p.idle)
	}
	p.mu.Unlock()
}

func (p *Pool) trackActive(delta int64) {
	n := p.active.Add(delta)
	for {
		peak := p.peak.Load()
		if n <= peak || p.peak.CompareAndSwap(peak, n) {
			break
		}
	}
	if m := p.config.Metrics; m != nil {
		m.AddPoolActive(int(delta))
	}
}

type slotKey struct{}

// slot is the execution permit held by a running job.
type slot struct {
	pool *Pool
	mu   sync.Mutex
	held bool
}

func (s *slot) release() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.held {
		return
	}
	s.held = false
	s.pool.trackActive(-1)
	s.pool.sem.Release(1)
}

func (s *slot) reacquire() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.held {
		return
	}
	// Background: the job must get its slot back before it can return.
	_ = s.pool.sem.Acquire(context.Background(), 1)
	s.held = true
	s.pool.trackActive(1)
}

// JobContext derives a context from ctx that is also canceled when jobCtx is,
// and that carries the execution slot of the pool job running under jobCtx so
// a Group.Wait on the result lends that slot back. Callers must call the
// returned CancelFunc once the job is done.
func JobContext(ctx, jobCtx context.Context) (context.Context, context.CancelFunc) {
	merged, cancel := context.WithCancelCause(ctx)
	stop := context.AfterFunc(jobCtx, func() {
		cancel(context.Cause(jobCtx))
	})
	if s := slotFrom(jobCtx); s != nil {
		merged = context.WithValue(merged, slotKey{}, s)
	}
	return merged, func() {
		stop()
		cancel(context.Canceled)
	}
}

func slotFrom(ctx context.Context) *slot {
	s, _ := ctx.Value(slotKey{}).(*slot)
	return s
}

// Group tracks a set of jobs submitted together so a producer can wait for
// exactly those jobs.
type Group struct {
	pool   *Pool
	wg     sync.WaitGroup
	errs   *atomic.Int64
	window *semaphore.Weighted // nil when unbounded
}

// NewGroup creates an empty job group on the pool.
func (p *Pool) NewGroup() *Group {
	return &Group{pool: p, errs: atomic.NewInt64(0)}
}

// NewLimitedGroup creates a group that keeps at most limit members unfinished.
// A non-positive limit means no bound.
func (p *Pool) NewLimitedGroup(limit int) *Group {
	g := p.NewGroup()
	if limit > 0 {
		g.window = semaphore.NewWeighted(int64(limit))
	}
	return g
}

// Submit enqueues job as a member of the group. On a limited group it may
// block; prefer SubmitContext from inside a pool job.
func (g *Group) Submit(job Job) error {
	return g.SubmitContext(context.Background(), job)
}

// SubmitContext enqueues job as a member of the group. On a limited group it
// blocks while limit members are unfinished; the caller's slot is lent back to
// the pool meanwhile, as in Wait.
func (g *Group) SubmitContext(ctx context.Context, job Job) error {
	if g.window != nil {
		if err := g.acquireWindow(ctx); err != nil {
			return err
		}
	}

	g.wg.Add(1)
	if err := g.pool.Submit(&groupJob{Job: job, group: g}); err != nil {
		g.wg.Done()
		g.releaseWindow()
		return err
	}
	return nil
}

func (g *Group) acquireWindow(ctx context.Context) error {
	if g.window.TryAcquire(1) {
		return nil
	}
	if s := slotFrom(ctx); s != nil && s.pool == g.pool {
		s.release()
		defer s.reacquire()
	}
	return g.window.Acquire(ctx, 1)
}

func (g *Group) releaseWindow() {
	if g.window != nil {
		g.window.Release(1)
	}
}

// Failed returns how many member jobs returned an error or were dropped.
func (g *Group) Failed() int64 {
	return g.errs.Load()
}

// Wait blocks until every member job has finished or ctx is done. When called
// from inside a pool job, the caller's slot is lent back to the pool for the
// duration of the wait.
func (g *Group) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		g.wg.Wait()
		close(done)
	}()

	if s := slotFrom(ctx); s != nil && s.pool == g.pool {
		s.release()
		defer s.reacquire()
	}

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

type groupJob struct {
	Job
	group     *Group
	succeeded bool
}

func (j *groupJob) Execute(ctx context.Context) error {
	err := j.Job.Execute(ctx)
	j.succeeded = err == nil
	return err
}

func (j *groupJob) complete() {
	if !j.succeeded {
		j.group.errs.Inc()
	}
	j.group.releaseWindow()
	j.group.wg.Done()
}

// FuncJob adapts a function to the Job interface.
type FuncJob struct {
	id      string
	jobType string
	fn      func(ctx context.Context) error
}

// NewFuncJob creates a job running fn.
func NewFuncJob(id, jobType string, fn func(ctx context.Context) error) *FuncJob {
	return &FuncJob{id: id, jobType: jobType, fn: fn}
}

// Execute implements the Job interface.
func (j *FuncJob) Execute(ctx context.Context) error {
	return j.fn(ctx)
}

// ID implements the Job interface.
func (j *FuncJob) ID() string {
	return j.id
}

// Type implements the Job interface.
func (j *FuncJob) Type() string {
	return j.jobType
}

// String implements fmt.Stringer.
func (j *FuncJob) String() string {
	return fmt.Sprintf("%s/%s", j.jobType, j.id)
}
