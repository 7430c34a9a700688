package engine

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"intentd/internal/classify"
	"intentd/internal/eventbus"
	"intentd/internal/executor"
	"intentd/internal/intent"
	rtsup "intentd/internal/runtime/supervisor"
	logx "intentd/pkg/logx"
)

const warnThrottleEvery = 5 * time.Second

// Service is the priority scheduler. One mutex guards the task table, the
// ordered queue and the retry heap; only executor calls run outside it.
type Service struct {
	cfg  Config
	exec executor.Executor
	log  logx.Logger
	bus  eventbus.Bus

	mu       sync.Mutex
	tasks    map[string]*Task
	queue    []string
	retries  retryHeap
	inFlight int
	seq      uint64
	changed  chan struct{}

	sup     *rtsup.Supervisor
	running bool

	wake      chan struct{}
	retryWake chan struct{}

	failWarn *rate.Limiter

	queued    atomic.Uint64
	completed atomic.Uint64
	failed    atomic.Uint64
	retried   atomic.Uint64
	cancelled atomic.Uint64
	panics    atomic.Uint64
	timedOut  atomic.Uint64
}

// New builds a stopped scheduler. Tasks may be added before Start; they
// wait in the queue until workers run.
func New(cfg Config, exec executor.Executor, log logx.Logger, bus eventbus.Bus) *Service {
	return &Service{
		cfg:       cfg.withDefaults(),
		exec:      exec,
		log:       log,
		bus:       bus,
		tasks:     map[string]*Task{},
		changed:   make(chan struct{}),
		wake:      make(chan struct{}, 1),
		retryWake: make(chan struct{}, 1),
		failWarn:  rate.NewLimiter(rate.Every(warnThrottleEvery), 1),
	}
}

func (s *Service) Config() Config { return s.cfg }

// Start launches the workers and the retry timer. It is idempotent.
func (s *Service) Start(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.sup = rtsup.New(ctx,
		rtsup.WithLogger(s.log),
		// A misbehaving worker is restarted, never allowed to take the process down.
		rtsup.WithCancelOnError(false),
	)
	s.running = true
	sup := s.sup
	workers := s.cfg.Concurrency
	s.mu.Unlock()

	for i := 0; i < workers; i++ {
		idx := i
		sup.GoRestart(fmt.Sprintf("worker.%d", idx), func(c context.Context) error {
			s.worker(c)
			return c.Err()
		})
	}
	sup.GoRestart("retry", func(c context.Context) error {
		s.retryLoop(c)
		return c.Err()
	})
	s.signal(s.wake)
	s.signal(s.retryWake)

	s.log.Info("task engine started", logx.Int("workers", workers), logx.Duration("base_delay", s.cfg.BaseDelay))
}

// Stop cancels the workers and waits for them, bounded by ctx. Executing
// tasks interrupted by shutdown go back to the front of the queue.
func (s *Service) Stop(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	s.mu.Lock()
	sup := s.sup
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	s.sup = nil
	s.notifyLocked()
	s.mu.Unlock()

	sup.Cancel()
	if err := sup.Wait(ctx); err != nil {
		s.log.Warn("task engine stop timed out", logx.Err(err))
		return err
	}
	s.log.Info("task engine stopped")
	return nil
}

// AddTask registers a pending task and queues it by priority.
func (s *Service) AddTask(in intent.Intent, c classify.Classification) string {
	now := time.Now()
	t := &Task{
		ID:             newTaskID(),
		Intent:         in.Clone(),
		Classification: c,
		Status:         StatusPending,
		CreatedAt:      now,
		MaxRetries:     c.RiskLevel.MaxRetries(),
	}

	s.mu.Lock()
	s.seq++
	t.seq = s.seq
	s.tasks[t.ID] = t
	s.insertLocked(t.ID)
	s.notifyLocked()
	s.publish(eventbus.TaskQueued, now, t.event())
	qlen := len(s.queue)
	s.mu.Unlock()

	s.queued.Add(1)
	s.signal(s.wake)
	s.log.Debug("task queued", logx.String("id", t.ID), logx.String("priority", string(c.Priority)), logx.Int("queue_len", qlen))
	return t.ID
}

// CancelTask cancels a pending task, including one waiting out a retry
// delay. It reports false, changing nothing, for any other state.
func (s *Service) CancelTask(id string) bool {
	s.mu.Lock()
	t, ok := s.tasks[id]
	if !ok || t.Status != StatusPending {
		s.mu.Unlock()
		return false
	}
	if !s.dequeueLocked(id) {
		s.unretryLocked(id)
	}
	now := time.Now()
	t.Status = StatusCancelled
	t.CompletedAt = &now
	s.notifyLocked()
	s.publish(eventbus.TaskCancelled, now, t.event())
	s.mu.Unlock()

	s.cancelled.Add(1)
	return true
}

func (s *Service) GetTask(id string) (Task, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[id]
	if !ok {
		return Task{}, false
	}
	return t.clone(), true
}

// GetAllTasks returns every task, newest first.
func (s *Service) GetAllTasks() []Task {
	s.mu.Lock()
	out := make([]Task, 0, len(s.tasks))
	for _, t := range s.tasks {
		out = append(out, t.clone())
	}
	s.mu.Unlock()
	slices.SortFunc(out, func(a, b Task) int { return compareSeq(b.seq, a.seq) })
	return out
}

func (s *Service) GetQueueStatus() QueueStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	var qs QueueStatus
	for _, t := range s.tasks {
		switch t.Status {
		case StatusPending:
			qs.Pending++
		case StatusExecuting:
			qs.Executing++
		case StatusCompleted:
			qs.Completed++
		case StatusFailed:
			qs.Failed++
		case StatusCancelled:
			qs.Cancelled++
		}
	}
	qs.Total = len(s.tasks)
	return qs
}

// ClearCompletedTasks drops completed and failed tasks and reports how many.
func (s *Service) ClearCompletedTasks() int { return len(s.ClearCompleted()) }

// ClearCompleted is ClearCompletedTasks returning the removed tasks, oldest first.
func (s *Service) ClearCompleted() []Task {
	s.mu.Lock()
	var ids []string
	for id, t := range s.tasks {
		if t.Status == StatusCompleted || t.Status == StatusFailed {
			ids = append(ids, id)
		}
	}
	out := s.removeLocked(ids)
	s.mu.Unlock()
	return out
}

// Terminal returns copies of all terminal tasks ordered by completion time,
// oldest first.
func (s *Service) Terminal() []Task {
	s.mu.Lock()
	var out []Task
	for _, t := range s.tasks {
		if t.Status.Terminal() {
			out = append(out, t.clone())
		}
	}
	s.mu.Unlock()
	slices.SortFunc(out, func(a, b Task) int {
		if c := a.CompletedAt.Compare(*b.CompletedAt); c != 0 {
			return c
		}
		return compareSeq(a.seq, b.seq)
	})
	return out
}

// RemoveTerminal deletes the named tasks that are terminal. Pending and
// executing tasks are never removed.
func (s *Service) RemoveTerminal(ids ...string) []Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	keep := ids[:0:0]
	for _, id := range ids {
		if t, ok := s.tasks[id]; ok && t.Status.Terminal() {
			keep = append(keep, id)
		}
	}
	return s.removeLocked(keep)
}

func (s *Service) removeLocked(ids []string) []Task {
	out := make([]Task, 0, len(ids))
	for _, id := range ids {
		t, ok := s.tasks[id]
		if !ok {
			continue
		}
		out = append(out, t.clone())
		delete(s.tasks, id)
	}
	slices.SortFunc(out, func(a, b Task) int { return compareSeq(a.seq, b.seq) })
	return out
}

// ProcessTasks blocks until nothing is queued, waiting on a retry or
// executing, then returns one result per task in creation order.
func (s *Service) ProcessTasks(ctx context.Context, timeout time.Duration) ([]TaskResult, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	var deadline <-chan time.Time
	if timeout > 0 {
		tmr := time.NewTimer(timeout)
		defer tmr.Stop()
		deadline = tmr.C
	}
	for {
		s.mu.Lock()
		if s.idleLocked() {
			res := s.resultsLocked()
			s.mu.Unlock()
			return res, nil
		}
		if !s.running {
			s.mu.Unlock()
			return nil, ErrNotStarted
		}
		ch := s.changed
		s.mu.Unlock()

		select {
		case <-ch:
		case <-deadline:
			return nil, fmt.Errorf("%w (%s)", ErrProcessTimeout, timeout)
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

func (s *Service) idleLocked() bool {
	return len(s.queue) == 0 && s.retries.Len() == 0 && s.inFlight == 0
}

func (s *Service) resultsLocked() []TaskResult {
	ts := make([]*Task, 0, len(s.tasks))
	for _, t := range s.tasks {
		ts = append(ts, t)
	}
	slices.SortFunc(ts, func(a, b *Task) int { return compareSeq(a.seq, b.seq) })
	out := make([]TaskResult, 0, len(ts))
	for _, t := range ts {
		r := TaskResult{ID: t.ID, Status: t.Status, Success: t.Status == StatusCompleted, Error: t.Error}
		if t.Result != nil && r.Success {
			r.Data = t.Result.Data
		}
		if t.Status == StatusCancelled && r.Error == "" {
			r.Error = "cancelled"
		}
		out = append(out, r)
	}
	return out
}

func (s *Service) Snapshot() Snapshot {
	s.mu.Lock()
	snap := Snapshot{
		Running:     s.running,
		Concurrency: s.cfg.Concurrency,
		QueueLen:    len(s.queue),
		InFlight:    s.inFlight,
		RetryWait:   s.retries.Len(),
		Tasks:       len(s.tasks),
		BaseDelay:   s.cfg.BaseDelay,
		ExecTimeout: s.cfg.ExecTimeout,
	}
	s.mu.Unlock()
	snap.Queued = s.queued.Load()
	snap.Completed = s.completed.Load()
	snap.Failed = s.failed.Load()
	snap.Retried = s.retried.Load()
	snap.Cancelled = s.cancelled.Load()
	snap.Panics = s.panics.Load()
	snap.TimedOut = s.timedOut.Load()
	return snap
}

// notifyLocked wakes ProcessTasks waiters.
func (s *Service) notifyLocked() {
	close(s.changed)
	s.changed = make(chan struct{})
}

func (s *Service) signal(ch chan struct{}) {
	select {
	case ch <- struct{}{}:
	default:
	}
}

// publish is called with mu held so subscribers see transitions in order.
// Bus delivery never blocks.
func (s *Service) publish(typ string, at time.Time, ev TaskEvent) {
	if s.bus == nil {
		return
	}
	s.bus.Publish(eventbus.Event{Type: typ, Time: at, Data: ev})
}

func (t *Task) event() TaskEvent {
	return TaskEvent{ID: t.ID, Status: t.Status, Priority: string(t.Classification.Priority), RetryCount: t.RetryCount, Error: t.Error}
}

func newTaskID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

func compareSeq(a, b uint64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}
