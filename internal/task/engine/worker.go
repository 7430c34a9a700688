package engine

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"intentd/internal/eventbus"
	"intentd/internal/executor"
	logx "intentd/pkg/logx"
)

func (s *Service) worker(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		t, ok := s.next(ctx)
		if !ok {
			select {
			case <-ctx.Done():
				return
			case <-s.wake:
			}
			continue
		}
		s.execOne(ctx, t)
	}
}

// next pops the queue head and marks it executing.
func (s *Service) next(ctx context.Context) (Task, bool) {
	s.mu.Lock()
	if len(s.queue) == 0 || ctx.Err() != nil {
		s.mu.Unlock()
		return Task{}, false
	}
	id := s.queue[0]
	s.queue = s.queue[1:]
	t := s.tasks[id]
	now := time.Now()
	t.Status = StatusExecuting
	t.StartedAt = &now
	s.inFlight++
	more := len(s.queue) > 0
	cp := t.clone()
	s.publish(eventbus.TaskStarted, now, cp.event())
	s.mu.Unlock()

	if more {
		s.signal(s.wake)
	}
	return cp, true
}

func (s *Service) execOne(ctx context.Context, t Task) {
	start := time.Now()
	res := s.run(ctx, t)
	dur := time.Since(start)
	now := time.Now()

	s.mu.Lock()
	cur, ok := s.tasks[t.ID]
	if !ok {
		// Executing tasks are never removed; keep the books straight anyway.
		s.inFlight--
		s.notifyLocked()
		s.mu.Unlock()
		return
	}
	s.inFlight--

	var (
		typ   string
		delay time.Duration
	)
	switch {
	case res.Success:
		cur.Status = StatusCompleted
		cur.Result = &res
		cur.Error = ""
		cur.CompletedAt = &now
		typ = eventbus.TaskCompleted
	case ctx.Err() != nil:
		// Interrupted by shutdown: not the task's fault, so no retry is spent.
		cur.Status = StatusPending
		cur.StartedAt = nil
		s.queue = append([]string{cur.ID}, s.queue...)
	case cur.RetryCount < cur.MaxRetries:
		cur.RetryCount++
		cur.Status = StatusPending
		cur.StartedAt = nil
		cur.Error = res.Error
		delay = s.backoff(cur.RetryCount)
		s.seq++
		s.retries.push(retryItem{id: cur.ID, readyAt: now.Add(delay), seq: s.seq})
		typ = eventbus.TaskRetry
	default:
		cur.Status = StatusFailed
		cur.Result = &res
		cur.Error = res.Error
		cur.CompletedAt = &now
		typ = eventbus.TaskFailed
	}
	ev := cur.event()
	ev.Duration = dur
	ev.Delay = delay
	s.notifyLocked()
	if typ != "" {
		s.publish(typ, now, ev)
	}
	s.mu.Unlock()

	switch typ {
	case eventbus.TaskCompleted:
		s.completed.Add(1)
		s.log.Debug("task completed", logx.String("id", t.ID), logx.Duration("dur", dur), logx.Int("retries", ev.RetryCount))
	case eventbus.TaskRetry:
		s.retried.Add(1)
		s.signal(s.retryWake)
		s.log.Debug("task retry scheduled", logx.String("id", t.ID), logx.Int("attempt", ev.RetryCount+1), logx.Duration("delay", delay), logx.String("err", res.Error))
	case eventbus.TaskFailed:
		s.failed.Add(1)
		if s.failWarn.Allow() {
			s.log.Warn("task failed", logx.String("id", t.ID), logx.String("err", res.Error), logx.Int("retries", ev.RetryCount), logx.Duration("dur", dur))
		} else {
			s.log.Debug("task failed", logx.String("id", t.ID), logx.String("err", res.Error))
		}
	}
}

// run calls the executor with panic recovery and the optional timeout.
func (s *Service) run(ctx context.Context, t Task) executor.Result {
	if s.exec == nil {
		return executor.Failf("no executor configured")
	}
	if s.cfg.ExecTimeout <= 0 {
		return s.call(ctx, t)
	}

	runCtx, cancel := context.WithTimeout(ctx, s.cfg.ExecTimeout)
	defer cancel()
	done := make(chan executor.Result, 1)
	go func() { done <- s.call(runCtx, t) }()
	select {
	case res := <-done:
		return res
	case <-runCtx.Done():
		if ctx.Err() != nil {
			return executor.Fail(ctx.Err())
		}
		// The executor goroutine is abandoned; its result lands in the buffer.
		s.timedOut.Add(1)
		return executor.Fail(fmt.Errorf("%w after %s", errExecTimeout, s.cfg.ExecTimeout))
	}
}

func (s *Service) call(ctx context.Context, t Task) (res executor.Result) {
	defer func() {
		if r := recover(); r != nil {
			s.panics.Add(1)
			s.log.Error("executor panic", logx.String("id", t.ID), logx.Any("panic", r), logx.String("stack", string(debug.Stack())))
			res = executor.Failf("executor panic: %v", r)
		}
	}()
	res = s.exec.Execute(ctx, t.Intent, t.Classification)
	if !res.Success && res.Error == "" {
		res.Error = "executor reported failure"
	}
	return res
}

// backoff is BaseDelay * 2^retry, capped by MaxDelay when set.
func (s *Service) backoff(retry int) time.Duration {
	d := s.cfg.BaseDelay
	for i := 0; i < retry; i++ {
		d *= 2
		if s.cfg.MaxDelay > 0 && d >= s.cfg.MaxDelay {
			return s.cfg.MaxDelay
		}
	}
	return d
}

// retryLoop moves tasks whose backoff elapsed to the front of the queue.
func (s *Service) retryLoop(ctx context.Context) {
	tmr := time.NewTimer(time.Hour)
	defer tmr.Stop()
	for {
		s.mu.Lock()
		moved, next := s.promoteDueLocked(time.Now())
		if moved > 0 {
			s.notifyLocked()
		}
		s.mu.Unlock()
		if moved > 0 {
			s.signal(s.wake)
		}

		var fire <-chan time.Time
		if !next.IsZero() {
			if !tmr.Stop() {
				select {
				case <-tmr.C:
				default:
				}
			}
			tmr.Reset(time.Until(next))
			fire = tmr.C
		}
		select {
		case <-ctx.Done():
			return
		case <-s.retryWake:
		case <-fire:
		}
	}
}
