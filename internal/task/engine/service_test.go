package engine

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"intentd/internal/classify"
	"intentd/internal/eventbus"
	"intentd/internal/executor"
	"intentd/internal/intent"
	logx "intentd/pkg/logx"
)

func job(action string) intent.Intent {
	return intent.Intent{Domain: intent.DomainWeb, Category: intent.CategoryBrowsing, Action: action, Parameters: map[string]any{}}
}

func class(p classify.Priority, r classify.Risk) classify.Classification {
	return classify.Classification{Domain: intent.DomainWeb, Priority: p, RiskLevel: r}
}

// recorder is an executor that logs dispatch order and can be told to
// fail a given action a number of times.
type recorder struct {
	mu     sync.Mutex
	order  []string
	fails  map[string]int
	sleeps map[string]time.Duration
}

func newRecorder() *recorder {
	return &recorder{fails: map[string]int{}, sleeps: map[string]time.Duration{}}
}

func (r *recorder) Execute(_ context.Context, in intent.Intent, _ classify.Classification) executor.Result {
	r.mu.Lock()
	r.order = append(r.order, in.Action)
	fail := r.fails[in.Action] > 0
	if fail {
		r.fails[in.Action]--
	}
	sleep := r.sleeps[in.Action]
	r.mu.Unlock()
	if sleep > 0 {
		time.Sleep(sleep)
	}
	if fail {
		return executor.Failf("%s failed", in.Action)
	}
	return executor.OK(in.Action)
}

func (r *recorder) calls() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.order...)
}

func newService(t *testing.T, cfg Config, ex executor.Executor, bus eventbus.Bus) *Service {
	t.Helper()
	if cfg.BaseDelay == 0 {
		cfg.BaseDelay = time.Millisecond
	}
	s := New(cfg, ex, logx.Nop(), bus)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.Stop(ctx)
	})
	return s
}

func TestDispatchOrderFollowsPriority(t *testing.T) {
	t.Parallel()
	rec := newRecorder()
	s := newService(t, Config{Concurrency: 1}, rec, nil)

	s.AddTask(job("low"), class(classify.PriorityLow, classify.RiskSafe))
	s.AddTask(job("high"), class(classify.PriorityHigh, classify.RiskSafe))
	s.AddTask(job("medium"), class(classify.PriorityMedium, classify.RiskSafe))
	s.AddTask(job("high2"), class(classify.PriorityHigh, classify.RiskSafe))

	s.Start(context.Background())
	res, err := s.ProcessTasks(context.Background(), 5*time.Second)
	require.NoError(t, err)
	require.Len(t, res, 4)
	require.Equal(t, []string{"high", "high2", "medium", "low"}, rec.calls())
	for _, r := range res {
		require.True(t, r.Success, r.ID)
		require.Equal(t, StatusCompleted, r.Status)
	}
}

func TestRetryThenSucceed(t *testing.T) {
	t.Parallel()
	rec := newRecorder()
	rec.fails["flaky"] = 2
	s := newService(t, Config{Concurrency: 3}, rec, nil)
	s.Start(context.Background())

	id := s.AddTask(job("flaky"), class(classify.PriorityMedium, classify.RiskSafe))
	res, err := s.ProcessTasks(context.Background(), 5*time.Second)
	require.NoError(t, err)
	require.Len(t, res, 1)
	require.True(t, res[0].Success)
	require.Equal(t, "flaky", res[0].Data)

	task, ok := s.GetTask(id)
	require.True(t, ok)
	require.Equal(t, StatusCompleted, task.Status)
	require.Equal(t, 2, task.RetryCount)
	require.Equal(t, 3, task.MaxRetries)
	require.Empty(t, task.Error)
	require.NotNil(t, task.CompletedAt)
}

func TestRetriesExhausted(t *testing.T) {
	t.Parallel()
	tests := []struct {
		risk classify.Risk
		max  int
	}{
		{classify.RiskSafe, 3},
		{classify.RiskModerate, 2},
		{classify.RiskHigh, 1},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(string(tt.risk), func(t *testing.T) {
			t.Parallel()
			rec := newRecorder()
			rec.fails["broken"] = 100
			s := newService(t, Config{Concurrency: 2}, rec, nil)
			s.Start(context.Background())

			id := s.AddTask(job("broken"), class(classify.PriorityLow, tt.risk))
			res, err := s.ProcessTasks(context.Background(), 5*time.Second)
			require.NoError(t, err)
			require.False(t, res[0].Success)
			require.Equal(t, "broken failed", res[0].Error)

			task, _ := s.GetTask(id)
			require.Equal(t, StatusFailed, task.Status)
			require.Equal(t, tt.max, task.MaxRetries)
			require.Equal(t, tt.max, task.RetryCount)
			require.Len(t, rec.calls(), tt.max+1)
		})
	}
}

func TestRetriedTaskJumpsAheadOfQueue(t *testing.T) {
	t.Parallel()
	rec := newRecorder()
	rec.fails["a"] = 1
	rec.sleeps["b"] = 50 * time.Millisecond
	s := newService(t, Config{Concurrency: 1, BaseDelay: time.Millisecond}, rec, nil)

	s.AddTask(job("a"), class(classify.PriorityHigh, classify.RiskSafe))
	s.AddTask(job("b"), class(classify.PriorityLow, classify.RiskSafe))
	s.AddTask(job("c"), class(classify.PriorityLow, classify.RiskSafe))
	s.Start(context.Background())

	_, err := s.ProcessTasks(context.Background(), 5*time.Second)
	require.NoError(t, err)
	require.Equal(t, []string{"a", "b", "a", "c"}, rec.calls())
}

func TestCancelTask(t *testing.T) {
	t.Parallel()
	started := make(chan struct{}, 1)
	release := make(chan struct{})
	ex := executor.Func(func(ctx context.Context, in intent.Intent, _ classify.Classification) executor.Result {
		if in.Action == "block" {
			started <- struct{}{}
			<-release
		}
		return executor.OK(nil)
	})
	s := newService(t, Config{Concurrency: 1}, ex, nil)

	blocking := s.AddTask(job("block"), class(classify.PriorityHigh, classify.RiskSafe))
	waiting := s.AddTask(job("wait"), class(classify.PriorityLow, classify.RiskSafe))
	done := s.AddTask(job("done"), class(classify.PriorityLow, classify.RiskSafe))

	require.True(t, s.CancelTask(done))
	require.False(t, s.CancelTask(done), "cancelled is terminal")
	require.False(t, s.CancelTask("missing"))

	s.Start(context.Background())
	<-started

	require.False(t, s.CancelTask(blocking))
	task, _ := s.GetTask(blocking)
	require.Equal(t, StatusExecuting, task.Status)

	require.True(t, s.CancelTask(waiting))
	close(release)

	res, err := s.ProcessTasks(context.Background(), 5*time.Second)
	require.NoError(t, err)
	require.Len(t, res, 3)
	require.Equal(t, StatusCompleted, res[0].Status)
	require.Equal(t, StatusCancelled, res[1].Status)
	require.Equal(t, "cancelled", res[1].Error)

	require.False(t, s.CancelTask(blocking), "completed is terminal")
	task, _ = s.GetTask(blocking)
	require.Equal(t, StatusCompleted, task.Status)
}

func TestCancelWhileWaitingForRetry(t *testing.T) {
	t.Parallel()
	bus := eventbus.New()
	retries, unsub := bus.Subscribe(4, eventbus.TaskRetry)
	defer unsub()

	rec := newRecorder()
	rec.fails["x"] = 10
	s := newService(t, Config{Concurrency: 1, BaseDelay: time.Hour}, rec, bus)
	s.Start(context.Background())
	id := s.AddTask(job("x"), class(classify.PriorityLow, classify.RiskSafe))

	select {
	case <-retries:
	case <-time.After(5 * time.Second):
		t.Fatal("no retry scheduled")
	}
	task, _ := s.GetTask(id)
	require.Equal(t, StatusPending, task.Status)
	require.Nil(t, task.StartedAt)
	require.Equal(t, 1, s.Snapshot().RetryWait)

	require.True(t, s.CancelTask(id))
	res, err := s.ProcessTasks(context.Background(), time.Second)
	require.NoError(t, err)
	require.Equal(t, StatusCancelled, res[0].Status)
	require.Zero(t, s.Snapshot().RetryWait)
}

func TestConcurrencyLimit(t *testing.T) {
	t.Parallel()
	var active, peak atomic.Int32
	release := make(chan struct{})
	ex := executor.Func(func(context.Context, intent.Intent, classify.Classification) executor.Result {
		n := active.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		<-release
		active.Add(-1)
		return executor.OK(nil)
	})
	s := newService(t, Config{}, ex, nil)
	s.Start(context.Background())
	for i := 0; i < DefaultConcurrency+2; i++ {
		s.AddTask(job("n"), class(classify.PriorityMedium, classify.RiskSafe))
	}

	// Every worker is busy and the rest wait in the queue.
	require.Eventually(t, func() bool {
		snap := s.Snapshot()
		return snap.InFlight == DefaultConcurrency && snap.QueueLen == 2
	}, 5*time.Second, 5*time.Millisecond)
	require.Equal(t, int32(DefaultConcurrency), active.Load())

	close(release)
	res, err := s.ProcessTasks(context.Background(), 10*time.Second)
	require.NoError(t, err)
	require.Len(t, res, DefaultConcurrency+2)
	require.Equal(t, int32(DefaultConcurrency), peak.Load())
	require.Equal(t, 0, s.Snapshot().InFlight)
}

func TestQueueStatusSumsToTotal(t *testing.T) {
	t.Parallel()
	rec := newRecorder()
	rec.fails["bad"] = 100
	s := newService(t, Config{Concurrency: 2}, rec, nil)
	s.AddTask(job("ok"), class(classify.PriorityLow, classify.RiskSafe))
	s.AddTask(job("bad"), class(classify.PriorityLow, classify.RiskHigh))
	c := s.AddTask(job("ok"), class(classify.PriorityLow, classify.RiskSafe))
	s.CancelTask(c)

	check := func() {
		qs := s.GetQueueStatus()
		require.Equal(t, qs.Total, qs.Pending+qs.Executing+qs.Completed+qs.Failed+qs.Cancelled)
		require.Equal(t, len(s.GetAllTasks()), qs.Total)
	}
	check()
	s.Start(context.Background())
	_, err := s.ProcessTasks(context.Background(), 5*time.Second)
	require.NoError(t, err)
	check()

	qs := s.GetQueueStatus()
	require.Equal(t, QueueStatus{Completed: 1, Failed: 1, Cancelled: 1, Total: 3}, qs)

	require.Equal(t, 2, s.ClearCompletedTasks())
	require.Equal(t, QueueStatus{Cancelled: 1, Total: 1}, s.GetQueueStatus())
}

func TestGetAllTasksNewestFirst(t *testing.T) {
	t.Parallel()
	s := newService(t, Config{}, newRecorder(), nil)
	a := s.AddTask(job("a"), class(classify.PriorityLow, classify.RiskSafe))
	b := s.AddTask(job("b"), class(classify.PriorityHigh, classify.RiskSafe))
	c := s.AddTask(job("c"), class(classify.PriorityMedium, classify.RiskSafe))

	all := s.GetAllTasks()
	require.Len(t, all, 3)
	require.Equal(t, []string{c, b, a}, []string{all[0].ID, all[1].ID, all[2].ID})
	require.NotEqual(t, a, b)

	// Returned tasks are copies.
	all[0].Intent.Parameters["x"] = 1
	got, _ := s.GetTask(c)
	require.NotContains(t, got.Intent.Parameters, "x")
}

func TestProcessTasksTimeout(t *testing.T) {
	t.Parallel()
	release := make(chan struct{})
	ex := executor.Func(func(context.Context, intent.Intent, classify.Classification) executor.Result {
		<-release
		return executor.OK(nil)
	})
	s := newService(t, Config{Concurrency: 1}, ex, nil)
	s.Start(context.Background())
	s.AddTask(job("slow"), class(classify.PriorityLow, classify.RiskSafe))

	res, err := s.ProcessTasks(context.Background(), 30*time.Millisecond)
	require.ErrorIs(t, err, ErrProcessTimeout)
	require.Nil(t, res)

	close(release)
	res, err = s.ProcessTasks(context.Background(), 5*time.Second)
	require.NoError(t, err)
	require.Len(t, res, 1)
}

func TestProcessTasksNotStarted(t *testing.T) {
	t.Parallel()
	s := newService(t, Config{}, newRecorder(), nil)
	res, err := s.ProcessTasks(context.Background(), time.Second)
	require.NoError(t, err)
	require.Empty(t, res)

	s.AddTask(job("a"), class(classify.PriorityLow, classify.RiskSafe))
	_, err = s.ProcessTasks(context.Background(), time.Second)
	require.ErrorIs(t, err, ErrNotStarted)
}

func TestExecutorPanicBecomesFailure(t *testing.T) {
	t.Parallel()
	ex := executor.Func(func(context.Context, intent.Intent, classify.Classification) executor.Result {
		panic("kaboom")
	})
	s := newService(t, Config{Concurrency: 1}, ex, nil)
	s.Start(context.Background())
	id := s.AddTask(job("p"), class(classify.PriorityLow, classify.RiskHigh))

	_, err := s.ProcessTasks(context.Background(), 5*time.Second)
	require.NoError(t, err)
	task, _ := s.GetTask(id)
	require.Equal(t, StatusFailed, task.Status)
	require.Contains(t, task.Error, "executor panic: kaboom")
	require.Equal(t, uint64(2), s.Snapshot().Panics)
}

func TestExecTimeout(t *testing.T) {
	t.Parallel()
	release := make(chan struct{})
	defer close(release)
	ex := executor.Func(func(context.Context, intent.Intent, classify.Classification) executor.Result {
		<-release
		return executor.OK(nil)
	})
	s := newService(t, Config{Concurrency: 1, ExecTimeout: 10 * time.Millisecond}, ex, nil)
	s.Start(context.Background())
	id := s.AddTask(job("hang"), class(classify.PriorityLow, classify.RiskHigh))

	_, err := s.ProcessTasks(context.Background(), 5*time.Second)
	require.NoError(t, err)
	task, _ := s.GetTask(id)
	require.Equal(t, StatusFailed, task.Status)
	require.Contains(t, task.Error, "execution timed out")
	require.Equal(t, uint64(2), s.Snapshot().TimedOut)
}

func TestLifecycleEvents(t *testing.T) {
	t.Parallel()
	bus := eventbus.New()
	ch, unsub := bus.Subscribe(32)
	defer unsub()

	rec := newRecorder()
	rec.fails["x"] = 1
	s := newService(t, Config{Concurrency: 1}, rec, bus)
	s.Start(context.Background())
	s.AddTask(job("x"), class(classify.PriorityLow, classify.RiskSafe))
	_, err := s.ProcessTasks(context.Background(), 5*time.Second)
	require.NoError(t, err)

	var types []string
	for len(types) < 5 {
		select {
		case e := <-ch:
			types = append(types, e.Type)
		case <-time.After(time.Second):
			t.Fatalf("events so far: %v", types)
		}
	}
	require.Equal(t, []string{
		eventbus.TaskQueued, eventbus.TaskStarted, eventbus.TaskRetry,
		eventbus.TaskStarted, eventbus.TaskCompleted,
	}, types)
}

func TestBackoff(t *testing.T) {
	t.Parallel()
	s := New(Config{BaseDelay: 100 * time.Millisecond}, nil, logx.Nop(), nil)
	require.Equal(t, 200*time.Millisecond, s.backoff(1))
	require.Equal(t, 400*time.Millisecond, s.backoff(2))
	require.Equal(t, 800*time.Millisecond, s.backoff(3))

	capped := New(Config{BaseDelay: 100 * time.Millisecond, MaxDelay: 300 * time.Millisecond}, nil, logx.Nop(), nil)
	require.Equal(t, 300*time.Millisecond, capped.backoff(2))
}

func TestRemoveTerminalKeepsLiveTasks(t *testing.T) {
	t.Parallel()
	s := newService(t, Config{}, newRecorder(), nil)
	live := s.AddTask(job("a"), class(classify.PriorityLow, classify.RiskSafe))
	gone := s.AddTask(job("b"), class(classify.PriorityLow, classify.RiskSafe))
	s.CancelTask(gone)

	removed := s.RemoveTerminal(live, gone, "missing")
	require.Len(t, removed, 1)
	require.Equal(t, gone, removed[0].ID)
	_, ok := s.GetTask(live)
	require.True(t, ok)
	require.Empty(t, s.Terminal())
}
