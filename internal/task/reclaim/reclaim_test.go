package reclaim

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"intentd/internal/classify"
	"intentd/internal/eventbus"
	"intentd/internal/executor"
	"intentd/internal/intent"
	"intentd/internal/task/engine"
	logx "intentd/pkg/logx"
)

type memArchive struct {
	mu    sync.Mutex
	tasks []engine.Task
	err   error
}

func (a *memArchive) Archive(_ context.Context, ts []engine.Task) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.tasks = append(a.tasks, ts...)
	return a.err
}

// seed builds an unstarted engine holding n cancelled tasks and one pending.
func seed(t *testing.T, n int) (*engine.Service, []string, string) {
	t.Helper()
	eng := engine.New(engine.Config{}, executor.DryRun{}, logx.Nop(), nil)
	c := classify.Classification{Priority: classify.PriorityLow, RiskLevel: classify.RiskSafe}
	var ids []string
	for i := 0; i < n; i++ {
		id := eng.AddTask(intent.Intent{Domain: intent.DomainWeb}, c)
		require.True(t, eng.CancelTask(id))
		ids = append(ids, id)
		time.Sleep(time.Millisecond) // distinct completion times
	}
	pending := eng.AddTask(intent.Intent{Domain: intent.DomainWeb}, c)
	return eng, ids, pending
}

func TestSweepDropsExpired(t *testing.T) {
	t.Parallel()
	eng, ids, pending := seed(t, 3)
	arch := &memArchive{}
	r := New(Config{MaxAge: time.Hour}, eng, logx.Nop(), nil,
		WithArchiver(arch),
		WithClock(func() time.Time { return time.Now().Add(2 * time.Hour) }),
	)

	rep := r.Sweep(context.Background())
	require.Equal(t, 3, rep.Expired)
	require.Zero(t, rep.Trimmed)
	require.Zero(t, rep.Retained)
	for _, id := range ids {
		_, ok := eng.GetTask(id)
		require.False(t, ok)
	}
	task, ok := eng.GetTask(pending)
	require.True(t, ok)
	require.Equal(t, engine.StatusPending, task.Status)
	require.Len(t, arch.tasks, 3)
}

func TestSweepKeepsFreshTasks(t *testing.T) {
	t.Parallel()
	eng, _, _ := seed(t, 2)
	r := New(Config{MaxAge: time.Hour}, eng, logx.Nop(), nil)
	rep := r.Sweep(context.Background())
	require.Zero(t, rep.Removed())
	require.Equal(t, 2, rep.Retained)
	require.Equal(t, 3, eng.GetQueueStatus().Total)
}

func TestSweepTrimsOldestFirst(t *testing.T) {
	t.Parallel()
	eng, ids, pending := seed(t, 5)
	r := New(Config{MaxTerminal: 2}, eng, logx.Nop(), nil)

	rep := r.Sweep(context.Background())
	require.Equal(t, 3, rep.Trimmed)
	require.Equal(t, 2, rep.Retained)

	for _, id := range ids[:3] {
		_, ok := eng.GetTask(id)
		require.False(t, ok, "oldest %s should be trimmed", id)
	}
	for _, id := range append(ids[3:], pending) {
		_, ok := eng.GetTask(id)
		require.True(t, ok, "%s should remain", id)
	}
	sweeps, removed := r.Counters()
	require.Equal(t, uint64(1), sweeps)
	require.Equal(t, uint64(3), removed)
	require.Equal(t, rep, r.LastReport())
}

func TestSweepMemoryThreshold(t *testing.T) {
	t.Parallel()
	eng, _, _ := seed(t, 0)
	collected := 0
	r := New(Config{MemoryThreshold: 50}, eng, logx.Nop(), nil,
		WithMemory(func() uint64 { return 100 }, func() { collected++ }))
	rep := r.Sweep(context.Background())
	require.True(t, rep.GC)
	require.Equal(t, uint64(100), rep.HeapAlloc)
	require.Equal(t, 1, collected)

	r = New(Config{MemoryThreshold: 500}, eng, logx.Nop(), nil,
		WithMemory(func() uint64 { return 100 }, func() { collected++ }))
	require.False(t, r.Sweep(context.Background()).GC)
	require.Equal(t, 1, collected)
}

func TestSweepArchiveErrorIsNotFatal(t *testing.T) {
	t.Parallel()
	eng, _, _ := seed(t, 2)
	arch := &memArchive{err: errors.New("disk full")}
	r := New(Config{MaxTerminal: 1}, eng, logx.Nop(), nil, WithArchiver(arch))
	rep := r.Sweep(context.Background())
	require.Equal(t, 1, rep.Trimmed)
	require.Len(t, arch.tasks, 1)
}

func TestScheduledSweepPublishesEvent(t *testing.T) {
	t.Parallel()
	eng, _, _ := seed(t, 3)
	bus := eventbus.New()
	ch, unsub := bus.Subscribe(4, eventbus.TaskReclaimed)
	defer unsub()

	r := New(Config{Enabled: true, Schedule: "@every 1s", MaxTerminal: 1}, eng, logx.Nop(), bus)
	require.NoError(t, r.Start(context.Background()))
	defer r.Stop(context.Background())

	select {
	case e := <-ch:
		rep, ok := e.Data.(Report)
		require.True(t, ok)
		require.Equal(t, 2, rep.Trimmed)
	case <-time.After(5 * time.Second):
		t.Fatal("no sweep ran")
	}
}

func TestApplyValidatesSchedule(t *testing.T) {
	t.Parallel()
	eng, _, _ := seed(t, 0)
	r := New(Config{Enabled: true}, eng, logx.Nop(), nil)
	require.NoError(t, r.Start(context.Background()))
	defer r.Stop(context.Background())

	require.Error(t, r.Apply(Config{Enabled: true, Schedule: "every day"}))
	require.Equal(t, DefaultSchedule, orDefault(r.Config().Schedule))
	require.NoError(t, r.Apply(Config{Enabled: true, Schedule: "30s", MaxAge: time.Minute}))
	require.Equal(t, time.Minute, r.Config().MaxAge)
	require.NoError(t, r.Apply(Config{Enabled: false}))
}

func TestNormalizeSchedule(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{in: "@every 1m", want: "@every 1m"},
		{in: "*/5 * * * *", want: "*/5 * * * *"},
		{in: "0 */2 * * * *", want: "0 */2 * * * *"},
		{in: "90s", want: "@every 1m30s"},
		{in: "00:05", want: "@every 5m0s"},
		{in: "", wantErr: true},
		{in: "-1m", wantErr: true},
		{in: "00:75", wantErr: true},
		{in: "not a cron", wantErr: true},
		{in: "soon", wantErr: true},
	}
	for _, tt := range tests {
		got, err := NormalizeSchedule(tt.in)
		if tt.wantErr {
			require.Error(t, err, tt.in)
			continue
		}
		require.NoError(t, err, tt.in)
		require.Equal(t, tt.want, got)
	}
}
