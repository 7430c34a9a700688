// Package reclaim bounds the scheduler's memory by periodically dropping
// terminal tasks from its table.
package reclaim

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"

	"intentd/internal/eventbus"
	"intentd/internal/task/engine"
	logx "intentd/pkg/logx"
)

type Config struct {
	Enabled  bool
	Schedule string

	// MaxAge drops terminal tasks completed longer ago than this. 0 disables.
	MaxAge time.Duration
	// MaxTerminal caps how many terminal tasks are retained. 0 disables.
	MaxTerminal int
	// MemoryThreshold is the heap size in bytes above which a sweep asks the
	// runtime to collect. 0 disables.
	MemoryThreshold uint64
}

const DefaultSchedule = "@every 1m"

// Table is the slice of the scheduler the reclaimer works against.
type Table interface {
	Terminal() []engine.Task
	RemoveTerminal(ids ...string) []engine.Task
}

// Archiver receives every task the reclaimer removes.
type Archiver interface {
	Archive(ctx context.Context, tasks []engine.Task) error
}

// Report describes one sweep.
type Report struct {
	Expired   int           `json:"expired"`
	Trimmed   int           `json:"trimmed"`
	Retained  int           `json:"retained"`
	HeapAlloc uint64        `json:"heap_alloc"`
	GC        bool          `json:"gc"`
	Took      time.Duration `json:"took"`
}

func (r Report) Removed() int { return r.Expired + r.Trimmed }

type Option func(*Service)

func WithArchiver(a Archiver) Option { return func(s *Service) { s.archive = a } }

// WithClock replaces time.Now for age checks.
func WithClock(now func() time.Time) Option { return func(s *Service) { s.now = now } }

// WithMemory replaces the heap probe and the collector.
func WithMemory(heap func() uint64, gc func()) Option {
	return func(s *Service) {
		if heap != nil {
			s.heap = heap
		}
		if gc != nil {
			s.gc = gc
		}
	}
}

type Service struct {
	table   Table
	log     logx.Logger
	bus     eventbus.Bus
	archive Archiver
	now     func() time.Time
	heap    func() uint64
	gc      func()

	mu      sync.Mutex
	cfg     Config
	c       *cron.Cron
	entry   cron.EntryID
	ctx     context.Context
	cancel  context.CancelFunc
	lastRun Report

	sweeping atomic.Bool
	sweeps   atomic.Uint64
	removed  atomic.Uint64
}

func New(cfg Config, table Table, log logx.Logger, bus eventbus.Bus, opts ...Option) *Service {
	s := &Service{
		cfg:   cfg,
		table: table,
		log:   log,
		bus:   bus,
		now:   time.Now,
		heap:  heapAlloc,
		gc:    runtime.GC,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

func heapAlloc() uint64 {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	return ms.HeapAlloc
}

// Start begins periodic sweeps if enabled. It is idempotent.
func (s *Service) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.c != nil {
		return nil
	}
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.c = cron.New(
		cron.WithParser(parser),
		cron.WithLogger(cronLogger{s}),
		cron.WithChain(cron.Recover(cronLogger{s})),
	)
	if err := s.registerLocked(); err != nil {
		s.c = nil
		s.cancel()
		return err
	}
	s.c.Start()
	s.log.Info("reclaimer started", logx.Bool("enabled", s.cfg.Enabled), logx.String("schedule", s.scheduleLocked()))
	return nil
}

func (s *Service) Stop(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}
	s.mu.Lock()
	c := s.c
	cancel := s.cancel
	s.c = nil
	s.mu.Unlock()
	if c == nil {
		return
	}
	select {
	case <-c.Stop().Done():
	case <-ctx.Done():
	}
	cancel()
	s.log.Info("reclaimer stopped")
}

// Apply swaps the retention policy. A changed schedule takes effect
// immediately when running.
func (s *Service) Apply(cfg Config) error {
	if cfg.Enabled {
		if _, err := NormalizeSchedule(orDefault(cfg.Schedule)); err != nil {
			return err
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	prev := s.cfg
	s.cfg = cfg
	if s.c == nil || (prev.Enabled == cfg.Enabled && prev.Schedule == cfg.Schedule) {
		return nil
	}
	if s.entry != 0 {
		s.c.Remove(s.entry)
		s.entry = 0
	}
	return s.registerLocked()
}

func (s *Service) Config() Config {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg
}

// LastReport returns the most recent sweep's report.
func (s *Service) LastReport() Report {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastRun
}

func (s *Service) registerLocked() error {
	if !s.cfg.Enabled {
		return nil
	}
	spec, err := NormalizeSchedule(s.scheduleLocked())
	if err != nil {
		return err
	}
	ctx := s.ctx
	id, err := s.c.AddFunc(spec, func() { s.Sweep(ctx) })
	if err != nil {
		return fmt.Errorf("register sweep %q: %w", spec, err)
	}
	s.entry = id
	s.log.Debug("sweep scheduled", logx.String("spec", spec))
	return nil
}

func (s *Service) scheduleLocked() string { return orDefault(s.cfg.Schedule) }

func orDefault(spec string) string {
	if spec == "" {
		return DefaultSchedule
	}
	return spec
}

// Sweep runs one reclamation pass. Overlapping calls are skipped and return
// an empty report.
func (s *Service) Sweep(ctx context.Context) Report {
	if !s.sweeping.CompareAndSwap(false, true) {
		return Report{}
	}
	defer s.sweeping.Store(false)
	if ctx == nil {
		ctx = context.Background()
	}

	start := time.Now()
	cfg := s.Config()
	now := s.now()

	terminal := s.table.Terminal()
	var rep Report
	var drop []string
	expired := map[string]bool{}
	kept := make([]engine.Task, 0, len(terminal))
	for _, t := range terminal {
		if cfg.MaxAge > 0 && t.CompletedAt != nil && now.Sub(*t.CompletedAt) > cfg.MaxAge {
			drop = append(drop, t.ID)
			expired[t.ID] = true
			continue
		}
		kept = append(kept, t)
	}
	// kept is oldest first, so the excess is at the front.
	if cfg.MaxTerminal > 0 && len(kept) > cfg.MaxTerminal {
		excess := len(kept) - cfg.MaxTerminal
		for _, t := range kept[:excess] {
			drop = append(drop, t.ID)
		}
		kept = kept[excess:]
	}

	var removed []engine.Task
	if len(drop) > 0 {
		removed = s.table.RemoveTerminal(drop...)
	}
	for _, t := range removed {
		if expired[t.ID] {
			rep.Expired++
		} else {
			rep.Trimmed++
		}
	}
	rep.Retained = len(kept)

	if len(removed) > 0 && s.archive != nil {
		if err := s.archive.Archive(ctx, removed); err != nil {
			s.log.Warn("archive reclaimed tasks failed", logx.Int("tasks", len(removed)), logx.Err(err))
		}
	}

	if cfg.MemoryThreshold > 0 {
		rep.HeapAlloc = s.heap()
		if rep.HeapAlloc > cfg.MemoryThreshold {
			s.gc()
			rep.GC = true
		}
	}
	rep.Took = time.Since(start)

	s.sweeps.Add(1)
	s.removed.Add(uint64(len(removed)))
	s.mu.Lock()
	s.lastRun = rep
	s.mu.Unlock()

	if len(removed) > 0 || rep.GC {
		s.log.Info("sweep reclaimed tasks", logx.Int("expired", rep.Expired), logx.Int("trimmed", rep.Trimmed), logx.Int("retained", rep.Retained), logx.Bool("gc", rep.GC))
		if s.bus != nil {
			s.bus.Publish(eventbus.Event{Type: eventbus.TaskReclaimed, Time: now, Data: rep})
		}
	} else {
		s.log.Debug("sweep found nothing to reclaim", logx.Int("retained", rep.Retained))
	}
	return rep
}

// Counters reports lifetime totals.
func (s *Service) Counters() (sweeps, removed uint64) {
	return s.sweeps.Load(), s.removed.Load()
}

func kvFields(kv []any) []logx.Field {
	out := make([]logx.Field, 0, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		out = append(out, logx.Any(fmt.Sprint(kv[i]), kv[i+1]))
	}
	return out
}
