package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	logx "intentd/pkg/logx"
)

// Settings is a Config with defaults applied and durations parsed.
type Settings struct {
	Log logx.Config

	CacheSize int
	CacheTTL  time.Duration

	Concurrency    int
	RetryBaseDelay time.Duration
	RetryMaxDelay  time.Duration
	ExecTimeout    time.Duration
	SubmitRate     float64
	SubmitBurst    int

	Reclaim Reclaim
	Storage Storage
}

type Reclaim struct {
	Enabled         bool
	Schedule        string
	MaxAge          time.Duration
	MaxTerminal     int
	MemoryThreshold uint64 // bytes
}

type Storage struct {
	Driver      string
	Path        string
	DSN         string
	BusyTimeout time.Duration
}

// fieldErrs collects per-field problems so one reload reports all of them.
type fieldErrs []error

func (e *fieldErrs) add(path, format string, args ...any) {
	*e = append(*e, fmt.Errorf("%s: "+format, append([]any{path}, args...)...))
}

func (e *fieldErrs) duration(path, raw string, def time.Duration) time.Duration {
	s := strings.TrimSpace(raw)
	if s == "" {
		return def
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		e.add(path, "invalid duration %q", raw)
		return def
	}
	if d < 0 {
		e.add(path, "duration must be >= 0")
		return def
	}
	return d
}

// Resolve validates c and returns the effective settings.
func (c *Config) Resolve() (Settings, error) {
	if c == nil {
		c = Default()
	}
	var errs fieldErrs
	var s Settings

	s.Log = logx.Config{
		Level:   strings.TrimSpace(c.Logging.Level),
		Console: c.Logging.Console,
		File:    logx.FileConfig{Enabled: c.Logging.File.Enabled, Path: strings.TrimSpace(c.Logging.File.Path)},
	}
	if s.Log.Level != "" {
		switch strings.ToLower(s.Log.Level) {
		case "trace", "debug", "info", "warn", "warning", "error":
		default:
			errs.add("logging.level", "unknown level %q", s.Log.Level)
		}
	}

	if c.Parser.CacheSize < 0 {
		errs.add("parser.cache_size", "must be >= 0")
	}
	s.CacheSize = c.Parser.CacheSize
	s.CacheTTL = errs.duration("parser.cache_ttl", c.Parser.CacheTTL, 0)

	switch {
	case c.Scheduler.Concurrency < 0:
		errs.add("scheduler.concurrency", "must be >= 0")
	case c.Scheduler.Concurrency == 0:
		s.Concurrency = 3
	default:
		s.Concurrency = c.Scheduler.Concurrency
	}
	s.RetryBaseDelay = errs.duration("scheduler.retry_base_delay", c.Scheduler.RetryBaseDelay, time.Second)
	if s.RetryBaseDelay == 0 {
		s.RetryBaseDelay = time.Second
	}
	s.RetryMaxDelay = errs.duration("scheduler.retry_max_delay", c.Scheduler.RetryMaxDelay, 0)
	if s.RetryMaxDelay > 0 && s.RetryMaxDelay < s.RetryBaseDelay {
		errs.add("scheduler.retry_max_delay", "must be >= retry_base_delay")
	}
	s.ExecTimeout = errs.duration("scheduler.exec_timeout", c.Scheduler.ExecTimeout, 0)
	if c.Scheduler.SubmitRatePerSec < 0 {
		errs.add("scheduler.submit_rate_per_sec", "must be >= 0")
	}
	s.SubmitRate = c.Scheduler.SubmitRatePerSec
	s.SubmitBurst = c.Scheduler.SubmitBurst
	if s.SubmitBurst <= 0 {
		s.SubmitBurst = 1
	}

	s.Reclaim = Reclaim{
		Enabled:     c.Reclaimer.Enabled,
		Schedule:    strings.TrimSpace(c.Reclaimer.Schedule),
		MaxAge:      errs.duration("reclaimer.max_age", c.Reclaimer.MaxAge, 0),
		MaxTerminal: c.Reclaimer.MaxTerminal,
	}
	if c.Reclaimer.MaxTerminal < 0 {
		errs.add("reclaimer.max_terminal", "must be >= 0")
	}
	if c.Reclaimer.MemoryThresholdMB < 0 {
		errs.add("reclaimer.memory_threshold_mb", "must be >= 0")
	} else {
		s.Reclaim.MemoryThreshold = uint64(c.Reclaimer.MemoryThresholdMB) << 20
	}

	s.Storage = Storage{
		Driver:      strings.ToLower(strings.TrimSpace(c.Storage.Driver)),
		Path:        strings.TrimSpace(c.Storage.Path),
		DSN:         strings.TrimSpace(c.Storage.DSN),
		BusyTimeout: errs.duration("storage.busy_timeout", c.Storage.BusyTimeout, 0),
	}
	switch s.Storage.Driver {
	case "", "none":
	case "file", "sqlite", "sqlite3":
		if s.Storage.Path == "" {
			errs.add("storage.path", "required for driver %q", s.Storage.Driver)
		}
	case "postgres", "postgresql", "pgx":
		if s.Storage.DSN == "" {
			errs.add("storage.dsn", "required for driver %q", s.Storage.Driver)
		}
	default:
		errs.add("storage.driver", "unknown driver %q", s.Storage.Driver)
	}

	if len(errs) > 0 {
		return s, errors.Join(errs...)
	}
	return s, nil
}
