package config

// Config is the on-disk daemon configuration.
//
// All durations are Go duration strings (e.g. "500ms", "10s", "1m").
type Config struct {
	Logging   LoggingConfig   `json:"logging"`
	Parser    ParserConfig    `json:"parser"`
	Scheduler SchedulerConfig `json:"scheduler"`
	Reclaimer ReclaimerConfig `json:"reclaimer"`
	Storage   StorageConfig   `json:"storage"`
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// ParserConfig sizes the parse cache. cache_size 0 disables caching.
type ParserConfig struct {
	CacheSize int    `json:"cache_size"`
	CacheTTL  string `json:"cache_ttl,omitempty"`
}

// SchedulerConfig controls the task engine.
//
// Defaults (when fields are omitted/zero):
//   - concurrency: 3
//   - retry_base_delay: "1s"
//   - retry_max_delay: "0s" (uncapped)
//   - exec_timeout: "0s" (disabled)
//   - submit_rate_per_sec: 0 (unlimited)
type SchedulerConfig struct {
	Concurrency      int     `json:"concurrency,omitempty"`
	RetryBaseDelay   string  `json:"retry_base_delay,omitempty"`
	RetryMaxDelay    string  `json:"retry_max_delay,omitempty"`
	ExecTimeout      string  `json:"exec_timeout,omitempty"`
	SubmitRatePerSec float64 `json:"submit_rate_per_sec,omitempty"`
	SubmitBurst      int     `json:"submit_burst,omitempty"`
}

// ReclaimerConfig controls the periodic sweep of finished tasks.
//
// Schedule accepts a cron expression, an @-descriptor, a Go duration or HH:MM.
type ReclaimerConfig struct {
	Enabled           bool   `json:"enabled"`
	Schedule          string `json:"schedule,omitempty"`
	MaxAge            string `json:"max_age,omitempty"`
	MaxTerminal       int    `json:"max_terminal,omitempty"`
	MemoryThresholdMB int    `json:"memory_threshold_mb,omitempty"`
}

// StorageConfig selects the task archive.
//
// Example:
//
//	"storage": { "driver": "sqlite", "path": "./data/archive.db" }
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path,omitempty"`
	DSN         string `json:"dsn,omitempty"` // postgres connection string (do not log)
	BusyTimeout string `json:"busy_timeout,omitempty"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Logging:   LoggingConfig{Level: "info", Console: true},
		Parser:    ParserConfig{CacheSize: 256, CacheTTL: "10m"},
		Scheduler: SchedulerConfig{Concurrency: 3, RetryBaseDelay: "1s"},
		Reclaimer: ReclaimerConfig{Enabled: true, Schedule: "@every 1m", MaxAge: "1h", MaxTerminal: 500},
		Storage:   StorageConfig{Driver: "none"},
	}
}
