package config

import (
	logx "intentd/pkg/logx"
)

// Changed returns the sections that differ between two configs and log
// fields describing the new values. The storage DSN is never included.
func Changed(oldCfg, newCfg *Config) ([]string, []logx.Field) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}
	var (
		changed []string
		attrs   []logx.Field
	)
	if oldCfg.Logging != newCfg.Logging {
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logging.level", newCfg.Logging.Level),
			logx.Bool("logging.console", newCfg.Logging.Console),
			logx.Bool("logging.file_enabled", newCfg.Logging.File.Enabled),
		)
	}
	if oldCfg.Parser != newCfg.Parser {
		changed = append(changed, "parser")
		attrs = append(attrs, logx.Int("parser.cache_size", newCfg.Parser.CacheSize))
	}
	if oldCfg.Scheduler != newCfg.Scheduler {
		changed = append(changed, "scheduler")
		attrs = append(attrs,
			logx.Int("scheduler.concurrency", newCfg.Scheduler.Concurrency),
			logx.Float64("scheduler.submit_rate_per_sec", newCfg.Scheduler.SubmitRatePerSec),
		)
	}
	if oldCfg.Reclaimer != newCfg.Reclaimer {
		changed = append(changed, "reclaimer")
		attrs = append(attrs,
			logx.Bool("reclaimer.enabled", newCfg.Reclaimer.Enabled),
			logx.String("reclaimer.schedule", newCfg.Reclaimer.Schedule),
			logx.Int("reclaimer.max_terminal", newCfg.Reclaimer.MaxTerminal),
		)
	}
	if oldCfg.Storage != newCfg.Storage {
		changed = append(changed, "storage")
		attrs = append(attrs,
			logx.String("storage.driver", newCfg.Storage.Driver),
			logx.Bool("storage.dsn_set", newCfg.Storage.DSN != ""),
		)
	}
	return changed, attrs
}
