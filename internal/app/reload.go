package app

import (
	"slices"
	"strings"

	"intentd/internal/config"
	logx "intentd/pkg/logx"
)

// applyConfig applies a reloaded config. Logging, the reclaimer policy and
// the submit rate change live; everything else needs a restart.
func (a *App) applyConfig(prev, next *config.Config) {
	sections, attrs := config.Changed(prev, next)
	if len(sections) == 0 {
		a.log.Debug("config reload received, but no effective changes detected")
		return
	}
	s, err := resolve(next)
	if err != nil {
		a.log.Warn("invalid config; keeping previous", logx.Err(err))
		return
	}

	a.logs.Apply(s.Log)
	if err := a.reclaim.Apply(reclaimConfig(s.Reclaim)); err != nil {
		a.log.Warn("invalid reclaimer config; keeping previous schedule", logx.Err(err))
	}
	a.setRate(s.SubmitRate, s.SubmitBurst)

	for _, name := range []string{"parser", "storage"} {
		if slices.Contains(sections, name) {
			a.log.Warn(name + " config changed; restart required for changes to take effect")
		}
	}
	if prev != nil && schedulerChanged(prev.Scheduler, next.Scheduler) {
		a.log.Warn("scheduler execution settings changed; restart required for changes to take effect")
	}

	fields := append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)
	a.log.Info("config applied", fields...)
}

// schedulerChanged ignores the submit rate, which is applied live.
func schedulerChanged(a, b config.SchedulerConfig) bool {
	a.SubmitRatePerSec, b.SubmitRatePerSec = 0, 0
	a.SubmitBurst, b.SubmitBurst = 0, 0
	return a != b
}
